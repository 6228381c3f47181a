/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package server

import (
	"bytes"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	applog "traindispatcher/internal/log"
	"traindispatcher/internal/report"
	"traindispatcher/internal/store"
	"traindispatcher/internal/version"
)

const (
	statusLogLines = 20
	noLogMessage   = "No log file found."
	exportFileName = "dispatcher_db_export"
)

func (s *Server) registerAdmin(r *gin.Engine) {
	handle(&r.RouterGroup, http.MethodGet, "/status", s.status)
	handle(&r.RouterGroup, http.MethodGet, "/ip", s.ip)
	handle(&r.RouterGroup, http.MethodGet, "/database/status", s.databaseStatus)
	handle(&r.RouterGroup, http.MethodGet, "/schema", func(c *gin.Context) {
		c.JSON(http.StatusOK, store.DescribeSchema())
	})
	handle(&r.RouterGroup, http.MethodGet, "/layouts/:id/roster.pdf", s.roster)

	a := r.Group("/admin")
	handle(a, http.MethodPost, "/import-db/", s.importDB)
	handle(a, http.MethodGet, "/export-db/", s.exportDB)
	handle(a, http.MethodPost, "/create-db/", s.createDB)
	handle(a, http.MethodGet, "/orphan-records/", s.orphanRecords)
	handle(a, http.MethodPost, "/delete-orphans/", s.deleteOrphans)
	handle(a, http.MethodGet, "/orphan-check-interval/", s.getOrphanInterval)
	handle(a, http.MethodPut, "/orphan-check-interval/", s.putOrphanInterval)
	handle(a, http.MethodGet, "/last-orphan-check/", s.lastOrphanCheck)
}

func (s *Server) status(c *gin.Context) {
	counts, err := s.store.Counts(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	logs, err := applog.Tail(s.cfg.LogFile(), statusLogLines)
	if err != nil || len(logs) == 0 {
		logs = []string{noLogMessage}
	}
	v := version.Load()
	c.JSON(http.StatusOK, gin.H{
		"message":          "Train Dispatcher Backend is running!",
		"backend_version":  v.Backend,
		"frontend_version": v.Frontend,
		"ip":               localIPv4s(),
		"service_counts":   counts,
		"logs":             logs,
		"uptime_seconds":   int64(time.Since(s.started).Seconds()),
	})
}

// localIPv4s lists the non-loopback IPv4 addresses of up interfaces.
func localIPv4s() []string {
	out := []string{}
	ifaces, err := net.Interfaces()
	if err != nil {
		return out
	}
	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagUp == 0 || ifc.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := ifc.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ipn, ok := a.(*net.IPNet); ok {
				if ip4 := ipn.IP.To4(); ip4 != nil && !ip4.IsLoopback() {
					out = append(out, ip4.String())
				}
			}
		}
	}
	sort.Strings(out)
	return out
}

// outboundIP finds the address used for outbound traffic. Dialing UDP
// sends nothing; it only selects a route.
func outboundIP() string {
	conn, err := net.Dial("udp", "10.255.255.255:1")
	if err != nil {
		return "127.0.0.1"
	}
	defer func() { _ = conn.Close() }()
	if ua, ok := conn.LocalAddr().(*net.UDPAddr); ok && ua.IP != nil {
		return ua.IP.String()
	}
	return "127.0.0.1"
}

func (s *Server) ip(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ip": outboundIP(), "ips": localIPv4s()})
}

func (s *Server) databaseStatus(c *gin.Context) {
	ctx := c.Request.Context()
	counts, err := s.store.Counts(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	ver, err := s.store.SchemaVersion(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"driver":         s.store.Driver(),
		"location":       s.store.Location(),
		"schema_version": ver,
		"counts":         counts,
	})
}

func (s *Server) importDB(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field \"file\" is required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, err)
		return
	}
	defer func() { _ = f.Close() }()

	err = s.store.ImportSQLite(c.Request.Context(), f)
	switch {
	case errors.Is(err, store.ErrUnsupported):
		fail(c, err)
		return
	case err != nil:
		// a rejected upload leaves the old database in place
		s.log.WarnContext(c.Request.Context(), "import rejected", slog.String("file", fh.Filename), slog.Any("err", err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "message": "Database imported from " + fh.Filename + "."})
}

func (s *Server) exportDB(c *gin.Context) {
	var buf bytes.Buffer
	if _, err := s.store.ExportSQLite(c.Request.Context(), &buf); err != nil {
		fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+exportFileName+`"`)
	c.Data(http.StatusOK, "application/octet-stream", buf.Bytes())
}

func (s *Server) createDB(c *gin.Context) {
	if err := s.store.Reset(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "message": "Database created."})
}

func (s *Server) orphanRecords(c *gin.Context) {
	orphans, err := s.store.Orphans(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, orphans)
}

func (s *Server) deleteOrphans(c *gin.Context) {
	ctx := c.Request.Context()
	deleted, err := s.store.DeleteOrphans(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	s.orphans.Check(ctx)
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (s *Server) getOrphanInterval(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"minutes": int(s.orphans.Interval() / time.Minute)})
}

func (s *Server) putOrphanInterval(c *gin.Context) {
	var body struct {
		Minutes *int `json:"minutes"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Minutes == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": `body must be {"minutes": n}`})
		return
	}
	if err := s.orphans.SetMinutes(c.Request.Context(), *body.Minutes); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"minutes": *body.Minutes})
}

func (s *Server) lastOrphanCheck(c *gin.Context) {
	res, ok := s.orphans.Last()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"checked_at": nil, "orphans": gin.H{}, "total": 0})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) roster(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	layout, err := s.store.Layouts().Get(ctx, id)
	if err != nil {
		fail(c, err)
		return
	}
	r := report.Roster{Layout: layout}
	if r.Districts, err = s.store.Districts().ListBy(ctx, "layout_id", id); err != nil {
		fail(c, err)
		return
	}
	if r.Dispatchers, err = s.store.Dispatchers().List(ctx); err != nil {
		fail(c, err)
		return
	}
	if r.Modules, err = s.store.Modules().List(ctx); err != nil {
		fail(c, err)
		return
	}
	var buf bytes.Buffer
	if err := report.WriteRosterPDF(&buf, r); err != nil {
		fail(c, err)
		return
	}
	name := layout.Key
	if name == "" {
		name = strconv.FormatInt(layout.ID, 10)
	}
	c.Header("Content-Disposition", `inline; filename="roster-`+name+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}
