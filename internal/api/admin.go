/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"traindispatcher/internal/domain"
	"traindispatcher/internal/version"
)

// Status is the admin overview payload.
type Status struct {
	Message         string                `json:"message"`
	BackendVersion  string                `json:"backend_version"`
	FrontendVersion string                `json:"frontend_version"`
	IP              []string              `json:"ip"`
	ServiceCounts   map[domain.Kind]int64 `json:"service_counts"`
	Logs            []string              `json:"logs"`
	UptimeSeconds   int64                 `json:"uptime_seconds"`
}

// IPInfo is the backend's view of its own addresses.
type IPInfo struct {
	IP  string   `json:"ip"`
	IPs []string `json:"ips"`
}

// DatabaseStatus reports the driver and per-table counts.
type DatabaseStatus struct {
	Driver        string                `json:"driver"`
	Location      string                `json:"location"`
	SchemaVersion int                   `json:"schema_version"`
	Counts        map[domain.Kind]int64 `json:"counts"`
}

// Orphan is a row with a dangling foreign key.
type Orphan struct {
	ID        int64  `json:"id"`
	Field     string `json:"field"`
	MissingID int64  `json:"missing_id"`
}

// OrphanCheck is the last background scan.
type OrphanCheck struct {
	CheckedAt *time.Time               `json:"checked_at"`
	Total     int                      `json:"total"`
	Orphans   map[domain.Kind][]Orphan `json:"orphans"`
	Error     string                   `json:"error,omitempty"`
}

// TableInfo and Schema describe the tables for the schema view.
type TableInfo struct {
	Name   string   `json:"name"`
	Fields []string `json:"fields"`
}

type Schema struct {
	Tables        []TableInfo       `json:"tables"`
	Relationships []domain.Relation `json:"relationships"`
}

type message struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

func (c *Client) Status(ctx context.Context) (Status, error) {
	var s Status
	err := c.doJSON(ctx, http.MethodGet, "/status", nil, &s)
	return s, err
}

func (c *Client) IP(ctx context.Context) (IPInfo, error) {
	var v IPInfo
	err := c.doJSON(ctx, http.MethodGet, "/ip", nil, &v)
	return v, err
}

func (c *Client) DatabaseStatus(ctx context.Context) (DatabaseStatus, error) {
	var v DatabaseStatus
	err := c.doJSON(ctx, http.MethodGet, "/database/status", nil, &v)
	return v, err
}

// ImportDB uploads a SQLite file as multipart field "file" and returns the
// backend's message.
func (c *Client) ImportDB(ctx context.Context, filename string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(fw, r); err != nil {
		return "", fmt.Errorf("read %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	resp, err := c.do(ctx, http.MethodPost, "/admin/import-db/", &buf, mw.FormDataContentType())
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	var m message
	if err := decodeBody(resp, &m); err != nil {
		return "", err
	}
	return m.Message, nil
}

// ExportDB streams the database snapshot into w.
func (c *Client) ExportDB(ctx context.Context, w io.Writer) (int64, error) {
	resp, err := c.do(ctx, http.MethodGet, "/admin/export-db/", nil, "")
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("GET /admin/export-db/: %w", err)
	}
	return n, nil
}

// CreateDB drops and recreates every table.
func (c *Client) CreateDB(ctx context.Context) (string, error) {
	var m message
	err := c.doJSON(ctx, http.MethodPost, "/admin/create-db/", nil, &m)
	return m.Message, err
}

func (c *Client) OrphanRecords(ctx context.Context) (map[domain.Kind][]Orphan, error) {
	out := map[domain.Kind][]Orphan{}
	err := c.doJSON(ctx, http.MethodGet, "/admin/orphan-records/", nil, &out)
	return out, err
}

// DeleteOrphans returns the number of rows changed per table.
func (c *Client) DeleteOrphans(ctx context.Context) (map[domain.Kind]int64, error) {
	var body struct {
		Deleted map[domain.Kind]int64 `json:"deleted"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/admin/delete-orphans/", nil, &body)
	return body.Deleted, err
}

func (c *Client) OrphanCheckInterval(ctx context.Context) (int, error) {
	var body struct {
		Minutes int `json:"minutes"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/admin/orphan-check-interval/", nil, &body)
	return body.Minutes, err
}

func (c *Client) SetOrphanCheckInterval(ctx context.Context, minutes int) error {
	return c.doJSON(ctx, http.MethodPut, "/admin/orphan-check-interval/", map[string]int{"minutes": minutes}, nil)
}

func (c *Client) LastOrphanCheck(ctx context.Context) (OrphanCheck, error) {
	var v OrphanCheck
	err := c.doJSON(ctx, http.MethodGet, "/admin/last-orphan-check/", nil, &v)
	return v, err
}

func (c *Client) Schema(ctx context.Context) (Schema, error) {
	var v Schema
	err := c.doJSON(ctx, http.MethodGet, "/schema", nil, &v)
	return v, err
}

// Versions reads /versions.json.
func (c *Client) Versions(ctx context.Context) (version.Versions, error) {
	var v version.Versions
	err := c.doJSON(ctx, http.MethodGet, "/versions.json", nil, &v)
	return v, err
}

// Roster downloads the roster PDF for a layout.
func (c *Client) Roster(ctx context.Context, layoutID int64) ([]byte, error) {
	return c.getBytes(ctx, fmt.Sprintf("/layouts/%d/roster.pdf", layoutID))
}
