package api

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traindispatcher/internal/domain"
	"traindispatcher/internal/server"
	"traindispatcher/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newBackend runs the real backend on a temp SQLite file.
func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	st, err := store.Open(ctx, "", dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	srv := server.New(ctx, server.Config{DataDir: dir, CORSOrigins: []string{"*"}}, st)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func newClient(t *testing.T) *Client {
	t.Helper()
	return NewClient(StaticResolver(newBackend(t).URL), 0)
}

func TestResourceRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	res := c.Dispatchers()

	d, err := res.Create(ctx, domain.Dispatcher{FirstName: "Ada", LastName: "Lovelace"})
	require.NoError(t, err)
	require.NotZero(t, d.ID)

	list, err := res.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, list, d)

	d.CellNumber = "555-0100"
	_, err = res.Update(ctx, d.ID, d)
	require.NoError(t, err)
	list, err = res.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "555-0100", list[0].CellNumber)

	require.NoError(t, res.Delete(ctx, d.ID))
	list, err = res.List(ctx)
	require.NoError(t, err)
	assert.NotContains(t, list, d)
	assert.Empty(t, list)
}

func TestNon2xxSurfacesBodyVerbatim(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	err := c.Trains().Delete(ctx, 42)
	require.Error(t, err)

	var he *HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusNotFound, he.Status)
	assert.Equal(t, he.Body, err.Error())
	assert.Contains(t, err.Error(), "not found")
}

func TestTransportErrorIsWrapped(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	base := ts.URL
	ts.Close()

	_, err := NewClient(StaticResolver(base), 0).Trains().List(context.Background())
	require.Error(t, err)
	var he *HTTPError
	assert.False(t, errors.As(err, &he))
	assert.Contains(t, err.Error(), "GET /trains/")
}

func TestLayoutDistrictsNested(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	l, err := c.Layouts().Create(ctx, domain.Layout{Name: "Spring Meet"})
	require.NoError(t, err)

	res := c.LayoutDistricts(l.ID)
	assert.Equal(t, "/layouts/"+strconv.FormatInt(l.ID, 10)+"/districts", res.Path())
	d, err := res.Create(ctx, domain.District{Name: "North"})
	require.NoError(t, err)
	assert.Equal(t, l.ID, domain.IDValue(d.LayoutID))

	d.ChannelOrFrequency = "Ch 4"
	_, err = res.Update(ctx, d.ID, d)
	require.NoError(t, err)
	got, err := res.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Ch 4", got[0].ChannelOrFrequency)

	require.NoError(t, res.Delete(ctx, d.ID))
	got, err = res.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAdminCalls(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	disp, err := c.Dispatchers().Create(ctx, domain.Dispatcher{FirstName: "A", LastName: "B"})
	require.NoError(t, err)
	dist, err := c.Districts().Create(ctx, domain.District{Name: "North", DispatcherID: domain.ID(disp.ID)})
	require.NoError(t, err)
	require.NoError(t, c.Dispatchers().Delete(ctx, disp.ID))

	orphans, err := c.OrphanRecords(ctx)
	require.NoError(t, err)
	require.Len(t, orphans[domain.KindDistricts], 1)
	assert.Equal(t, dist.ID, orphans[domain.KindDistricts][0].ID)

	deleted, err := c.DeleteOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted[domain.KindDistricts])

	last, err := c.LastOrphanCheck(ctx)
	require.NoError(t, err)
	require.NotNil(t, last.CheckedAt)
	assert.Zero(t, last.Total)

	require.NoError(t, c.SetOrphanCheckInterval(ctx, 5))
	m, err := c.OrphanCheckInterval(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, m)

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, st.BackendVersion)
	assert.Len(t, st.ServiceCounts, len(domain.Kinds))
	assert.Equal(t, []string{"No log file found."}, st.Logs)

	dbs, err := c.DatabaseStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", dbs.Driver)

	v, err := c.Versions(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, v.Frontend)

	sc, err := c.Schema(ctx)
	require.NoError(t, err)
	assert.Len(t, sc.Tables, len(domain.Kinds))

	ip, err := c.IP(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, ip.IP)
}

func TestExportImportAndReset(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	_, err := c.Trains().Create(ctx, domain.Train{Name: "Z1"})
	require.NoError(t, err)

	var snap bytes.Buffer
	n, err := c.ExportDB(ctx, &snap)
	require.NoError(t, err)
	assert.Equal(t, int64(snap.Len()), n)

	_, err = c.CreateDB(ctx)
	require.NoError(t, err)
	trains, err := c.Trains().List(ctx)
	require.NoError(t, err)
	assert.Empty(t, trains)

	msg, err := c.ImportDB(ctx, "backup.db", bytes.NewReader(snap.Bytes()))
	require.NoError(t, err)
	assert.Contains(t, msg, "backup.db")
	trains, err = c.Trains().List(ctx)
	require.NoError(t, err)
	require.Len(t, trains, 1)

	_, err = c.ImportDB(ctx, "junk.db", bytes.NewReader([]byte("junk")))
	require.Error(t, err)
}

func TestRosterDownload(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	l, err := c.Layouts().Create(ctx, domain.Layout{Name: "Spring Meet"})
	require.NoError(t, err)
	pdf, err := c.Roster(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF-")))
}

type fakeBridge struct {
	url   string
	err   error
	calls atomic.Int32
}

func (b *fakeBridge) BackendURL(context.Context) (string, error) {
	b.calls.Add(1)
	return b.url, b.err
}

func TestResolverPrefersBridgeAndCaches(t *testing.T) {
	b := &fakeBridge{url: "http://127.0.0.1:9999/"}
	r := NewResolver(ResolverOptions{Bridge: b, Override: "http://override"})
	for i := 0; i < 3; i++ {
		u, err := r.Resolve(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "http://127.0.0.1:9999", u)
	}
	assert.Equal(t, int32(1), b.calls.Load())
	assert.Zero(t, r.Probes())
}

func TestResolverReturnsBridgeErrorAndCachesIt(t *testing.T) {
	cause := errors.New("backend did not become healthy")
	b := &fakeBridge{err: cause}
	r := NewResolver(ResolverOptions{Bridge: b, Override: "http://override:1234", ProbePort: 1})
	for i := 0; i < 2; i++ {
		u, err := r.Resolve(context.Background())
		require.ErrorIs(t, err, cause)
		assert.Empty(t, u)
	}
	assert.Equal(t, int32(1), b.calls.Load())
	assert.Zero(t, r.Probes(), "no fallback probing behind a bridge")

	_, err := NewClient(r, 0).Trains().List(context.Background())
	assert.ErrorIs(t, err, cause)
}

func TestResolverRejectsEmptyBridgeURL(t *testing.T) {
	r := NewResolver(ResolverOptions{Bridge: &fakeBridge{}, Override: "http://override:1234"})
	_, err := r.Resolve(context.Background())
	assert.ErrorIs(t, err, ErrNoBridgeURL)
}

func hostPort(t *testing.T, raw string) (string, int) {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	h, p, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(p)
	require.NoError(t, err)
	return h, port
}

func TestSecondResolveIssuesNoProbe(t *testing.T) {
	ts := newBackend(t)
	host, port := hostPort(t, ts.URL)
	r := NewResolver(ResolverOptions{ProbeHost: host, ProbePort: port, Discovery: true})

	u, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ts.URL, u)
	first := r.Probes()
	assert.NotZero(t, first)

	u2, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, u, u2)
	assert.Equal(t, first, r.Probes())
}

func TestResolverCachesBaseWhenNothingAnswers(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	host, port := hostPort(t, ts.URL)
	ts.Close()

	r := NewResolver(ResolverOptions{ProbeHost: host, ProbePort: port})
	u, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ts.URL, u)
	probes := r.Probes()
	_, _ = r.Resolve(context.Background())
	assert.Equal(t, probes, r.Probes(), "a failed backend is not retried")
}

func TestDiscoverySkipsPrivateRanges(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ip", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ip":"192.168.1.20","ips":["10.0.0.3","172.20.1.1","127.0.0.1","0.1.2.3","203.0.113.9","bogus"]}`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()
	host, port := hostPort(t, ts.URL)

	r := NewResolver(ResolverOptions{ProbeHost: host, ProbePort: port, Discovery: true})
	got := r.discover(context.Background(), ts.URL)
	assert.Equal(t, []string{"203.0.113.9"}, got)
}

func TestSkipAddress(t *testing.T) {
	for _, s := range []string{"10.1.2.3", "172.16.0.1", "172.31.255.255", "192.168.0.1", "127.0.0.1", "0.0.0.0", "0.9.9.9", "x"} {
		assert.True(t, skipAddress(s), s)
	}
	for _, s := range []string{"172.32.0.1", "8.8.8.8", "203.0.113.9"} {
		assert.False(t, skipAddress(s), s)
	}
}
