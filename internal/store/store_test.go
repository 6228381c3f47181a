package store

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traindispatcher/internal/domain"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "", t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestResolveDSN(t *testing.T) {
	cases := []struct {
		url, dir, driver, target string
	}{
		{"", "/data", "sqlite", filepath.Join("/data", DefaultFileName)},
		{"postgres://u:p@h/db", "/data", "postgres", "postgres://u:p@h/db"},
		{"postgresql://h/db", "", "postgres", "postgresql://h/db"},
		{"sqlite:///var/td.db", "/data", "sqlite", "/var/td.db"},
		{"sqlite://td.db", "/data", "sqlite", filepath.Join("/data", "td.db")},
		{"file:/tmp/x.db?cache=shared", "", "sqlite", "/tmp/x.db"},
		{"/abs/plain.db", "/data", "sqlite", "/abs/plain.db"},
	}
	for _, c := range cases {
		d, target := ResolveDSN(c.url, c.dir)
		assert.Equal(t, c.driver, d, c.url)
		assert.Equal(t, c.target, target, c.url)
	}
}

func TestRebindForPostgres(t *testing.T) {
	s := &Store{dialect: dialectPostgres}
	assert.Equal(t, "UPDATE t SET a = $1, b = $2 WHERE id = $3", s.rebind("UPDATE t SET a = ?, b = ? WHERE id = ?"))
	s.dialect = dialectSQLite
	assert.Equal(t, "SELECT ?", s.rebind("SELECT ?"))
}

func TestMaskPassword(t *testing.T) {
	assert.Equal(t, "postgres://td:***@db:5432/x", maskPassword("postgres://td:secret@db:5432/x"))
	assert.Equal(t, "postgres://db/x", maskPassword("postgres://db/x"))
}

func TestOpenCreatesSchemaAtCurrentVersion(t *testing.T) {
	s := openTemp(t)
	v, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, v)
	assert.Equal(t, "sqlite", s.Driver())
	require.NoError(t, s.Ping(context.Background()))
}

func TestCRUDRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	repo := s.Modules()

	created, err := repo.Create(ctx, domain.Module{ID: 999, Name: "Junction", DistrictID: domain.ID(4), NumberOfEndplates: 3, Owner: "Kim", IsYard: true})
	require.NoError(t, err)
	assert.NotEqual(t, int64(999), created.ID, "id must come from the database")

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created, list[0])

	created.Name = "Junction East"
	created.IsYard = false
	created.DistrictID = nil
	_, err = repo.Update(ctx, created.ID, created)
	require.NoError(t, err)
	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Junction East", got.Name)
	assert.False(t, got.IsYard)
	assert.Nil(t, got.DistrictID)

	require.NoError(t, repo.Delete(ctx, created.ID))
	_, err = repo.Get(ctx, created.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(repo.Delete(ctx, created.ID), ErrNotFound))
	_, err = repo.Update(ctx, created.ID, created)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListByLayout(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	a, err := s.Layouts().Create(ctx, domain.Layout{Name: "A"})
	require.NoError(t, err)
	b, err := s.Layouts().Create(ctx, domain.Layout{Name: "B"})
	require.NoError(t, err)
	_, err = s.Districts().Create(ctx, domain.District{Name: "d1", LayoutID: domain.ID(a.ID)})
	require.NoError(t, err)
	_, err = s.Districts().Create(ctx, domain.District{Name: "d2", LayoutID: domain.ID(b.ID)})
	require.NoError(t, err)

	got, err := s.Districts().ListBy(ctx, "layout_id", a.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "d1", got[0].Name)

	_, err = s.Districts().ListBy(ctx, "nope; DROP TABLE districts", a.ID)
	assert.Error(t, err)
}

func TestDeletingDispatcherLeavesOrphanDistrict(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	disp, err := s.Dispatchers().Create(ctx, domain.Dispatcher{FirstName: "Ada", LastName: "Lovelace"})
	require.NoError(t, err)
	dist, err := s.Districts().Create(ctx, domain.District{Name: "North", DispatcherID: domain.ID(disp.ID)})
	require.NoError(t, err)
	mod, err := s.Modules().Create(ctx, domain.Module{Name: "M1", DistrictID: domain.ID(dist.ID), NumberOfEndplates: 2})
	require.NoError(t, err)
	other, err := s.Modules().Create(ctx, domain.Module{Name: "M2", NumberOfEndplates: 1})
	require.NoError(t, err)
	_, err = s.ModuleEndplates().Create(ctx, domain.ModuleEndplate{ModuleID: other.ID, EndplateNumber: 1, ConnectedModuleID: domain.ID(mod.ID)})
	require.NoError(t, err)

	require.NoError(t, s.Dispatchers().Delete(ctx, disp.ID))

	districts, err := s.Districts().List(ctx)
	require.NoError(t, err)
	require.Len(t, districts, 1, "no cascade delete")

	orphans, err := s.Orphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, OrphanCount(orphans))
	require.Len(t, orphans[domain.KindDistricts], 1)
	assert.Equal(t, Orphan{ID: dist.ID, Field: "dispatcher_id", MissingID: disp.ID}, orphans[domain.KindDistricts][0])

	deleted, err := s.DeleteOrphans(ctx)
	require.NoError(t, err)
	// district goes, which orphans M1, which clears the endplate link
	assert.Equal(t, int64(1), deleted[domain.KindDistricts])
	assert.Equal(t, int64(1), deleted[domain.KindModules])
	assert.Equal(t, int64(1), deleted[domain.KindModuleEndplates])

	plates, err := s.ModuleEndplates().List(ctx)
	require.NoError(t, err)
	require.Len(t, plates, 1)
	assert.Nil(t, plates[0].ConnectedModuleID)

	orphans, err = s.Orphans(ctx)
	require.NoError(t, err)
	assert.Zero(t, OrphanCount(orphans))
}

func TestCountsResetAndMeta(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	_, err := s.Trains().Create(ctx, domain.Train{Name: "Z1", Status: "staged"})
	require.NoError(t, err)
	require.NoError(t, s.SetMeta(ctx, "orphan_check_minutes", "15"))

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[domain.KindTrains])
	assert.Len(t, counts, len(domain.Kinds))

	require.NoError(t, s.Reset(ctx))
	counts, err = s.Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts[domain.KindTrains])

	v, ok, err := s.GetMeta(ctx, "orphan_check_minutes")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "15", v)
	require.NoError(t, s.SetMeta(ctx, "orphan_check_minutes", "30"))
	v, _, _ = s.GetMeta(ctx, "orphan_check_minutes")
	assert.Equal(t, "30", v)
	_, ok, err = s.GetMeta(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := openTemp(t)
	_, err := src.Layouts().Create(ctx, domain.Layout{Name: "Spring Meet", LocationState: "ks"})
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := src.ExportSQLite(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("SQLite format 3")))

	dst := openTemp(t)
	_, err = dst.Trains().Create(ctx, domain.Train{Name: "will be replaced"})
	require.NoError(t, err)
	require.NoError(t, dst.ImportSQLite(ctx, bytes.NewReader(buf.Bytes())))

	layouts, err := dst.Layouts().List(ctx)
	require.NoError(t, err)
	require.Len(t, layouts, 1)
	assert.Equal(t, "KS", layouts[0].LocationState)
	trains, err := dst.Trains().List(ctx)
	require.NoError(t, err)
	assert.Empty(t, trains)

	backups, err := os.ReadDir(filepath.Join(filepath.Dir(dst.Location()), "backups"))
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func TestImportRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	_, err := s.Trains().Create(ctx, domain.Train{Name: "keep"})
	require.NoError(t, err)

	err = s.ImportSQLite(ctx, bytes.NewReader(bytes.Repeat([]byte("not a database "), 300)))
	require.Error(t, err)

	trains, err := s.Trains().List(ctx)
	require.NoError(t, err)
	assert.Len(t, trains, 1)
}

func TestDescribeSchema(t *testing.T) {
	sc := DescribeSchema()
	require.Len(t, sc.Tables, len(domain.Kinds))
	assert.Equal(t, "layouts", sc.Tables[0].Name)
	assert.Equal(t, "id", sc.Tables[0].Fields[0])
	assert.Equal(t, domain.Relations, sc.Relationships)
}
