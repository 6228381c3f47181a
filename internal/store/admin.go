/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"traindispatcher/internal/domain"
	applog "traindispatcher/internal/log"
)

// Counts returns the row count of every entity table.
func (s *Store) Counts(ctx context.Context) (map[domain.Kind]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.Kind]int64, len(tables))
	for _, t := range tables {
		var n int64
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+string(t.Kind)).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", t.Kind, err)
		}
		out[t.Kind] = n
	}
	return out, nil
}

// Orphan is a row whose foreign key points at a missing parent.
type Orphan struct {
	ID        int64  `json:"id"`
	Field     string `json:"field"`
	MissingID int64  `json:"missing_id"`
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func orphanSQL(r domain.Relation) string {
	return fmt.Sprintf(`SELECT id, %[2]s FROM %[1]s WHERE %[2]s IS NOT NULL AND %[2]s NOT IN (SELECT id FROM %[3]s) ORDER BY id`,
		r.From, r.Field, r.To)
}

func findOrphans(ctx context.Context, q queryer) (map[domain.Kind][]Orphan, error) {
	out := map[domain.Kind][]Orphan{}
	for _, rel := range domain.Relations {
		rows, err := q.QueryContext(ctx, orphanSQL(rel))
		if err != nil {
			return nil, fmt.Errorf("orphans %s.%s: %w", rel.From, rel.Field, err)
		}
		for rows.Next() {
			o := Orphan{Field: rel.Field}
			if err := rows.Scan(&o.ID, &o.MissingID); err != nil {
				_ = rows.Close()
				return nil, err
			}
			out[rel.From] = append(out[rel.From], o)
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Orphans lists dangling references grouped by table. Null references are
// not orphans; only ids that no longer exist are.
func (s *Store) Orphans(ctx context.Context) (map[domain.Kind][]Orphan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findOrphans(ctx, s.db)
}

// OrphanCount sums the report.
func OrphanCount(m map[domain.Kind][]Orphan) int {
	n := 0
	for _, v := range m {
		n += len(v)
	}
	return n
}

// optionalLinks are cleared instead of deleting the row.
var optionalLinks = map[string]bool{
	"module_endplates.connected_module_id": true,
	"districts.layout_id":                  true,
}

// DeleteOrphans removes orphaned rows, repeating until none are left since
// removing a district can orphan its modules. Optional links are nulled.
func (s *Store) DeleteOrphans(ctx context.Context) (map[domain.Kind]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l := applog.WithOperation(s.log, "delete_orphans")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	deleted := map[domain.Kind]int64{}
	for pass := 0; pass < len(domain.Kinds); pass++ {
		var changed int64
		for _, rel := range domain.Relations {
			var q string
			if optionalLinks[string(rel.From)+"."+rel.Field] {
				q = fmt.Sprintf(`UPDATE %[1]s SET %[2]s = NULL WHERE %[2]s IS NOT NULL AND %[2]s NOT IN (SELECT id FROM %[3]s)`, rel.From, rel.Field, rel.To)
			} else {
				q = fmt.Sprintf(`DELETE FROM %[1]s WHERE %[2]s IS NOT NULL AND %[2]s NOT IN (SELECT id FROM %[3]s)`, rel.From, rel.Field, rel.To)
			}
			res, err := tx.ExecContext(ctx, q)
			if err != nil {
				_ = tx.Rollback()
				return nil, fmt.Errorf("clean %s.%s: %w", rel.From, rel.Field, err)
			}
			n, _ := res.RowsAffected()
			deleted[rel.From] += n
			changed += n
		}
		if changed == 0 {
			break
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	for k, n := range deleted {
		if n == 0 {
			delete(deleted, k)
		}
	}
	l.Info("orphans removed", slog.Any("counts", deleted))
	return deleted, nil
}

// Reset drops and recreates every entity table. Meta settings survive.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	for i := len(tables) - 1; i >= 0; i-- {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+string(tables[i].Kind)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("drop %s: %w", tables[i].Kind, err)
		}
	}
	if err := s.ensureTables(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	applog.WithOperation(s.log, "reset").Warn("database reset")
	return nil
}

// ExportSQLite writes a consistent snapshot of the database file to w.
func (s *Store) ExportSQLite(ctx context.Context, w io.Writer) (int64, error) {
	if s.dialect != dialectSQLite {
		return 0, ErrUnsupported
	}
	tmpDir, err := os.MkdirTemp("", "td-export-")
	if err != nil {
		return 0, err
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()
	snap := filepath.Join(tmpDir, "export.db")

	s.mu.RLock()
	_, err = s.db.ExecContext(ctx, `VACUUM INTO ?`, snap)
	s.mu.RUnlock()
	if err != nil {
		return 0, fmt.Errorf("snapshot: %w", err)
	}
	f, err := os.Open(snap)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()
	return io.Copy(w, f)
}

// ImportSQLite replaces the database with the SQLite file read from r. The
// upload is checked before the swap and the current file is backed up to
// <data>/backups first.
func (s *Store) ImportSQLite(ctx context.Context, r io.Reader) error {
	if s.dialect != dialectSQLite {
		return ErrUnsupported
	}
	l := applog.WithOperation(s.log, "import").With(slog.String("path", s.path))

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "import-*.db")
	if err != nil {
		return fmt.Errorf("stage upload: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("stage upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := checkSQLiteFile(ctx, tmpPath); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		// fold the WAL into the main file so the backup is complete
		_, _ = s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
		_ = s.db.Close()
		s.db = nil
	}
	bak, err := backupFile(s.path)
	if err != nil {
		l.Warn("backup before import failed", slog.Any("err", err))
	} else if bak != "" {
		l.Info("database backed up", slog.String("backup", bak))
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(s.path + suffix)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace database: %w", err)
	}
	if err := s.open(ctx); err != nil {
		l.Error("reopen after import failed, restoring backup", slog.Any("err", err))
		if bak != "" {
			if data, rerr := os.ReadFile(bak); rerr == nil && os.WriteFile(s.path, data, 0o644) == nil {
				if oerr := s.open(ctx); oerr == nil {
					return fmt.Errorf("imported database rejected: %w", err)
				}
			}
		}
		return fmt.Errorf("reopen after import: %w", err)
	}
	l.Info("database imported")
	return nil
}

func checkSQLiteFile(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", "file:"+filepath.ToSlash(path)+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer func() { _ = db.Close() }()
	var res string
	if err := db.QueryRowContext(ctx, `PRAGMA quick_check`).Scan(&res); err != nil {
		return fmt.Errorf("uploaded file is not a SQLite database: %w", err)
	}
	if res != "ok" {
		return errors.New("uploaded database failed integrity check: " + res)
	}
	return nil
}

// backupFile copies path into a timestamped file under <dir>/backups and
// returns the copy's path. A missing source is not an error.
func backupFile(path string) (string, error) {
	src, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer func() { _ = src.Close() }()
	bdir := filepath.Join(filepath.Dir(path), "backups")
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return "", err
	}
	bak := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", filepath.Base(path), time.Now().Format("20060102-150405")))
	dst, err := os.Create(bak)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return "", err
	}
	return bak, dst.Close()
}

// TableInfo is one node of the schema diagram.
type TableInfo struct {
	Name   string   `json:"name"`
	Fields []string `json:"fields"`
}

// Schema describes tables and relationships for the diagram view.
type Schema struct {
	Tables        []TableInfo       `json:"tables"`
	Relationships []domain.Relation `json:"relationships"`
}

// DescribeSchema is static; it does not touch the database.
func DescribeSchema() Schema {
	out := Schema{Relationships: domain.Relations}
	for _, t := range tables {
		out.Tables = append(out.Tables, TableInfo{Name: string(t.Kind), Fields: append([]string{"id"}, t.columnNames()...)})
	}
	return out
}
