// Package snapshot persists the server-confirmed resource graph to a local
// sqlite file so a chart can be reopened offline. Uncommitted edits and
// deletions are never written here; the server stays the source of truth on
// reload.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/ehr/chartcore/internal/platform/fhir"
)

const schema = `
CREATE TABLE IF NOT EXISTS resources (
	kind    TEXT NOT NULL,
	id      TEXT NOT NULL,
	version TEXT NOT NULL DEFAULT '',
	body    BLOB NOT NULL,
	PRIMARY KEY (kind, id)
);
`

// Store is a sqlite-backed snapshot of a resource graph.
type Store struct {
	db *sql.DB
}

// Open creates or opens the snapshot file and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init snapshot schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save replaces the snapshot contents with the given resources, atomically.
func (s *Store) Save(ctx context.Context, resources []*fhir.Resource) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM resources`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO resources (kind, id, version, body) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range resources {
		body, err := json.Marshal(r.Body)
		if err != nil {
			return fmt.Errorf("encode %s: %w", r.Ref(), err)
		}
		if _, err := stmt.ExecContext(ctx, r.Kind.Type(), r.ID, r.VersionID, body); err != nil {
			return fmt.Errorf("insert %s: %w", r.Ref(), err)
		}
	}
	return tx.Commit()
}

// Load reads back every stored resource. Rows with an unrecognized kind
// (written by a newer build) are skipped, not fatal.
func (s *Store) Load(ctx context.Context) ([]*fhir.Resource, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, id, version, body FROM resources ORDER BY kind, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*fhir.Resource
	for rows.Next() {
		var kindType, id, version string
		var body []byte
		if err := rows.Scan(&kindType, &id, &version, &body); err != nil {
			return nil, err
		}
		kind, ok := fhir.KindFromType(kindType)
		if !ok {
			continue
		}
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", kindType, id, err)
		}
		out = append(out, &fhir.Resource{
			Kind:      kind,
			ID:        id,
			VersionID: version,
			Body:      payload,
		})
	}
	return out, rows.Err()
}
