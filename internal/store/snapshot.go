package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/quip/internal/facts"
)

// Snapshot is a named copy of every fact value.
type Snapshot struct {
	Name string `json:"name"`
	// CatalogHash identifies the catalog the facts were exported under.
	CatalogHash string `json:"catalog_hash"`
	// Seq is the engine clock when the snapshot was taken.
	Seq     int64          `json:"seq"`
	Records []facts.Record `json:"records"`
}

// SaveSnapshot stores snap, replacing any snapshot with the same name.
// The write is a single transaction.
func (s *Store) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE name = ?`, snap.Name); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots (name, catalog_hash, seq) VALUES (?, ?, ?)
	`, snap.Name, snap.CatalogHash, snap.Seq); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshot_facts (snapshot, ord, name, kind, value, text)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	defer stmt.Close()

	for i, rec := range snap.Records {
		if _, err := stmt.ExecContext(ctx, snap.Name, i, rec.Name, rec.Kind.String(), rec.Value, rec.Text); err != nil {
			return fmt.Errorf("save snapshot fact %q: %w", rec.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot by name. Returns ErrNotFound if absent.
func (s *Store) LoadSnapshot(ctx context.Context, name string) (Snapshot, error) {
	snap := Snapshot{Name: name}
	err := s.db.QueryRowContext(ctx, `
		SELECT catalog_hash, seq FROM snapshots WHERE name = ?
	`, name).Scan(&snap.CatalogHash, &snap.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, fmt.Errorf("snapshot %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return snap, fmt.Errorf("load snapshot: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, kind, value, text
		FROM snapshot_facts
		WHERE snapshot = ?
		ORDER BY ord ASC
	`, name)
	if err != nil {
		return snap, fmt.Errorf("load snapshot facts: %w", err)
	}
	defer rows.Close()

	snap.Records = []facts.Record{}
	for rows.Next() {
		var rec facts.Record
		var kind string
		if err := rows.Scan(&rec.Name, &kind, &rec.Value, &rec.Text); err != nil {
			return snap, fmt.Errorf("scan snapshot fact: %w", err)
		}
		if err := rec.Kind.UnmarshalText([]byte(kind)); err != nil {
			return snap, fmt.Errorf("snapshot fact %q: %w", rec.Name, err)
		}
		snap.Records = append(snap.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return snap, fmt.Errorf("iterate snapshot facts: %w", err)
	}

	return snap, nil
}

// ListSnapshots returns snapshot names in lexical order.
func (s *Store) ListSnapshots(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM snapshots ORDER BY name COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan snapshot name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// DeleteSnapshot removes a snapshot and its facts. Returns ErrNotFound if
// absent.
func (s *Store) DeleteSnapshot(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("snapshot %q: %w", name, ErrNotFound)
	}
	return nil
}
