package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/quip/internal/engine"
	"github.com/roach88/quip/internal/writeback"
)

// RecordPick appends a pick event to the log. Uses ON CONFLICT(id) DO
// NOTHING for idempotency - recording the same event twice is a no-op.
func (s *Store) RecordPick(ctx context.Context, ev engine.PickEvent, catalogHash string) error {
	changes, err := json.Marshal(nonNilChanges(ev.Changes))
	if err != nil {
		return fmt.Errorf("record pick: %w", err)
	}
	affected, err := json.Marshal(nonNilInts(ev.Affected))
	if err != nil {
		return fmt.Errorf("record pick: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO picks (id, seq, rule_index, rule_name, payload, changes, affected, catalog_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		ev.ID,
		ev.Seq,
		ev.Rule,
		ev.RuleName,
		ev.Payload,
		string(changes),
		string(affected),
		catalogHash,
	)
	if err != nil {
		return fmt.Errorf("record pick: %w", err)
	}
	return nil
}

// ReadPicks returns up to limit picks with seq > after, ordered by seq.
// A limit <= 0 returns all of them.
func (s *Store) ReadPicks(ctx context.Context, after int64, limit int) ([]engine.PickEvent, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, rule_index, rule_name, payload, changes, affected
		FROM picks
		WHERE seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("query picks: %w", err)
	}
	defer rows.Close()

	events := []engine.PickEvent{}
	for rows.Next() {
		var ev engine.PickEvent
		var changes, affected string
		if err := rows.Scan(&ev.ID, &ev.Seq, &ev.Rule, &ev.RuleName, &ev.Payload, &changes, &affected); err != nil {
			return nil, fmt.Errorf("scan pick: %w", err)
		}
		if err := json.Unmarshal([]byte(changes), &ev.Changes); err != nil {
			return nil, fmt.Errorf("pick %s changes: %w", ev.ID, err)
		}
		if err := json.Unmarshal([]byte(affected), &ev.Affected); err != nil {
			return nil, fmt.Errorf("pick %s affected: %w", ev.ID, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate picks: %w", err)
	}
	return events, nil
}

// CountPicks returns how many times each rule was picked.
func (s *Store) CountPicks(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rule_name, COUNT(*) FROM picks GROUP BY rule_name
	`)
	if err != nil {
		return nil, fmt.Errorf("count picks: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("scan pick count: %w", err)
		}
		counts[name] = n
	}
	return counts, rows.Err()
}

// LastPickSeq returns the highest recorded seq, or 0 for an empty log.
// Pass it to engine.NewClockAt to resume numbering after a restart.
func (s *Store) LastPickSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM picks`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last pick seq: %w", err)
	}
	return seq, nil
}

func nonNilChanges(c []writeback.Change) []writeback.Change {
	if c == nil {
		return []writeback.Change{}
	}
	return c
}

func nonNilInts(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}
