package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opentalon/funchost/internal/host"
)

// ErrNotFound is returned by Get for unknown functions.
var ErrNotFound = errors.New("registration not found")

// RegistrationStore persists the registration table. It implements
// host.Registrar.
type RegistrationStore struct {
	db *DB
}

func NewRegistrationStore(db *DB) *RegistrationStore {
	return &RegistrationStore{db: db}
}

func (s *RegistrationStore) Put(ctx context.Context, reg host.Registration) error {
	snap := reg.Snapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode registration %s: %w", snap.Name, err)
	}
	_, err = s.db.SQLDB().ExecContext(ctx, s.db.rebind(`
INSERT INTO function_registrations (name, id, generation, trigger_type, script, descriptor, resolved_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (name) DO UPDATE SET
    id = excluded.id,
    generation = excluded.generation,
    trigger_type = excluded.trigger_type,
    script = excluded.script,
    descriptor = excluded.descriptor,
    resolved_at = excluded.resolved_at`),
		snap.Name, snap.ID, snap.Generation, snap.TriggerType, snap.ScriptPath,
		string(data), snap.ResolvedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store registration %s: %w", snap.Name, err)
	}
	return nil
}

func (s *RegistrationStore) Delete(ctx context.Context, name string) error {
	_, err := s.db.SQLDB().ExecContext(ctx, s.db.rebind(`DELETE FROM function_registrations WHERE name = ?`), name)
	if err != nil {
		return fmt.Errorf("delete registration %s: %w", name, err)
	}
	return nil
}

func (s *RegistrationStore) Get(ctx context.Context, name string) (host.Snapshot, error) {
	var data string
	err := s.db.SQLDB().QueryRowContext(ctx,
		s.db.rebind(`SELECT descriptor FROM function_registrations WHERE name = ?`), name,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return host.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return host.Snapshot{}, fmt.Errorf("read registration %s: %w", name, err)
	}
	return decodeSnapshot(data)
}

// List returns all stored registrations ordered by name.
func (s *RegistrationStore) List(ctx context.Context) ([]host.Snapshot, error) {
	rows, err := s.db.SQLDB().QueryContext(ctx, `SELECT descriptor FROM function_registrations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()
	var out []host.Snapshot
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		snap, err := decodeSnapshot(data)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func decodeSnapshot(data string) (host.Snapshot, error) {
	var snap host.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return host.Snapshot{}, fmt.Errorf("decode registration: %w", err)
	}
	return snap, nil
}
