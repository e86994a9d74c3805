// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/opentrusty/civicguard/internal/entity"
	"github.com/opentrusty/civicguard/internal/id"
)

// EntityRepository implements entity.Store on the entities table
type EntityRepository struct {
	db *DB
}

// NewEntityRepository creates a new entity repository
func NewEntityRepository(db *DB) *EntityRepository {
	return &EntityRepository{db: db}
}

func decodeRecord(data []byte) (entity.Record, error) {
	var r entity.Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode entity: %w", err)
	}
	return r, nil
}

// Get retrieves one record
func (r *EntityRepository) Get(ctx context.Context, t entity.Type, recordID string) (entity.Record, error) {
	var data []byte
	err := r.db.pool.QueryRow(ctx, `
		SELECT data FROM entities WHERE type = $1 AND id = $2
	`, string(t), recordID).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, entity.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	return decodeRecord(data)
}

// List retrieves the records of t matching filter, ordered by id
func (r *EntityRepository) List(ctx context.Context, t entity.Type, filter entity.Filter) ([]entity.Record, error) {
	b := &sqlBuilder{}
	typeArg := b.arg(string(t))
	where := compileFilter(filter, b)

	rows, err := r.db.pool.Query(ctx,
		fmt.Sprintf("SELECT data FROM entities WHERE type = %s AND %s ORDER BY id", typeArg, where),
		b.args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

	out := make([]entity.Record, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		rec, err := decodeRecord(data)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Create stores payload, assigning an id when absent
func (r *EntityRepository) Create(ctx context.Context, t entity.Type, payload entity.Record) (entity.Record, error) {
	rec := payload.Clone()
	if rec.ID() == "" {
		rec[entity.FieldID] = id.NewUUIDv7()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode entity: %w", err)
	}

	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO entities (type, id, data) VALUES ($1, $2, $3)
	`, string(t), rec.ID(), data)
	if err != nil {
		return nil, fmt.Errorf("failed to create entity: %w", err)
	}
	return rec, nil
}

// Update merges patch into the stored document. The id is immutable.
func (r *EntityRepository) Update(ctx context.Context, t entity.Type, recordID string, patch entity.Record) (entity.Record, error) {
	p := patch.Clone()
	delete(p, entity.FieldID)
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode patch: %w", err)
	}

	var out []byte
	err = r.db.pool.QueryRow(ctx, `
		UPDATE entities SET data = data || $3::jsonb, updated_at = NOW()
		WHERE type = $1 AND id = $2
		RETURNING data
	`, string(t), recordID, data).Scan(&out)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, entity.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update entity: %w", err)
	}
	return decodeRecord(out)
}

// Delete removes a record
func (r *EntityRepository) Delete(ctx context.Context, t entity.Type, recordID string) error {
	tag, err := r.db.pool.Exec(ctx, `
		DELETE FROM entities WHERE type = $1 AND id = $2
	`, string(t), recordID)
	if err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return entity.ErrNotFound
	}
	return nil
}
