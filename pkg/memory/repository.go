package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/maestro-ai/maestro/pkg/events"
	"github.com/maestro-ai/maestro/pkg/models"
)

// permission flags used by the gate queries.
const (
	permRead   = "can_read"
	permWrite  = "can_write"
	permDelete = "can_delete"
)

// UpdatePatch carries the mutable fields of a record. Nil fields are left
// unchanged.
type UpdatePatch struct {
	Data            map[string]any         `json:"data,omitempty"`
	Metadata        *models.RecordMetadata `json:"metadata,omitempty"`
	EmbeddingVector []float64              `json:"embedding_vector,omitempty"`
}

// Repository is the transactional access layer over the memory store. Every
// public operation runs in one sqlite transaction; sqlite transactions are
// serializable, which gives read-your-writes for a single caller.
type Repository struct {
	store *Store
	bus   *events.Bus
	cache *Cache
	now   func() time.Time
}

// NewRepository creates a repository. bus and cache may be nil.
func NewRepository(store *Store, bus *events.Bus, cache *Cache) *Repository {
	return &Repository{
		store: store,
		bus:   bus,
		cache: cache,
		now:   time.Now,
	}
}

// Put inserts a record. A missing record id is auto-assigned. The creating
// agent (AgentOrigin) receives read, write, and delete permissions in the
// same transaction. Returns ErrDuplicateKey on a record id collision and
// ErrValidation when required fields are missing.
func (r *Repository) Put(ctx context.Context, record models.MemoryRecord) (models.MemoryRecord, error) {
	if record.Key == "" {
		return models.MemoryRecord{}, fmt.Errorf("%w: key is required", ErrValidation)
	}
	if record.Category == "" {
		return models.MemoryRecord{}, fmt.Errorf("%w: category is required", ErrValidation)
	}
	if record.AgentOrigin == "" {
		return models.MemoryRecord{}, fmt.Errorf("%w: agent origin is required", ErrValidation)
	}

	record = record.Clone()
	if record.RecordID == "" {
		record.RecordID = uuid.NewString()
	}
	now := r.now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now
	if record.Metadata.Timestamp.IsZero() {
		record.Metadata.Timestamp = now
	}

	dataJSON, metaJSON, embJSON, err := encodeRecordColumns(record)
	if err != nil {
		return models.MemoryRecord{}, err
	}

	err = r.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM memory_records WHERE record_id = ?`, record.RecordID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check record id: %w", err)
		}
		if exists > 0 {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, record.RecordID)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO memory_records
			 (record_id, key, category, data, agent_origin, embedding, metadata, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			record.RecordID, record.Key, record.Category, dataJSON,
			string(record.AgentOrigin), embJSON, metaJSON, record.CreatedAt, record.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert record: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO memory_permissions (record_id, agent_id, can_read, can_write, can_delete)
			 VALUES (?, ?, 1, 1, 1)`,
			record.RecordID, string(record.AgentOrigin),
		); err != nil {
			return fmt.Errorf("failed to insert owner permissions: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.MemoryRecord{}, err
	}

	if r.cache != nil {
		r.cache.Set(record)
	}
	r.publish(events.EventMemoryStored, record)
	return record, nil
}

// Get returns the record when agent holds read permission. Returns
// ErrNotFound for an absent record and ErrForbidden without read access.
// The permission check and the record load share one transaction.
func (r *Repository) Get(ctx context.Context, recordID string, agent models.AgentID) (models.MemoryRecord, error) {
	var record models.MemoryRecord
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		allowed, err := hasPermissionTx(ctx, tx, recordID, agent, permRead)
		if err != nil {
			return err
		}
		if !allowed {
			// Distinguish a missing record from a missing grant.
			var exists int
			if err := tx.QueryRowContext(ctx,
				`SELECT COUNT(1) FROM memory_records WHERE record_id = ?`, recordID,
			).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check record: %w", err)
			}
			if exists == 0 {
				return fmt.Errorf("%w: %s", ErrNotFound, recordID)
			}
			return fmt.Errorf("%w: agent %s cannot read %s", ErrForbidden, agent, recordID)
		}

		if r.cache != nil {
			if cached, ok := r.cache.Get(recordID); ok {
				record = cached
				return nil
			}
		}
		record, err = loadRecordTx(ctx, tx, recordID)
		return err
	})
	if err != nil {
		return models.MemoryRecord{}, err
	}

	if r.cache != nil {
		r.cache.Set(record)
	}
	return record, nil
}

// Update overwrites the mutable fields named by patch and bumps UpdatedAt.
// Requires write permission. RecordID, AgentOrigin, and CreatedAt never
// change.
func (r *Repository) Update(ctx context.Context, recordID string, patch UpdatePatch, agent models.AgentID) (models.MemoryRecord, error) {
	var updated models.MemoryRecord
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		record, err := loadRecordTx(ctx, tx, recordID)
		if err != nil {
			return err
		}
		allowed, err := hasPermissionTx(ctx, tx, recordID, agent, permWrite)
		if err != nil {
			return err
		}
		if !allowed {
			return fmt.Errorf("%w: agent %s cannot write %s", ErrForbidden, agent, recordID)
		}

		if patch.Data != nil {
			record.Data = patch.Data
		}
		if patch.Metadata != nil {
			record.Metadata = *patch.Metadata
		}
		if patch.EmbeddingVector != nil {
			record.EmbeddingVector = patch.EmbeddingVector
		}
		record.UpdatedAt = r.now().UTC()

		dataJSON, metaJSON, embJSON, err := encodeRecordColumns(record)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE memory_records SET data = ?, metadata = ?, embedding = ?, updated_at = ?
			 WHERE record_id = ?`,
			dataJSON, metaJSON, embJSON, record.UpdatedAt, recordID,
		); err != nil {
			return fmt.Errorf("failed to update record: %w", err)
		}
		updated = record
		return nil
	})
	if err != nil {
		return models.MemoryRecord{}, err
	}

	if r.cache != nil {
		r.cache.Invalidate(recordID)
	}
	r.publish(events.EventMemoryUpdated, updated)
	return updated, nil
}

// Delete removes the record and cascades its permission rows. Requires
// delete permission.
func (r *Repository) Delete(ctx context.Context, recordID string, agent models.AgentID) error {
	var deleted models.MemoryRecord
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		record, err := loadRecordTx(ctx, tx, recordID)
		if err != nil {
			return err
		}
		allowed, err := hasPermissionTx(ctx, tx, recordID, agent, permDelete)
		if err != nil {
			return err
		}
		if !allowed {
			return fmt.Errorf("%w: agent %s cannot delete %s", ErrForbidden, agent, recordID)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM memory_permissions WHERE record_id = ?`, recordID); err != nil {
			return fmt.Errorf("failed to delete permissions: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM memory_records WHERE record_id = ?`, recordID); err != nil {
			return fmt.Errorf("failed to delete record: %w", err)
		}
		deleted = record
		return nil
	})
	if err != nil {
		return err
	}

	if r.cache != nil {
		r.cache.Invalidate(recordID)
	}
	r.publish(events.EventMemoryDeleted, deleted)
	return nil
}

// GrantPermission grants flags on a record to a target agent. The grantor
// must hold every flag being granted; the record's origin owner may grant
// anything. Flags accumulate across grants.
func (r *Repository) GrantPermission(ctx context.Context, recordID string, target models.AgentID, flags models.MemoryPermission, grantor models.AgentID) error {
	if !flags.Read && !flags.Write && !flags.Delete {
		return fmt.Errorf("%w: no permission flags to grant", ErrValidation)
	}

	return r.inTx(ctx, func(tx *sql.Tx) error {
		record, err := loadRecordTx(ctx, tx, recordID)
		if err != nil {
			return err
		}

		if record.AgentOrigin != grantor {
			var canRead, canWrite, canDelete bool
			err := tx.QueryRowContext(ctx,
				`SELECT can_read, can_write, can_delete FROM memory_permissions
				 WHERE record_id = ? AND agent_id = ?`,
				recordID, string(grantor),
			).Scan(&canRead, &canWrite, &canDelete)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: agent %s holds no permissions on %s", ErrForbidden, grantor, recordID)
			}
			if err != nil {
				return fmt.Errorf("failed to load grantor permissions: %w", err)
			}
			if (flags.Read && !canRead) || (flags.Write && !canWrite) || (flags.Delete && !canDelete) {
				return fmt.Errorf("%w: agent %s cannot grant flags it does not hold", ErrForbidden, grantor)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO memory_permissions (record_id, agent_id, can_read, can_write, can_delete)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (record_id, agent_id) DO UPDATE SET
			   can_read = MAX(can_read, excluded.can_read),
			   can_write = MAX(can_write, excluded.can_write),
			   can_delete = MAX(can_delete, excluded.can_delete)`,
			recordID, string(target), flags.Read, flags.Write, flags.Delete,
		); err != nil {
			return fmt.Errorf("failed to upsert permission: %w", err)
		}
		return nil
	})
}

// Permissions returns the permission rows for a record, for diagnostics.
func (r *Repository) Permissions(ctx context.Context, recordID string) ([]models.MemoryPermission, error) {
	rows, err := r.store.db.QueryContext(ctx,
		`SELECT record_id, agent_id, can_read, can_write, can_delete
		 FROM memory_permissions WHERE record_id = ? ORDER BY agent_id`, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to query permissions: %w", err)
	}
	defer rows.Close()

	var out []models.MemoryPermission
	for rows.Next() {
		var p models.MemoryPermission
		var agentID string
		if err := rows.Scan(&p.RecordID, &agentID, &p.Read, &p.Write, &p.Delete); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		p.AgentID = models.AgentID(agentID)
		out = append(out, p)
	}
	return out, rows.Err()
}

// inTx runs fn inside one transaction, rolling back on error.
func (r *Repository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func hasPermissionTx(ctx context.Context, tx *sql.Tx, recordID string, agent models.AgentID, flag string) (bool, error) {
	var allowed bool
	err := tx.QueryRowContext(ctx,
		`SELECT `+flag+` FROM memory_permissions WHERE record_id = ? AND agent_id = ?`,
		recordID, string(agent),
	).Scan(&allowed)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query permission: %w", err)
	}
	return allowed, nil
}

func loadRecordTx(ctx context.Context, tx *sql.Tx, recordID string) (models.MemoryRecord, error) {
	row := tx.QueryRowContext(ctx, selectRecordSQL+` WHERE record_id = ?`, recordID)
	return scanRecord(row)
}

// Columns are table-qualified so the query stays valid under joins.
const selectRecordSQL = `SELECT memory_records.record_id, memory_records.key, memory_records.category,
 memory_records.data, memory_records.agent_origin, memory_records.embedding, memory_records.metadata,
 memory_records.created_at, memory_records.updated_at
 FROM memory_records`

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (models.MemoryRecord, error) {
	var (
		record    models.MemoryRecord
		agent     string
		dataJSON  string
		metaJSON  string
		embedding sql.NullString
	)
	err := row.Scan(&record.RecordID, &record.Key, &record.Category, &dataJSON,
		&agent, &embedding, &metaJSON, &record.CreatedAt, &record.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.MemoryRecord{}, ErrNotFound
	}
	if err != nil {
		return models.MemoryRecord{}, fmt.Errorf("failed to scan record: %w", err)
	}

	record.AgentOrigin = models.AgentID(agent)
	if err := json.Unmarshal([]byte(dataJSON), &record.Data); err != nil {
		return models.MemoryRecord{}, fmt.Errorf("failed to decode record data: %w", err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &record.Metadata); err != nil {
		return models.MemoryRecord{}, fmt.Errorf("failed to decode record metadata: %w", err)
	}
	if embedding.Valid && embedding.String != "" {
		if err := json.Unmarshal([]byte(embedding.String), &record.EmbeddingVector); err != nil {
			return models.MemoryRecord{}, fmt.Errorf("failed to decode record embedding: %w", err)
		}
	}
	return record, nil
}

func encodeRecordColumns(record models.MemoryRecord) (data, meta string, embedding any, err error) {
	if record.Data == nil {
		record.Data = map[string]any{}
	}
	dataJSON, err := json.Marshal(record.Data)
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to encode record data: %w", err)
	}
	metaJSON, err := json.Marshal(record.Metadata)
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to encode record metadata: %w", err)
	}
	if len(record.EmbeddingVector) == 0 {
		return string(dataJSON), string(metaJSON), nil, nil
	}
	embJSON, err := json.Marshal(record.EmbeddingVector)
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to encode record embedding: %w", err)
	}
	return string(dataJSON), string(metaJSON), string(embJSON), nil
}

func (r *Repository) publish(eventType string, record models.MemoryRecord) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventType, "memory", events.MemoryPayload{
		RecordID: record.RecordID,
		Key:      record.Key,
		Category: record.Category,
		Agent:    record.AgentOrigin,
	})
}
