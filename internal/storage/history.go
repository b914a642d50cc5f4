package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/micro-ha/deck-automations/plugin/internal/model"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

var (
	ErrInvalidRecord   = errors.New("invalid trigger record")
	ErrDuplicateRecord = errors.New("duplicate trigger record")
)

// RecordTrigger appends one trigger attempt. A missing id is generated.
func (r *Repository) RecordTrigger(ctx context.Context, record model.TriggerRecord) error {
	if record.InstanceID == "" || record.AutomationID == "" {
		return fmt.Errorf("%w: instance and automation are required", ErrInvalidRecord)
	}
	if record.Outcome != model.OutcomeSuccess && record.Outcome != model.OutcomeFailure {
		return fmt.Errorf("%w: unknown outcome %q", ErrInvalidRecord, record.Outcome)
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO trigger_history(
			id, instance_id, automation_id, automation_name, device_name,
			outcome, error_kind, triggered_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.InstanceID,
		record.AutomationID,
		record.AutomationName,
		record.DeviceName,
		record.Outcome,
		nullable(record.ErrorKind),
		formatTime(record.TriggeredAt),
		record.DurationMS,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateRecord, record.ID)
		}
		return fmt.Errorf("insert trigger record: %w", err)
	}
	return nil
}

// ListRecent returns the newest records first. limit is clamped to
// [1, MaxListLimit]; zero or less means DefaultListLimit.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]model.TriggerRecord, error) {
	return r.list(ctx, "", clampLimit(limit))
}

// ListForInstance is ListRecent restricted to one key.
func (r *Repository) ListForInstance(ctx context.Context, instanceID string, limit int) ([]model.TriggerRecord, error) {
	if instanceID == "" {
		return []model.TriggerRecord{}, nil
	}
	return r.list(ctx, instanceID, clampLimit(limit))
}

// Prune deletes all but the newest keep records and reports how many went.
func (r *Repository) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := r.db.ExecContext(
		ctx,
		`DELETE FROM trigger_history WHERE id NOT IN (
			SELECT id FROM trigger_history ORDER BY triggered_at DESC, rowid DESC LIMIT ?
		)`,
		keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune trigger history: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows > 0 {
		r.logger.Info("pruned trigger history", "rows", rows, "kept", keep)
	}
	return rows, nil
}

func (r *Repository) list(ctx context.Context, instanceID string, limit int) ([]model.TriggerRecord, error) {
	query := `SELECT id, instance_id, automation_id, automation_name, device_name,
		outcome, error_kind, triggered_at, duration_ms
		FROM trigger_history`
	args := []any{}
	if instanceID != "" {
		query += ` WHERE instance_id = ?`
		args = append(args, instanceID)
	}
	query += ` ORDER BY triggered_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list trigger history: %w", err)
	}
	defer rows.Close()

	out := make([]model.TriggerRecord, 0)
	for rows.Next() {
		var (
			item        model.TriggerRecord
			errorKind   sql.NullString
			triggeredAt string
		)
		if err := rows.Scan(
			&item.ID,
			&item.InstanceID,
			&item.AutomationID,
			&item.AutomationName,
			&item.DeviceName,
			&item.Outcome,
			&errorKind,
			&triggeredAt,
			&item.DurationMS,
		); err != nil {
			return nil, err
		}
		item.ErrorKind = errorKind.String
		item.TriggeredAt = parseTime(triggeredAt)
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// isUniqueConstraintError reports SQLite duplicate key violations.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}
