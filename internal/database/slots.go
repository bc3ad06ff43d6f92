package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"nailbook/internal/models"
)

const slotColumns = `id, technician_id, date, time, status, slot_type, notes, hidden, version, created_at, updated_at`

func scanSlot(row interface{ Scan(dest ...any) error }) (*models.Slot, error) {
	var s models.Slot
	err := row.Scan(
		&s.ID, &s.TechnicianID, &s.Date, &s.Time, &s.Status, &s.Type,
		&s.Notes, &s.Hidden, &s.Version, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSlot returns a slot by id.
func (db *DB) GetSlot(ctx context.Context, id int64) (*models.Slot, error) {
	return getSlot(ctx, db.DB, id)
}

// GetSlot returns a slot by id within the transaction.
func (t *Tx) GetSlot(ctx context.Context, id int64) (*models.Slot, error) {
	return getSlot(ctx, t.tx, id)
}

func getSlot(ctx context.Context, q querier, id int64) (*models.Slot, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+slotColumns+` FROM slots WHERE id = ?`, id)
	s, err := scanSlot(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get slot %d: %w", id, err)
	}
	return s, nil
}

// FindSlotsByDateAndTech returns all slots for a technician on a date,
// ordered by time. Hidden slots are excluded unless includeHidden is set.
func (db *DB) FindSlotsByDateAndTech(ctx context.Context, date string, technicianID int64, includeHidden bool) ([]models.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots WHERE date = ? AND technician_id = ?`
	if !includeHidden {
		query += ` AND hidden = 0`
	}
	query += ` ORDER BY time`

	return db.querySlots(ctx, query, date, technicianID)
}

// ListSlotsByDate returns all visible slots for a date across technicians.
func (db *DB) ListSlotsByDate(ctx context.Context, date string) ([]models.Slot, error) {
	return db.querySlots(ctx,
		`SELECT `+slotColumns+` FROM slots WHERE date = ? AND hidden = 0 ORDER BY technician_id, time`,
		date)
}

func (db *DB) querySlots(ctx context.Context, query string, args ...any) ([]models.Slot, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query slots: %w", err)
	}
	defer rows.Close()

	var slots []models.Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, *s)
	}
	return slots, rows.Err()
}

// CreateSlot inserts a new slot. Returns ErrSlotConflict if a slot already
// exists at the same (technician, date, time).
func (db *DB) CreateSlot(ctx context.Context, s *models.Slot) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.InsertSlot(ctx, s); err != nil {
		return err
	}
	return tx.Commit()
}

// InsertSlot inserts a slot within the transaction, failing with
// ErrSlotConflict on a duplicate (technician, date, time) tuple.
func (t *Tx) InsertSlot(ctx context.Context, s *models.Slot) error {
	var existing int64
	err := t.tx.QueryRowContext(ctx,
		`SELECT id FROM slots WHERE technician_id = ? AND date = ? AND time = ?`,
		s.TechnicianID, s.Date, s.Time,
	).Scan(&existing)
	if err == nil {
		return fmt.Errorf("%w: technician %d at %s %s", ErrSlotConflict, s.TechnicianID, s.Date, s.Time)
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("check slot conflict: %w", err)
	}

	if s.Status == "" {
		s.Status = models.SlotAvailable
	}
	if s.Type == "" {
		s.Type = models.SlotRegular
	}
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now
	s.Version = 1

	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO slots (technician_id, date, time, status, slot_type, notes, hidden, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.TechnicianID, s.Date, s.Time, s.Status, s.Type, s.Notes, s.Hidden, s.Version, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert slot: %w", err)
	}
	s.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("slot last id: %w", err)
	}
	return nil
}

// SetSlotStatus updates a slot status with a version guard.
func (db *DB) SetSlotStatus(ctx context.Context, id, version int64, status models.SlotStatus) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.UpdateSlotStatus(ctx, id, version, status); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateSlotStatus flips a slot status within the transaction. The write is
// guarded by the expected version; a mismatch means a concurrent writer won.
func (t *Tx) UpdateSlotStatus(ctx context.Context, id, version int64, status models.SlotStatus) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE slots SET status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		status, time.Now(), id, version,
	)
	if err != nil {
		return fmt.Errorf("update slot %d status: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := getSlot(ctx, t.tx, id); err != nil {
			return err
		}
		return fmt.Errorf("slot %d: %w", id, ErrConcurrentModification)
	}
	return nil
}

// ReserveSlot flips an available slot to the given status within the
// transaction. Fails with ErrSlotUnavailable if the slot is no longer
// available, or ErrConcurrentModification if the version moved.
func (t *Tx) ReserveSlot(ctx context.Context, id, version int64, status models.SlotStatus) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE slots SET status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ? AND status = ?`,
		status, time.Now(), id, version, models.SlotAvailable,
	)
	if err != nil {
		return fmt.Errorf("reserve slot %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		current, err := getSlot(ctx, t.tx, id)
		if err != nil {
			return err
		}
		if current.Status != models.SlotAvailable {
			return fmt.Errorf("slot %d is %s: %w", id, current.Status, ErrSlotUnavailable)
		}
		return fmt.Errorf("slot %d: %w", id, ErrConcurrentModification)
	}
	return nil
}

// DeleteSlot removes a slot from inventory. Fails with ErrSlotReferenced if
// a non-cancelled booking still points at it.
func (db *DB) DeleteSlot(ctx context.Context, id int64) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	referenced, err := slotReferenced(ctx, tx.tx, id)
	if err != nil {
		return err
	}
	if referenced {
		return fmt.Errorf("slot %d: %w", id, ErrSlotReferenced)
	}

	result, err := tx.tx.ExecContext(ctx, `DELETE FROM slots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete slot %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// slotReferenced reports whether any non-cancelled booking holds the slot,
// either as its primary slot or in its linked set.
func slotReferenced(ctx context.Context, q querier, slotID int64) (bool, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT slot_id, linked_slot_ids FROM bookings WHERE status != ?`,
		models.BookingCancelled,
	)
	if err != nil {
		return false, fmt.Errorf("query booking references: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var primary int64
		var linkedRaw string
		if err := rows.Scan(&primary, &linkedRaw); err != nil {
			return false, err
		}
		if primary == slotID {
			return true, nil
		}
		linked, err := unmarshalIDs(linkedRaw)
		if err != nil {
			return false, err
		}
		for _, lid := range linked {
			if lid == slotID {
				return true, nil
			}
		}
	}
	return false, rows.Err()
}
