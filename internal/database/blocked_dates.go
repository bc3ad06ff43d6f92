package database

import (
	"context"
	"fmt"
	"time"

	"nailbook/internal/models"
)

// IsBlocked reports whether date falls within any stored blocked range.
// A blocked date always wins over slot availability.
func (db *DB) IsBlocked(ctx context.Context, date string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM blocked_dates WHERE start_date <= ? AND end_date >= ?`,
		date, date,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check blocked date: %w", err)
	}
	return count > 0, nil
}

// AddBlockedRange stores an inclusive [start, end] blackout range.
func (db *DB) AddBlockedRange(ctx context.Context, bd *models.BlockedDate) error {
	if bd.StartDate > bd.EndDate {
		return fmt.Errorf("blocked range start %s is after end %s", bd.StartDate, bd.EndDate)
	}
	now := time.Now()
	result, err := db.ExecContext(ctx,
		`INSERT INTO blocked_dates (start_date, end_date, reason, created_at) VALUES (?, ?, ?, ?)`,
		bd.StartDate, bd.EndDate, bd.Reason, now,
	)
	if err != nil {
		return fmt.Errorf("insert blocked range: %w", err)
	}
	bd.ID, err = result.LastInsertId()
	if err != nil {
		return err
	}
	bd.CreatedAt = now
	return nil
}

// RemoveBlockedRange deletes a blocked range by id.
func (db *DB) RemoveBlockedRange(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM blocked_dates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete blocked range %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListBlockedRanges returns all blocked ranges ordered by start date.
func (db *DB) ListBlockedRanges(ctx context.Context) ([]models.BlockedDate, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, start_date, end_date, reason, created_at FROM blocked_dates ORDER BY start_date`)
	if err != nil {
		return nil, fmt.Errorf("list blocked ranges: %w", err)
	}
	defer rows.Close()

	var ranges []models.BlockedDate
	for rows.Next() {
		var bd models.BlockedDate
		if err := rows.Scan(&bd.ID, &bd.StartDate, &bd.EndDate, &bd.Reason, &bd.CreatedAt); err != nil {
			return nil, err
		}
		ranges = append(ranges, bd)
	}
	return ranges, rows.Err()
}
