package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"nailbook/internal/models"
)

const bookingColumns = `id, booking_ref, slot_id, linked_slot_ids, technician_id, service_type, service_location,
	status, customer_id, deposit_amount, paid_amount, tip_amount, payment_method, payment_status,
	invoice, notes, version, created_at, updated_at`

func marshalIDs(ids []int64) (string, error) {
	if len(ids) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("marshal slot ids: %w", err)
	}
	return string(data), nil
}

func unmarshalIDs(raw string) ([]int64, error) {
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var ids []int64
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("unmarshal slot ids: %w", err)
	}
	return ids, nil
}

func scanBooking(row interface{ Scan(dest ...any) error }) (*models.Booking, error) {
	var b models.Booking
	var linkedRaw string
	var invoiceRaw sql.NullString
	err := row.Scan(
		&b.ID, &b.BookingID, &b.SlotID, &linkedRaw, &b.TechnicianID, &b.ServiceType, &b.ServiceLocation,
		&b.Status, &b.CustomerID, &b.DepositAmount, &b.PaidAmount, &b.TipAmount,
		&b.PaymentMethod, &b.PaymentStatus, &invoiceRaw, &b.Notes, &b.Version,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if b.LinkedSlotIDs, err = unmarshalIDs(linkedRaw); err != nil {
		return nil, err
	}
	if invoiceRaw.Valid && invoiceRaw.String != "" {
		var inv models.Invoice
		if err := json.Unmarshal([]byte(invoiceRaw.String), &inv); err != nil {
			return nil, fmt.Errorf("unmarshal invoice: %w", err)
		}
		b.Invoice = &inv
	}
	return &b, nil
}

// GetBooking returns a booking by internal id.
func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return getBooking(ctx, db.DB, id)
}

// GetBooking returns a booking by internal id within the transaction.
func (t *Tx) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return getBooking(ctx, t.tx, id)
}

func getBooking(ctx context.Context, q querier, id int64) (*models.Booking, error) {
	row := q.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get booking %d: %w", id, err)
	}
	return b, nil
}

// GetBookingByRef returns a booking by its human-readable reference.
func (db *DB) GetBookingByRef(ctx context.Context, ref string) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE booking_ref = ?`, ref)
	b, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get booking %s: %w", ref, err)
	}
	return b, nil
}

// CreateBooking inserts a booking row.
func (db *DB) CreateBooking(ctx context.Context, b *models.Booking) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.InsertBooking(ctx, b); err != nil {
		return err
	}
	return tx.Commit()
}

// InsertBooking inserts a booking row within the transaction.
func (t *Tx) InsertBooking(ctx context.Context, b *models.Booking) error {
	linked, err := marshalIDs(b.LinkedSlotIDs)
	if err != nil {
		return err
	}
	invoice, err := marshalInvoice(b.Invoice)
	if err != nil {
		return err
	}

	now := time.Now()
	b.CreatedAt = now
	b.UpdatedAt = now
	b.Version = 1

	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO bookings (booking_ref, slot_id, linked_slot_ids, technician_id, service_type, service_location,
			status, customer_id, deposit_amount, paid_amount, tip_amount, payment_method, payment_status,
			invoice, notes, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.BookingID, b.SlotID, linked, b.TechnicianID, b.ServiceType, b.ServiceLocation,
		b.Status, b.CustomerID, b.DepositAmount, b.PaidAmount, b.TipAmount,
		b.PaymentMethod, b.PaymentStatus, invoice, b.Notes, b.Version, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	b.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("booking last id: %w", err)
	}
	return nil
}

func marshalInvoice(inv *models.Invoice) (any, error) {
	if inv == nil {
		return nil, nil
	}
	data, err := json.Marshal(inv)
	if err != nil {
		return nil, fmt.Errorf("marshal invoice: %w", err)
	}
	return string(data), nil
}

// UpdateBooking writes all mutable booking fields with a version guard.
// b.Version must hold the version that was read; it is bumped on success.
func (db *DB) UpdateBooking(ctx context.Context, b *models.Booking) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.UpdateBooking(ctx, b); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateBooking writes all mutable booking fields within the transaction,
// guarded by the expected version.
func (t *Tx) UpdateBooking(ctx context.Context, b *models.Booking) error {
	linked, err := marshalIDs(b.LinkedSlotIDs)
	if err != nil {
		return err
	}
	invoice, err := marshalInvoice(b.Invoice)
	if err != nil {
		return err
	}

	now := time.Now()
	result, err := t.tx.ExecContext(ctx, `
		UPDATE bookings SET slot_id = ?, linked_slot_ids = ?, technician_id = ?, service_type = ?, service_location = ?,
			status = ?, customer_id = ?, deposit_amount = ?, paid_amount = ?, tip_amount = ?,
			payment_method = ?, payment_status = ?, invoice = ?, notes = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		b.SlotID, linked, b.TechnicianID, b.ServiceType, b.ServiceLocation,
		b.Status, b.CustomerID, b.DepositAmount, b.PaidAmount, b.TipAmount,
		b.PaymentMethod, b.PaymentStatus, invoice, b.Notes,
		now, b.ID, b.Version,
	)
	if err != nil {
		return fmt.Errorf("update booking %d: %w", b.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := getBooking(ctx, t.tx, b.ID); err != nil {
			return err
		}
		return fmt.Errorf("booking %d: %w", b.ID, ErrConcurrentModification)
	}
	b.Version++
	b.UpdatedAt = now
	return nil
}

// GetBookingsByDateRange returns bookings whose primary slot falls within
// [from, to] inclusive, ordered by slot date and time.
func (db *DB) GetBookingsByDateRange(ctx context.Context, from, to string) ([]models.Booking, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+prefixedBookingColumns+` FROM bookings b
		JOIN slots s ON s.id = b.slot_id
		WHERE s.date >= ? AND s.date <= ?
		ORDER BY s.date, s.time`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("query bookings by range: %w", err)
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

const prefixedBookingColumns = `b.id, b.booking_ref, b.slot_id, b.linked_slot_ids, b.technician_id, b.service_type, b.service_location,
	b.status, b.customer_id, b.deposit_amount, b.paid_amount, b.tip_amount, b.payment_method, b.payment_status,
	b.invoice, b.notes, b.version, b.created_at, b.updated_at`

// DeleteOldCancelledBookings removes cancelled bookings older than the
// retention window. Used by the audit service after export.
func (db *DB) DeleteOldCancelledBookings(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result, err := db.ExecContext(ctx,
		`DELETE FROM bookings WHERE status = ? AND updated_at < ?`,
		models.BookingCancelled, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("delete old bookings: %w", err)
	}
	return result.RowsAffected()
}
