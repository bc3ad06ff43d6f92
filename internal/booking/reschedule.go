package booking

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"nailbook/internal/database"
	"nailbook/internal/events"
	"nailbook/internal/metrics"
	"nailbook/internal/models"
	"nailbook/internal/schedule"
)

// Rescheduler moves bookings between slot runs and splits composite
// bookings across technicians.
type Rescheduler struct {
	db     *database.DB
	grid   *schedule.Grid
	fsm    *FSM
	bus    EventPublisher
	logger *zerolog.Logger
}

// NewRescheduler wires the rescheduling engine.
func NewRescheduler(db *database.DB, grid *schedule.Grid, bus EventPublisher, logger *zerolog.Logger) *Rescheduler {
	return &Rescheduler{db: db, grid: grid, fsm: NewFSM(), bus: bus, logger: logger}
}

// Grid returns the canonical scheduling grid.
func (r *Rescheduler) Grid() *schedule.Grid {
	return r.grid
}

// Reschedule moves the booking onto newSlotIDs atomically: old slots not in
// the new set are released, new slots not in the old set are claimed with
// the status matching the booking's lifecycle phase. The new set must be
// the service's slot count, one technician, one date, contiguous on the
// grid and unblocked. Re-submitting the current set is a no-op.
func (r *Rescheduler) Reschedule(ctx context.Context, bookingID int64, newSlotIDs []int64) (*models.Booking, error) {
	b, err := r.db.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status.IsTerminal() {
		return nil, fmt.Errorf("booking %s is %s: %w", b.BookingID, b.Status, ErrInvalidState)
	}
	if want := b.ServiceType.SlotCount(); len(newSlotIDs) != want {
		return nil, fmt.Errorf("service %s needs %d slots, got %d: %w",
			b.ServiceType, want, len(newSlotIDs), ErrValidation)
	}
	if hasDuplicates(newSlotIDs) {
		return nil, fmt.Errorf("duplicate slot ids: %w", ErrValidation)
	}
	if sameIDSet(b.SlotIDs(), newSlotIDs) {
		return b, nil
	}

	slots, err := r.loadRun(ctx, b, newSlotIDs)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := r.moveRun(ctx, tx, b, slots); err != nil {
		metrics.IncReschedule("conflict")
		return nil, err
	}

	oldIDs := b.SlotIDs()
	b.SlotID = slots[0].ID
	b.LinkedSlotIDs = idsOf(slots[1:])
	b.TechnicianID = slots[0].TechnicianID
	if err := tx.UpdateBooking(ctx, b); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("reschedule booking: %w", err)
	}

	metrics.IncReschedule("moved")
	_ = r.bus.PublishJSON(events.TypeBookingRescheduled, b)
	r.logger.Info().
		Str("booking_id", b.BookingID).
		Ints64("from", oldIDs).
		Ints64("to", newSlotIDs).
		Msg("booking rescheduled")
	return b, nil
}

// SplitReschedule cancels a composite two-slot booking and replaces it with
// two single-service child bookings, one per target slot, possibly with
// different technicians. The whole exchange is one transaction.
func (r *Rescheduler) SplitReschedule(ctx context.Context, bookingID, slot1ID, slot2ID int64) (*models.Booking, *models.Booking, error) {
	b, err := r.db.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}
	first, second, ok := b.ServiceType.SplitComponents()
	if !ok {
		return nil, nil, fmt.Errorf("service %s is not splittable: %w", b.ServiceType, ErrValidation)
	}
	if b.Status.IsTerminal() {
		return nil, nil, fmt.Errorf("booking %s is %s: %w", b.BookingID, b.Status, ErrInvalidState)
	}
	if slot1ID == slot2ID {
		return nil, nil, fmt.Errorf("split targets must differ: %w", ErrValidation)
	}

	slot1, err := r.claimableSlot(ctx, b, slot1ID)
	if err != nil {
		return nil, nil, err
	}
	slot2, err := r.claimableSlot(ctx, b, slot2ID)
	if err != nil {
		return nil, nil, err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// Release the original run first so a target inside it is claimable.
	targets := map[int64]bool{slot1.ID: true, slot2.ID: true}
	for _, id := range b.SlotIDs() {
		if targets[id] {
			continue
		}
		slot, err := tx.GetSlot(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		if err := tx.UpdateSlotStatus(ctx, slot.ID, slot.Version, models.SlotAvailable); err != nil {
			return nil, nil, err
		}
	}

	claimStatus := models.SlotStatusFor(b.Status)
	if err := r.claim(ctx, tx, b, slot1, claimStatus); err != nil {
		metrics.IncReschedule("conflict")
		return nil, nil, err
	}
	if err := r.claim(ctx, tx, b, slot2, claimStatus); err != nil {
		metrics.IncReschedule("conflict")
		return nil, nil, err
	}

	b.Status = models.BookingCancelled
	if err := tx.UpdateBooking(ctx, b); err != nil {
		return nil, nil, err
	}

	// The deposit travels with the first child; the second starts unpaid.
	child1 := r.childOf(b, first, slot1)
	child1.DepositAmount = b.DepositAmount
	child1.PaidAmount = b.PaidAmount
	child1.TipAmount = b.TipAmount
	child1.PaymentMethod = b.PaymentMethod
	child1.PaymentStatus = b.PaymentStatus
	child2 := r.childOf(b, second, slot2)
	child2.PaymentStatus = models.PaymentUnpaid

	if err := tx.InsertBooking(ctx, child1); err != nil {
		return nil, nil, err
	}
	if err := tx.InsertBooking(ctx, child2); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("split booking: %w", err)
	}

	metrics.IncReschedule("split")
	_ = r.bus.PublishJSON(events.TypeBookingSplit, map[string]any{
		"original": b,
		"children": []*models.Booking{child1, child2},
	})
	r.logger.Info().
		Str("booking_id", b.BookingID).
		Str("child1", child1.BookingID).
		Str("child2", child2.BookingID).
		Msg("booking split across technicians")
	return child1, child2, nil
}

func (r *Rescheduler) childOf(parent *models.Booking, serviceType models.ServiceType, slot *models.Slot) *models.Booking {
	return &models.Booking{
		BookingID:       models.NewBookingRef(slot.Date),
		SlotID:          slot.ID,
		TechnicianID:    slot.TechnicianID,
		ServiceType:     serviceType,
		ServiceLocation: parent.ServiceLocation,
		Status:          parent.Status,
		CustomerID:      parent.CustomerID,
		Notes:           parent.Notes,
	}
}

// loadRun fetches and vets the target run: slots exist, share a technician
// and date, sit on contiguous unblocked grid tokens, and are each either
// available or already held by the booking. Slots come back sorted by time
// so the earliest becomes the primary.
func (r *Rescheduler) loadRun(ctx context.Context, b *models.Booking, ids []int64) ([]*models.Slot, error) {
	slots := make([]*models.Slot, 0, len(ids))
	for _, id := range ids {
		slot, err := r.claimableSlot(ctx, b, id)
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Time < slots[j].Time })

	times := make([]string, len(slots))
	for i, slot := range slots {
		times[i] = slot.Time
		if slot.TechnicianID != slots[0].TechnicianID {
			return nil, fmt.Errorf("slots span technicians %d and %d: %w",
				slots[0].TechnicianID, slot.TechnicianID, ErrValidation)
		}
		if slot.Date != slots[0].Date {
			return nil, fmt.Errorf("slots span dates %s and %s: %w",
				slots[0].Date, slot.Date, ErrValidation)
		}
	}
	if !r.grid.Contiguous(times) {
		return nil, fmt.Errorf("slots %v are not contiguous: %w", times, ErrValidation)
	}
	return slots, nil
}

// claimableSlot vets one target slot: it must exist, be unhidden and on an
// unblocked date, and be either available or already held by the booking.
func (r *Rescheduler) claimableSlot(ctx context.Context, b *models.Booking, id int64) (*models.Slot, error) {
	slot, err := r.db.GetSlot(ctx, id)
	if err != nil {
		return nil, err
	}
	if slot.Hidden {
		return nil, fmt.Errorf("slot %d is hidden: %w", id, database.ErrSlotUnavailable)
	}
	if slot.Status != models.SlotAvailable && !b.HasSlot(id) {
		return nil, fmt.Errorf("slot %d is %s: %w", id, slot.Status, database.ErrSlotUnavailable)
	}
	blocked, err := r.db.IsBlocked(ctx, slot.Date)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, fmt.Errorf("%s: %w", slot.Date, schedule.ErrDateBlocked)
	}
	return slot, nil
}

// moveRun releases old slots absent from the new run and claims new slots
// absent from the old one, all inside tx.
func (r *Rescheduler) moveRun(ctx context.Context, tx *database.Tx, b *models.Booking, newSlots []*models.Slot) error {
	newSet := make(map[int64]bool, len(newSlots))
	for _, slot := range newSlots {
		newSet[slot.ID] = true
	}

	for _, id := range b.SlotIDs() {
		if newSet[id] {
			continue
		}
		slot, err := tx.GetSlot(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.UpdateSlotStatus(ctx, slot.ID, slot.Version, models.SlotAvailable); err != nil {
			return err
		}
	}

	status := models.SlotStatusFor(b.Status)
	for _, slot := range newSlots {
		if b.HasSlot(slot.ID) {
			// Already held; keep its status in step with the lifecycle.
			if slot.Status != status {
				if err := tx.UpdateSlotStatus(ctx, slot.ID, slot.Version, status); err != nil {
					return err
				}
			}
			continue
		}
		if err := tx.ReserveSlot(ctx, slot.ID, slot.Version, status); err != nil {
			return err
		}
	}
	return nil
}

func (r *Rescheduler) claim(ctx context.Context, tx *database.Tx, b *models.Booking, slot *models.Slot, status models.SlotStatus) error {
	// Re-read inside the transaction; the release pass may have bumped the
	// version of a slot the booking already held.
	fresh, err := tx.GetSlot(ctx, slot.ID)
	if err != nil {
		return err
	}
	if b.HasSlot(slot.ID) || fresh.Status == models.SlotAvailable {
		return tx.UpdateSlotStatus(ctx, fresh.ID, fresh.Version, status)
	}
	return tx.ReserveSlot(ctx, fresh.ID, fresh.Version, status)
}

func idsOf(slots []*models.Slot) []int64 {
	ids := make([]int64, len(slots))
	for i, slot := range slots {
		ids[i] = slot.ID
	}
	return ids
}

func hasDuplicates(ids []int64) bool {
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return true
		}
		seen[id] = true
	}
	return false
}

func sameIDSet(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[int64]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	for _, id := range b {
		if !set[id] {
			return false
		}
	}
	return true
}
