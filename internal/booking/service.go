package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"nailbook/internal/database"
	"nailbook/internal/events"
	"nailbook/internal/ledger"
	"nailbook/internal/metrics"
	"nailbook/internal/models"
	"nailbook/internal/schedule"
)

// EventPublisher decouples the service from the concrete bus.
type EventPublisher interface {
	PublishJSON(eventType string, payload any) error
}

// Service owns the booking lifecycle: creation from intake, confirmation,
// cancellation and the payment ledger mutations.
type Service struct {
	db       *database.DB
	resolver *schedule.Resolver
	fsm      *FSM
	bus      EventPublisher
	logger   *zerolog.Logger
}

// NewService wires the booking service.
func NewService(db *database.DB, resolver *schedule.Resolver, bus EventPublisher, logger *zerolog.Logger) *Service {
	return &Service{
		db:       db,
		resolver: resolver,
		fsm:      NewFSM(),
		bus:      bus,
		logger:   logger,
	}
}

// IntakeRequest is the input of the booking intake form.
type IntakeRequest struct {
	TechnicianID    int64              `json:"technician_id"`
	Date            string             `json:"date"`
	Time            string             `json:"time"`
	ServiceType     models.ServiceType `json:"service_type"`
	ServiceLocation string             `json:"service_location,omitempty"`
	CustomerID      string             `json:"customer_id,omitempty"`
	Notes           string             `json:"notes,omitempty"`
}

func (r *IntakeRequest) validate() error {
	if r.TechnicianID <= 0 {
		return fmt.Errorf("technician_id is required: %w", ErrValidation)
	}
	if _, err := time.Parse(models.DateFormat, r.Date); err != nil {
		return fmt.Errorf("date %q: %w", r.Date, ErrValidation)
	}
	if !r.ServiceType.Valid() {
		return fmt.Errorf("service_type %q: %w", r.ServiceType, ErrValidation)
	}
	return nil
}

// CreateFromIntake resolves a contiguous run for the requested service and
// creates the booking atomically with the slot reservations. Either the
// whole run flips to pending and the booking row exists, or nothing does.
func (s *Service) CreateFromIntake(ctx context.Context, req *IntakeRequest) (*models.Booking, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	plan, err := s.resolver.Resolve(ctx, req.TechnicianID, req.Date, req.Time, req.ServiceType.SlotCount())
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	ids, err := s.resolver.CommitIn(ctx, tx, plan)
	if err != nil {
		return nil, err
	}

	customer := req.CustomerID
	if customer == "" {
		customer = models.CustomerPending
	}

	b := &models.Booking{
		BookingID:       models.NewBookingRef(req.Date),
		SlotID:          ids[0],
		LinkedSlotIDs:   ids[1:],
		TechnicianID:    req.TechnicianID,
		ServiceType:     req.ServiceType,
		ServiceLocation: req.ServiceLocation,
		Status:          models.BookingPendingForm,
		CustomerID:      customer,
		PaymentStatus:   models.PaymentUnpaid,
		Notes:           req.Notes,
	}
	if err := tx.InsertBooking(ctx, b); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}

	metrics.IncBookingCreated(string(b.ServiceType))
	_ = s.bus.PublishJSON(events.TypeBookingCreated, b)
	s.logger.Info().
		Str("booking_id", b.BookingID).
		Str("service_type", string(b.ServiceType)).
		Str("date", req.Date).
		Str("time", req.Time).
		Msg("booking created")
	return b, nil
}

// Get returns the booking by its row id.
func (s *Service) Get(ctx context.Context, id int64) (*models.Booking, error) {
	return s.db.GetBooking(ctx, id)
}

// GetByRef returns the booking by its human-readable reference.
func (s *Service) GetByRef(ctx context.Context, ref string) (*models.Booking, error) {
	return s.db.GetBookingByRef(ctx, ref)
}

// Confirm moves the booking to confirmed and flips its whole slot run to
// confirmed in the same transaction. A deposit taken at confirmation time
// may be recorded alongside.
func (s *Service) Confirm(ctx context.Context, id int64, deposit *float64, method string) (*models.Booking, error) {
	b, err := s.db.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.fsm.Guard(b.Status, models.BookingConfirmed); err != nil {
		return nil, err
	}
	if deposit != nil && *deposit < 0 {
		return nil, fmt.Errorf("deposit must not be negative: %w", ErrValidation)
	}

	slots, err := s.loadSlots(ctx, b)
	if err != nil {
		return nil, err
	}
	for _, slot := range slots {
		blocked, err := s.db.IsBlocked(ctx, slot.Date)
		if err != nil {
			return nil, err
		}
		if blocked {
			return nil, fmt.Errorf("%s: %w", slot.Date, schedule.ErrDateBlocked)
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, slot := range slots {
		if err := tx.UpdateSlotStatus(ctx, slot.ID, slot.Version, models.SlotConfirmed); err != nil {
			return nil, err
		}
	}

	b.Status = models.BookingConfirmed
	if deposit != nil {
		b.DepositAmount = *deposit
	}
	if method != "" {
		b.PaymentMethod = method
	}
	b.PaymentStatus = ledger.DeriveStatus(b.Invoice, b.DepositAmount, b.PaidAmount, b.PaymentStatus)
	if err := tx.UpdateBooking(ctx, b); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("confirm booking: %w", err)
	}

	metrics.IncBookingConfirmed()
	_ = s.bus.PublishJSON(events.TypeBookingConfirmed, b)
	s.logger.Info().Str("booking_id", b.BookingID).Msg("booking confirmed")
	return b, nil
}

// Cancel moves the booking to cancelled. With releaseSlots the whole run
// flips back to available in the same transaction; without it the slots
// are left untouched for manual triage.
func (s *Service) Cancel(ctx context.Context, id int64, releaseSlots bool) (*models.Booking, error) {
	b, err := s.db.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.fsm.Guard(b.Status, models.BookingCancelled); err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if releaseSlots {
		slots, err := s.loadSlots(ctx, b)
		if err != nil {
			return nil, err
		}
		for _, slot := range slots {
			if err := tx.UpdateSlotStatus(ctx, slot.ID, slot.Version, models.SlotAvailable); err != nil {
				return nil, err
			}
		}
	}

	b.Status = models.BookingCancelled
	if err := tx.UpdateBooking(ctx, b); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("cancel booking: %w", err)
	}

	metrics.IncBookingCancelled()
	_ = s.bus.PublishJSON(events.TypeBookingCancelled, b)
	s.logger.Info().
		Str("booking_id", b.BookingID).
		Bool("slots_released", releaseSlots).
		Msg("booking cancelled")
	return b, nil
}

// SetStatus moves the booking to an explicit lifecycle status. Confirmation
// and cancellation delegate to their full operations so slot state follows.
func (s *Service) SetStatus(ctx context.Context, id int64, status models.BookingStatus) (*models.Booking, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("status %q: %w", status, ErrValidation)
	}
	switch status {
	case models.BookingConfirmed:
		return s.Confirm(ctx, id, nil, "")
	case models.BookingCancelled:
		return s.Cancel(ctx, id, true)
	}

	b, err := s.db.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.fsm.Guard(b.Status, status); err != nil {
		return nil, err
	}
	b.Status = status
	if err := s.db.UpdateBooking(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// SaveInvoice attaches the priced invoice and re-derives the payment status
// from the ledger.
func (s *Service) SaveInvoice(ctx context.Context, id int64, inv *models.Invoice) (*models.Booking, error) {
	if inv == nil {
		return nil, fmt.Errorf("invoice is required: %w", ErrValidation)
	}
	if err := inv.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", err, ErrValidation)
	}

	b, err := s.db.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	b.Invoice = inv
	b.PaymentStatus = ledger.DeriveStatus(b.Invoice, b.DepositAmount, b.PaidAmount, b.PaymentStatus)
	if err := s.db.UpdateBooking(ctx, b); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("booking_id", b.BookingID).
		Float64("total", inv.Total).
		Msg("invoice saved")
	return b, nil
}

// UpdateDeposit records the deposit amount and re-derives the payment
// status.
func (s *Service) UpdateDeposit(ctx context.Context, id int64, deposit float64) (*models.Booking, error) {
	if deposit < 0 {
		return nil, fmt.Errorf("deposit must not be negative: %w", ErrValidation)
	}
	b, err := s.db.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	b.DepositAmount = deposit
	b.PaymentStatus = ledger.DeriveStatus(b.Invoice, b.DepositAmount, b.PaidAmount, b.PaymentStatus)
	if err := s.db.UpdateBooking(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// UpdatePayment records payment amounts and settles the payment status.
// An explicit "paid" is accepted only when the ledger agrees the invoice
// is settled; "refunded" is always honored and sticky. Any other request
// re-derives the status from the ledger.
func (s *Service) UpdatePayment(ctx context.Context, id int64, status models.PaymentStatus, paid, tip *float64, method string) (*models.Booking, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("payment status %q: %w", status, ErrValidation)
	}
	if paid != nil && *paid < 0 {
		return nil, fmt.Errorf("paid amount must not be negative: %w", ErrValidation)
	}
	if tip != nil && *tip < 0 {
		return nil, fmt.Errorf("tip must not be negative: %w", ErrValidation)
	}

	b, err := s.db.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	if paid != nil {
		b.PaidAmount = *paid
	}
	if tip != nil {
		b.TipAmount = *tip
	}
	if method != "" {
		b.PaymentMethod = method
	}

	switch status {
	case models.PaymentRefunded:
		b.PaymentStatus = models.PaymentRefunded
	case models.PaymentPaid:
		if !ledger.IsSettled(b.Invoice, b.DepositAmount, b.PaidAmount) {
			return nil, fmt.Errorf("booking is not settled, balance %.2f: %w",
				ledger.Balance(b.Invoice, b.DepositAmount, b.PaidAmount), ErrValidation)
		}
		b.PaymentStatus = models.PaymentPaid
	default:
		b.PaymentStatus = ledger.DeriveStatus(b.Invoice, b.DepositAmount, b.PaidAmount, b.PaymentStatus)
	}

	if err := s.db.UpdateBooking(ctx, b); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("booking_id", b.BookingID).
		Str("payment_status", string(b.PaymentStatus)).
		Msg("payment updated")
	return b, nil
}

// UpdateServiceType records a service type correction on the booking row
// only. Slots are not re-resolved; when the new type needs a different slot
// count a warning is returned so staff reschedules explicitly.
func (s *Service) UpdateServiceType(ctx context.Context, id int64, serviceType models.ServiceType) (*models.Booking, string, error) {
	if !serviceType.Valid() {
		return nil, "", fmt.Errorf("service_type %q: %w", serviceType, ErrValidation)
	}
	b, err := s.db.GetBooking(ctx, id)
	if err != nil {
		return nil, "", err
	}

	var warning string
	if have := len(b.SlotIDs()); serviceType.SlotCount() != have {
		warning = fmt.Sprintf("service %s needs %d slots but booking holds %d; reschedule to fix",
			serviceType, serviceType.SlotCount(), have)
	}

	b.ServiceType = serviceType
	if err := s.db.UpdateBooking(ctx, b); err != nil {
		return nil, "", err
	}
	return b, warning, nil
}

// UpdateTechnician records a technician correction on the booking row only.
// When the held slots belong to a different technician a warning is
// returned so staff reschedules explicitly.
func (s *Service) UpdateTechnician(ctx context.Context, id, technicianID int64) (*models.Booking, string, error) {
	if technicianID <= 0 {
		return nil, "", fmt.Errorf("technician_id is required: %w", ErrValidation)
	}
	b, err := s.db.GetBooking(ctx, id)
	if err != nil {
		return nil, "", err
	}

	var warning string
	slot, err := s.db.GetSlot(ctx, b.SlotID)
	if err != nil {
		return nil, "", err
	}
	if slot.TechnicianID != technicianID {
		warning = fmt.Sprintf("held slots belong to technician %d; reschedule to move the booking", slot.TechnicianID)
	}

	b.TechnicianID = technicianID
	if err := s.db.UpdateBooking(ctx, b); err != nil {
		return nil, "", err
	}
	return b, warning, nil
}

func (s *Service) loadSlots(ctx context.Context, b *models.Booking) ([]*models.Slot, error) {
	ids := b.SlotIDs()
	slots := make([]*models.Slot, 0, len(ids))
	for _, id := range ids {
		slot, err := s.db.GetSlot(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("slot %d: %w", id, err)
		}
		slots = append(slots, slot)
	}
	return slots, nil
}
