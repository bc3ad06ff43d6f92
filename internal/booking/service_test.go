package booking

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nailbook/internal/database"
	"nailbook/internal/events"
	"nailbook/internal/models"
	"nailbook/internal/schedule"
)

func newTestService(t *testing.T) (*Service, *database.DB) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	grid, err := schedule.NewGrid("09:00", "18:00", 30)
	require.NoError(t, err)
	resolver := schedule.NewResolver(db, grid, &logger)
	return NewService(db, resolver, events.NewEventBus(), &logger), db
}

func seedSlot(t *testing.T, db *database.DB, techID int64, date, tm string, status models.SlotStatus) *models.Slot {
	t.Helper()
	s := &models.Slot{TechnicianID: techID, Date: date, Time: tm, Status: status}
	require.NoError(t, db.CreateSlot(context.Background(), s))
	return s
}

func intake(techID int64, date, tm string, st models.ServiceType) *IntakeRequest {
	return &IntakeRequest{TechnicianID: techID, Date: date, Time: tm, ServiceType: st}
}

func TestCreateFromIntake_SingleSlot(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	slot := seedSlot(t, db, 1, "2026-03-02", "10:00", models.SlotAvailable)

	b, err := svc.CreateFromIntake(ctx, intake(1, "2026-03-02", "10:00", models.ServiceManicure))
	require.NoError(t, err)

	assert.Equal(t, slot.ID, b.SlotID)
	assert.Empty(t, b.LinkedSlotIDs)
	assert.Equal(t, models.BookingPendingForm, b.Status)
	assert.Equal(t, models.PaymentUnpaid, b.PaymentStatus)
	assert.Equal(t, models.CustomerPending, b.CustomerID)
	assert.Contains(t, b.BookingID, "NB-20260302-")

	got, err := db.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SlotPending, got.Status)
}

func TestCreateFromIntake_CompositeMaterializesRun(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	// Anchor exists; the 10:30 neighbor gets created on commit.
	seedSlot(t, db, 1, "2026-03-02", "10:00", models.SlotAvailable)

	b, err := svc.CreateFromIntake(ctx, intake(1, "2026-03-02", "10:00", models.ServiceManiPedi))
	require.NoError(t, err)
	require.Len(t, b.LinkedSlotIDs, 1)

	slots, err := db.FindSlotsByDateAndTech(ctx, "2026-03-02", 1, true)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	for _, s := range slots {
		assert.Equal(t, models.SlotPending, s.Status)
	}
}

func TestCreateFromIntake_OccupiedNeighborCreatesNothing(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	anchor := seedSlot(t, db, 1, "2026-03-02", "10:00", models.SlotAvailable)
	seedSlot(t, db, 1, "2026-03-02", "10:30", models.SlotConfirmed)

	_, err := svc.CreateFromIntake(ctx, intake(1, "2026-03-02", "10:00", models.ServiceManiPedi))
	require.ErrorIs(t, err, schedule.ErrSlotTaken)

	// Occupied slots are never skipped over and the anchor is untouched.
	got, err := db.GetSlot(ctx, anchor.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SlotAvailable, got.Status)
}

func TestCreateFromIntake_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateFromIntake(ctx, intake(1, "2026-03-02", "10:00", "facial"))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateFromIntake(ctx, intake(0, "2026-03-02", "10:00", models.ServiceManicure))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateFromIntake(ctx, intake(1, "03/02/2026", "10:00", models.ServiceManicure))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestConfirm_FlipsRunAndRecordsDeposit(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	seedSlot(t, db, 1, "2026-03-02", "10:00", models.SlotAvailable)
	b, err := svc.CreateFromIntake(ctx, intake(1, "2026-03-02", "10:00", models.ServiceManiPedi))
	require.NoError(t, err)

	deposit := 20.0
	confirmed, err := svc.Confirm(ctx, b.ID, &deposit, "card")
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, confirmed.Status)
	assert.Equal(t, 20.0, confirmed.DepositAmount)
	assert.Equal(t, models.PaymentPartial, confirmed.PaymentStatus)

	for _, id := range confirmed.SlotIDs() {
		slot, err := db.GetSlot(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.SlotConfirmed, slot.Status)
	}

	// Confirmed is terminal.
	_, err = svc.Confirm(ctx, b.ID, nil, "")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestConfirm_BlockedDateRejected(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	seedSlot(t, db, 1, "2026-03-02", "10:00", models.SlotAvailable)
	b, err := svc.CreateFromIntake(ctx, intake(1, "2026-03-02", "10:00", models.ServiceManicure))
	require.NoError(t, err)

	require.NoError(t, db.AddBlockedRange(ctx, &models.BlockedDate{
		StartDate: "2026-03-01", EndDate: "2026-03-03", Reason: "renovation",
	}))

	_, err = svc.Confirm(ctx, b.ID, nil, "")
	assert.ErrorIs(t, err, schedule.ErrDateBlocked)
}

func TestCancel_ReleasesSlots(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	seedSlot(t, db, 1, "2026-03-02", "10:00", models.SlotAvailable)
	b, err := svc.CreateFromIntake(ctx, intake(1, "2026-03-02", "10:00", models.ServiceManiPedi))
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, b.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, cancelled.Status)

	for _, id := range cancelled.SlotIDs() {
		slot, err := db.GetSlot(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.SlotAvailable, slot.Status)
	}
}

func TestCancel_KeepSlots(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	seedSlot(t, db, 1, "2026-03-02", "10:00", models.SlotAvailable)
	b, err := svc.CreateFromIntake(ctx, intake(1, "2026-03-02", "10:00", models.ServiceManicure))
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, b.ID, false)
	require.NoError(t, err)

	slot, err := db.GetSlot(ctx, b.SlotID)
	require.NoError(t, err)
	assert.Equal(t, models.SlotPending, slot.Status)
}

func TestCancel_ConfirmedIsTerminal(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	seedSlot(t, db, 1, "2026-03-02", "10:00", models.SlotAvailable)
	b, err := svc.CreateFromIntake(ctx, intake(1, "2026-03-02", "10:00", models.ServiceManicure))
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, b.ID, nil, "")
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, b.ID, true)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestSetStatus_PendingPayment(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	seedSlot(t, db, 1, "2026-03-02", "10:00", models.SlotAvailable)
	b, err := svc.CreateFromIntake(ctx, intake(1, "2026-03-02", "10:00", models.ServiceManicure))
	require.NoError(t, err)

	updated, err := svc.SetStatus(ctx, b.ID, models.BookingPendingPayment)
	require.NoError(t, err)
	assert.Equal(t, models.BookingPendingPayment, updated.Status)

	// The slot stays pending; only confirmation flips it.
	slot, err := db.GetSlot(ctx, b.SlotID)
	require.NoError(t, err)
	assert.Equal(t, models.SlotPending, slot.Status)

	_, err = svc.SetStatus(ctx, b.ID, "archived")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestPaymentLedgerFlow(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	seedSlot(t, db, 1, "2026-03-02", "10:00", models.SlotAvailable)
	b, err := svc.CreateFromIntake(ctx, intake(1, "2026-03-02", "10:00", models.ServiceGelSet))
	require.NoError(t, err)

	// Explicit paid without an invoice is rejected.
	paid := 50.0
	_, err = svc.UpdatePayment(ctx, b.ID, models.PaymentPaid, &paid, nil, "")
	assert.ErrorIs(t, err, ErrValidation)

	inv := &models.Invoice{Number: "INV-66", Subtotal: 80, Tax: 0, Total: 80}
	updated, err := svc.SaveInvoice(ctx, b.ID, inv)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentUnpaid, updated.PaymentStatus)

	updated, err = svc.UpdateDeposit(ctx, b.ID, 30)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPartial, updated.PaymentStatus)

	// Balance is 50 now; an explicit paid at 50 settles.
	updated, err = svc.UpdatePayment(ctx, b.ID, models.PaymentPaid, &paid, nil, "cash")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, updated.PaymentStatus)
	assert.Equal(t, "cash", updated.PaymentMethod)

	// Refunded is explicit and sticky against re-derivation.
	updated, err = svc.UpdatePayment(ctx, b.ID, models.PaymentRefunded, nil, nil, "")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, updated.PaymentStatus)

	updated, err = svc.UpdateDeposit(ctx, b.ID, 30)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, updated.PaymentStatus)
}

func TestUpdatePayment_DerivesWhenStatusOmitted(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	seedSlot(t, db, 1, "2026-03-02", "10:00", models.SlotAvailable)
	b, err := svc.CreateFromIntake(ctx, intake(1, "2026-03-02", "10:00", models.ServiceManicure))
	require.NoError(t, err)

	_, err = svc.SaveInvoice(ctx, b.ID, &models.Invoice{Number: "INV-67", Total: 40})
	require.NoError(t, err)

	paid := 40.0
	tip := 5.0
	updated, err := svc.UpdatePayment(ctx, b.ID, "", &paid, &tip, "card")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, updated.PaymentStatus)
	assert.Equal(t, 5.0, updated.TipAmount)

	neg := -1.0
	_, err = svc.UpdatePayment(ctx, b.ID, "", &neg, nil, "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateServiceType_WarnsOnSlotCountMismatch(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	seedSlot(t, db, 1, "2026-03-02", "10:00", models.SlotAvailable)
	b, err := svc.CreateFromIntake(ctx, intake(1, "2026-03-02", "10:00", models.ServiceManicure))
	require.NoError(t, err)

	// Same slot count: no warning.
	updated, warning, err := svc.UpdateServiceType(ctx, b.ID, models.ServicePedicure)
	require.NoError(t, err)
	assert.Empty(t, warning)
	assert.Equal(t, models.ServicePedicure, updated.ServiceType)

	// gel_set needs two slots but the booking holds one.
	updated, warning, err = svc.UpdateServiceType(ctx, b.ID, models.ServiceGelSet)
	require.NoError(t, err)
	assert.NotEmpty(t, warning)
	assert.Equal(t, models.ServiceGelSet, updated.ServiceType)

	_, _, err = svc.UpdateServiceType(ctx, b.ID, "facial")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateTechnician_WarnsOnSlotOwnerMismatch(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	seedSlot(t, db, 1, "2026-03-02", "10:00", models.SlotAvailable)
	b, err := svc.CreateFromIntake(ctx, intake(1, "2026-03-02", "10:00", models.ServiceManicure))
	require.NoError(t, err)

	updated, warning, err := svc.UpdateTechnician(ctx, b.ID, 2)
	require.NoError(t, err)
	assert.NotEmpty(t, warning)
	assert.Equal(t, int64(2), updated.TechnicianID)

	_, warning, err = svc.UpdateTechnician(ctx, b.ID, 1)
	require.NoError(t, err)
	assert.Empty(t, warning)
}

func TestCreateFromIntake_PublishesEvent(t *testing.T) {
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	grid, err := schedule.NewGrid("09:00", "18:00", 30)
	require.NoError(t, err)
	resolver := schedule.NewResolver(db, grid, &logger)

	bus := events.NewEventBus()
	var published []string
	bus.Subscribe(events.TypeBookingCreated, func(e events.Event) error {
		published = append(published, e.Type)
		return nil
	})
	svc := NewService(db, resolver, bus, &logger)

	ctx := context.Background()
	seedSlot(t, db, 1, "2026-03-02", "10:00", models.SlotAvailable)
	_, err = svc.CreateFromIntake(ctx, intake(1, "2026-03-02", "10:00", models.ServiceManicure))
	require.NoError(t, err)
	assert.Equal(t, []string{events.TypeBookingCreated}, published)
}
