package schedule

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"nailbook/internal/database"
	"nailbook/internal/models"
)

var (
	// ErrDateBlocked means the requested date falls in a blackout range.
	ErrDateBlocked = errors.New("date is blocked")
	// ErrSlotTaken means an existing slot on the required run is not
	// available; occupied slots are never skipped over.
	ErrSlotTaken = errors.New("slot on the run is not available")
	// ErrGridExhausted means the grid ran out of tokens before the run
	// was satisfied.
	ErrGridExhausted = errors.New("not enough grid tokens after anchor")
	// ErrBadAnchor means the anchor time is not a grid token.
	ErrBadAnchor = errors.New("anchor time is not on the grid")
)

// PlanMember is one slot of a resolved run: either an existing available
// slot or a placeholder to be materialized on commit.
type PlanMember struct {
	Existing     bool
	Slot         *models.Slot // set when Existing
	Date         string
	Time         string
	TechnicianID int64
}

// Plan is the side-effect-free result of a resolution: an ordered run of N
// members starting at the anchor. Committing the plan is the only
// side-effecting step.
type Plan struct {
	TechnicianID int64
	Date         string
	Members      []PlanMember
}

// Times returns the ordered grid tokens of the plan.
func (p *Plan) Times() []string {
	times := make([]string, len(p.Members))
	for i, m := range p.Members {
		times[i] = m.Time
	}
	return times
}

// Resolver finds runs of contiguous same-technician slots, materializing
// missing ones lazily on commit.
type Resolver struct {
	db     *database.DB
	grid   *Grid
	logger *zerolog.Logger
}

// NewResolver creates a resolver over the store and grid.
func NewResolver(db *database.DB, grid *Grid, logger *zerolog.Logger) *Resolver {
	return &Resolver{db: db, grid: grid, logger: logger}
}

// Grid returns the resolver's canonical grid.
func (r *Resolver) Grid() *Grid {
	return r.grid
}

// Resolve walks the grid from the anchor token and returns a plan of count
// members. An existing slot on the run must be available and the date
// unblocked; a missing slot is treated as creatable, not as a gap. Resolve
// performs no writes.
func (r *Resolver) Resolve(ctx context.Context, technicianID int64, date, anchor string, count int) (*Plan, error) {
	if count <= 0 {
		return nil, fmt.Errorf("slot count must be positive, got %d", count)
	}
	if !r.grid.Contains(anchor) {
		return nil, fmt.Errorf("%w: %s", ErrBadAnchor, anchor)
	}

	blocked, err := r.db.IsBlocked(ctx, date)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, fmt.Errorf("%s: %w", date, ErrDateBlocked)
	}

	existing, err := r.db.FindSlotsByDateAndTech(ctx, date, technicianID, true)
	if err != nil {
		return nil, err
	}
	byTime := make(map[string]*models.Slot, len(existing))
	for i := range existing {
		byTime[existing[i].Time] = &existing[i]
	}

	plan := &Plan{TechnicianID: technicianID, Date: date}
	token := anchor
	for i := 0; i < count; i++ {
		if i > 0 {
			next, ok := r.grid.Next(token)
			if !ok {
				return nil, fmt.Errorf("need %d slots from %s: %w", count, anchor, ErrGridExhausted)
			}
			token = next
		}

		if slot, ok := byTime[token]; ok {
			if slot.Status != models.SlotAvailable || slot.Hidden {
				return nil, fmt.Errorf("%s %s is %s: %w", date, token, slot.Status, ErrSlotTaken)
			}
			plan.Members = append(plan.Members, PlanMember{
				Existing: true, Slot: slot,
				Date: date, Time: token, TechnicianID: technicianID,
			})
			continue
		}

		plan.Members = append(plan.Members, PlanMember{
			Date: date, Time: token, TechnicianID: technicianID,
		})
	}

	return plan, nil
}

// Commit materializes a plan: placeholders are created and every member is
// flipped to pending, all in one transaction. Returns the ordered slot ids.
// A member that changed since Resolve fails the whole commit.
func (r *Resolver) Commit(ctx context.Context, plan *Plan) ([]int64, error) {
	if plan == nil || len(plan.Members) == 0 {
		return nil, fmt.Errorf("empty plan")
	}

	// Re-check the blackout window; the registry may have changed between
	// resolve and commit.
	blocked, err := r.db.IsBlocked(ctx, plan.Date)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, fmt.Errorf("%s: %w", plan.Date, ErrDateBlocked)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	ids, err := r.CommitIn(ctx, tx, plan)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit plan: %w", err)
	}

	r.logger.Info().
		Int64("technician_id", plan.TechnicianID).
		Str("date", plan.Date).
		Strs("times", plan.Times()).
		Msg("slot run reserved")
	return ids, nil
}

// CommitIn materializes a plan inside an existing transaction, so callers
// can couple slot reservation with their own writes.
func (r *Resolver) CommitIn(ctx context.Context, tx *database.Tx, plan *Plan) ([]int64, error) {
	ids := make([]int64, 0, len(plan.Members))
	for _, m := range plan.Members {
		if m.Existing {
			if err := tx.ReserveSlot(ctx, m.Slot.ID, m.Slot.Version, models.SlotPending); err != nil {
				return nil, err
			}
			ids = append(ids, m.Slot.ID)
			continue
		}

		slot := &models.Slot{
			TechnicianID: m.TechnicianID,
			Date:         m.Date,
			Time:         m.Time,
			Status:       models.SlotPending,
		}
		if err := tx.InsertSlot(ctx, slot); err != nil {
			if errors.Is(err, database.ErrSlotConflict) {
				// Someone materialized the token between resolve and commit.
				return nil, fmt.Errorf("%s %s: %w", m.Date, m.Time, database.ErrConcurrentModification)
			}
			return nil, err
		}
		ids = append(ids, slot.ID)
	}

	return ids, nil
}
