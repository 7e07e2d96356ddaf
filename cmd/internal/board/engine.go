package board

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"atelier/cmd/internal/ids"
	v1 "atelier/shared/contracts/collab/v1"
)

// Default board columns that newly created work lands in.
const (
	DefaultStaffIntakeStatus  = "BRANDS"
	DefaultClientIntakeStatus = "TODO"
)

// Publisher delivers committed board changes to realtime rooms. The engine
// calls it only after persistence succeeds; implementations must not block.
type Publisher interface {
	PublishTasks(roomKey, eventType string, tasks []Task, ts time.Time)
	PublishPositions(roomKey string, changes []PositionChange, origin string, ts time.Time)
}

// NoopPublisher drops all events. Useful for tests and offline tooling.
type NoopPublisher struct{}

func (NoopPublisher) PublishTasks(string, string, []Task, time.Time) {}

func (NoopPublisher) PublishPositions(string, []PositionChange, string, time.Time) {}

// Engine owns mirror-group task semantics: transactional shared-field sync,
// display-field divergence, and audience-filtered publication.
//
// Ordering guarantee: every mutation commits before anything is published.
// A failed transaction produces no broadcast at all.
type Engine struct {
	log   *slog.Logger
	store TaskStore
	pub   Publisher

	staffIntake  string
	clientIntake string
	now          func() time.Time
}

// EngineOption configures Engine behavior.
type EngineOption func(*Engine)

// WithIntakeStatuses overrides the intake columns for both audiences.
func WithIntakeStatuses(staff, client string) EngineOption {
	return func(e *Engine) {
		if strings.TrimSpace(staff) != "" {
			e.staffIntake = staff
		}
		if strings.TrimSpace(client) != "" {
			e.clientIntake = client
		}
	}
}

// WithNow overrides the engine clock (tests).
func WithNow(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine constructs a board engine.
func NewEngine(log *slog.Logger, store TaskStore, pub Publisher, opts ...EngineOption) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if pub == nil {
		pub = NoopPublisher{}
	}
	e := &Engine{
		log:          log.With("component", "board"),
		store:        store,
		pub:          pub,
		staffIntake:  DefaultStaffIntakeStatus,
		clientIntake: DefaultClientIntakeStatus,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// StaffIntakeStatus returns the staff intake column the engine was built with.
func (e *Engine) StaffIntakeStatus() string { return e.staffIntake }

// CreateInput describes a new piece of work.
//
// When CustomerID is set the engine creates a mirror pair: an agency-side
// copy (staff intake column, customer label folded into the title) and a
// customer-side copy (client intake column, scoped to the customer room).
type CreateInput struct {
	TenantID      string
	ProjectID     string
	CustomerID    string
	CustomerLabel string

	Title       string
	Description string
	Members     []string
	Checklist   []ChecklistItem
	Attachments []string
}

// Create persists the task (or mirror pair) and publishes task:created to
// each affected room.
func (e *Engine) Create(ctx context.Context, in CreateInput) ([]Task, error) {
	if strings.TrimSpace(in.TenantID) == "" || strings.TrimSpace(in.Title) == "" {
		return nil, ErrBadInput
	}

	now := e.now().UTC()

	base := Task{
		TenantID:    in.TenantID,
		ProjectID:   in.ProjectID,
		Title:       in.Title,
		Description: in.Description,
		Members:     in.Members,
		Checklist:   in.Checklist,
		Attachments: in.Attachments,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var (
		tasks []Task
		err   error
	)
	if in.CustomerID == "" {
		t := base
		t.ID, err = ids.NewULID(now)
		if err != nil {
			return nil, err
		}
		t.Status = e.staffIntake
		tasks = []Task{t}
	} else {
		groupID, err := ids.NewULID(now)
		if err != nil {
			return nil, err
		}

		agency := base
		agency.ID, err = ids.NewULID(now)
		if err != nil {
			return nil, err
		}
		agency.MirrorGroupID = groupID
		agency.Status = e.staffIntake
		if label := strings.TrimSpace(in.CustomerLabel); label != "" {
			agency.Title = label + " | " + in.Title
		}

		client := base
		client.ID, err = ids.NewULID(now)
		if err != nil {
			return nil, err
		}
		client.MirrorGroupID = groupID
		client.CustomerID = in.CustomerID
		client.Status = e.clientIntake

		tasks = []Task{agency, client}
	}

	if err := e.store.CreateTasks(ctx, tasks); err != nil {
		return nil, err
	}

	e.log.Info("tasks created",
		"tenant", in.TenantID,
		"count", len(tasks),
		"mirrored", in.CustomerID != "")

	e.publishAudiences(in.TenantID, v1.TypeTaskCreated, tasks, now)
	return tasks, nil
}

// UpdateShared applies a shared-field patch. For a mirrored task the patch
// lands on every member of its group in one transaction; status and order
// stay untouched on every row.
func (e *Engine) UpdateShared(ctx context.Context, taskID string, fields SharedFields) ([]Task, error) {
	if fields.Empty() {
		return nil, ErrBadInput
	}

	t, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	now := e.now().UTC()

	if !t.Mirrored() {
		updated, err := e.store.UpdateTaskShared(ctx, taskID, fields, now)
		if err != nil {
			return nil, err
		}
		e.publishAudiences(updated.TenantID, v1.TypeTaskUpdated, []Task{updated}, now)
		return []Task{updated}, nil
	}

	members, err := e.store.UpdateGroupShared(ctx, t.MirrorGroupID, fields, now)
	if err != nil {
		return nil, err
	}

	e.log.Info("mirror group updated",
		"tenant", t.TenantID,
		"group", t.MirrorGroupID,
		"members", len(members))

	e.publishAudiences(t.TenantID, v1.TypeTaskBulkUpdated, members, now)
	return members, nil
}

// ApplyClientPositions persists validated status/order changes coming from a
// client-role actor and rebroadcasts the applied subset to the staff room.
// Changes never cross mirror-group members.
func (e *Engine) ApplyClientPositions(ctx context.Context, tenantID string, changes []PositionChange, origin string) ([]Task, error) {
	changes = SanitizeChanges(changes)
	if len(changes) == 0 {
		return nil, nil
	}

	now := e.now().UTC()
	updated, err := e.store.UpdatePositions(ctx, tenantID, changes, now)
	if err != nil {
		return nil, err
	}
	if len(updated) == 0 {
		return nil, nil
	}

	applied := make([]PositionChange, 0, len(updated))
	for _, t := range updated {
		applied = append(applied, PositionChange{ID: t.ID, Status: t.Status, Order: t.Order})
	}

	e.pub.PublishPositions(v1.TenantRoom(tenantID), applied, origin, now)
	return updated, nil
}

// Reorder persists staff-side status/order changes and publishes
// task:reordered to each affected room.
func (e *Engine) Reorder(ctx context.Context, tenantID string, changes []PositionChange) ([]Task, error) {
	changes = SanitizeChanges(changes)
	if len(changes) == 0 {
		return nil, nil
	}

	now := e.now().UTC()
	updated, err := e.store.UpdatePositions(ctx, tenantID, changes, now)
	if err != nil {
		return nil, err
	}
	if len(updated) == 0 {
		return nil, nil
	}

	e.publishAudiences(tenantID, v1.TypeTaskReordered, updated, now)
	return updated, nil
}

// Delete soft-deletes a task. A mirrored task takes its whole group down in
// one transaction so no orphaned copy survives on any board.
func (e *Engine) Delete(ctx context.Context, taskID string) ([]Task, error) {
	t, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	now := e.now().UTC()

	if !t.Mirrored() {
		deleted, err := e.store.SoftDeleteTask(ctx, taskID, now)
		if err != nil {
			return nil, err
		}
		e.publishAudiences(deleted.TenantID, v1.TypeTaskDeleted, []Task{deleted}, now)
		return []Task{deleted}, nil
	}

	members, err := e.store.SoftDeleteGroup(ctx, t.MirrorGroupID, now)
	if err != nil {
		return nil, err
	}

	e.log.Info("mirror group deleted",
		"tenant", t.TenantID,
		"group", t.MirrorGroupID,
		"members", len(members))

	e.publishAudiences(t.TenantID, v1.TypeTaskDeleted, members, now)
	return members, nil
}

// publishAudiences fans a committed change out per audience. The staff room
// receives the deduplicated representative view; each customer room receives
// only its own rows. A room never sees two copies of one mirror group.
func (e *Engine) publishAudiences(tenantID, eventType string, members []Task, now time.Time) {
	if staff := StaffView(members, e.staffIntake); len(staff) > 0 {
		e.pub.PublishTasks(v1.TenantRoom(tenantID), eventType, staff, now)
	}

	seen := make(map[string]struct{})
	for _, t := range members {
		if t.CustomerID == "" {
			continue
		}
		if _, dup := seen[t.CustomerID]; dup {
			continue
		}
		seen[t.CustomerID] = struct{}{}

		if rows := CustomerView(members, t.CustomerID); len(rows) > 0 {
			e.pub.PublishTasks(v1.TenantClientRoom(tenantID, t.CustomerID), eventType, rows, now)
		}
	}
}
