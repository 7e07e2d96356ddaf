package board

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors shared by store implementations.
var (
	ErrNotFound = errors.New("not_found")
	ErrBadInput = errors.New("invalid_input")

	// ErrTxFailed wraps commit failures so callers can distinguish "retry
	// me" from validation errors. No partial mirror state survives it.
	ErrTxFailed = errors.New("transaction_failed")
)

// TaskStore persists mirror-grouped board tasks.
//
// Requirements:
//   - UpdateGroupShared and SoftDeleteGroup are all-or-nothing across the
//     group (single transaction); a failure leaves every member untouched
//   - UpdatePositions only touches status/order and never propagates across
//     a mirror group
type TaskStore interface {
	GetTask(ctx context.Context, id string) (Task, error)

	// ListGroup returns all live members of a mirror group.
	ListGroup(ctx context.Context, mirrorGroupID string) ([]Task, error)

	// CreateTasks inserts all given tasks in one transaction.
	CreateTasks(ctx context.Context, tasks []Task) error

	// UpdateGroupShared applies the patch to every member of the group and
	// returns the updated members.
	UpdateGroupShared(ctx context.Context, mirrorGroupID string, fields SharedFields, now time.Time) ([]Task, error)

	// UpdateTaskShared applies the patch to a single non-grouped task.
	UpdateTaskShared(ctx context.Context, id string, fields SharedFields, now time.Time) (Task, error)

	// UpdatePositions applies status/order changes to the given rows within
	// a tenant and returns the updated rows. Unknown ids are skipped.
	UpdatePositions(ctx context.Context, tenantID string, changes []PositionChange, now time.Time) ([]Task, error)

	// SoftDeleteGroup marks every member deleted and returns them.
	SoftDeleteGroup(ctx context.Context, mirrorGroupID string, now time.Time) ([]Task, error)

	// SoftDeleteTask marks a single non-grouped task deleted.
	SoftDeleteTask(ctx context.Context, id string, now time.Time) (Task, error)

	Close() error
}
