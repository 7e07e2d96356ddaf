package board

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStore is a dev/test TaskStore. Mutations take a copy-on-write
// approach per operation under one mutex, which trivially gives the
// all-or-nothing guarantee the interface requires.
type InMemoryStore struct {
	mu    sync.Mutex
	tasks map[string]*Task
}

// NewInMemoryStore constructs an empty in-memory TaskStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{tasks: make(map[string]*Task)}
}

// Close closes the store (noop for in-memory).
func (s *InMemoryStore) Close() error { return nil }

// GetTask returns a live task by id.
func (s *InMemoryStore) GetTask(ctx context.Context, id string) (Task, error) {
	if id == "" {
		return Task{}, ErrBadInput
	}
	if err := ctx.Err(); err != nil {
		return Task{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok || t.DeletedAt != nil {
		return Task{}, ErrNotFound
	}
	return cloneTask(*t), nil
}

// ListGroup returns all live members of a mirror group, ordered by id.
func (s *InMemoryStore) ListGroup(ctx context.Context, mirrorGroupID string) ([]Task, error) {
	if mirrorGroupID == "" {
		return nil, ErrBadInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.groupLocked(mirrorGroupID), nil
}

func (s *InMemoryStore) groupLocked(mirrorGroupID string) []Task {
	var out []Task
	for _, t := range s.tasks {
		if t.MirrorGroupID == mirrorGroupID && t.DeletedAt == nil {
			out = append(out, cloneTask(*t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CreateTasks inserts all given tasks atomically.
func (s *InMemoryStore) CreateTasks(ctx context.Context, tasks []Task) error {
	if len(tasks) == 0 {
		return ErrBadInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range tasks {
		if t.ID == "" || t.TenantID == "" {
			return ErrBadInput
		}
		if _, exists := s.tasks[t.ID]; exists {
			return ErrBadInput
		}
	}
	for _, t := range tasks {
		c := cloneTask(t)
		s.tasks[t.ID] = &c
	}
	return nil
}

// UpdateGroupShared applies the patch to every member of the group.
func (s *InMemoryStore) UpdateGroupShared(ctx context.Context, mirrorGroupID string, fields SharedFields, now time.Time) ([]Task, error) {
	if mirrorGroupID == "" {
		return nil, ErrBadInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var members []*Task
	for _, t := range s.tasks {
		if t.MirrorGroupID == mirrorGroupID && t.DeletedAt == nil {
			members = append(members, t)
		}
	}
	if len(members) == 0 {
		return nil, ErrNotFound
	}

	for _, t := range members {
		fields.ApplyTo(t)
		t.UpdatedAt = now
	}
	return s.groupLocked(mirrorGroupID), nil
}

// UpdateTaskShared applies the patch to a single non-grouped task.
func (s *InMemoryStore) UpdateTaskShared(ctx context.Context, id string, fields SharedFields, now time.Time) (Task, error) {
	if id == "" {
		return Task{}, ErrBadInput
	}
	if err := ctx.Err(); err != nil {
		return Task{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok || t.DeletedAt != nil {
		return Task{}, ErrNotFound
	}
	fields.ApplyTo(t)
	t.UpdatedAt = now
	return cloneTask(*t), nil
}

// UpdatePositions applies status/order changes within a tenant.
func (s *InMemoryStore) UpdatePositions(ctx context.Context, tenantID string, changes []PositionChange, now time.Time) ([]Task, error) {
	if tenantID == "" {
		return nil, ErrBadInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Task
	for _, c := range changes {
		t, ok := s.tasks[c.ID]
		if !ok || t.DeletedAt != nil || t.TenantID != tenantID {
			continue
		}
		t.Status = c.Status
		t.Order = c.Order
		t.UpdatedAt = now
		out = append(out, cloneTask(*t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SoftDeleteGroup marks every member deleted and returns them.
func (s *InMemoryStore) SoftDeleteGroup(ctx context.Context, mirrorGroupID string, now time.Time) ([]Task, error) {
	if mirrorGroupID == "" {
		return nil, ErrBadInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Task
	for _, t := range s.tasks {
		if t.MirrorGroupID == mirrorGroupID && t.DeletedAt == nil {
			deleted := now
			t.DeletedAt = &deleted
			t.UpdatedAt = now
			out = append(out, cloneTask(*t))
		}
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SoftDeleteTask marks a single non-grouped task deleted.
func (s *InMemoryStore) SoftDeleteTask(ctx context.Context, id string, now time.Time) (Task, error) {
	if id == "" {
		return Task{}, ErrBadInput
	}
	if err := ctx.Err(); err != nil {
		return Task{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok || t.DeletedAt != nil {
		return Task{}, ErrNotFound
	}
	deleted := now
	t.DeletedAt = &deleted
	t.UpdatedAt = now
	return cloneTask(*t), nil
}

func cloneTask(t Task) Task {
	t.Members = append([]string(nil), t.Members...)
	t.Checklist = append([]ChecklistItem(nil), t.Checklist...)
	t.Attachments = append([]string(nil), t.Attachments...)
	if t.DeletedAt != nil {
		d := *t.DeletedAt
		t.DeletedAt = &d
	}
	return t
}
