package board

import (
	"math"
	"strings"
	"time"
)

// ChecklistItem is one entry of a task checklist.
type ChecklistItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// Task is one persisted row of a (possibly mirrored) board task.
//
// Shared fields (title, description, members, checklist, attachments) are
// kept identical across a mirror group. Status and Order are
// display-partitioning: they position the row on its audience's board and
// are never propagated to other members.
type Task struct {
	ID            string `json:"id"`
	TenantID      string `json:"tenantId"`
	ProjectID     string `json:"projectId,omitempty"`
	CustomerID    string `json:"customerId,omitempty"`
	MirrorGroupID string `json:"mirrorGroupId,omitempty"`

	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Members     []string        `json:"members,omitempty"`
	Checklist   []ChecklistItem `json:"checklist,omitempty"`
	Attachments []string        `json:"attachments,omitempty"`

	Status string  `json:"status"`
	Order  float64 `json:"order"`

	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// Mirrored reports whether the task belongs to a mirror group.
func (t Task) Mirrored() bool {
	return strings.TrimSpace(t.MirrorGroupID) != ""
}

// SharedFields is a patch of group-shared fields. Nil pointers mean "leave
// unchanged"; status and order are deliberately absent.
type SharedFields struct {
	Title       *string
	Description *string
	Members     *[]string
	Checklist   *[]ChecklistItem
	Attachments *[]string
}

// Empty reports whether the patch changes nothing.
func (f SharedFields) Empty() bool {
	return f.Title == nil && f.Description == nil && f.Members == nil &&
		f.Checklist == nil && f.Attachments == nil
}

// ApplyTo writes the patch onto a task in place.
func (f SharedFields) ApplyTo(t *Task) {
	if f.Title != nil {
		t.Title = *f.Title
	}
	if f.Description != nil {
		t.Description = *f.Description
	}
	if f.Members != nil {
		t.Members = append([]string(nil), (*f.Members)...)
	}
	if f.Checklist != nil {
		t.Checklist = append([]ChecklistItem(nil), (*f.Checklist)...)
	}
	if f.Attachments != nil {
		t.Attachments = append([]string(nil), (*f.Attachments)...)
	}
}

// PositionChange is one entry of a bulk status/order update.
type PositionChange struct {
	ID     string  `json:"id"`
	Status string  `json:"status"`
	Order  float64 `json:"order"`
}

// SanitizeChanges drops invalid entries silently: empty ids or statuses and
// non-finite orders never reach persistence or broadcast.
func SanitizeChanges(changes []PositionChange) []PositionChange {
	out := make([]PositionChange, 0, len(changes))
	for _, c := range changes {
		if strings.TrimSpace(c.ID) == "" || strings.TrimSpace(c.Status) == "" {
			continue
		}
		if math.IsNaN(c.Order) || math.IsInf(c.Order, 0) {
			continue
		}
		out = append(out, c)
	}
	return out
}
