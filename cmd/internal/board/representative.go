package board

import "sort"

// SelectRepresentative picks the single member of a mirror group shown to the
// staff audience.
//
// Preference order:
//  1. the member whose status equals the staff intake status (the column
//     newly created agency-side items land in)
//  2. the member with the longest title (the agency-facing copy usually
//     carries a denormalized customer-name prefix)
//  3. lowest id, so the choice is deterministic when titles tie
//
// Reports false for an empty group. The designation is computed at read
// time, never stored.
func SelectRepresentative(group []Task, intakeStatus string) (Task, bool) {
	if len(group) == 0 {
		return Task{}, false
	}

	best := group[0]
	for _, t := range group[1:] {
		if better(t, best, intakeStatus) {
			best = t
		}
	}
	return best, true
}

func better(a, b Task, intakeStatus string) bool {
	aIntake := a.Status == intakeStatus
	bIntake := b.Status == intakeStatus
	if aIntake != bIntake {
		return aIntake
	}
	if len(a.Title) != len(b.Title) {
		return len(a.Title) > len(b.Title)
	}
	return a.ID < b.ID
}

// StaffView collapses each mirror group to its representative. Non-grouped
// tasks pass through unchanged. Output order is deterministic (by id).
func StaffView(tasks []Task, intakeStatus string) []Task {
	groups := make(map[string][]Task)
	out := make([]Task, 0, len(tasks))

	for _, t := range tasks {
		if !t.Mirrored() {
			out = append(out, t)
			continue
		}
		groups[t.MirrorGroupID] = append(groups[t.MirrorGroupID], t)
	}

	for _, group := range groups {
		if rep, ok := SelectRepresentative(group, intakeStatus); ok {
			out = append(out, rep)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CustomerView filters tasks down to the rows a customer-scoped room may
// see: only members belonging to that customer. A customer must never see
// another customer's copy, nor the agency-side copy of its own work.
func CustomerView(tasks []Task, customerID string) []Task {
	if customerID == "" {
		return nil
	}

	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if t.CustomerID == customerID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
