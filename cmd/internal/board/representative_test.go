package board

import "testing"

func task(id, groupID, customerID, title, status string) Task {
	return Task{
		ID:            id,
		TenantID:      "t1",
		CustomerID:    customerID,
		MirrorGroupID: groupID,
		Title:         title,
		Status:        status,
	}
}

func TestSelectRepresentative(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		group  []Task
		intake string
		wantID string
		wantOK bool
	}{
		{
			name:   "empty group",
			group:  nil,
			intake: "BRANDS",
			wantOK: false,
		},
		{
			name: "intake status wins over longer title",
			group: []Task{
				task("01B", "g1", "c1", "A very long customer-facing title", "TODO"),
				task("01A", "g1", "", "Short", "BRANDS"),
			},
			intake: "BRANDS",
			wantID: "01A",
			wantOK: true,
		},
		{
			name: "longest title wins when no intake member",
			group: []Task{
				task("01A", "g1", "", "Tiny", "DOING"),
				task("01B", "g1", "c1", "Customer Co | Tiny", "TODO"),
			},
			intake: "BRANDS",
			wantID: "01B",
			wantOK: true,
		},
		{
			name: "lowest id breaks title ties",
			group: []Task{
				task("01B", "g1", "c1", "Same", "TODO"),
				task("01A", "g1", "", "Same", "DOING"),
			},
			intake: "BRANDS",
			wantID: "01A",
			wantOK: true,
		},
		{
			name: "both at intake falls through to title then id",
			group: []Task{
				task("01B", "g1", "", "Same", "BRANDS"),
				task("01A", "g1", "", "Same", "BRANDS"),
			},
			intake: "BRANDS",
			wantID: "01A",
			wantOK: true,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rep, ok := SelectRepresentative(tc.group, tc.intake)
			if ok != tc.wantOK {
				t.Fatalf("ok=%v want=%v", ok, tc.wantOK)
			}
			if ok && rep.ID != tc.wantID {
				t.Fatalf("rep.ID=%q want=%q", rep.ID, tc.wantID)
			}
		})
	}
}

func TestSelectRepresentativeDeterministic(t *testing.T) {
	t.Parallel()

	group := []Task{
		task("01C", "g1", "", "Same", "TODO"),
		task("01A", "g1", "", "Same", "TODO"),
		task("01B", "g1", "", "Same", "TODO"),
	}

	first, _ := SelectRepresentative(group, "BRANDS")
	for i := 0; i < 50; i++ {
		rep, _ := SelectRepresentative(group, "BRANDS")
		if rep.ID != first.ID {
			t.Fatalf("representative changed between calls: %q then %q", first.ID, rep.ID)
		}
	}
}

func TestStaffViewCollapsesGroups(t *testing.T) {
	t.Parallel()

	tasks := []Task{
		task("01A", "g1", "", "Customer Co | Launch", "BRANDS"),
		task("01B", "g1", "c1", "Launch", "TODO"),
		task("02A", "", "", "Internal chore", "DOING"),
		task("03A", "g2", "", "Other Co | Audit", "BRANDS"),
		task("03B", "g2", "c2", "Audit", "TODO"),
	}

	got := StaffView(tasks, "BRANDS")
	if len(got) != 3 {
		t.Fatalf("len=%d want=3: %+v", len(got), got)
	}

	seen := make(map[string]bool)
	for _, v := range got {
		seen[v.ID] = true
	}
	for _, want := range []string{"01A", "02A", "03A"} {
		if !seen[want] {
			t.Fatalf("missing %q in staff view", want)
		}
	}
}

func TestCustomerViewFilters(t *testing.T) {
	t.Parallel()

	tasks := []Task{
		task("01A", "g1", "", "Customer Co | Launch", "BRANDS"),
		task("01B", "g1", "c1", "Launch", "TODO"),
		task("02B", "g2", "c2", "Audit", "TODO"),
	}

	got := CustomerView(tasks, "c1")
	if len(got) != 1 || got[0].ID != "01B" {
		t.Fatalf("customer view=%+v want only 01B", got)
	}

	if got := CustomerView(tasks, ""); got != nil {
		t.Fatalf("empty customer id should see nothing, got=%+v", got)
	}
}
