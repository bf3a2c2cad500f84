package model

import "testing"

func TestCloneIsDeep(t *testing.T) {
	original := Task{
		ID:        "t1",
		Title:     "original",
		Assignees: []string{"Narley"},
		Comments:  []Comment{{ID: "c1", Text: "primeiro"}},
	}

	clone := original.Clone()
	clone.Assignees[0] = "Toni"
	clone.Comments[0].Text = "editado"
	clone.Comments = append(clone.Comments, Comment{ID: "c2"})

	if original.Assignees[0] != "Narley" {
		t.Fatal("assignee slice shared with clone")
	}
	if original.Comments[0].Text != "primeiro" {
		t.Fatal("comment slice shared with clone")
	}
	if len(original.Comments) != 1 {
		t.Fatal("comment append leaked into original")
	}
}

func TestHasAssignee(t *testing.T) {
	task := Task{Assignees: []string{"Narley", "Toni"}}

	if !task.HasAssignee("Toni") {
		t.Fatal("expected Toni to be an assignee")
	}
	if task.HasAssignee("Rodrigo") {
		t.Fatal("expected Rodrigo not to be an assignee")
	}
}

func TestValidPriorityAndCategory(t *testing.T) {
	for _, p := range Priorities {
		if !ValidPriority(p) {
			t.Fatalf("expected %q valid", p)
		}
	}
	if ValidPriority("URGENTE") || ValidPriority("") {
		t.Fatal("expected unknown priority rejected")
	}

	for _, c := range Categories {
		if !ValidCategory(c) {
			t.Fatalf("expected %q valid", c)
		}
	}
	if ValidCategory("Jur") {
		t.Fatal("expected unknown category rejected")
	}
}
