package repo

import (
	"testing"

	"github.com/psepar/demandboard/internal/model"
)

func TestCatalogKeepsFirstSeenOrder(t *testing.T) {
	c := NewProjectCatalog([]string{"Triagem", "Chatbot"})

	if !c.Add("Dashboards") {
		t.Fatal("expected new label to be added")
	}
	if c.Add("Triagem") {
		t.Fatal("expected duplicate label to be rejected")
	}

	got := c.All()
	want := []string{"Triagem", "Chatbot", "Dashboards"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestCatalogObserveUnionsTaskProjects(t *testing.T) {
	c := NewProjectCatalog([]string{"Triagem"})

	c.Observe([]model.Task{
		{Project: "Chatbot"},
		{Project: ""},
		{Project: "Triagem"},
	})

	got := c.All()
	if len(got) != 2 || got[0] != "Triagem" || got[1] != "Chatbot" {
		t.Fatalf("unexpected catalog %v", got)
	}
}

func TestCatalogIgnoresEmptyLabel(t *testing.T) {
	c := NewProjectCatalog(nil)

	if c.Add("") {
		t.Fatal("expected empty label to be rejected")
	}
	if len(c.All()) != 0 {
		t.Fatal("expected empty catalog")
	}
}
