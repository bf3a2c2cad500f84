package ai

import (
	"testing"
)

const samplePayload = `{"tasks": [
	{"id": "1", "task": "Corrigir bot de triagem", "category": "Dev", "priority": "ALTA", "justification": "producao parada"},
	{"id": "2", "task": "POC de novo modelo", "category": "Pesquisa", "priority": "BAIXA", "justification": "sem prazo"}
], "blockers": ["demanda sem solicitante"]}`

func TestParseResultPlainJSON(t *testing.T) {
	result, err := ParseResult(samplePayload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(result.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(result.Tasks))
	}
	if result.Tasks[0].Priority != "ALTA" || result.Tasks[1].Category != "Pesquisa" {
		t.Fatalf("unexpected result %+v", result.Tasks)
	}
	if len(result.Blockers) != 1 {
		t.Fatalf("expected 1 blocker, got %d", len(result.Blockers))
	}
}

func TestParseResultStripsCodeFences(t *testing.T) {
	fenced := "```json\n" + samplePayload + "\n```"
	result, err := ParseResult(fenced)
	if err != nil {
		t.Fatalf("parse fenced: %v", err)
	}
	if len(result.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(result.Tasks))
	}

	bare := "```\n" + samplePayload + "\n```"
	if _, err := ParseResult(bare); err != nil {
		t.Fatalf("parse bare fence: %v", err)
	}
}

func TestParseResultRejectsUnknownPriority(t *testing.T) {
	payload := `{"tasks": [{"id": "1", "task": "x", "category": "Dev", "priority": "URGENTE", "justification": ""}]}`
	if _, err := ParseResult(payload); err == nil {
		t.Fatal("expected error for unknown priority")
	}
}

func TestParseResultRejectsUnknownCategory(t *testing.T) {
	payload := `{"tasks": [{"id": "1", "task": "x", "category": "Jur", "priority": "ALTA", "justification": ""}]}`
	if _, err := ParseResult(payload); err == nil {
		t.Fatal("expected error for unknown category")
	}
}

func TestParseResultRejectsNonJSON(t *testing.T) {
	if _, err := ParseResult("desculpe, nao consegui analisar"); err == nil {
		t.Fatal("expected error for non-JSON payload")
	}
}
