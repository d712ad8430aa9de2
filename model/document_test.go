package model

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to string }{
		{StatusDraft, StatusGenerated},
		{StatusDraft, StatusError},
		{StatusGenerated, StatusSigned},
		{StatusSigned, StatusCompleted},
	}
	for _, tr := range allowed {
		if !CanTransition(tr.from, tr.to) {
			t.Errorf("Expected %s -> %s to be allowed", tr.from, tr.to)
		}
	}

	denied := []struct{ from, to string }{
		{StatusGenerated, StatusDraft},
		{StatusSigned, StatusGenerated},
		{StatusCompleted, StatusSigned},
		{StatusError, StatusDraft},
		{StatusError, StatusGenerated},
		{StatusGenerated, StatusError},
		{StatusDraft, StatusSigned},
		{StatusDraft, StatusCompleted},
		{StatusCompleted, StatusDraft},
	}
	for _, tr := range denied {
		if CanTransition(tr.from, tr.to) {
			t.Errorf("Expected %s -> %s to be denied", tr.from, tr.to)
		}
	}
}

func TestDocumentIsImmutable(t *testing.T) {
	cases := map[string]bool{
		StatusDraft:     false,
		StatusGenerated: false,
		StatusError:     false,
		StatusSigned:    true,
		StatusCompleted: true,
	}
	for status, want := range cases {
		doc := &Document{Status: status}
		if doc.IsImmutable() != want {
			t.Errorf("IsImmutable for %s: expected %v", status, want)
		}
	}
}

func TestDocumentClone(t *testing.T) {
	doc := &Document{
		ID:     "doc-1",
		Status: StatusDraft,
		AdditionalParties: []Party{
			{Name: "Third Party", Address: "1 Main St", Email: "third@example.com"},
		},
		DocumentData: map[string]any{"purpose": "evaluation"},
		CreatedAt:    time.Now(),
	}

	clone := doc.Clone()
	clone.AdditionalParties[0].Name = "Changed"
	clone.DocumentData["purpose"] = "changed"

	if doc.AdditionalParties[0].Name != "Third Party" {
		t.Error("Clone shares additional parties with original")
	}
	if doc.DocumentData["purpose"] != "evaluation" {
		t.Error("Clone shares document data with original")
	}
}

func TestTemplateClone(t *testing.T) {
	tpl := &Template{
		ID:              "tpl-1",
		TemplateType:    TypeBilateral,
		ComplexityLevel: ComplexityStandard,
		TemplateContent: map[string]any{"sections": 4},
		LegalClauses:    []Clause{{Title: "Term", Body: "Two years."}},
		RequiredFields:  []string{"disclosing_party", "receiving_party"},
	}

	clone := tpl.Clone()
	clone.TemplateContent["sections"] = 5
	clone.LegalClauses[0].Title = "Changed"
	clone.RequiredFields[0] = "changed"

	if tpl.TemplateContent["sections"] != 4 {
		t.Error("Clone shares template content with original")
	}
	if tpl.LegalClauses[0].Title != "Term" {
		t.Error("Clone shares legal clauses with original")
	}
	if tpl.RequiredFields[0] != "disclosing_party" {
		t.Error("Clone shares required fields with original")
	}
}
