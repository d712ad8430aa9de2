package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jahboukie/ndarite/config"
	"github.com/jahboukie/ndarite/model"
)

func TestResolveVariant(t *testing.T) {
	tests := []struct {
		templateType string
		complexity   string
		expected     string
	}{
		{"bilateral", "standard", "bilateral_standard"},
		{"bilateral", "basic", "bilateral_basic"},
		{"bilateral", "advanced", "bilateral_advanced"},
		{"unilateral", "standard", "unilateral_standard"},
		{"multilateral", "standard", "multilateral_standard"},
		// Missing complexity variant falls back to the type's standard.
		{"unilateral", "advanced", "unilateral_standard"},
		{"multilateral", "basic", "multilateral_standard"},
		// Unknown type falls back to bilateral.
		{"quadrilateral", "standard", "bilateral_standard"},
		{"", "", "bilateral_standard"},
	}

	for _, tt := range tests {
		if got := resolveVariant(tt.templateType, tt.complexity); got != tt.expected {
			t.Errorf("resolveVariant(%q, %q) = %q, want %q", tt.templateType, tt.complexity, got, tt.expected)
		}
	}
}

func TestSecureFilename(t *testing.T) {
	name := secureFilename("user-1", ".pdf")

	if !strings.HasPrefix(name, "user-1_") {
		t.Errorf("Expected user prefix, got %q", name)
	}
	if !strings.HasSuffix(name, ".pdf") {
		t.Errorf("Expected .pdf suffix, got %q", name)
	}

	// Two names generated back to back never collide.
	if other := secureFilename("user-1", ".pdf"); other == name {
		t.Error("Expected unique filenames")
	}
}

func TestFormatDate(t *testing.T) {
	if got := formatDate(nil); got != datePlaceholder {
		t.Errorf("Expected placeholder for nil date, got %q", got)
	}

	d := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	if got := formatDate(&d); got != "March 15, 2026" {
		t.Errorf("Expected 'March 15, 2026', got %q", got)
	}
}

func TestWrapText(t *testing.T) {
	lines := wrapText("alpha beta gamma delta", 11)
	expected := []string{"alpha beta", "gamma delta"}
	if len(lines) != len(expected) {
		t.Fatalf("Expected %d lines, got %d: %v", len(expected), len(lines), lines)
	}
	for i := range expected {
		if lines[i] != expected[i] {
			t.Errorf("Line %d: expected %q, got %q", i, expected[i], lines[i])
		}
	}

	if lines := wrapText("", 10); len(lines) != 1 || lines[0] != "" {
		t.Errorf("Expected single empty line for empty input, got %v", lines)
	}
}

func TestBuildRenderContextDefaults(t *testing.T) {
	doc := testDocument("user-1")
	tpl := &model.Template{
		ID:           "tpl-1",
		TemplateType: model.TypeBilateral,
	}

	rc := buildRenderContext(doc, tpl)
	if rc.EffectiveDate != datePlaceholder {
		t.Errorf("Expected date placeholder, got %q", rc.EffectiveDate)
	}
	if len(rc.Clauses) != len(defaultClauses) {
		t.Errorf("Expected default clauses, got %d", len(rc.Clauses))
	}

	// A template with its own clauses wins over the defaults.
	tpl.LegalClauses = []model.Clause{{Title: "1. CUSTOM", Body: "Custom clause body."}}
	rc = buildRenderContext(doc, tpl)
	if len(rc.Clauses) != 1 || rc.Clauses[0].Title != "1. CUSTOM" {
		t.Errorf("Expected template clauses, got %v", rc.Clauses)
	}
}

func TestLayoutLinesContent(t *testing.T) {
	doc := testDocument("user-1")
	doc.GoverningLaw = "California"
	doc.DocumentData = map[string]any{
		"user_responses": map[string]any{"purpose": "due diligence"},
	}

	rc := buildRenderContext(doc, &model.Template{TemplateType: model.TypeUnilateral})
	text := strings.Join(layoutLines(rc), "\n")

	for _, want := range []string{
		"UNILATERAL NON-DISCLOSURE AGREEMENT",
		"Acme Corp",
		"Widgets Inc",
		"California",
		"purpose: due diligence",
		"IN WITNESS WHEREOF",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected layout to contain %q", want)
		}
	}
}

// waitForTerminalStatus polls until the document leaves draft.
func waitForTerminalStatus(t *testing.T, store *Store, docID string) *model.Document {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		doc, err := store.GetDocument(docID)
		if err != nil {
			t.Fatalf("Failed to get document: %v", err)
		}
		if doc.Status != model.StatusDraft {
			return doc
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Timed out waiting for render to finish")
	return nil
}

func renderTestConfig() *config.RenderConfig {
	return &config.RenderConfig{Workers: 1, QueueSize: 8, TimeoutSeconds: 30}
}

func TestRendererPipeline(t *testing.T) {
	store := newTestStore(t)
	artifacts := newMemArtifacts()

	tpl := &model.Template{
		ID:              "tpl-1",
		Name:            "Standard Bilateral NDA",
		TemplateType:    model.TypeBilateral,
		ComplexityLevel: model.ComplexityStandard,
		TierRequirement: TierFree,
	}
	if err := store.CreateTemplate(tpl); err != nil {
		t.Fatalf("Failed to create template: %v", err)
	}
	doc := createTestDocument(t, store, "user-1")

	renderer := NewRenderer(store, artifacts, renderTestConfig())
	defer renderer.Stop()

	if err := renderer.Enqueue(doc.ID); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	rendered := waitForTerminalStatus(t, store, doc.ID)
	if rendered.Status != model.StatusGenerated {
		t.Fatalf("Expected generated status, got %s (%s)", rendered.Status, rendered.ErrorMsg)
	}
	if rendered.PDFPath == "" || rendered.HTMLPath == "" {
		t.Fatalf("Expected both artifact paths, got pdf=%q html=%q", rendered.PDFPath, rendered.HTMLPath)
	}
	if rendered.RenderInProgress {
		t.Error("Expected render claim to be released")
	}

	// Artifact names carry the owner ID, never the display name.
	if strings.Contains(rendered.PDFPath, "Test NDA") {
		t.Error("Artifact path must not echo the document name")
	}
	if !strings.Contains(rendered.PDFPath, "user-1") {
		t.Errorf("Expected owner ID in artifact path, got %q", rendered.PDFPath)
	}

	// Both artifacts were uploaded.
	html, ok := artifacts.objects[rendered.HTMLPath]
	if !ok {
		t.Fatal("Expected HTML artifact in storage")
	}
	if !strings.Contains(string(html), "MUTUAL NON-DISCLOSURE AGREEMENT") {
		t.Error("Expected rendered HTML to contain the agreement title")
	}
	pdf, ok := artifacts.objects[rendered.PDFPath]
	if !ok {
		t.Fatal("Expected PDF artifact in storage")
	}
	if !strings.HasPrefix(string(pdf), "%PDF-") {
		t.Error("Expected a PDF header in the final artifact")
	}
}

func TestRendererMissingTemplate(t *testing.T) {
	store := newTestStore(t)
	doc := createTestDocument(t, store, "user-1") // template tpl-1 never created

	renderer := NewRenderer(store, newMemArtifacts(), renderTestConfig())
	defer renderer.Stop()

	if err := renderer.Enqueue(doc.ID); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	rendered := waitForTerminalStatus(t, store, doc.ID)
	if rendered.Status != model.StatusError {
		t.Fatalf("Expected error status, got %s", rendered.Status)
	}
	if rendered.ErrorMsg == "" {
		t.Error("Expected error message on failed render")
	}
}

func TestRendererRendersInactiveTemplate(t *testing.T) {
	store := newTestStore(t)
	artifacts := newMemArtifacts()

	tpl := &model.Template{
		ID:              "tpl-1",
		Name:            "Standard Bilateral NDA",
		TemplateType:    model.TypeBilateral,
		ComplexityLevel: model.ComplexityStandard,
		TierRequirement: TierFree,
	}
	if err := store.CreateTemplate(tpl); err != nil {
		t.Fatalf("Failed to create template: %v", err)
	}
	doc := createTestDocument(t, store, "user-1")

	// Deactivation after admission must not break the render.
	if err := store.DeactivateTemplate(tpl.ID); err != nil {
		t.Fatalf("Failed to deactivate template: %v", err)
	}

	renderer := NewRenderer(store, artifacts, renderTestConfig())
	defer renderer.Stop()

	if err := renderer.Enqueue(doc.ID); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	rendered := waitForTerminalStatus(t, store, doc.ID)
	if rendered.Status != model.StatusGenerated {
		t.Fatalf("Expected generated status, got %s (%s)", rendered.Status, rendered.ErrorMsg)
	}
}

func TestRendererDuplicateEnqueue(t *testing.T) {
	store := newTestStore(t)
	artifacts := newMemArtifacts()

	tpl := &model.Template{
		ID:              "tpl-1",
		Name:            "Standard Bilateral NDA",
		TemplateType:    model.TypeBilateral,
		ComplexityLevel: model.ComplexityStandard,
		TierRequirement: TierFree,
	}
	if err := store.CreateTemplate(tpl); err != nil {
		t.Fatalf("Failed to create template: %v", err)
	}
	doc := createTestDocument(t, store, "user-1")

	renderer := NewRenderer(store, artifacts, renderTestConfig())

	// The same job lands twice; the claim makes the second a no-op.
	if err := renderer.Enqueue(doc.ID); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	if err := renderer.Enqueue(doc.ID); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	rendered := waitForTerminalStatus(t, store, doc.ID)
	renderer.Stop() // drain before inspecting storage

	if rendered.Status != model.StatusGenerated {
		t.Fatalf("Expected generated status, got %s (%s)", rendered.Status, rendered.ErrorMsg)
	}
	if len(artifacts.objects) != 2 {
		t.Errorf("Expected exactly one HTML and one PDF artifact, got %d objects", len(artifacts.objects))
	}
}

func TestRendererTimeout(t *testing.T) {
	store := newTestStore(t)
	doc := createTestDocument(t, store, "user-1")

	tpl := &model.Template{
		ID:              "tpl-1",
		Name:            "Standard Bilateral NDA",
		TemplateType:    model.TypeBilateral,
		ComplexityLevel: model.ComplexityStandard,
		TierRequirement: TierFree,
	}
	if err := store.CreateTemplate(tpl); err != nil {
		t.Fatalf("Failed to create template: %v", err)
	}

	renderer := NewRenderer(store, &stallingArtifacts{}, &config.RenderConfig{
		Workers: 1, QueueSize: 8, TimeoutSeconds: 1,
	})
	defer renderer.Stop()

	if err := renderer.Enqueue(doc.ID); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	rendered := waitForTerminalStatus(t, store, doc.ID)
	if rendered.Status != model.StatusError {
		t.Fatalf("Expected error status after timeout, got %s", rendered.Status)
	}
	if !strings.Contains(rendered.ErrorMsg, "timeout") {
		t.Errorf("Expected timeout in error message, got %q", rendered.ErrorMsg)
	}
}

func TestRendererStop(t *testing.T) {
	store := newTestStore(t)
	renderer := NewRenderer(store, newMemArtifacts(), renderTestConfig())

	renderer.Stop()

	// Enqueue after shutdown reports the stop instead of panicking,
	// even when racing goroutines hit it concurrently.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := renderer.Enqueue("doc-after-stop"); err == nil {
				t.Error("Expected enqueue after stop to fail")
			}
		}()
	}
	wg.Wait()

	// Stop is idempotent.
	renderer.Stop()
}

func TestRendererQueueFull(t *testing.T) {
	store := newTestStore(t)
	renderer := NewRenderer(store, newMemArtifacts(), &config.RenderConfig{
		Workers: 0, QueueSize: 1, TimeoutSeconds: 30,
	})
	defer renderer.Stop()

	if err := renderer.Enqueue("doc-1"); err != nil {
		t.Fatalf("Expected first enqueue to succeed: %v", err)
	}
	if err := renderer.Enqueue("doc-2"); err == nil {
		t.Error("Expected enqueue on a full queue to fail")
	}
}

// stallingArtifacts blocks uploads until the render context expires.
type stallingArtifacts struct{}

func (s *stallingArtifacts) Put(ctx context.Context, _ string, _ []byte, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func (s *stallingArtifacts) PresignedURL(_ context.Context, objectName string) (string, error) {
	return "https://storage.example.com/" + objectName, nil
}
