package service

import (
	"bytes"
	"context"
	"embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/jahboukie/ndarite/config"
	"github.com/jahboukie/ndarite/model"
)

//go:embed templates/nda/*.html
var templateFS embed.FS

var htmlTemplates = template.Must(template.ParseFS(templateFS, "templates/nda/*.html"))

// datePlaceholder replaces absent dates in rendered output.
const datePlaceholder = "_____________"

// longDateFormat is the long-form human-readable date, e.g. "January 2, 2006".
const longDateFormat = "January 2, 2006"

// RenderContext carries everything one rendering pass needs. Both artifacts
// (HTML intermediate and PDF final) are produced from the same context.
type RenderContext struct {
	DocumentName      string
	EffectiveDate     string
	ExpirationDate    string
	GoverningLaw      string
	DisclosingParty   model.Party
	ReceivingParty    model.Party
	AdditionalParties []model.Party
	TemplateType      string
	TemplateContent   map[string]any
	Clauses           []model.Clause
	CustomFields      map[string]any
	GenerationDate    string
	DocumentID        string
}

// defaultClauses renders when a template carries no clause set of its own.
var defaultClauses = []model.Clause{
	{
		Title: "1. DEFINITION OF CONFIDENTIAL INFORMATION",
		Body: "For purposes of this Agreement, \"Confidential Information\" means any and all " +
			"non-public, confidential or proprietary information disclosed by either party to the " +
			"other party, whether orally, in writing, or in any other form.",
	},
	{
		Title: "2. OBLIGATIONS OF RECEIVING PARTY",
		Body: "The Receiving Party agrees to hold and maintain the Confidential Information in " +
			"strict confidence and to take reasonable precautions to protect such Confidential Information.",
	},
}

// Renderer is the render pipeline: a supervised queue of render jobs with a
// fixed worker pool and a per-job timeout. Workers are the only writers of a
// document's status during the render phase.
type Renderer struct {
	store     *Store
	artifacts ArtifactStore
	timeout   time.Duration

	queue chan string
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewRenderer builds a renderer and starts its worker pool.
func NewRenderer(store *Store, artifacts ArtifactStore, cfg *config.RenderConfig) *Renderer {
	r := &Renderer{
		store:     store,
		artifacts: artifacts,
		timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
		queue:     make(chan string, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

// Enqueue hands a document to the pipeline. The caller returns immediately;
// the record moves out of draft asynchronously. The mutex keeps the send
// ordered against Stop closing the queue.
func (r *Renderer) Enqueue(docID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("renderer stopped")
	}
	select {
	case r.queue <- docID:
		return nil
	default:
		return fmt.Errorf("render queue full")
	}
}

// Stop drains the pipeline and waits for in-flight renders. Safe to call
// more than once.
func (r *Renderer) Stop() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	close(r.queue)
	r.wg.Wait()
}

func (r *Renderer) worker() {
	defer r.wg.Done()
	for docID := range r.queue {
		r.process(docID)
	}
}

// process claims the record, runs one render under the timeout and applies
// the terminal status via compare-and-set.
func (r *Renderer) process(docID string) {
	if err := r.store.TryStartRender(docID); err != nil {
		// Duplicate trigger or the record already left draft.
		slog.Debug("render claim refused", "document_id", docID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	type renderResult struct {
		pdfPath  string
		htmlPath string
		err      error
	}
	done := make(chan renderResult, 1)
	go func() {
		pdfPath, htmlPath, err := r.render(ctx, docID)
		done <- renderResult{pdfPath: pdfPath, htmlPath: htmlPath, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			r.fail(docID, res.err)
			return
		}
		doc, err := r.store.CompleteRender(docID, model.StatusGenerated, func(d *model.Document) {
			d.PDFPath = res.pdfPath
			d.HTMLPath = res.htmlPath
		})
		if err != nil {
			slog.Error("failed to finalize render", "document_id", docID, "error", err)
			return
		}
		slog.Info("document rendered", "document_id", doc.ID, "pdf_path", doc.PDFPath)
	case <-ctx.Done():
		r.fail(docID, fmt.Errorf("render timeout after %s", r.timeout))
	}
}

// fail moves the record to its terminal error status. Partially written
// artifacts are kept for diagnostics.
func (r *Renderer) fail(docID string, cause error) {
	slog.Error("render failed", "document_id", docID, "error", cause)
	if _, err := r.store.CompleteRender(docID, model.StatusError, func(d *model.Document) {
		d.ErrorMsg = cause.Error()
	}); err != nil && !errors.Is(err, ErrStatusConflict) {
		slog.Error("failed to record render error", "document_id", docID, "error", err)
	}
}

// render produces both artifacts from one pass and uploads them.
func (r *Renderer) render(ctx context.Context, docID string) (pdfPath, htmlPath string, err error) {
	doc, err := r.store.GetDocument(docID)
	if err != nil {
		return "", "", fmt.Errorf("load document: %w", err)
	}
	// Soft-disabled templates still render documents that already passed
	// admission against them.
	tpl, err := r.store.GetTemplate(doc.TemplateID)
	if err != nil {
		return "", "", fmt.Errorf("load template: %w", err)
	}

	variant := resolveVariant(tpl.TemplateType, tpl.ComplexityLevel)
	rc := buildRenderContext(doc, tpl)

	var htmlBuf bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&htmlBuf, variant+".html", rc); err != nil {
		return "", "", fmt.Errorf("render html: %w", err)
	}

	pdfBytes, err := buildPDF(rc)
	if err != nil {
		return "", "", fmt.Errorf("render pdf: %w", err)
	}

	// Generated filenames never echo the caller-supplied display name.
	htmlPath = path.Join("documents", secureFilename(doc.UserID, ".html"))
	pdfPath = path.Join("documents", secureFilename(doc.UserID, ".pdf"))

	if err := r.artifacts.Put(ctx, htmlPath, htmlBuf.Bytes(), "text/html"); err != nil {
		return "", "", fmt.Errorf("store html artifact: %w", err)
	}
	if err := r.artifacts.Put(ctx, pdfPath, pdfBytes, "application/pdf"); err != nil {
		return "", "", fmt.Errorf("store pdf artifact: %w", err)
	}

	return pdfPath, htmlPath, nil
}

// variantTitles names the agreement per template type.
var variantTitles = map[string]string{
	model.TypeBilateral:    "MUTUAL NON-DISCLOSURE AGREEMENT",
	model.TypeUnilateral:   "UNILATERAL NON-DISCLOSURE AGREEMENT",
	model.TypeMultilateral: "MULTILATERAL NON-DISCLOSURE AGREEMENT",
}

// resolveVariant maps (template type, complexity) to a concrete template
// variant. Unknown complexity falls back to the type's standard variant,
// unknown type to bilateral_standard.
func resolveVariant(templateType, complexity string) string {
	if _, ok := variantTitles[templateType]; !ok {
		templateType = model.TypeBilateral
	}
	name := templateType + "_" + complexity
	if _, err := templateFS.Open("templates/nda/" + name + ".html"); err == nil {
		return name
	}
	return templateType + "_" + model.ComplexityStandard
}

func buildRenderContext(doc *model.Document, tpl *model.Template) *RenderContext {
	customFields, _ := doc.DocumentData["user_responses"].(map[string]any)
	clauses := tpl.LegalClauses
	if len(clauses) == 0 {
		clauses = defaultClauses
	}
	return &RenderContext{
		DocumentName:      doc.DocumentName,
		EffectiveDate:     formatDate(doc.EffectiveDate),
		ExpirationDate:    formatDate(doc.ExpirationDate),
		GoverningLaw:      doc.GoverningLaw,
		DisclosingParty:   doc.DisclosingParty,
		ReceivingParty:    doc.ReceivingParty,
		AdditionalParties: doc.AdditionalParties,
		TemplateType:      tpl.TemplateType,
		TemplateContent:   tpl.TemplateContent,
		Clauses:           clauses,
		CustomFields:      customFields,
		GenerationDate:    time.Now().UTC().Format(longDateFormat),
		DocumentID:        doc.ID,
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return datePlaceholder
	}
	return t.Format(longDateFormat)
}

// secureFilename builds a collision-resistant, per-user, per-timestamp name.
func secureFilename(userID, ext string) string {
	token := uuid.New()
	return fmt.Sprintf("%s_%s_%s%s",
		userID,
		time.Now().UTC().Format("20060102_150405"),
		base64.RawURLEncoding.EncodeToString(token[:8]),
		ext,
	)
}

// pdfcpu create-spec types. Only the fields the pipeline emits.
type pdfSpec struct {
	Paper  string             `json:"paper"`
	Origin string             `json:"origin"`
	Pages  map[string]pdfPage `json:"pages"`
}

type pdfPage struct {
	Content pdfContent `json:"content"`
}

type pdfContent struct {
	Text []pdfText `json:"text"`
}

type pdfText struct {
	Value    string     `json:"value"`
	Position [2]float64 `json:"position"`
	Font     pdfFont    `json:"font"`
	Width    float64    `json:"width,omitempty"`
}

type pdfFont struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

const (
	pdfLineWidth    = 92 // characters per wrapped line
	pdfLinesPerPage = 48 // lines per A4 page at the chosen leading
)

// buildPDF lays out the render context as paginated text and hands the
// result to pdfcpu's create API.
func buildPDF(rc *RenderContext) ([]byte, error) {
	lines := layoutLines(rc)

	pages := make(map[string]pdfPage)
	pageNo := 1
	for start := 0; start < len(lines); start += pdfLinesPerPage {
		end := start + pdfLinesPerPage
		if end > len(lines) {
			end = len(lines)
		}
		pages[fmt.Sprintf("%d", pageNo)] = pdfPage{
			Content: pdfContent{
				Text: []pdfText{{
					Value:    strings.Join(lines[start:end], "\n"),
					Position: [2]float64{72, 72},
					Font:     pdfFont{Name: "Helvetica", Size: 10},
				}},
			},
		}
		pageNo++
	}

	spec, err := json.Marshal(pdfSpec{
		Paper:  "A4",
		Origin: "upperLeft",
		Pages:  pages,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal pdf spec: %w", err)
	}

	var out bytes.Buffer
	if err := api.Create(nil, bytes.NewReader(spec), &out, nil); err != nil {
		return nil, fmt.Errorf("create pdf: %w", err)
	}
	return out.Bytes(), nil
}

// layoutLines flattens the context into wrapped text lines.
func layoutLines(rc *RenderContext) []string {
	title := variantTitles[rc.TemplateType]
	if title == "" {
		title = variantTitles[model.TypeBilateral]
	}

	var lines []string
	add := func(paragraph string) {
		lines = append(lines, wrapText(paragraph, pdfLineWidth)...)
		lines = append(lines, "")
	}

	lines = append(lines, title, rc.DocumentName, "")
	add(fmt.Sprintf("This Agreement is entered into on %s by and between:", rc.EffectiveDate))
	add("First Party: " + partyLine(rc.DisclosingParty))
	add("Second Party: " + partyLine(rc.ReceivingParty))
	for _, party := range rc.AdditionalParties {
		add("Additional Party: " + partyLine(party))
	}
	for _, clause := range rc.Clauses {
		lines = append(lines, clause.Title)
		add(clause.Body)
	}
	add(fmt.Sprintf("TERM: This Agreement shall remain in effect until %s.", rc.ExpirationDate))
	add(fmt.Sprintf("GOVERNING LAW: This Agreement shall be governed by the laws of %s.", rc.GoverningLaw))
	keys := make([]string, 0, len(rc.CustomFields))
	for key := range rc.CustomFields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		add(fmt.Sprintf("%s: %v", key, rc.CustomFields[key]))
	}
	add("IN WITNESS WHEREOF, the parties have executed this Agreement as of the date first written above.")
	add(fmt.Sprintf("Generated by NDARite on %s. Document ID: %s", rc.GenerationDate, rc.DocumentID))

	return lines
}

func partyLine(p model.Party) string {
	parts := []string{p.Name}
	if p.Title != "" {
		parts = append(parts, p.Title)
	}
	if p.Company != "" {
		parts = append(parts, p.Company)
	}
	parts = append(parts, p.Address, p.Email)
	if p.Phone != "" {
		parts = append(parts, p.Phone)
	}
	return strings.Join(parts, ", ")
}

func wrapText(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}
	}
	var lines []string
	line := words[0]
	for _, word := range words[1:] {
		if len(line)+1+len(word) > width {
			lines = append(lines, line)
			line = word
			continue
		}
		line += " " + word
	}
	return append(lines, line)
}
