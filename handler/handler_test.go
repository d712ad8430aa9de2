package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jahboukie/ndarite/config"
	"github.com/jahboukie/ndarite/model"
	"github.com/jahboukie/ndarite/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// recordingQueue captures enqueued render jobs instead of running them.
type recordingQueue struct {
	ids []string
}

func (q *recordingQueue) Enqueue(docID string) error {
	q.ids = append(q.ids, docID)
	return nil
}

// fakeArtifacts is an in-memory stand-in for object storage.
type fakeArtifacts struct {
	objects map[string][]byte
}

func newFakeArtifacts() *fakeArtifacts {
	return &fakeArtifacts{objects: make(map[string][]byte)}
}

func (f *fakeArtifacts) Put(_ context.Context, objectName string, data []byte, _ string) error {
	f.objects[objectName] = data
	return nil
}

func (f *fakeArtifacts) PresignedURL(_ context.Context, objectName string) (string, error) {
	return "https://storage.example.com/" + objectName, nil
}

type testEnv struct {
	cfg       *config.Config
	store     *service.Store
	policy    *service.TierPolicy
	users     *service.UserService
	signature *service.SignatureService
	generator *service.Generator
	queue     *recordingQueue
	artifacts *fakeArtifacts
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{}
	cfg.Auth.JWTSecret = "test-secret-key"
	cfg.Signature.Seed = "test-seed"
	cfg.ApplyDefaults()

	store, err := service.NewStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	policy := service.NewTierPolicy(&cfg.Tiers)
	queue := &recordingQueue{}
	artifacts := newFakeArtifacts()
	signature := service.NewSignatureService(&cfg.Signature)

	return &testEnv{
		cfg:       cfg,
		store:     store,
		policy:    policy,
		users:     service.NewUserService(store),
		signature: signature,
		generator: service.NewGenerator(store, policy, queue, artifacts, signature),
		queue:     queue,
		artifacts: artifacts,
	}
}

// createUser registers an account and optionally lifts its tier or role.
func (e *testEnv) createUser(t *testing.T, email, tier, role string) *model.User {
	t.Helper()

	user, err := e.users.Register(&service.RegisterRequest{
		Email:     email,
		Password:  "password123",
		FirstName: "Test",
		LastName:  "User",
	})
	if err != nil {
		t.Fatalf("Failed to register user: %v", err)
	}

	if tier != service.TierFree || role != model.RoleUser {
		user, err = e.store.UpdateUser(user.ID, func(u *model.User) {
			u.SubscriptionTier = tier
			u.Role = role
		})
		if err != nil {
			t.Fatalf("Failed to update user: %v", err)
		}
	}
	return user
}

func (e *testEnv) createTemplate(t *testing.T, tierRequirement string) *model.Template {
	t.Helper()

	tpl := &model.Template{
		ID:              uuid.New().String(),
		Name:            "Standard Mutual NDA",
		TemplateType:    model.TypeBilateral,
		Jurisdiction:    "California",
		ComplexityLevel: model.ComplexityStandard,
		TemplateContent: map[string]any{"sections": []string{"definitions", "obligations"}},
		RequiredFields:  []string{"disclosing_party", "receiving_party"},
		TierRequirement: tierRequirement,
	}
	if err := e.store.CreateTemplate(tpl); err != nil {
		t.Fatalf("Failed to create template: %v", err)
	}
	return tpl
}

// asUser injects auth context the way the JWT middleware would.
func asUser(user *model.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", user.ID)
		c.Set("email", user.Email)
		c.Set("role", user.Role)
		c.Set("tier", user.SubscriptionTier)
	}
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		reader = bytes.NewBuffer(data)
	} else {
		reader = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func validGenerateBody(templateID string) map[string]any {
	return map[string]any{
		"template_id":   templateID,
		"document_name": "Acme Mutual NDA",
		"disclosing_party": map[string]any{
			"name":    "Acme Corp",
			"address": "1 Main St, Springfield",
			"email":   "legal@acme.example.com",
		},
		"receiving_party": map[string]any{
			"name":    "Widgets Inc",
			"address": "2 Oak Ave, Shelbyville",
			"email":   "contracts@widgets.example.com",
		},
	}
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response body: %v", err)
	}
	return body
}
