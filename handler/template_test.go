package handler

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/jahboukie/ndarite/model"
)

func templateRouter(env *testEnv, user *model.User) *gin.Engine {
	handler := NewTemplateHandler(env.store, env.policy)

	router := gin.New()
	router.Use(asUser(user))
	router.GET("/templates", handler.List)
	router.GET("/templates/:id", handler.Get)
	router.GET("/plans", handler.Plans)
	router.POST("/admin/templates", handler.Create)
	router.PUT("/admin/templates/:id", handler.Update)
	router.DELETE("/admin/templates/:id", handler.Deactivate)
	return router
}

func TestTemplateHandlerList(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "catalog@example.com", "starter", "user")
	env.createTemplate(t, "free")
	proTpl := env.createTemplate(t, "professional")
	router := templateRouter(env, user)

	w := doJSON(t, router, "GET", "/templates", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	body := decodeBody(t, w)
	templates, ok := body["templates"].([]any)
	if !ok || len(templates) != 2 {
		t.Fatalf("Expected 2 templates, got %v", body["templates"])
	}

	// A starter caller sees the professional template but cannot use it.
	for _, raw := range templates {
		entry := raw.(map[string]any)
		accessible := entry["accessible"].(bool)
		if entry["id"] == proTpl.ID && accessible {
			t.Error("Expected professional template to be inaccessible to starter caller")
		}
		if entry["tier_requirement"] == "free" && !accessible {
			t.Error("Expected free template to be accessible")
		}
	}
}

func TestTemplateHandlerListExcludesInactive(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "inactive@example.com", "free", "user")
	tpl := env.createTemplate(t, "free")
	router := templateRouter(env, user)

	if err := env.store.DeactivateTemplate(tpl.ID); err != nil {
		t.Fatalf("Failed to deactivate template: %v", err)
	}

	w := doJSON(t, router, "GET", "/templates", nil)
	body := decodeBody(t, w)
	if templates, ok := body["templates"].([]any); ok && len(templates) != 0 {
		t.Errorf("Expected empty catalog, got %d entries", len(templates))
	}

	gw := doJSON(t, router, "GET", "/templates/"+tpl.ID, nil)
	if gw.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for inactive template, got %d", gw.Code)
	}
}

func TestTemplateHandlerPlans(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "plans@example.com", "free", "user")
	router := templateRouter(env, user)

	w := doJSON(t, router, "GET", "/plans", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	body := decodeBody(t, w)
	plans, ok := body["plans"].([]any)
	if !ok || len(plans) != 4 {
		t.Fatalf("Expected 4 plans, got %v", body["plans"])
	}
}

func TestTemplateHandlerAdminCreate(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, "tpladmin@example.com", "enterprise", "admin")
	router := templateRouter(env, admin)

	tests := []struct {
		name           string
		body           map[string]any
		expectedStatus int
	}{
		{
			name: "valid template",
			body: map[string]any{
				"name":             "Startup NDA",
				"template_type":    "bilateral",
				"jurisdiction":     "Delaware",
				"complexity_level": "standard",
				"template_content": map[string]any{"sections": []string{"definitions"}},
				"required_fields":  []string{"disclosing_party"},
				"tier_requirement": "starter",
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "bad template type",
			body: map[string]any{
				"name":             "Bad NDA",
				"template_type":    "quadrilateral",
				"jurisdiction":     "Delaware",
				"complexity_level": "standard",
				"template_content": map[string]any{},
				"required_fields":  []string{},
				"tier_requirement": "free",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "bad tier requirement",
			body: map[string]any{
				"name":             "Bad Tier NDA",
				"template_type":    "bilateral",
				"jurisdiction":     "Delaware",
				"complexity_level": "standard",
				"template_content": map[string]any{},
				"required_fields":  []string{},
				"tier_requirement": "platinum",
			},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, "POST", "/admin/templates", tt.body)
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestTemplateHandlerAdminUpdateBumpsVersion(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, "ver@example.com", "enterprise", "admin")
	tpl := env.createTemplate(t, "free")
	router := templateRouter(env, admin)

	w := doJSON(t, router, "PUT", "/admin/templates/"+tpl.ID, map[string]any{
		"name":             "Standard Mutual NDA v2",
		"template_type":    "bilateral",
		"jurisdiction":     "California",
		"complexity_level": "standard",
		"template_content": map[string]any{"sections": []string{"definitions", "remedies"}},
		"required_fields":  []string{"disclosing_party", "receiving_party"},
		"tier_requirement": "free",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if version, _ := body["version"].(float64); int(version) != 2 {
		t.Errorf("Expected version 2 after content change, got %v", body["version"])
	}
}

func TestTemplateHandlerDeactivate(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, "deact@example.com", "enterprise", "admin")
	tpl := env.createTemplate(t, "free")
	router := templateRouter(env, admin)

	w := doJSON(t, router, "DELETE", "/admin/templates/"+tpl.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	// Soft-disabled, not gone: the raw record survives for old documents.
	stored, err := env.store.GetTemplate(tpl.ID)
	if err != nil {
		t.Fatalf("Expected template record to survive deactivation: %v", err)
	}
	if stored.IsActive {
		t.Error("Expected template to be inactive")
	}

	w = doJSON(t, router, "DELETE", "/admin/templates/no-such-id", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown template, got %d", w.Code)
	}
}
