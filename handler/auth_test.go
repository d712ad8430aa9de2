package handler

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestAuthHandlerRegister(t *testing.T) {
	env := newTestEnv(t)
	handler := NewAuthHandler(env.cfg, env.users)

	router := gin.New()
	router.POST("/register", handler.Register)

	tests := []struct {
		name           string
		body           map[string]any
		expectedStatus int
	}{
		{
			name: "valid registration",
			body: map[string]any{
				"email":      "new@example.com",
				"password":   "password123",
				"first_name": "New",
				"last_name":  "User",
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "duplicate email",
			body: map[string]any{
				"email":      "new@example.com",
				"password":   "password123",
				"first_name": "New",
				"last_name":  "User",
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name: "short password",
			body: map[string]any{
				"email":      "short@example.com",
				"password":   "short",
				"first_name": "New",
				"last_name":  "User",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "missing email",
			body: map[string]any{
				"password":   "password123",
				"first_name": "New",
				"last_name":  "User",
			},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, "POST", "/register", tt.body)
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestAuthHandlerRegisterReturnsToken(t *testing.T) {
	env := newTestEnv(t)
	handler := NewAuthHandler(env.cfg, env.users)

	router := gin.New()
	router.POST("/register", handler.Register)

	w := doJSON(t, router, "POST", "/register", map[string]any{
		"email":      "token@example.com",
		"password":   "password123",
		"first_name": "Token",
		"last_name":  "User",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["token"] == "" || body["token"] == nil {
		t.Error("Expected non-empty token")
	}
	if body["tier"] != "free" {
		t.Errorf("Expected free tier for new account, got %v", body["tier"])
	}
}

func TestAuthHandlerLogin(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "login@example.com", "free", "user")
	handler := NewAuthHandler(env.cfg, env.users)

	router := gin.New()
	router.POST("/login", handler.Login)

	tests := []struct {
		name           string
		body           map[string]any
		expectedStatus int
	}{
		{
			name: "valid credentials",
			body: map[string]any{
				"email":    "login@example.com",
				"password": "password123",
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "wrong password",
			body: map[string]any{
				"email":    "login@example.com",
				"password": "wrongpassword",
			},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name: "unknown email",
			body: map[string]any{
				"email":    "nobody@example.com",
				"password": "password123",
			},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "malformed request",
			body:           map[string]any{"email": "not-an-email"},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, "POST", "/login", tt.body)
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestAuthHandlerGetCurrentUser(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "me@example.com", "professional", "user")
	handler := NewAuthHandler(env.cfg, env.users)

	router := gin.New()
	router.GET("/me", asUser(user), handler.GetCurrentUser)

	w := doJSON(t, router, "GET", "/me", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	body := decodeBody(t, w)
	if body["email"] != "me@example.com" {
		t.Errorf("Expected email 'me@example.com', got %v", body["email"])
	}
	if body["subscription_tier"] != "professional" {
		t.Errorf("Expected tier 'professional', got %v", body["subscription_tier"])
	}
	if _, leaked := body["PasswordHash"]; leaked {
		t.Error("Password hash must not appear in responses")
	}
}

func TestAuthHandlerUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "profile@example.com", "free", "user")
	handler := NewAuthHandler(env.cfg, env.users)

	router := gin.New()
	router.PATCH("/me", asUser(user), handler.UpdateProfile)

	w := doJSON(t, router, "PATCH", "/me", map[string]any{
		"first_name":   "Updated",
		"company_name": "Acme Corp",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["first_name"] != "Updated" {
		t.Errorf("Expected first name 'Updated', got %v", body["first_name"])
	}
	if body["company_name"] != "Acme Corp" {
		t.Errorf("Expected company 'Acme Corp', got %v", body["company_name"])
	}
	// Untouched fields survive
	if body["last_name"] != "User" {
		t.Errorf("Expected last name 'User', got %v", body["last_name"])
	}
}
