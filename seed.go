package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/jahboukie/ndarite/model"
	"github.com/jahboukie/ndarite/service"
)

// seed loads the starter template catalog and an optional admin account into
// the empty store. The store is in-memory, so this runs on every start.
func seed(store *service.Store, users *service.UserService) error {
	content := map[string]any{
		"sections": []map[string]any{
			{
				"id":    "definitions",
				"title": "Definition of Confidential Information",
			},
			{
				"id":    "obligations",
				"title": "Obligations of Receiving Party",
			},
			{
				"id":    "term",
				"title": "Term",
			},
		},
		"variables": []map[string]any{
			{"name": "term_years", "type": "number", "default": 3},
			{"name": "governing_law", "type": "text", "default": "United States"},
		},
	}
	requiredFields := []string{"disclosing_party", "receiving_party"}
	optionalFields := []string{"effective_date", "expiration_date", "governing_law"}

	templates := []*model.Template{
		{
			ID:              uuid.New().String(),
			Name:            "Standard Bilateral NDA",
			Description:     "A comprehensive bilateral non-disclosure agreement suitable for most business relationships",
			TemplateType:    model.TypeBilateral,
			Jurisdiction:    "United States",
			IndustryFocus:   "General Business",
			ComplexityLevel: model.ComplexityStandard,
			TemplateContent: content,
			RequiredFields:  requiredFields,
			OptionalFields:  optionalFields,
			TierRequirement: service.TierFree,
		},
		{
			ID:              uuid.New().String(),
			Name:            "Simple Unilateral NDA",
			Description:     "A straightforward one-way confidentiality agreement",
			TemplateType:    model.TypeUnilateral,
			Jurisdiction:    "United States",
			IndustryFocus:   "General Business",
			ComplexityLevel: model.ComplexityBasic,
			TemplateContent: content,
			RequiredFields:  requiredFields,
			OptionalFields:  optionalFields,
			TierRequirement: service.TierFree,
		},
		{
			ID:              uuid.New().String(),
			Name:            "Advanced Bilateral NDA",
			Description:     "A comprehensive bilateral NDA with advanced clauses for complex business relationships",
			TemplateType:    model.TypeBilateral,
			Jurisdiction:    "United States",
			IndustryFocus:   "General Business",
			ComplexityLevel: model.ComplexityAdvanced,
			TemplateContent: content,
			RequiredFields:  requiredFields,
			OptionalFields:  optionalFields,
			TierRequirement: service.TierProfessional,
		},
	}

	for _, tpl := range templates {
		if err := store.CreateTemplate(tpl); err != nil {
			return err
		}
	}
	slog.Info("template catalog seeded", "templates", len(templates))

	return seedAdmin(store, users)
}

// seedAdmin bootstraps an admin account from the environment. Skipped when
// NDARITE_ADMIN_EMAIL or NDARITE_ADMIN_PASSWORD is unset.
func seedAdmin(store *service.Store, users *service.UserService) error {
	email := os.Getenv("NDARITE_ADMIN_EMAIL")
	password := os.Getenv("NDARITE_ADMIN_PASSWORD")
	if email == "" || password == "" {
		slog.Info("admin bootstrap skipped, NDARITE_ADMIN_EMAIL/NDARITE_ADMIN_PASSWORD not set")
		return nil
	}

	admin, err := users.Register(&service.RegisterRequest{
		Email:       email,
		Password:    password,
		FirstName:   "Admin",
		LastName:    "User",
		CompanyName: "NDARite",
	})
	if err != nil {
		if errors.Is(err, service.ErrDuplicateEmail) {
			return nil
		}
		return err
	}

	if _, err := store.UpdateUser(admin.ID, func(u *model.User) {
		u.Role = model.RoleAdmin
		u.SubscriptionTier = service.TierEnterprise
		u.EmailVerified = true
	}); err != nil {
		return err
	}

	slog.Info("admin account bootstrapped", "email", email)
	return nil
}
