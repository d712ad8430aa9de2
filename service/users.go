package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/jahboukie/ndarite/model"
)

// ErrInvalidCredentials is returned for a bad email/password pair. The same
// error covers both cases so login failures don't leak account existence.
var ErrInvalidCredentials = errors.New("invalid email or password")

// UserService manages accounts. The engine itself only consumes the
// (user_id, tier) facts this produces.
type UserService struct {
	store *Store
}

func NewUserService(store *Store) *UserService {
	return &UserService{store: store}
}

// RegisterRequest creates a new account.
type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email,max=255"`
	Password    string `json:"password" binding:"required,min=8,max=128"`
	FirstName   string `json:"first_name" binding:"required,max=100"`
	LastName    string `json:"last_name" binding:"required,max=100"`
	CompanyName string `json:"company_name,omitempty" binding:"max=255"`
	Phone       string `json:"phone,omitempty" binding:"max=20"`
}

// Register creates an account on the free tier.
func (s *UserService) Register(req *RegisterRequest) (*model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		ID:               uuid.New().String(),
		Email:            strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash:     string(hash),
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		CompanyName:      req.CompanyName,
		Phone:            req.Phone,
		Role:             model.RoleUser,
		SubscriptionTier: TierFree,
		IsActive:         true,
	}
	if err := s.store.CreateUser(user); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate verifies credentials and stamps the login time.
func (s *UserService) Authenticate(email, password string) (*model.User, error) {
	user, err := s.store.GetUserByEmail(strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	return s.store.UpdateUser(user.ID, func(u *model.User) {
		now := time.Now()
		u.LastLogin = &now
	})
}

// GetByID returns an account by ID.
func (s *UserService) GetByID(id string) (*model.User, error) {
	return s.store.GetUserByID(id)
}

// UpdateProfile applies profile edits.
func (s *UserService) UpdateProfile(id string, firstName, lastName, companyName, phone *string) (*model.User, error) {
	return s.store.UpdateUser(id, func(u *model.User) {
		if firstName != nil {
			u.FirstName = *firstName
		}
		if lastName != nil {
			u.LastName = *lastName
		}
		if companyName != nil {
			u.CompanyName = *companyName
		}
		if phone != nil {
			u.Phone = *phone
		}
	})
}
