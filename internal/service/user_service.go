package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/school-registry/internal/models"
	appErrors "github.com/noah-isme/school-registry/pkg/errors"
)

type userRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

type familyExistence interface {
	FindByID(ctx context.Context, id int64) (*models.Family, error)
}

// CreateUserRequest represents payload for provisioning accounts.
type CreateUserRequest struct {
	Email    string          `json:"email" validate:"required,email"`
	FullName string          `json:"full_name" validate:"required"`
	Role     models.UserRole `json:"role" validate:"required,oneof=ADMIN TEACHER FAMILY"`
	FamilyID int64           `json:"family_id" validate:"required_if=Role FAMILY,gte=0"`
	Password string          `json:"password" validate:"required,min=8"`
}

// UserService provisions login accounts.
type UserService struct {
	repo      userRepository
	families  familyExistence
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService. families may be nil, in
// which case family links are not checked.
func NewUserService(repo userRepository, families familyExistence, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, families: families, validator: validate, logger: logger}
}

// Create adds a new account with a bcrypt password hash.
func (s *UserService) Create(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create user payload")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}

	var familyID *int64
	if req.Role == models.RoleFamily {
		if s.families != nil {
			if _, err := s.families.FindByID(ctx, req.FamilyID); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil, appErrors.Clone(appErrors.ErrNotFound, "family not found")
				}
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load family")
			}
		}
		id := req.FamilyID
		familyID = &id
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        email,
		FullName:     req.FullName,
		Role:         req.Role,
		FamilyID:     familyID,
		Active:       true,
		PasswordHash: string(passwordHash),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.logger.Info("user provisioned", zap.Int64("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, nil
}
