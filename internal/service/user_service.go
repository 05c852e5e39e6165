package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"erequisition/internal/model"
	"erequisition/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// ErrInvalidCredentials is returned by Login for an unknown e-mail or a wrong password.
var ErrInvalidCredentials = errors.New("invalid email or password")

// DTOs for Request validation
type CreateUserRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role" binding:"required"`
	Branch   string `json:"branch" binding:"required"`
}

type LoginUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	Token     string        `json:"token"`
	ExpiresAt string        `json:"expires_at"`
	User      *UserResponse `json:"user"`
}

// DTO for returning User without exposing sensitive data (e.g. password)
type UserResponse struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	Branch      string `json:"branch"`
	BranchLabel string `json:"branch_label"`
	CreatedAt   string `json:"created_at"`
}

type UserService interface {
	CreateUser(ctx context.Context, actor Actor, req CreateUserRequest) (*UserResponse, error)
	Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error)
	Me(ctx context.Context, actor Actor) (*UserResponse, error)
	ListUsers(ctx context.Context, actor Actor, page, limit int) ([]UserResponse, int64, error)
	// SeedAdmin creates the first admin account. It does nothing once any admin exists.
	SeedAdmin(ctx context.Context, req CreateUserRequest) (*UserResponse, bool, error)
}

type userService struct {
	repo     repository.UserRepository
	audit    AuditService
	secret   []byte
	tokenTTL time.Duration
	logger   *zap.Logger
}

func NewUserService(repo repository.UserRepository, audit AuditService, jwtSecret string, tokenTTL time.Duration, logger *zap.Logger) UserService {
	return &userService{
		repo:     repo,
		audit:    audit,
		secret:   []byte(jwtSecret),
		tokenTTL: tokenTTL,
		logger:   logger,
	}
}

var emailRegex = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)

func mapToResponse(user *model.User) *UserResponse {
	return &UserResponse{
		ID:          user.ID,
		Name:        user.Name,
		Email:       user.Email,
		Role:        string(user.Role),
		Branch:      string(user.Branch),
		BranchLabel: user.Branch.Display().Label,
		CreatedAt:   user.CreatedAt.Format(time.RFC3339),
	}
}

func (s *userService) CreateUser(ctx context.Context, actor Actor, req CreateUserRequest) (*UserResponse, error) {
	if err := actor.requireAdmin("create users"); err != nil {
		return nil, err
	}
	user, err := s.create(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.audit.Record(ctx, model.EntityUser, user.ID, model.ActionUserCreated, &actor.ID, map[string]interface{}{
		"role":   user.Role,
		"branch": user.Branch,
	}); err != nil {
		s.logger.Warn("Failed to audit user creation", zap.Uint("user_id", user.ID), zap.Error(err))
	}
	return mapToResponse(user), nil
}

func (s *userService) create(ctx context.Context, req CreateUserRequest) (*model.User, error) {
	role := model.Role(req.Role)
	if !role.Valid() {
		return nil, validationError("role must be admin or employee")
	}
	branch := model.Branch(req.Branch)
	if !branch.Valid() {
		return nil, validationError("branch %q is not supported", req.Branch)
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !emailRegex.MatchString(email) {
		return nil, validationError("invalid email format")
	}
	if len(req.Password) < 6 {
		return nil, validationError("password must be at least 6 characters")
	}
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, validationError("email already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Name:     strings.TrimSpace(req.Name),
		Email:    email,
		Password: string(hashedPassword),
		Role:     role,
		Branch:   branch,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("User created", zap.Uint("user_id", user.ID), zap.String("role", string(role)))
	return user, nil
}

func (s *userService) Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error) {
	user, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := time.Now()
	expiresAt := now.Add(s.tokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  strconv.FormatUint(uint64(user.ID), 10),
		"role": string(user.Role),
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &TokenResponse{
		Token:     tokenString,
		ExpiresAt: expiresAt.Format(time.RFC3339),
		User:      mapToResponse(user),
	}, nil
}

func (s *userService) Me(ctx context.Context, actor Actor) (*UserResponse, error) {
	user, err := s.repo.GetByID(ctx, actor.ID)
	if err != nil {
		return nil, notFoundOr(err, "user", actor.ID)
	}
	return mapToResponse(user), nil
}

func (s *userService) ListUsers(ctx context.Context, actor Actor, page, limit int) ([]UserResponse, int64, error) {
	if err := actor.requireAdmin("list users"); err != nil {
		return nil, 0, err
	}
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}

	users, total, err := s.repo.List(ctx, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch users: %w", err)
	}

	return lo.Map(users, func(u model.User, _ int) UserResponse {
		return *mapToResponse(&u)
	}), total, nil
}

func (s *userService) SeedAdmin(ctx context.Context, req CreateUserRequest) (*UserResponse, bool, error) {
	admins, err := s.repo.CountByRole(ctx, model.RoleAdmin)
	if err != nil {
		return nil, false, fmt.Errorf("failed to count admins: %w", err)
	}
	if admins > 0 {
		return nil, false, nil
	}

	req.Role = string(model.RoleAdmin)
	user, err := s.create(ctx, req)
	if err != nil {
		return nil, false, err
	}
	return mapToResponse(user), true, nil
}
