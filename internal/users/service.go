package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/backoffice/internal/audit"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

var (
	// ErrInvalid wraps request validation failures.
	ErrInvalid = errors.New("users: invalid request")
	// ErrProtected is returned when targeting the protected role.
	ErrProtected = errors.New("users: protected role")
)

// URLs locates the user API endpoints.
type URLs struct {
	List          string
	Create        string
	ChangeRole    string
	UpdateManager string
	UpdateStatus  string
	Delete        string
}

// API performs JSON calls against the user API.
type API interface {
	Do(ctx context.Context, method, path string, body, out any) error
}

// Cache serves and revalidates the user collection.
type Cache interface {
	Get(ctx context.Context, url string, dest any) error
	Revalidate(ctx context.Context, url string) error
}

// AuditRecorder receives successful mutations.
type AuditRecorder interface {
	Record(ctx context.Context, e audit.Entry)
}

// MutationObserver counts mutation outcomes.
type MutationObserver interface {
	ObserveMutation(field string, err error)
}

type changeRoleRequest struct {
	ID   int64  `json:"id" validate:"gt=0"`
	Role string `json:"role" validate:"required,max=64"`
}

type changeManagerRequest struct {
	UserID    int64  `json:"userId" validate:"gt=0"`
	ManagerID *int64 `json:"managerId" validate:"omitempty,gt=0"`
}

type changeStatusRequest struct {
	ID     int64  `json:"id" validate:"gt=0"`
	Status string `json:"status" validate:"oneof=Actif Inactif Suspendu Bloqué"`
}

// CreateInput carries the fields of a new user.
type CreateInput struct {
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email,max=255"`
	Role      string `json:"role" validate:"required,max=64"`
}

// Service handles user business logic against the remote user API.
type Service struct {
	api      API
	cache    Cache
	urls     URLs
	audit    AuditRecorder
	metrics  MutationObserver
	validate *validator.Validate
	locks    *rowLocks
	logger   *slog.Logger
}

// ServiceConfig collects Service dependencies.
type ServiceConfig struct {
	API     API
	Cache   Cache
	URLs    URLs
	Audit   AuditRecorder
	Metrics MutationObserver
	Logger  *slog.Logger
}

// NewService builds Service instance.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		api:      cfg.API,
		cache:    cfg.Cache,
		urls:     cfg.URLs,
		audit:    cfg.Audit,
		metrics:  cfg.Metrics,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		locks:    newRowLocks(),
		logger:   logger,
	}
}

// ListUsers returns the cached user collection.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := s.cache.Get(ctx, s.urls.List, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Revalidate refetches the user collection.
func (s *Service) Revalidate(ctx context.Context) error {
	return s.cache.Revalidate(ctx, s.urls.List)
}

// Create registers a new user and revalidates the collection.
func (s *Service) Create(ctx context.Context, in CreateInput) error {
	if err := s.check(in); err != nil {
		return err
	}
	if IsProtectedRole(in.Role) {
		return ErrProtected
	}
	err := s.api.Do(ctx, http.MethodPost, s.urls.Create, in, nil)
	if s.metrics != nil {
		s.metrics.ObserveMutation("create", err)
	}
	if err != nil {
		return err
	}
	if s.audit != nil {
		s.audit.Record(ctx, audit.Entry{
			ActorID:  shared.IdentityFromContext(ctx).UserID,
			Action:   "users.create",
			Entity:   "user",
			EntityID: in.Email,
			Meta:     map[string]any{"role": in.Role},
		})
	}
	if err := s.Revalidate(ctx); err != nil {
		s.logger.Warn("revalidate after create failed", slog.Any("error", err))
	}
	return nil
}

// ChangeRole moves a user to another group.
func (s *Service) ChangeRole(ctx context.Context, id int64, role string) error {
	if IsProtectedRole(role) {
		return ErrProtected
	}
	req := changeRoleRequest{ID: id, Role: role}
	return s.mutate(ctx, "role", id, func() error {
		if err := s.check(req); err != nil {
			return err
		}
		return s.api.Do(ctx, http.MethodPut, s.urls.ChangeRole, req, nil)
	}, map[string]any{"role": role})
}

// ChangeManager assigns managerID to the user. Zero removes the manager.
func (s *Service) ChangeManager(ctx context.Context, userID, managerID int64) error {
	if managerID == userID {
		return fmt.Errorf("%w: user cannot manage itself", ErrInvalid)
	}
	req := changeManagerRequest{UserID: userID}
	if managerID != 0 {
		req.ManagerID = &managerID
	}
	return s.mutate(ctx, "manager", userID, func() error {
		if err := s.check(req); err != nil {
			return err
		}
		return s.api.Do(ctx, http.MethodPut, s.urls.UpdateManager, req, nil)
	}, map[string]any{"manager_id": managerID})
}

// ChangeStatus updates the account status.
func (s *Service) ChangeStatus(ctx context.Context, id int64, status string) error {
	req := changeStatusRequest{ID: id, Status: status}
	return s.mutate(ctx, "status", id, func() error {
		if err := s.check(req); err != nil {
			return err
		}
		return s.api.Do(ctx, http.MethodPut, s.urls.UpdateStatus, req, nil)
	}, map[string]any{"status": status})
}

// Delete removes the user.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.mutate(ctx, "delete", id, func() error {
		if id <= 0 {
			return fmt.Errorf("%w: id", ErrInvalid)
		}
		return s.api.Do(ctx, http.MethodDelete, s.urls.Delete+"/"+strconv.FormatInt(id, 10), nil, nil)
	}, nil)
}

func (s *Service) check(req any) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func (s *Service) mutate(ctx context.Context, field string, id int64, call func() error, meta map[string]any) error {
	unlock := s.locks.lock(id)
	err := call()
	unlock()

	if s.metrics != nil {
		s.metrics.ObserveMutation(field, err)
	}
	if err != nil {
		return err
	}
	if s.audit != nil {
		s.audit.Record(ctx, audit.Entry{
			ActorID:  shared.IdentityFromContext(ctx).UserID,
			Action:   "users." + field,
			Entity:   "user",
			EntityID: strconv.FormatInt(id, 10),
			Meta:     meta,
		})
	}
	return nil
}
