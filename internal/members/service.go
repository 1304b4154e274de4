// Package members manages the member roster and the dues configuration of an organization.
package members

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kaskita/kaskita/internal/ledger"
	"github.com/kaskita/kaskita/internal/notify"
	"github.com/kaskita/kaskita/internal/shared"
)

// CreateMemberInput registers a member. IsActive defaults to true.
type CreateMemberInput struct {
	FullName string     `json:"fullName" validate:"required,max=200"`
	Email    string     `json:"email,omitempty" validate:"omitempty,email"`
	Phone    string     `json:"phone,omitempty" validate:"max=32"`
	UserID   *uuid.UUID `json:"userId,omitempty"`
	IsActive *bool      `json:"isActive,omitempty"`
	JoinedAt *time.Time `json:"joinedAt,omitempty"`
}

// UpdateMemberInput patches a member; nil fields are left untouched.
type UpdateMemberInput struct {
	FullName *string    `json:"fullName,omitempty" validate:"omitempty,min=1,max=200"`
	Email    *string    `json:"email,omitempty" validate:"omitempty,email"`
	Phone    *string    `json:"phone,omitempty" validate:"omitempty,max=32"`
	UserID   *uuid.UUID `json:"userId,omitempty"`
	IsActive *bool      `json:"isActive,omitempty"`
	JoinedAt *time.Time `json:"joinedAt,omitempty"`
}

// ListInput filters the roster.
type ListInput struct {
	ActiveOnly bool
	Search     string
	Limit      int
	Offset     int
}

// UpsertConfigInput sets the default dues amount.
type UpsertConfigInput struct {
	Amount int64 `json:"amount" validate:"gt=0"`
}

// ConfigView is the dues configuration with the fallback made explicit.
type ConfigView struct {
	OrganizationID uuid.UUID  `json:"organizationId"`
	Amount         int64      `json:"amount"`
	IsDefault      bool       `json:"isDefault"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty"`
}

// Service implements member and dues configuration use cases.
type Service struct {
	store    ledger.Store
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the service. A nil notifier drops events.
func NewService(store ledger.Store, notifier notify.Notifier, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, notifier: notifier, logger: logger, now: time.Now}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create adds a member to the principal's organization.
func (s *Service) Create(ctx context.Context, actor shared.Principal, in CreateMemberInput) (ledger.Member, error) {
	name := strings.TrimSpace(in.FullName)
	if name == "" {
		return ledger.Member{}, shared.NewValidationError("fullName", "is required")
	}
	now := s.now()
	m := ledger.Member{
		ID:             uuid.New(),
		OrganizationID: actor.OrganizationID,
		UserID:         in.UserID,
		FullName:       name,
		Email:          strings.TrimSpace(in.Email),
		Phone:          strings.TrimSpace(in.Phone),
		IsActive:       true,
		JoinedAt:       now,
		CreatedAt:      now,
	}
	if in.IsActive != nil {
		m.IsActive = *in.IsActive
	}
	if in.JoinedAt != nil && !in.JoinedAt.IsZero() {
		m.JoinedAt = *in.JoinedAt
	}
	created, err := s.store.CreateMember(ctx, m)
	if err != nil {
		return ledger.Member{}, err
	}
	s.emit(ctx, actor, notify.Event{Type: notify.EventMemberSaved, MemberID: notify.Ptr(created.ID)})
	return created, nil
}

// Get loads one member of the organization.
func (s *Service) Get(ctx context.Context, actor shared.Principal, id uuid.UUID) (ledger.Member, error) {
	return s.store.GetMember(ctx, actor.OrganizationID, id)
}

// List returns the roster ordered by name.
func (s *Service) List(ctx context.Context, actor shared.Principal, in ListInput) ([]ledger.Member, error) {
	out, err := s.store.ListMembers(ctx, ledger.MemberFilter{
		OrganizationID: actor.OrganizationID,
		ActiveOnly:     in.ActiveOnly,
		Search:         in.Search,
		Page:           shared.NewPagination(in.Limit, in.Offset),
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []ledger.Member{}
	}
	return out, nil
}

// Update patches a member. Deactivating keeps the member's dues history.
func (s *Service) Update(ctx context.Context, actor shared.Principal, id uuid.UUID, in UpdateMemberInput) (ledger.Member, error) {
	m, err := s.store.GetMember(ctx, actor.OrganizationID, id)
	if err != nil {
		return ledger.Member{}, err
	}
	if in.FullName != nil {
		name := strings.TrimSpace(*in.FullName)
		if name == "" {
			return ledger.Member{}, shared.NewValidationError("fullName", "is required")
		}
		m.FullName = name
	}
	if in.Email != nil {
		m.Email = strings.TrimSpace(*in.Email)
	}
	if in.Phone != nil {
		m.Phone = strings.TrimSpace(*in.Phone)
	}
	if in.UserID != nil {
		m.UserID = in.UserID
	}
	if in.IsActive != nil {
		m.IsActive = *in.IsActive
	}
	if in.JoinedAt != nil && !in.JoinedAt.IsZero() {
		m.JoinedAt = *in.JoinedAt
	}
	updated, err := s.store.UpdateMember(ctx, m)
	if err != nil {
		return ledger.Member{}, err
	}
	s.emit(ctx, actor, notify.Event{Type: notify.EventMemberSaved, MemberID: notify.Ptr(updated.ID)})
	return updated, nil
}

// Config returns the dues configuration, or the built-in default flagged as such.
func (s *Service) Config(ctx context.Context, actor shared.Principal) (ConfigView, error) {
	cfg, err := s.store.GetDuesConfig(ctx, actor.OrganizationID)
	if errors.Is(err, shared.ErrNotFound) {
		return ConfigView{OrganizationID: actor.OrganizationID, Amount: ledger.DefaultDuesAmount, IsDefault: true}, nil
	}
	if err != nil {
		return ConfigView{}, err
	}
	updated := cfg.UpdatedAt
	return ConfigView{OrganizationID: cfg.OrganizationID, Amount: cfg.Amount, UpdatedAt: &updated}, nil
}

// UpsertConfig sets the default amount for dues created from now on. Existing
// dues keep their snapshot.
func (s *Service) UpsertConfig(ctx context.Context, actor shared.Principal, in UpsertConfigInput) (ConfigView, error) {
	if in.Amount <= 0 {
		return ConfigView{}, shared.NewValidationError("amount", "must be greater than 0")
	}
	cfg, err := s.store.UpsertDuesConfig(ctx, ledger.DuesConfig{
		OrganizationID: actor.OrganizationID,
		Amount:         in.Amount,
		UpdatedAt:      s.now(),
	})
	if err != nil {
		return ConfigView{}, err
	}
	s.emit(ctx, actor, notify.Event{Type: notify.EventDuesConfigUpdated, Amount: cfg.Amount})
	updated := cfg.UpdatedAt
	return ConfigView{OrganizationID: cfg.OrganizationID, Amount: cfg.Amount, UpdatedAt: &updated}, nil
}

func (s *Service) emit(ctx context.Context, actor shared.Principal, ev notify.Event) {
	ev.ID = uuid.New()
	ev.OrganizationID = actor.OrganizationID
	ev.ActorID = actor.UserID
	ev.OccurredAt = s.now()
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.logger.Warn("notify mutation", slog.String("event", string(ev.Type)), slog.Any("error", err))
	}
}
