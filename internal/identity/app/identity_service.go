package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/argsms/rangepool/internal/identity/domain"
	"github.com/argsms/rangepool/internal/identity/repository"
)

// IdentityService manages holder identities and issues admin capabilities.
type IdentityService struct {
	users  repository.UserRepository
	logger *slog.Logger
}

func NewIdentityService(users repository.UserRepository, logger *slog.Logger) *IdentityService {
	return &IdentityService{
		users:  users,
		logger: logger.With("service", "identity"),
	}
}

// GetOrCreate resolves the external chat identity to a user, creating one on
// first contact and keeping the username fresh.
func (s *IdentityService) GetOrCreate(ctx context.Context, chatID int64, username string) (*domain.User, error) {
	return s.users.GetOrCreateByChatID(ctx, chatID, username)
}

// GetByID returns the user with the given internal id.
func (s *IdentityService) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.users.GetByID(ctx, nil, id)
}

// Authorize issues an AdminCapability for the chat identity if — and only
// if — its admin flag is set. The capability is the explicit proof of
// authority admin-only operations require.
func (s *IdentityService) Authorize(ctx context.Context, chatID int64) (domain.AdminCapability, error) {
	user, err := s.users.GetByChatID(ctx, chatID)
	if err != nil {
		return domain.AdminCapability{}, err
	}
	if !user.IsAdmin {
		s.logger.WarnContext(ctx, "admin authorization refused", "chat_id", chatID, "user_id", user.ID)
		return domain.AdminCapability{}, domain.ErrNotAdmin
	}
	return domain.NewAdminCapability(user.ID), nil
}

// PromoteAdmin sets the target user's admin flag; admin only.
func (s *IdentityService) PromoteAdmin(ctx context.Context, cap domain.AdminCapability, target uuid.UUID) error {
	if !cap.Valid() {
		return domain.ErrNotAdmin
	}
	if err := s.users.SetAdmin(ctx, target, true); err != nil {
		return fmt.Errorf("promoting user: %w", err)
	}
	s.logger.InfoContext(ctx, "user promoted to admin", "user_id", target, "by", cap.ActorID())
	return s.users.LogAccess(ctx, cap.ActorID(), "promote_admin")
}

// DemoteAdmin clears the target user's admin flag; admin only.
func (s *IdentityService) DemoteAdmin(ctx context.Context, cap domain.AdminCapability, target uuid.UUID) error {
	if !cap.Valid() {
		return domain.ErrNotAdmin
	}
	if err := s.users.SetAdmin(ctx, target, false); err != nil {
		return fmt.Errorf("demoting user: %w", err)
	}
	s.logger.InfoContext(ctx, "admin rights removed", "user_id", target, "by", cap.ActorID())
	return s.users.LogAccess(ctx, cap.ActorID(), "demote_admin")
}

// LogAccess appends an audit entry for a user action.
func (s *IdentityService) LogAccess(ctx context.Context, userID uuid.UUID, action string) {
	if err := s.users.LogAccess(ctx, userID, action); err != nil {
		// Auditing must not fail the action being audited.
		s.logger.ErrorContext(ctx, "failed to write access log", "error", err, "user_id", userID, "action", action)
	}
}

// Stats returns aggregate counts for the admin panel; admin only.
func (s *IdentityService) Stats(ctx context.Context, cap domain.AdminCapability) (*domain.Stats, error) {
	if !cap.Valid() {
		return nil, domain.ErrNotAdmin
	}
	return s.users.Stats(ctx, time.Now().UTC().Add(-24*time.Hour))
}
