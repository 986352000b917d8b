// Package reminder exposes contract reminders to operators: listing them and
// acknowledging them.
package reminder

import (
	"context"
	"errors"
	"log/slog"

	"github.com/narvanalabs/contractdesk/internal/apperr"
	"github.com/narvanalabs/contractdesk/internal/audit"
	"github.com/narvanalabs/contractdesk/internal/lifecycle"
	"github.com/narvanalabs/contractdesk/internal/models"
	"github.com/narvanalabs/contractdesk/internal/store"
)

// Service manages reminder acknowledgement.
type Service struct {
	store  store.Store
	audit  audit.Port
	logger *slog.Logger
	clock  lifecycle.Clock
}

// NewService creates a reminder service. A nil clock means the wall clock.
func NewService(st store.Store, auditor audit.Port, logger *slog.Logger, clock lifecycle.Clock) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = lifecycle.SystemClock
	}
	return &Service{
		store:  st,
		audit:  auditor,
		logger: logger.With("component", "reminder"),
		clock:  clock,
	}
}

// Acknowledge marks a reminder as seen by actorID. Acknowledging twice is not an
// error; the first acknowledger is kept and only the first call is audited.
func (s *Service) Acknowledge(ctx context.Context, actorID, reminderID string) (*models.Reminder, error) {
	if actorID == "" {
		return nil, apperr.Unauthorized("actor is required")
	}

	r, changed, err := s.store.Reminders().Acknowledge(ctx, reminderID, actorID, s.clock().UTC())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("reminder not found")
		}
		s.logger.ErrorContext(ctx, "failed to acknowledge reminder", "reminder_id", reminderID, "error", err)
		return nil, apperr.DataAccess("acknowledging reminder", err)
	}
	if !changed {
		return r, nil
	}

	s.logger.InfoContext(ctx, "reminder acknowledged", "reminder_id", r.ID, "contract_id", r.ContractID, "actor_id", actorID)
	if s.audit != nil {
		err := s.audit.Append(ctx, audit.Entry{
			Action:     models.AuditActionReminderAcknowledged,
			EntityType: models.EntityReminder,
			EntityID:   r.ID,
			Details:    map[string]any{"contract_id": r.ContractID, "kind": string(r.Kind)},
			Severity:   models.SeverityInfo,
			ActorID:    actorID,
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to append audit entry", "reminder_id", r.ID, "error", apperr.Audit(err))
		}
	}
	return r, nil
}

// ListByContract returns the reminders of a contract.
func (s *Service) ListByContract(ctx context.Context, contractID string) ([]*models.Reminder, error) {
	if _, err := s.store.Contracts().Get(ctx, contractID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("contract not found")
		}
		return nil, apperr.DataAccess("loading contract", err)
	}

	reminders, err := s.store.Reminders().ListByContract(ctx, contractID)
	if err != nil {
		return nil, apperr.DataAccess("listing reminders", err)
	}
	if reminders == nil {
		reminders = []*models.Reminder{}
	}
	return reminders, nil
}
