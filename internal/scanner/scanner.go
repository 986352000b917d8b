// Package scanner finds active contracts that are about to expire, records an
// expiration reminder for each one exactly once and notifies the contract owner.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/narvanalabs/contractdesk/internal/apperr"
	"github.com/narvanalabs/contractdesk/internal/lifecycle"
	"github.com/narvanalabs/contractdesk/internal/models"
	"github.com/narvanalabs/contractdesk/internal/notify"
	"github.com/narvanalabs/contractdesk/internal/store"
)

// Threshold limits.
const (
	DefaultThresholdDays = 30
	MaxThresholdDays     = 365
)

// Skip reasons reported in Summary.Skipped.
const (
	SkipMissingOwnerContact = "missing_owner_contact"
	SkipNotificationFailed  = "notification_failed"
	SkipReminderFailed      = "reminder_failed"
)

// Skipped describes a contract the run could not fully handle.
type Skipped struct {
	ContractID     string `json:"contract_id"`
	ContractNumber string `json:"contract_number"`
	Reason         string `json:"reason"`
	Detail         string `json:"detail,omitempty"`
}

// Summary holds the result of a scan.
type Summary struct {
	ThresholdDays     int           `json:"threshold_days"`
	WindowStart       time.Time     `json:"window_start"`
	WindowEnd         time.Time     `json:"window_end"`
	Found             int           `json:"found"`
	RemindersCreated  int           `json:"reminders_created"`
	NotificationsSent int           `json:"notifications_sent"`
	AlreadyReminded   int           `json:"already_reminded"`
	Skipped           []Skipped     `json:"skipped"`
	Duration          time.Duration `json:"duration"`
}

func (s *Summary) skip(c *models.Contract, reason, detail string) {
	s.Skipped = append(s.Skipped, Skipped{
		ContractID:     c.ID,
		ContractNumber: c.ContractNumber,
		Reason:         reason,
		Detail:         detail,
	})
}

// Service runs expiration scans.
type Service struct {
	store    store.Store
	notifier notify.Port
	logger   *slog.Logger
	clock    lifecycle.Clock

	found    metric.Int64Counter
	created  metric.Int64Counter
	notified metric.Int64Counter
	skipped  metric.Int64Counter
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock that defines "today".
func WithClock(c lifecycle.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithMeter records scan counters on m instead of the global meter provider.
func WithMeter(m metric.Meter) Option {
	return func(s *Service) { s.initInstruments(m) }
}

// NewService creates a new scanner service.
func NewService(st store.Store, notifier notify.Port, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:    st,
		notifier: notifier,
		logger:   logger.With("component", "scanner"),
		clock:    lifecycle.SystemClock,
	}
	s.initInstruments(otel.Meter("github.com/narvanalabs/contractdesk/internal/scanner"))
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) initInstruments(m metric.Meter) {
	// Instrument creation only fails for invalid names; the returned
	// instrument is a usable no-op in that case.
	s.found, _ = m.Int64Counter("contractdesk.scanner.contracts_found")
	s.created, _ = m.Int64Counter("contractdesk.scanner.reminders_created")
	s.notified, _ = m.Int64Counter("contractdesk.scanner.notifications_sent")
	s.skipped, _ = m.Int64Counter("contractdesk.scanner.skipped")
}

// ValidateThreshold checks that thresholdDays is within [0, MaxThresholdDays].
func ValidateThreshold(thresholdDays int) error {
	if thresholdDays < 0 || thresholdDays > MaxThresholdDays {
		return apperr.Invalid("threshold_days", "must be between 0 and %d", MaxThresholdDays)
	}
	return nil
}

// Run scans ACTIVE contracts ending between today and today+thresholdDays.
//
// Per-contract failures are logged and reported in Summary.Skipped; only a failure
// to list contracts aborts the run. If ctx is cancelled part way, Run returns the
// counts so far together with the context error. Each contract gets at most one expiration
// reminder no matter how often or how concurrently Run is called, and a notice is
// only sent by the run that created the reminder.
func (s *Service) Run(ctx context.Context, thresholdDays int) (*Summary, error) {
	if err := ValidateThreshold(thresholdDays); err != nil {
		return nil, err
	}

	start := time.Now()
	now := s.clock()
	from, to := lifecycle.Window(thresholdDays, now)

	s.logger.InfoContext(ctx, "starting expiration scan",
		"threshold_days", thresholdDays,
		"window_start", from,
		"window_end", to,
	)

	contracts, err := s.store.Contracts().ListEndingBetween(ctx,
		[]models.ContractStatus{models.ContractStatusActive}, from, to)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list expiring contracts", "error", err)
		return nil, apperr.DataAccess("listing expiring contracts", err)
	}

	summary := &Summary{
		ThresholdDays: thresholdDays,
		WindowStart:   from,
		WindowEnd:     to,
		Found:         len(contracts),
		Skipped:       []Skipped{},
	}
	s.found.Add(ctx, int64(len(contracts)))

	for _, c := range contracts {
		if err := ctx.Err(); err != nil {
			summary.Duration = time.Since(start)
			s.logger.WarnContext(ctx, "expiration scan interrupted",
				"found", summary.Found,
				"reminders_created", summary.RemindersCreated,
				"notifications_sent", summary.NotificationsSent,
			)
			return summary, fmt.Errorf("expiration scan interrupted: %w", err)
		}
		s.process(ctx, c, thresholdDays, now, summary)
	}

	summary.Duration = time.Since(start)
	s.logger.InfoContext(ctx, "expiration scan completed",
		"found", summary.Found,
		"reminders_created", summary.RemindersCreated,
		"notifications_sent", summary.NotificationsSent,
		"already_reminded", summary.AlreadyReminded,
		"skipped", len(summary.Skipped),
		"duration", summary.Duration,
	)
	return summary, nil
}

func (s *Service) process(ctx context.Context, c *models.Contract, thresholdDays int, now time.Time, summary *Summary) {
	logger := s.logger.With("contract_id", c.ID, "contract_number", c.ContractNumber)

	// Fast path. The insert below is what actually guarantees a single reminder.
	_, err := s.store.Reminders().GetByContractKind(ctx, c.ID, models.ReminderKindExpiration)
	switch {
	case err == nil:
		summary.AlreadyReminded++
		return
	case !errors.Is(err, store.ErrNotFound):
		logger.ErrorContext(ctx, "failed to look up reminder", "error", err)
		s.recordSkip(ctx, summary, c, SkipReminderFailed, err.Error())
		return
	}

	created, err := s.store.Reminders().CreateIfAbsent(ctx, &models.Reminder{
		ContractID:   c.ID,
		Kind:         models.ReminderKindExpiration,
		ReminderDate: now,
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to create reminder", "error", err)
		s.recordSkip(ctx, summary, c, SkipReminderFailed, err.Error())
		return
	}
	if !created {
		// Another scan created it between our lookup and insert.
		summary.AlreadyReminded++
		return
	}
	summary.RemindersCreated++
	s.created.Add(ctx, 1)

	if !c.Owner.HasContact() {
		logger.WarnContext(ctx, "contract owner has no contact details, reminder recorded without notice")
		s.recordSkip(ctx, summary, c, SkipMissingOwnerContact, "")
		return
	}

	notice := notify.Notice{
		ContractID:     c.ID,
		ContractNumber: c.ContractNumber,
		EndDate:        c.EndDate,
		OwnerID:        c.Owner.ID,
		OwnerEmail:     c.Owner.Email,
		OwnerName:      c.Owner.Name,
		DaysLeft:       lifecycle.DaysUntilExpiry(c.EndDate, now),
		ThresholdDays:  thresholdDays,
	}
	if err := s.notifier.SendExpirationNotice(ctx, notice); err != nil {
		logger.ErrorContext(ctx, "failed to send expiration notice", "error", apperr.Notify(err))
		s.recordSkip(ctx, summary, c, SkipNotificationFailed, err.Error())
		return
	}
	summary.NotificationsSent++
	s.notified.Add(ctx, 1)
}

func (s *Service) recordSkip(ctx context.Context, summary *Summary, c *models.Contract, reason, detail string) {
	summary.skip(c, reason, detail)
	s.skipped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
