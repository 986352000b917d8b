package scanner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narvanalabs/contractdesk/internal/apperr"
	"github.com/narvanalabs/contractdesk/internal/lifecycle"
	"github.com/narvanalabs/contractdesk/internal/models"
	"github.com/narvanalabs/contractdesk/internal/notify"
	"github.com/narvanalabs/contractdesk/internal/store"
	"github.com/narvanalabs/contractdesk/internal/store/memory"
)

var today = time.Date(2026, 10, 15, 9, 45, 0, 0, time.UTC)

func fixedClock() time.Time { return today }

// recordingNotifier records notices and optionally fails for some contracts.
type recordingNotifier struct {
	mu      sync.Mutex
	notices []notify.Notice
	failFor map[string]bool
}

func (n *recordingNotifier) SendExpirationNotice(ctx context.Context, notice notify.Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failFor[notice.ContractID] {
		return errors.New("smtp relay unavailable")
	}
	n.notices = append(n.notices, notice)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notices)
}

func addContract(t *testing.T, s *memory.Store, id string, daysLeft int, status models.ContractStatus, owner models.Owner) {
	t.Helper()
	end := lifecycle.StartOfDay(today).AddDate(0, 0, daysLeft).Add(17 * time.Hour)
	require.NoError(t, s.Contracts().Create(context.Background(), &models.Contract{
		ID:             id,
		ContractNumber: "HUM-" + id,
		Status:         status,
		StartDate:      end.AddDate(-1, 0, 0),
		EndDate:        end,
		Owner:          owner,
		Party:          models.Party{Kind: models.PartyKindHumanitarianOrg, ID: "org-1"},
	}))
}

var reachable = models.Owner{ID: "u1", Email: "owner@example.org", Name: "Amra"}

func newScanner(s store.Store, n notify.Port) *Service {
	return NewService(s, n, nil, WithClock(fixedClock))
}

func TestEndToEndScenario(t *testing.T) {
	s := memory.New()
	n := &recordingNotifier{}
	addContract(t, s, "a", 10, models.ContractStatusActive, reachable)

	svc := newScanner(s, n)

	first, err := svc.Run(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Found)
	assert.Equal(t, 1, first.RemindersCreated)
	assert.Equal(t, 1, first.NotificationsSent)
	assert.Empty(t, first.Skipped)

	second, err := svc.Run(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Found)
	assert.Equal(t, 0, second.RemindersCreated)
	assert.Equal(t, 0, second.NotificationsSent)
	assert.Equal(t, 1, second.AlreadyReminded)

	require.Equal(t, 1, n.count())
	assert.Equal(t, 10, n.notices[0].DaysLeft)
	assert.Equal(t, 30, n.notices[0].ThresholdDays)
	assert.Equal(t, "owner@example.org", n.notices[0].OwnerEmail)
}

func TestCancelledRunReportsWorkDone(t *testing.T) {
	s := memory.New()
	addContract(t, s, "first", 2, models.ContractStatusActive, reachable)
	addContract(t, s, "second", 5, models.ContractStatusActive, reachable)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n := notify.PortFunc(func(ctx context.Context, notice notify.Notice) error {
		cancel()
		return nil
	})

	summary, err := newScanner(s, n).Run(ctx, 30)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Equal(t, 2, summary.Found)
	assert.Equal(t, 1, summary.RemindersCreated)
	assert.Equal(t, 1, summary.NotificationsSent)

	_, err = s.Reminders().GetByContractKind(context.Background(), "first", models.ReminderKindExpiration)
	assert.NoError(t, err)
}

func TestWindowSelection(t *testing.T) {
	s := memory.New()
	n := &recordingNotifier{}
	addContract(t, s, "today", 0, models.ContractStatusActive, reachable)
	addContract(t, s, "edge", 30, models.ContractStatusActive, reachable)
	addContract(t, s, "beyond", 31, models.ContractStatusActive, reachable)
	addContract(t, s, "yesterday", -1, models.ContractStatusActive, reachable)
	addContract(t, s, "pending", 5, models.ContractStatusPending, reachable)
	addContract(t, s, "renewing", 5, models.ContractStatusRenewalInProgress, reachable)

	summary, err := newScanner(s, n).Run(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Found)
	assert.Equal(t, 2, summary.RemindersCreated)

	for _, id := range []string{"beyond", "yesterday", "pending", "renewing"} {
		_, err := s.Reminders().GetByContractKind(context.Background(), id, models.ReminderKindExpiration)
		assert.ErrorIs(t, err, store.ErrNotFound, id)
	}
}

func TestOwnerWithoutEmailIsRemindedAndSkipped(t *testing.T) {
	s := memory.New()
	n := &recordingNotifier{}
	addContract(t, s, "no-email", 3, models.ContractStatusActive, models.Owner{ID: "u2"})

	summary, err := newScanner(s, n).Run(context.Background(), 30)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.RemindersCreated)
	assert.Equal(t, 0, summary.NotificationsSent)
	require.Len(t, summary.Skipped, 1)
	assert.Equal(t, SkipMissingOwnerContact, summary.Skipped[0].Reason)
	assert.Equal(t, "no-email", summary.Skipped[0].ContractID)

	_, err = s.Reminders().GetByContractKind(context.Background(), "no-email", models.ReminderKindExpiration)
	assert.NoError(t, err)
	assert.Zero(t, n.count())
}

func TestNotificationFailureDoesNotAbortRun(t *testing.T) {
	s := memory.New()
	n := &recordingNotifier{failFor: map[string]bool{"a": true}}
	addContract(t, s, "a", 1, models.ContractStatusActive, reachable)
	addContract(t, s, "b", 2, models.ContractStatusActive, reachable)

	summary, err := newScanner(s, n).Run(context.Background(), 30)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.RemindersCreated)
	assert.Equal(t, 1, summary.NotificationsSent)
	require.Len(t, summary.Skipped, 1)
	assert.Equal(t, SkipNotificationFailed, summary.Skipped[0].Reason)

	// The reminder stays, so the failed notice is not retried by the next scan.
	again, err := newScanner(s, n).Run(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, 0, again.RemindersCreated)
	assert.Equal(t, 2, again.AlreadyReminded)
}

func TestListFailureAbortsRun(t *testing.T) {
	s := memory.New()
	s.FailWith = errors.New("connection refused")

	summary, err := newScanner(s, &recordingNotifier{}).Run(context.Background(), 30)
	assert.Nil(t, summary)
	assert.True(t, apperr.IsKind(err, apperr.KindDataAccess))
	assert.ErrorContains(t, err, "connection refused")
}

// flakyReminders fails reminder lookups for one contract.
type flakyReminders struct {
	store.ReminderStore
	failFor string
}

func (f flakyReminders) GetByContractKind(ctx context.Context, contractID string, kind models.ReminderKind) (*models.Reminder, error) {
	if contractID == f.failFor {
		return nil, errors.New("statement timeout")
	}
	return f.ReminderStore.GetByContractKind(ctx, contractID, kind)
}

type flakyStore struct {
	*memory.Store
	failFor string
}

func (f flakyStore) Reminders() store.ReminderStore {
	return flakyReminders{ReminderStore: f.Store.Reminders(), failFor: f.failFor}
}

func TestPerContractFailureIsSkipped(t *testing.T) {
	s := memory.New()
	addContract(t, s, "bad", 1, models.ContractStatusActive, reachable)
	addContract(t, s, "good", 2, models.ContractStatusActive, reachable)

	summary, err := newScanner(flakyStore{Store: s, failFor: "bad"}, &recordingNotifier{}).Run(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Found)
	assert.Equal(t, 1, summary.RemindersCreated)
	require.Len(t, summary.Skipped, 1)
	assert.Equal(t, SkipReminderFailed, summary.Skipped[0].Reason)
}

func TestThresholdValidation(t *testing.T) {
	svc := newScanner(memory.New(), &recordingNotifier{})

	for _, bad := range []int{-1, MaxThresholdDays + 1} {
		_, err := svc.Run(context.Background(), bad)
		assert.True(t, apperr.IsKind(err, apperr.KindValidation), "threshold %d", bad)
	}

	_, err := svc.Run(context.Background(), 0)
	assert.NoError(t, err)
}

func TestConcurrentRunsCreateOneReminder(t *testing.T) {
	s := memory.New()
	n := &recordingNotifier{}
	addContract(t, s, "a", 5, models.ContractStatusActive, reachable)

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(threshold int) {
			defer wg.Done()
			summary, err := newScanner(s, n).Run(context.Background(), threshold)
			if assert.NoError(t, err) {
				mu.Lock()
				created += summary.RemindersCreated
				mu.Unlock()
			}
		}(10 + i)
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 1, n.count())
}

// **Property 1: Scan idempotence**
// For any set of contracts and any sequence of thresholds, every contract ends up
// with at most one reminder, and the total number of reminders created equals the
// number of distinct contracts ever found.
func TestScanIdempotence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("one reminder per contract", prop.ForAll(
		func(offsets []int, thresholds []int) bool {
			s := memory.New()
			n := &recordingNotifier{}
			for i, off := range offsets {
				addContract(t, s, string(rune('a'+i)), off, models.ContractStatusActive, reachable)
			}

			svc := newScanner(s, n)
			totalCreated := 0
			seen := map[string]bool{}
			for _, th := range thresholds {
				summary, err := svc.Run(context.Background(), th)
				if err != nil {
					return false
				}
				totalCreated += summary.RemindersCreated
				if summary.RemindersCreated+summary.AlreadyReminded+countReason(summary, SkipReminderFailed) != summary.Found {
					return false
				}
				for i, off := range offsets {
					if off >= 0 && off <= th {
						seen[string(rune('a'+i))] = true
					}
				}
			}

			for i := range offsets {
				list, _ := s.Reminders().ListByContract(context.Background(), string(rune('a'+i)))
				if len(list) > 1 {
					return false
				}
			}
			return totalCreated == len(seen) && n.count() == len(seen)
		},
		gen.SliceOfN(8, gen.IntRange(-5, 60)),
		gen.SliceOfN(4, gen.IntRange(0, 60)),
	))

	properties.TestingRun(t)
}

func countReason(s *Summary, reason string) int {
	n := 0
	for _, sk := range s.Skipped {
		if sk.Reason == reason {
			n++
		}
	}
	return n
}
