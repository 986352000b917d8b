package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narvanalabs/contractdesk/internal/auth"
	"github.com/narvanalabs/contractdesk/internal/models"
	queuemem "github.com/narvanalabs/contractdesk/internal/queue/memory"
	"github.com/narvanalabs/contractdesk/internal/scanner"
	"github.com/narvanalabs/contractdesk/internal/store/memory"
	"github.com/narvanalabs/contractdesk/pkg/config"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testCLI struct {
	cli   *cli
	out   *bytes.Buffer
	store *memory.Store
	queue *queuemem.Queue
}

func newTestCLI(t *testing.T) *testCLI {
	t.Helper()
	tc := &testCLI{
		out:   &bytes.Buffer{},
		store: memory.New(),
		queue: queuemem.New(),
	}
	cfg := &config.Config{
		JWTSecret: testSecret,
		JWTExpiry: time.Hour,
		Scanner:   config.ScannerConfig{DefaultThresholdDays: 30, Timezone: "UTC"},
		Outbox:    config.OutboxConfig{PollInterval: time.Millisecond, MaxAttempts: 3, Concurrency: 1},
	}
	tc.cli = &cli{
		out:        tc.out,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		loadConfig: func() (*config.Config, error) { return cfg, nil },
		open: func(ctx context.Context, cfg *config.Config, log *slog.Logger) (*backend, error) {
			return &backend{store: tc.store, queue: tc.queue}, nil
		},
	}
	return tc
}

func (tc *testCLI) run(t *testing.T, args ...string) error {
	t.Helper()
	tc.out.Reset()
	root := newRootCmd(tc.cli)
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	return root.ExecuteContext(context.Background())
}

func (tc *testCLI) seedExpiring(t *testing.T, days int) {
	t.Helper()
	end := time.Now().UTC().AddDate(0, 0, days)
	require.NoError(t, tc.store.Contracts().Create(context.Background(), &models.Contract{
		ContractNumber: "HUM-CLI-1",
		Status:         models.ContractStatusActive,
		StartDate:      end.AddDate(-1, 0, 0),
		EndDate:        end,
		Owner:          models.Owner{ID: "u1", Email: "owner@example.org"},
		Party:          models.Party{Kind: models.PartyKindHumanitarianOrg, ID: "org-1"},
	}))
}

func TestScanQueuesNoticesOnce(t *testing.T) {
	tc := newTestCLI(t)
	tc.seedExpiring(t, 10)

	require.NoError(t, tc.run(t, "scan", "--threshold", "30"))
	var first scanner.Summary
	require.NoError(t, json.Unmarshal(tc.out.Bytes(), &first))
	assert.Equal(t, 1, first.Found)
	assert.Equal(t, 1, first.RemindersCreated)
	assert.Equal(t, 1, first.NotificationsSent)
	assert.Len(t, tc.queue.Messages(), 1)

	require.NoError(t, tc.run(t, "scan"))
	var second scanner.Summary
	require.NoError(t, json.Unmarshal(tc.out.Bytes(), &second))
	assert.Equal(t, 30, second.ThresholdDays, "config default applies without the flag")
	assert.Equal(t, 0, second.RemindersCreated)
	assert.Equal(t, 1, second.AlreadyReminded)
	assert.Len(t, tc.queue.Messages(), 1)

	require.NoError(t, tc.run(t, "drain"))
	assert.Contains(t, tc.out.String(), "processed 1 outbox messages")
	assert.Empty(t, tc.queue.Messages())
}

func TestScanDirectSkipsQueue(t *testing.T) {
	tc := newTestCLI(t)
	tc.seedExpiring(t, 3)

	require.NoError(t, tc.run(t, "scan", "--direct", "-t", "5"))
	var summary scanner.Summary
	require.NoError(t, json.Unmarshal(tc.out.Bytes(), &summary))
	assert.Equal(t, 1, summary.NotificationsSent)
	assert.Empty(t, tc.queue.Messages())
}

func TestScanRejectsBadThreshold(t *testing.T) {
	tc := newTestCLI(t)
	assert.Error(t, tc.run(t, "scan", "--threshold", "400"))
}

func TestMigrateWithoutSupport(t *testing.T) {
	tc := newTestCLI(t)
	err := tc.run(t, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not support migrations")
}

func TestTokenCommand(t *testing.T) {
	tc := newTestCLI(t)

	require.NoError(t, tc.run(t, "token", "--user", "mira", "--role", "renewal_manager"))
	token := strings.TrimSpace(tc.out.String())

	svc := auth.NewService(&auth.Config{JWTSecret: []byte(testSecret), TokenExpiry: time.Hour}, nil, nil)
	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "mira", claims.UserID)
	assert.Equal(t, auth.RoleRenewalManager, claims.Role)

	require.NoError(t, tc.run(t, "token", "--user", "cron", "--role", "scheduler", "--api-key"))
	lines := strings.Split(strings.TrimSpace(tc.out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "cd_"))
	keys, err := auth.ParseAPIKeys(strings.TrimPrefix(lines[1], "API_KEYS entry: "))
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, auth.HashAPIKey(lines[0]), keys[0].KeyHash)

	assert.ErrorIs(t, tc.run(t, "token", "--role", "owner"), auth.ErrInvalidRole)
}
