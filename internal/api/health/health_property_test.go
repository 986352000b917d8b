package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockPinger is a mock implementation of the Pinger interface for testing.
type MockPinger struct {
	ShouldFail bool
}

func (m *MockPinger) Ping(ctx context.Context) error {
	if m.ShouldFail {
		return errors.New("mock ping failed")
	}
	return nil
}

// **Property 1: Health status follows the database**
// The response always reports the database component, and the overall status
// and HTTP code follow it. An optional component can only degrade.
func TestPropertyHealthCheckDatabaseVerification(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("status follows database and optional components", prop.ForAll(
		func(version string, dbHealthy, relayHealthy bool) bool {
			checker := NewChecker(&MockPinger{ShouldFail: !dbHealthy}, version)
			checker.AddOptional("notify_relay", &MockPinger{ShouldFail: !relayHealthy})

			rr := httptest.NewRecorder()
			checker.Handler()(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

			var resp Response
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				return false
			}
			db, ok := resp.Components["database"]
			if !ok || resp.Version != version {
				return false
			}

			switch {
			case !dbHealthy:
				return db.Status == StatusUnhealthy && resp.Status == StatusUnhealthy && rr.Code == http.StatusServiceUnavailable
			case !relayHealthy:
				return resp.Status == StatusDegraded && rr.Code == http.StatusOK &&
					resp.Components["notify_relay"].Status == StatusDegraded
			default:
				return resp.Status == StatusHealthy && rr.Code == http.StatusOK
			}
		},
		gen.RegexMatch(`v?[0-9]+\.[0-9]+\.[0-9]+`),
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestNilDatabaseIsUnhealthy(t *testing.T) {
	checker := NewChecker(nil, "dev")
	resp := checker.Check(context.Background())
	require.Contains(t, resp.Components, "database")
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.False(t, checker.Serving(context.Background()))
}

func TestPingFunc(t *testing.T) {
	called := false
	checker := NewChecker(PingFunc(func(ctx context.Context) error {
		called = true
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return nil
	}), "dev")

	assert.True(t, checker.Serving(context.Background()))
	assert.True(t, called)
}
