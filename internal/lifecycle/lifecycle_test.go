package lifecycle

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/narvanalabs/contractdesk/internal/models"
)

var fixedNow = time.Date(2026, 6, 15, 14, 30, 0, 0, time.UTC)

func daysFrom(now time.Time, n int) time.Time {
	// Noon keeps the time-of-day noisy on purpose.
	return StartOfDay(now).AddDate(0, 0, n).Add(12 * time.Hour)
}

func TestDaysUntilExpiryBoundaries(t *testing.T) {
	tests := []struct {
		name string
		end  time.Time
		want int
	}{
		{"today early", StartOfDay(fixedNow), 0},
		{"today late", EndOfDay(fixedNow), 0},
		{"tomorrow just after midnight", StartOfDay(fixedNow).AddDate(0, 0, 1), 1},
		{"yesterday last instant", StartOfDay(fixedNow).Add(-time.Nanosecond), -1},
		{"thirty days", daysFrom(fixedNow, 30), 30},
		{"thirty one days", daysFrom(fixedNow, 31), 31},
		{"a year back", daysFrom(fixedNow, -365), -365},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysUntilExpiry(tt.end, fixedNow))
		})
	}
}

func TestDaysUntilExpiryAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Sarajevo")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	// 2026-03-29 is the spring-forward day in central Europe.
	now := time.Date(2026, 3, 28, 23, 30, 0, 0, loc)
	end := time.Date(2026, 3, 30, 0, 15, 0, 0, loc)
	assert.Equal(t, 2, DaysUntilExpiry(end, now))
}

func TestExpiringSoonBoundary(t *testing.T) {
	const threshold = 30

	assert.True(t, IsExpiringSoon(daysFrom(fixedNow, 30), threshold, fixedNow), "exactly threshold days away")
	assert.False(t, IsExpiringSoon(daysFrom(fixedNow, 31), threshold, fixedNow), "threshold plus one")
	assert.True(t, IsExpiringSoon(daysFrom(fixedNow, 0), threshold, fixedNow), "ends today")
	assert.False(t, IsExpiringSoon(daysFrom(fixedNow, -1), threshold, fixedNow), "ended yesterday")
	assert.True(t, IsExpiringSoon(daysFrom(fixedNow, 0), 0, fixedNow), "zero threshold covers today")
}

func TestIsExpired(t *testing.T) {
	yesterday := daysFrom(fixedNow, -1)
	tomorrow := daysFrom(fixedNow, 1)

	tests := []struct {
		name   string
		end    time.Time
		status models.ContractStatus
		want   bool
	}{
		{"active ended yesterday", yesterday, models.ContractStatusActive, true},
		{"active ends today", daysFrom(fixedNow, 0), models.ContractStatusActive, false},
		{"stored expired in future", tomorrow, models.ContractStatusExpired, true},
		{"pending ended yesterday", yesterday, models.ContractStatusPending, false},
		{"renewal in progress ended yesterday", yesterday, models.ContractStatusRenewalInProgress, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsExpired(tt.end, tt.status, fixedNow))
		})
	}
}

func TestEndEarlierTodayIsNotYetExpired(t *testing.T) {
	end := StartOfDay(fixedNow).Add(9 * time.Hour)
	assert.True(t, end.Before(fixedNow))

	assert.False(t, IsExpired(end, models.ContractStatusActive, fixedNow))
	assert.Equal(t, 0, DaysUntilExpiry(end, fixedNow))
	assert.Equal(t, BucketExpiringSoon, Bucket(end, 30, fixedNow))
	assert.True(t, IsExpired(end.AddDate(0, 0, -1), models.ContractStatusActive, fixedNow))
}

func TestBucket(t *testing.T) {
	assert.Equal(t, BucketExpired, Bucket(daysFrom(fixedNow, -1), 30, fixedNow))
	assert.Equal(t, BucketExpiringSoon, Bucket(daysFrom(fixedNow, 0), 30, fixedNow))
	assert.Equal(t, BucketExpiringSoon, Bucket(daysFrom(fixedNow, 30), 30, fixedNow))
	assert.Equal(t, BucketActive, Bucket(daysFrom(fixedNow, 31), 30, fixedNow))
}

func TestClassifyHonorsStoredStatus(t *testing.T) {
	c := &models.Contract{Status: models.ContractStatusExpired, EndDate: daysFrom(fixedNow, 90)}
	assert.Equal(t, BucketExpired, Classify(c, 30, fixedNow))
	assert.True(t, StatusDiverges(c, fixedNow))

	c = &models.Contract{Status: models.ContractStatusActive, EndDate: daysFrom(fixedNow, 10)}
	assert.Equal(t, BucketExpiringSoon, Classify(c, 30, fixedNow))
	assert.False(t, StatusDiverges(c, fixedNow))

	c = &models.Contract{Status: models.ContractStatusActive, EndDate: daysFrom(fixedNow, -3)}
	assert.True(t, StatusDiverges(c, fixedNow))
}

func TestWindow(t *testing.T) {
	from, to := Window(30, fixedNow)

	assert.Equal(t, time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2026, 7, 15, 23, 59, 59, 999999999, time.UTC), to)

	from, to = Window(0, fixedNow)
	assert.Equal(t, StartOfDay(fixedNow), from)
	assert.Equal(t, EndOfDay(fixedNow), to)
}

// **Property 1: Window and IsExpiringSoon agree**
// For any end date and threshold, the date lies inside Window exactly when
// IsExpiringSoon reports true.
func TestWindowMatchesExpiringSoon(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("window membership equals expiring soon", prop.ForAll(
		func(offsetMinutes int, threshold int) bool {
			end := fixedNow.Add(time.Duration(offsetMinutes) * time.Minute)
			from, to := Window(threshold, fixedNow)
			inside := !end.Before(from) && !end.After(to)
			return inside == IsExpiringSoon(end, threshold, fixedNow)
		},
		gen.IntRange(-60*24*60, 60*24*60),
		gen.IntRange(0, 45),
	))

	properties.TestingRun(t)
}

// **Property 2: Day count is monotonic**
// For any two end dates a <= b, DaysUntilExpiry(a) <= DaysUntilExpiry(b), and shifting
// the end date by whole days shifts the count by the same amount.
func TestDaysUntilExpiryMonotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("ordered inputs give ordered counts", prop.ForAll(
		func(a, b int) bool {
			if a > b {
				a, b = b, a
			}
			ea := fixedNow.Add(time.Duration(a) * time.Minute)
			eb := fixedNow.Add(time.Duration(b) * time.Minute)
			return DaysUntilExpiry(ea, fixedNow) <= DaysUntilExpiry(eb, fixedNow)
		},
		gen.IntRange(-500000, 500000),
		gen.IntRange(-500000, 500000),
	))

	properties.Property("whole-day shift", prop.ForAll(
		func(days int) bool {
			return DaysUntilExpiry(fixedNow.AddDate(0, 0, days), fixedNow) == days
		},
		gen.IntRange(-1000, 1000),
	))

	properties.Property("buckets partition the line", prop.ForAll(
		func(days, threshold int) bool {
			end := daysFrom(fixedNow, days)
			switch Bucket(end, threshold, fixedNow) {
			case BucketExpired:
				return days < 0
			case BucketExpiringSoon:
				return days >= 0 && days <= threshold
			case BucketActive:
				return days > threshold
			}
			return false
		},
		gen.IntRange(-100, 100),
		gen.IntRange(0, 60),
	))

	properties.TestingRun(t)
}
