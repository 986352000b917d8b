// Package lifecycle computes date-derived expiry information for contracts.
//
// All functions are pure. "Today" is always passed in explicitly so callers can
// inject a Clock and tests can pin the date.
package lifecycle

import (
	"time"

	"github.com/narvanalabs/contractdesk/internal/models"
)

// ExpiryBucket is the categorical classification of a contract's remaining lifetime.
type ExpiryBucket string

const (
	BucketExpired      ExpiryBucket = "EXPIRED"
	BucketExpiringSoon ExpiryBucket = "EXPIRING_SOON"
	BucketActive       ExpiryBucket = "ACTIVE"
)

// Clock returns the current time.
type Clock func() time.Time

// SystemClock is the wall clock.
func SystemClock() time.Time { return time.Now() }

// InLocation returns a Clock that reports the wall clock in loc, so day boundaries
// follow that zone.
func InLocation(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return func() time.Time { return time.Now().In(loc) }
}

// StartOfDay returns midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last representable instant of t's calendar day in t's location.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// DaysUntilExpiry returns the signed number of calendar days from now's day to the
// day of endDate: 0 when the contract ends today, 1 tomorrow, -1 yesterday.
// endDate is read in now's location.
func DaysUntilExpiry(endDate, now time.Time) int {
	end := endDate.In(now.Location())
	ey, em, ed := end.Date()
	ny, nm, nd := now.Date()

	// Compare civil dates at UTC midnight so DST transitions never produce 23 or 25 hour days.
	e := time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC)
	n := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	return int(e.Sub(n).Hours() / 24)
}

// IsExpired reports whether a contract is expired. A stored EXPIRED status always
// wins; an ACTIVE contract is expired once its end date is strictly before today,
// so one ending earlier today is still in its last day.
// Other statuses are never considered expired by date.
func IsExpired(endDate time.Time, status models.ContractStatus, now time.Time) bool {
	if status == models.ContractStatusExpired {
		return true
	}
	return status == models.ContractStatusActive && DaysUntilExpiry(endDate, now) < 0
}

// IsExpiringSoon reports whether endDate falls between today and today+thresholdDays,
// both inclusive.
func IsExpiringSoon(endDate time.Time, thresholdDays int, now time.Time) bool {
	days := DaysUntilExpiry(endDate, now)
	return days >= 0 && days <= thresholdDays
}

// Bucket classifies endDate relative to now and thresholdDays.
func Bucket(endDate time.Time, thresholdDays int, now time.Time) ExpiryBucket {
	switch days := DaysUntilExpiry(endDate, now); {
	case days < 0:
		return BucketExpired
	case days <= thresholdDays:
		return BucketExpiringSoon
	default:
		return BucketActive
	}
}

// Classify buckets a contract, honoring a stored EXPIRED status before looking at dates.
func Classify(c *models.Contract, thresholdDays int, now time.Time) ExpiryBucket {
	if IsExpired(c.EndDate, c.Status, now) {
		return BucketExpired
	}
	return Bucket(c.EndDate, thresholdDays, now)
}

// StatusDiverges reports whether the stored status disagrees with the date-derived
// bucket. Only ACTIVE and EXPIRED are comparable; the result is informational and
// never used to rewrite the stored status.
func StatusDiverges(c *models.Contract, now time.Time) bool {
	past := DaysUntilExpiry(c.EndDate, now) < 0
	switch c.Status {
	case models.ContractStatusActive:
		return past
	case models.ContractStatusExpired:
		return !past
	default:
		return false
	}
}

// Window returns the inclusive scan range [start of today, end of today+thresholdDays].
func Window(thresholdDays int, now time.Time) (from, to time.Time) {
	from = StartOfDay(now)
	to = EndOfDay(from.AddDate(0, 0, thresholdDays))
	return from, to
}
