package browser

import "time"

// StalenessPolicy decides when the data behind a tab should be flagged as
// out of date.
type StalenessPolicy struct {
	// Threshold is the age after which data is always stale.
	Threshold time.Duration

	// IdleThreshold flags data as stale earlier when the user has been idle
	// at least this long and the data is at least this old.
	IdleThreshold time.Duration
}

// DefaultStalenessPolicy is used when no thresholds are configured.
var DefaultStalenessPolicy = StalenessPolicy{
	Threshold:     15 * time.Minute,
	IdleThreshold: 5 * time.Minute,
}

// IsDataStale reports whether data synced at lastSync is stale at now for a
// user last active at lastActivity. A zero lastSync is never stale.
func (p StalenessPolicy) IsDataStale(lastSync, lastActivity, now time.Time) bool {
	if lastSync.IsZero() {
		return false
	}
	age := now.Sub(lastSync)
	if p.Threshold > 0 && age >= p.Threshold {
		return true
	}
	if p.IdleThreshold <= 0 || lastActivity.IsZero() {
		return false
	}
	return now.Sub(lastActivity) >= p.IdleThreshold && age >= p.IdleThreshold
}
