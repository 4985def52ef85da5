package model

import "time"

// Recipient is one alert subscriber: which assets they want alerts for and
// when they were last notified per asset.
type Recipient struct {
	Email       string
	Preferences map[string]bool      // asset id -> enabled
	LastSent    map[string]time.Time // asset id -> last notification time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EnsureDefaultPreferences backfills an enabled=true entry for every tracked
// asset the recipient has no explicit preference for. Returns true if the
// preference set was mutated.
func (r *Recipient) EnsureDefaultPreferences(assetIDs []string) bool {
	if r.Preferences == nil {
		r.Preferences = make(map[string]bool, len(assetIDs))
	}
	mutated := false
	for _, id := range assetIDs {
		if _, ok := r.Preferences[id]; !ok {
			r.Preferences[id] = true
			mutated = true
		}
	}
	return mutated
}

// CanNotify reports whether a notification for the asset is allowed now:
// the asset must be enabled and the per-asset cooldown must have elapsed.
func (r *Recipient) CanNotify(assetID string, cooldown time.Duration, now time.Time) bool {
	if !r.Preferences[assetID] {
		return false
	}
	last, ok := r.LastSent[assetID]
	if !ok {
		return true
	}
	return now.Sub(last) >= cooldown
}

// MarkNotified records a successful dispatch for the asset.
func (r *Recipient) MarkNotified(assetID string, now time.Time) {
	if r.LastSent == nil {
		r.LastSent = make(map[string]time.Time)
	}
	r.LastSent[assetID] = now
}
