// Package session owns the client's authentication lifecycle: sign-in,
// sign-up, sign-out, token refresh, and the resolution of the current
// user's profile from cache, token metadata, and the network.
package session

import (
	"time"
)

// State is where the session currently stands. A manager starts
// Uninitialized, moves to Resolving while a stored session is being
// rehydrated, and ends up Anonymous or Authenticated.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateAnonymous     State = "anonymous"
	StateResolving     State = "resolving"
	StateAuthenticated State = "authenticated"
)

// Event names a lifecycle transition reported to the OnChange callback.
type Event string

const (
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
	EventProfileUpdated Event = "PROFILE_UPDATED"
)

// Options tune the timing of profile resolution and registration
// polling. Zero values take the defaults below.
type Options struct {
	// FetchTimeout bounds each individual profile fetch attempt.
	FetchTimeout time.Duration
	// RetryBaseDelay is the wait before the first retry; each further
	// retry multiplies it by RetryFactor.
	RetryBaseDelay time.Duration
	RetryFactor    float64
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// RegisterPollInterval and RegisterPollAttempts control how long a
	// fresh signup waits for its profile row to appear.
	RegisterPollInterval time.Duration
	RegisterPollAttempts int
	// CacheTTL is the profile cache freshness window.
	CacheTTL time.Duration
	// RefreshLeeway is how long before access-token expiry the
	// background refresh fires.
	RefreshLeeway time.Duration
}

func (o Options) withDefaults() Options {
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 10 * time.Second
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = time.Second
	}
	if o.RetryFactor <= 0 {
		o.RetryFactor = 1.5
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.RegisterPollInterval <= 0 {
		o.RegisterPollInterval = time.Second
	}
	if o.RegisterPollAttempts <= 0 {
		o.RegisterPollAttempts = 5
	}
	if o.RefreshLeeway <= 0 {
		o.RefreshLeeway = time.Minute
	}
	return o
}
