package cache

import (
	"encoding/json"
	"time"

	"collabhub/platform/internal/models"
)

const (
	profileKeyPrefix = "collab-profile-"

	// DefaultTTL is how long a cached profile is served before the
	// next read goes to the network.
	DefaultTTL = 5 * time.Minute
)

type entry struct {
	User     models.User `json:"user"`
	CachedAt time.Time   `json:"cached_at"`
}

// ProfileCache stores one profile per user ID with a freshness window.
// A read past the window deletes the entry and reports a miss, so a
// stale profile is never handed out.
type ProfileCache struct {
	kv  KV
	ttl time.Duration
	now func() time.Time
}

func NewProfileCache(kv KV, ttl time.Duration) *ProfileCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ProfileCache{kv: kv, ttl: ttl, now: time.Now}
}

// SetClock overrides the clock. Tests only.
func (p *ProfileCache) SetClock(now func() time.Time) { p.now = now }

func (p *ProfileCache) Get(userID string) (models.User, bool) {
	raw, ok := p.kv.Get(profileKeyPrefix + userID)
	if !ok {
		return models.User{}, false
	}
	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		// Malformed entries count as misses and get cleared.
		p.kv.Delete(profileKeyPrefix + userID)
		return models.User{}, false
	}
	if p.now().Sub(e.CachedAt) > p.ttl {
		p.kv.Delete(profileKeyPrefix + userID)
		return models.User{}, false
	}
	return e.User, true
}

func (p *ProfileCache) Set(user models.User) error {
	data, err := json.Marshal(entry{User: user, CachedAt: p.now()})
	if err != nil {
		return err
	}
	return p.kv.Set(profileKeyPrefix+user.ID, string(data))
}

func (p *ProfileCache) Delete(userID string) error {
	return p.kv.Delete(profileKeyPrefix + userID)
}

// Clear removes every cached profile, leaving unrelated keys alone.
func (p *ProfileCache) Clear() error {
	for _, key := range keysWithPrefix(p.kv, profileKeyPrefix) {
		if err := p.kv.Delete(key); err != nil {
			return err
		}
	}
	return nil
}
