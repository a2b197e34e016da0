package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"collabhub/platform/internal/client"
	"collabhub/platform/internal/client/cache"
	"collabhub/platform/internal/models"
)

const sessionKey = "collab-session"

// Manager tracks the authenticated user for one client process. All
// exported methods are safe for concurrent use; profile resolution is
// single-flight, a resolve that arrives while one is running is
// dropped rather than queued.
type Manager struct {
	client *client.Client
	opts   Options
	log    *log.Logger

	memory     cache.KV
	persistent cache.KV

	mu             sync.RWMutex
	state          State
	user           *models.User
	session        models.Session
	profiles       *cache.ProfileCache
	sessions       cache.KV
	loading        bool
	profileLoading bool
	onChange       func(Event, *models.User)

	resolveMu sync.Mutex
	closed    atomic.Bool

	refreshCancel context.CancelFunc
}

// NewManager wires a manager over the transport client and two cache
// backings. persistent is used when the user asks to be remembered,
// memory otherwise; either may be shared with other components.
func NewManager(cli *client.Client, memory, persistent cache.KV, logger *log.Logger, opts Options) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	opts = opts.withDefaults()
	m := &Manager{
		client:     cli,
		opts:       opts,
		log:        logger,
		memory:     memory,
		persistent: persistent,
		state:      StateUninitialized,
		sessions:   memory,
	}
	m.profiles = cache.NewProfileCache(memory, opts.CacheTTL)
	return m
}

func (m *Manager) OnChange(fn func(Event, *models.User)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// CurrentUser returns a copy of the resolved user, or nil when the
// session is anonymous.
func (m *Manager) CurrentUser() *models.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

func (m *Manager) IsLoading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loading
}

func (m *Manager) IsProfileLoading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.profileLoading
}

// Bootstrap rehydrates a persisted session on startup. With no stored
// session the manager settles Anonymous; with one it resolves the
// profile before reporting Authenticated.
func (m *Manager) Bootstrap(ctx context.Context) error {
	raw, ok := m.persistent.Get(sessionKey)
	if !ok {
		m.setState(StateAnonymous)
		return nil
	}
	var sess models.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		m.persistent.Delete(sessionKey)
		m.setState(StateAnonymous)
		return nil
	}
	m.setState(StateResolving)

	if time.Until(sess.ExpiresAt) < m.opts.RefreshLeeway {
		refreshed, err := m.client.Refresh(ctx, sess.RefreshToken)
		if err != nil {
			m.log.Printf("session: stored session unusable: %v", err)
			m.persistent.Delete(sessionKey)
			m.setState(StateAnonymous)
			return nil
		}
		sess = refreshed
	}

	m.adoptSession(sess, m.persistent)
	m.resolveProfile(ctx, sess, false)
	m.startRefreshLoop()
	m.notify(EventSignedIn)
	return nil
}

// Login authenticates with credentials. The fetch that follows skips
// the cache so a stale profile from a previous session is never shown.
func (m *Manager) Login(ctx context.Context, email, password string, rememberMe bool) error {
	m.setLoading(true)
	defer m.setLoading(false)

	sess, err := m.client.SignIn(ctx, email, password)
	if err != nil {
		return err
	}

	backing := m.memory
	if rememberMe {
		backing = m.persistent
	}
	m.adoptSession(sess, backing)
	m.setState(StateResolving)
	m.resolveProfile(ctx, sess, true)
	m.startRefreshLoop()
	m.notify(EventSignedIn)
	return nil
}

// Register creates the account, then polls for the profile row that
// the backend provisions asynchronously. A profile that has not shown
// up by the last poll is logged, not treated as a failed signup; the
// session continues on token metadata until a later resolve lands.
func (m *Manager) Register(ctx context.Context, email, password, name, role string, rememberMe bool) error {
	m.setLoading(true)
	defer m.setLoading(false)

	sess, err := m.client.SignUp(ctx, email, password, name, role)
	if err != nil {
		return err
	}

	backing := m.memory
	if rememberMe {
		backing = m.persistent
	}
	m.adoptSession(sess, backing)
	m.setState(StateResolving)
	m.applyProvisional(sess)

	found := false
	for i := 0; i < m.opts.RegisterPollAttempts; i++ {
		user, err := m.fetchOnce(ctx, sess.UserID)
		if err == nil {
			m.applyUser(user)
			m.profileCache().Set(user)
			found = true
			break
		}
		// The signup itself succeeded; a failed poll never unwinds the
		// adopted session. Unexpected errors are logged and polling
		// carries on, the provisional identity covers the gap.
		if !errors.Is(err, client.ErrNotFound) && !client.IsTransient(err) {
			m.log.Printf("session: profile poll failed: %v", err)
		}
		if err := sleepCtx(ctx, m.opts.RegisterPollInterval); err != nil {
			return err
		}
	}
	if !found {
		m.log.Printf("session: profile for %s not provisioned yet, continuing with token metadata", sess.UserID)
	}

	m.startRefreshLoop()
	m.notify(EventSignedIn)
	return nil
}

// Logout always lands in Anonymous locally. The server call is best
// effort; a dead network cannot keep a user signed in. Calling it
// while already anonymous is a no-op.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	wasAnonymous := m.state == StateAnonymous || m.state == StateUninitialized
	m.mu.Unlock()

	if m.client.AccessToken() != "" {
		if err := m.client.SignOut(ctx); err != nil {
			m.log.Printf("session: server logout failed: %v", err)
		}
	}

	m.stopRefreshLoop()
	m.client.SetAccessToken("")
	// Both backings get scrubbed: earlier logins may have cached the
	// profile in a different store than the current one.
	for _, kv := range []cache.KV{m.memory, m.persistent} {
		kv.Delete(sessionKey)
		if err := cache.NewProfileCache(kv, m.opts.CacheTTL).Clear(); err != nil {
			m.log.Printf("session: cache clear failed: %v", err)
		}
	}

	m.mu.Lock()
	m.user = nil
	m.session = models.Session{}
	m.state = StateAnonymous
	m.mu.Unlock()

	if !wasAnonymous {
		m.notify(EventSignedOut)
	}
}

// Close marks the manager dead. In-flight resolutions finish but their
// results are discarded, and the refresh loop stops.
func (m *Manager) Close() {
	m.closed.Store(true)
	m.stopRefreshLoop()
}

// resolveProfile walks the three tiers: cache, token metadata, network.
// Only one resolution runs at a time; a second caller returns at once.
// Control goes back to the caller as soon as a usable identity is set:
// a cache hit reconciles against the backend in the background, and a
// provisional identity keeps at most one network attempt in front of
// the caller, with retries continuing off their goroutine.
func (m *Manager) resolveProfile(ctx context.Context, sess models.Session, skipCache bool) {
	if !m.resolveMu.TryLock() {
		m.log.Printf("session: profile resolution already in flight, dropping")
		return
	}
	m.setProfileLoading(true)

	if !skipCache {
		if cached, ok := m.profileCache().Get(sess.UserID); ok {
			m.applyUser(cached)
			go m.reconcile(ctx, sess.UserID, 0)
			return
		}
	}

	// Token metadata stands in while the network catches up, so the
	// session is usable immediately.
	m.applyProvisional(sess)

	user, err := m.fetchOnce(ctx, sess.UserID)
	switch {
	case err == nil:
		m.finishResolve(&user)
	case errors.Is(err, client.ErrNotFound):
		// Authoritative miss, retrying will not conjure a row.
		m.finishResolve(nil)
	case !client.IsTransient(err):
		m.log.Printf("session: profile fetch failed: %v", err)
		m.finishResolve(nil)
	default:
		m.log.Printf("session: profile fetch attempt 1/%d failed: %v", m.opts.MaxRetries+1, err)
		go m.reconcile(ctx, sess.UserID, 1)
	}
}

// reconcile finishes an in-flight resolution off the caller's
// goroutine. attemptsUsed counts fetches already made inline.
func (m *Manager) reconcile(ctx context.Context, userID string, attemptsUsed int) {
	m.finishResolve(m.fetchWithRetry(ctx, userID, attemptsUsed))
}

// finishResolve applies a fetched profile (nil keeps whatever identity
// is current) and releases the resolution lock.
func (m *Manager) finishResolve(user *models.User) {
	if user != nil && !m.closed.Load() {
		m.profileCache().Set(*user)
		m.swapIfChanged(*user)
	}
	m.setProfileLoading(false)
	m.resolveMu.Unlock()
}

func (m *Manager) fetchOnce(ctx context.Context, userID string) (models.User, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, m.opts.FetchTimeout)
	defer cancel()
	return m.client.FetchProfile(fetchCtx, userID)
}

// fetchWithRetry works through the remaining attempt budget: the
// initial attempt plus MaxRetries retries in total, each bounded by
// FetchTimeout, waiting RetryBaseDelay scaled by RetryFactor between
// attempts. Exhaustion returns nil: the session keeps the provisional
// identity rather than surfacing an error.
func (m *Manager) fetchWithRetry(ctx context.Context, userID string, attemptsUsed int) *models.User {
	attempts := m.opts.MaxRetries + 1
	delay := m.opts.RetryBaseDelay
	for i := 1; i < attemptsUsed; i++ {
		delay = time.Duration(float64(delay) * m.opts.RetryFactor)
	}
	for i := attemptsUsed; i < attempts; i++ {
		if i > 0 {
			if err := sleepCtx(ctx, delay); err != nil {
				return nil
			}
			delay = time.Duration(float64(delay) * m.opts.RetryFactor)
		}
		user, err := m.fetchOnce(ctx, userID)
		if err == nil {
			return &user
		}
		if errors.Is(err, client.ErrNotFound) {
			return nil
		}
		if !client.IsTransient(err) {
			m.log.Printf("session: profile fetch failed: %v", err)
			return nil
		}
		m.log.Printf("session: profile fetch attempt %d/%d failed: %v", i+1, attempts, err)
	}
	return nil
}

// swapIfChanged replaces the current user only when the fetched profile
// serializes differently, so identical refetches do not churn
// observers.
func (m *Manager) swapIfChanged(fetched models.User) {
	if m.closed.Load() {
		return
	}
	m.mu.Lock()
	current := m.user
	var same bool
	if current != nil {
		a, _ := json.Marshal(current)
		b, _ := json.Marshal(fetched)
		same = bytes.Equal(a, b)
	}
	if !same {
		u := fetched
		m.user = &u
		m.state = StateAuthenticated
	}
	m.mu.Unlock()
	if !same {
		m.notify(EventProfileUpdated)
	}
}

func (m *Manager) applyProvisional(sess models.Session) {
	m.applyUser(models.User{
		ID:   sess.UserID,
		Name: sess.Metadata.Name,
		Role: sess.Metadata.Role,
	})
}

func (m *Manager) applyUser(user models.User) {
	if m.closed.Load() {
		return
	}
	m.mu.Lock()
	u := user
	m.user = &u
	m.state = StateAuthenticated
	m.mu.Unlock()
}

func (m *Manager) adoptSession(sess models.Session, backing cache.KV) {
	m.client.SetAccessToken(sess.AccessToken)

	m.mu.Lock()
	m.session = sess
	m.sessions = backing
	m.profiles = cache.NewProfileCache(backing, m.opts.CacheTTL)
	m.mu.Unlock()

	data, err := json.Marshal(sess)
	if err == nil {
		backing.Set(sessionKey, string(data))
	}
}

func (m *Manager) startRefreshLoop() {
	m.stopRefreshLoop()
	ctx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.refreshCancel = cancel
	m.mu.Unlock()
	go m.refreshLoop(ctx)
}

func (m *Manager) stopRefreshLoop() {
	m.mu.Lock()
	cancel := m.refreshCancel
	m.refreshCancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// refreshLoop renews the access token shortly before expiry for as
// long as the session lives.
func (m *Manager) refreshLoop(ctx context.Context) {
	for {
		m.mu.RLock()
		sess := m.session
		backing := m.sessions
		m.mu.RUnlock()

		wait := time.Until(sess.ExpiresAt) - m.opts.RefreshLeeway
		if wait < time.Second {
			wait = time.Second
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return
		}

		refreshed, err := m.client.Refresh(ctx, sess.RefreshToken)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.log.Printf("session: token refresh failed: %v", err)
			if client.IsTransient(err) {
				continue
			}
			m.Logout(context.Background())
			return
		}
		m.adoptSession(refreshed, backing)
		m.notify(EventTokenRefreshed)
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Manager) setLoading(v bool) {
	m.mu.Lock()
	m.loading = v
	m.mu.Unlock()
}

func (m *Manager) setProfileLoading(v bool) {
	m.mu.Lock()
	m.profileLoading = v
	m.mu.Unlock()
}

// profileCache reads the current cache backing; adoptSession swaps it
// while background reconciles may still be using the old pointer.
func (m *Manager) profileCache() *cache.ProfileCache {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.profiles
}

func (m *Manager) notify(ev Event) {
	if m.closed.Load() {
		return
	}
	m.mu.RLock()
	fn := m.onChange
	user := m.user
	m.mu.RUnlock()
	if fn != nil {
		fn(ev, user)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
