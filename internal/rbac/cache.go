package rbac

import (
	"context"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Lister is the slice of the repository the cache needs.
type Lister interface {
	ListByOrganization(ctx context.Context, orgID string) ([]RolePermission, error)
}

// Cache mirrors one organization's role permission records in memory for the
// lifetime of a session, refreshed whenever a change notification for that
// organization arrives. Snapshots are replaced wholesale; consumers must
// treat a returned slice as immutable.
//
// Failure is terminal and fail-closed: a failed subscription or refresh
// leaves an empty snapshot with loading=false, which evaluates as "deny
// everything" for all but the identity-level bypasses.
type Cache struct {
	lister Lister
	client *redis.Client
	logger *slog.Logger

	mu        sync.RWMutex
	orgID     string
	records   []RolePermission
	loading   bool
	listeners map[int]func()
	nextID    int

	sub    *redis.PubSub
	cancel context.CancelFunc
	group  singleflight.Group
}

// NewCache constructs an idle cache. Start begins mirroring.
func NewCache(lister Lister, client *redis.Client, logger *slog.Logger) *Cache {
	return &Cache{
		lister:    lister,
		client:    client,
		logger:    logger,
		loading:   true,
		listeners: map[int]func(){},
	}
}

// Start tears down any previous subscription, binds the cache to orgID and
// performs the initial load. The subscription is opened before the first
// list so no update can slip between the two.
func (c *Cache) Start(ctx context.Context, orgID string) error {
	c.Stop()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	c.mu.Lock()
	c.orgID = orgID
	c.records = nil
	c.loading = true
	c.cancel = cancel
	c.mu.Unlock()

	sub := c.client.Subscribe(runCtx, ChangeChannel)
	if _, err := sub.Receive(runCtx); err != nil {
		_ = sub.Close()
		cancel()
		c.fail(err)
		return err
	}

	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()

	go c.run(runCtx, sub, orgID)

	c.Refresh(ctx)
	return nil
}

// Stop tears the subscription down deterministically. The cache reverts to
// its empty loading state and may be started again.
func (c *Cache) Stop() {
	c.mu.Lock()
	sub := c.sub
	cancel := c.cancel
	c.sub = nil
	c.cancel = nil
	c.orgID = ""
	c.records = nil
	c.loading = true
	c.mu.Unlock()

	if sub != nil {
		_ = sub.Close()
	}
	if cancel != nil {
		cancel()
	}
}

// Snapshot returns the current record list and whether the first load is
// still pending. The slice is shared; callers must not mutate it.
func (c *Cache) Snapshot() ([]RolePermission, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.records, c.loading
}

// OrgID returns the organization the cache is bound to, empty when idle.
func (c *Cache) OrgID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.orgID
}

// OnChange registers fn to run after every snapshot replacement and returns
// an unsubscribe function.
func (c *Cache) OnChange(fn func()) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Refresh re-lists the organization's records and atomically replaces the
// snapshot. Concurrent refreshes collapse into a single round-trip.
func (c *Cache) Refresh(ctx context.Context) {
	orgID := c.OrgID()
	if orgID == "" {
		return
	}

	records, err, _ := c.group.Do(orgID, func() (any, error) {
		return c.lister.ListByOrganization(ctx, orgID)
	})
	if err != nil {
		c.fail(err)
		return
	}

	c.mu.Lock()
	if c.orgID != orgID {
		// Stopped or rebound while listing; discard the stale result.
		c.mu.Unlock()
		return
	}
	c.records = records.([]RolePermission)
	c.loading = false
	c.mu.Unlock()

	c.notifyListeners()
}

func (c *Cache) run(ctx context.Context, sub *redis.PubSub, orgID string) {
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if msg.Payload == orgID {
				c.Refresh(ctx)
			}
		}
	}
}

// fail clears the snapshot and flips loading off so consumers see a
// legitimate terminal "no permissions known" state.
func (c *Cache) fail(err error) {
	if c.logger != nil {
		c.logger.Error("role permission cache refresh", slog.String("org", c.OrgID()), slog.Any("error", err))
	}
	c.mu.Lock()
	c.records = nil
	c.loading = false
	c.mu.Unlock()
	c.notifyListeners()
}

func (c *Cache) notifyListeners() {
	c.mu.RLock()
	fns := make([]func(), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}

// Manager lazily owns one running cache per active organization for the
// server process and stops them all on shutdown.
type Manager struct {
	lister Lister
	client *redis.Client
	logger *slog.Logger

	mu     sync.Mutex
	caches map[string]*Cache
}

// NewManager constructs a Manager.
func NewManager(lister Lister, client *redis.Client, logger *slog.Logger) *Manager {
	return &Manager{lister: lister, client: client, logger: logger, caches: map[string]*Cache{}}
}

// ForOrganization returns the running cache for orgID, starting one on first
// use.
func (m *Manager) ForOrganization(ctx context.Context, orgID string) *Cache {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cache, ok := m.caches[orgID]; ok {
		return cache
	}
	cache := NewCache(m.lister, m.client, m.logger)
	if err := cache.Start(ctx, orgID); err != nil && m.logger != nil {
		m.logger.Error("start role permission cache", slog.String("org", orgID), slog.Any("error", err))
	}
	m.caches[orgID] = cache
	return cache
}

// Shutdown stops every managed cache.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for orgID, cache := range m.caches {
		cache.Stop()
		delete(m.caches, orgID)
	}
}
