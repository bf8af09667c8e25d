package rbac

import (
	"context"
	"errors"
	"sync"
)

// ComputeEffectivePermissions derives the union of all grants held by the
// given role names from the supplied records. A role name without a matching
// record contributes nothing. An empty organization id means the account has
// no tenant context yet and is granted everything; that bypass is deliberate
// and independent of the record data path.
func ComputeEffectivePermissions(roleNames []string, orgID string, records []RolePermission) PermissionSet {
	if orgID == "" {
		return fullAccess()
	}

	byName := make(map[string]RolePermission, len(records))
	for _, rec := range records {
		byName[NormalizeRoleName(rec.RoleName)] = rec
	}

	effective := PermissionSet{}
	for _, name := range roleNames {
		rec, ok := byName[NormalizeRoleName(name)]
		if !ok {
			continue
		}
		for _, grant := range rec.Grants {
			for _, action := range grant.Actions {
				if grant.Resource.Valid() && action.Valid() {
					effective.Add(grant.Resource, action)
				}
			}
		}
	}
	return effective
}

func fullAccess() PermissionSet {
	all := PermissionSet{}
	for _, r := range Resources() {
		for _, a := range Actions() {
			all.Add(r, a)
		}
	}
	return all
}

// Evaluator answers permission queries for one user within one organization.
// The synchronous Can* calls consult an effective set derived from the cache
// snapshot and tolerate bounded staleness; HasPermission re-derives from the
// store and is the authoritative variant route guards use.
type Evaluator struct {
	cache *Cache
	repo  RepositoryPort

	mu        sync.RWMutex
	orgID     string
	roles     []string
	effective PermissionSet
}

// NewEvaluator constructs an evaluator. cache may be nil when only
// HasPermission is needed; repo may be nil when only cache-backed checks are.
func NewEvaluator(cache *Cache, repo RepositoryPort) *Evaluator {
	return &Evaluator{cache: cache, repo: repo, effective: PermissionSet{}}
}

// Bind sets the user's role names and active organization, then recomputes.
func (e *Evaluator) Bind(orgID string, roleNames []string) {
	normalized := make([]string, 0, len(roleNames))
	for _, name := range roleNames {
		if n := NormalizeRoleName(name); n != "" {
			normalized = append(normalized, n)
		}
	}

	e.mu.Lock()
	e.orgID = orgID
	e.roles = normalized
	e.mu.Unlock()

	e.Refresh()
}

// Watch recomputes the effective set on every cache change and returns an
// unsubscribe function. Callers own the registration for the lifetime of
// their session.
func (e *Evaluator) Watch() func() {
	if e.cache == nil {
		return func() {}
	}
	return e.cache.OnChange(e.Refresh)
}

// Refresh recomputes the effective set from the current cache snapshot
// without a store round-trip.
func (e *Evaluator) Refresh() {
	var records []RolePermission
	if e.cache != nil {
		records, _ = e.cache.Snapshot()
	}

	e.mu.Lock()
	e.effective = ComputeEffectivePermissions(e.roles, e.orgID, records)
	e.mu.Unlock()
}

// Loading reports whether the cache is still waiting for its first snapshot.
func (e *Evaluator) Loading() bool {
	if e.cache == nil {
		return false
	}
	_, loading := e.cache.Snapshot()
	return loading
}

// Effective returns the last computed permission set.
func (e *Evaluator) Effective() PermissionSet {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(PermissionSet, len(e.effective))
	for r, set := range e.effective {
		copied := make(ActionSet, len(set))
		for a := range set {
			copied[a] = struct{}{}
		}
		out[r] = copied
	}
	return out
}

// Can reports whether the user may perform action on resource. The owner
// bypass is checked before the effective set: an owner is allowed even when
// no record exists for the owner role at all. An unresolved organization
// likewise allows everything.
func (e *Evaluator) Can(resource Resource, action Action) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.orgID == "" || e.holdsOwnerLocked() {
		return true
	}
	return e.effective.Allows(resource, action)
}

// CanRead reports read access on resource.
func (e *Evaluator) CanRead(resource Resource) bool { return e.Can(resource, ActionRead) }

// CanWrite reports write access on resource.
func (e *Evaluator) CanWrite(resource Resource) bool { return e.Can(resource, ActionWrite) }

// CanDelete reports delete access on resource.
func (e *Evaluator) CanDelete(resource Resource) bool { return e.Can(resource, ActionDelete) }

// HasPermission answers from the store rather than the cache: one lookup per
// held role name, short-circuiting on the first grant. Owner and missing
// organization bypass the store entirely.
func (e *Evaluator) HasPermission(ctx context.Context, resource Resource, action Action) (bool, error) {
	e.mu.RLock()
	orgID := e.orgID
	roles := append([]string(nil), e.roles...)
	e.mu.RUnlock()

	if orgID == "" {
		return true, nil
	}
	for _, name := range roles {
		if name == RoleOwner {
			return true, nil
		}
	}
	if e.repo == nil {
		return false, errors.New("rbac: evaluator has no repository")
	}

	for _, name := range roles {
		rec, err := e.repo.GetByName(ctx, orgID, name)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return false, err
		}
		for _, grant := range rec.Grants {
			if grant.Resource != resource {
				continue
			}
			for _, a := range grant.Actions {
				if a == action {
					return true, nil
				}
			}
		}
	}
	return false, nil
}

func (e *Evaluator) holdsOwnerLocked() bool {
	for _, name := range e.roles {
		if name == RoleOwner {
			return true
		}
	}
	return false
}
