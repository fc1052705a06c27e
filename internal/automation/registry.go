package automation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry and Engine.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides rule management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache for fast lookups.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by cache-invalidating CRUD operations. The cache is also the engine's
// cooldown authority: TryFire consults and stamps the cached rule under
// the cache lock, making the check-and-stamp atomic.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[string]*Rule // Cached rules by ID
	cacheMu sync.RWMutex     // Protects cache
	logger  Logger
}

// NewRegistry creates a new rule registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Rule),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all rules from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	rules, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	// Clear and rebuild cache with deep copies
	r.cache = make(map[string]*Rule, len(rules))
	for i := range rules {
		rule := rules[i]
		r.cache[rule.ID] = rule.DeepCopy()
	}

	r.logger.Info("rule cache refreshed", "count", len(rules))
	return nil
}

// GetRule retrieves a rule by ID.
// The returned rule is a deep copy; callers can safely modify it.
func (r *Registry) GetRule(_ context.Context, id string) (*Rule, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}
	return nil, ErrRuleNotFound
}

// ListRules retrieves all rules from the cache.
// Returns deep copies sorted by name for deterministic ordering.
func (r *Registry) ListRules(_ context.Context) ([]Rule, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	rules := make([]Rule, 0, len(r.cache))
	for _, rule := range r.cache {
		rules = append(rules, *rule.DeepCopy())
	}
	sortRules(rules)
	return rules, nil
}

// EnabledRulesForDevice retrieves the enabled rules whose trigger watches the
// given device. The engine calls this on every reading, so it serves straight
// from the cache without touching the repository.
func (r *Registry) EnabledRulesForDevice(deviceID string) []Rule {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	var rules []Rule
	for _, rule := range r.cache {
		if rule.Enabled && rule.Trigger.DeviceID == deviceID {
			rules = append(rules, *rule.DeepCopy())
		}
	}
	sortRules(rules)
	return rules
}

// sortRules sorts rules by name, matching the DB query ordering.
func sortRules(rules []Rule) {
	sort.Slice(rules, func(i, j int) bool {
		return rules[i].Name < rules[j].Name
	})
}

// TryFire atomically applies a rule's cooldown gate.
//
// It succeeds (returns true) when the rule exists, is enabled, and either
// has never fired or fired at least CooldownSeconds before now. On success
// the cached rule is stamped with now before the lock is released, so a
// concurrent TryFire for the same rule observes the new stamp and is
// rejected: at most one fire per cooldown window.
//
// The stamp is persisted after the lock is released. Persistence failure is
// logged but does not revoke the fire; the in-memory gate holds until the
// next restart.
//
// Returns:
//   - bool: true if the caller won the window and must execute the action
//   - error: ErrRuleNotFound if the rule is not cached
func (r *Registry) TryFire(ctx context.Context, id string, now time.Time) (bool, error) {
	r.cacheMu.Lock()
	rule, ok := r.cache[id]
	if !ok {
		r.cacheMu.Unlock()
		return false, ErrRuleNotFound
	}
	if !rule.Enabled {
		r.cacheMu.Unlock()
		return false, nil
	}
	if rule.LastTriggered != nil {
		cooldown := time.Duration(rule.CooldownSeconds) * time.Second
		if now.Sub(*rule.LastTriggered) < cooldown {
			r.cacheMu.Unlock()
			return false, nil
		}
	}

	stamp := now.UTC()
	rule.LastTriggered = &stamp
	r.cacheMu.Unlock()

	if err := r.repo.UpdateLastTriggered(ctx, id, stamp); err != nil {
		r.logger.Error("persisting last_triggered failed", "rule_id", id, "error", err)
	}
	return true, nil
}

// CreateRule validates, persists, and caches a new rule.
func (r *Registry) CreateRule(ctx context.Context, rule *Rule) error {
	// Generate ID if not provided
	if rule.ID == "" {
		rule.ID = GenerateID()
	}

	// Validate
	if err := ValidateRule(rule); err != nil {
		return err
	}

	// New rules start with an open cooldown window.
	rule.LastTriggered = nil

	// Persist
	if err := r.repo.Create(ctx, rule); err != nil {
		return err
	}

	// Update cache
	r.cacheMu.Lock()
	r.cache[rule.ID] = rule.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("rule created", "id", rule.ID, "name", rule.Name)
	return nil
}

// UpdateRule validates, persists, and updates the cached rule.
//
// The caller's LastTriggered is ignored: the stamp carried by the cache (and
// the last_triggered column, which Update never writes) survives the edit, so
// editing a rule cannot reopen a cooldown window that is still closed.
func (r *Registry) UpdateRule(ctx context.Context, rule *Rule) error {
	// Validate
	if err := ValidateRule(rule); err != nil {
		return err
	}

	// Persist
	if err := r.repo.Update(ctx, rule); err != nil {
		return err
	}

	// Update cache, carrying the existing fire stamp forward
	r.cacheMu.Lock()
	if existing, ok := r.cache[rule.ID]; ok {
		rule.LastTriggered = existing.LastTriggered
	}
	r.cache[rule.ID] = rule.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("rule updated", "id", rule.ID, "name", rule.Name)
	return nil
}

// DeleteRule removes a rule from persistence and cache.
func (r *Registry) DeleteRule(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("rule deleted", "id", id)
	return nil
}

// GetRuleCount returns the number of cached rules.
func (r *Registry) GetRuleCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}
