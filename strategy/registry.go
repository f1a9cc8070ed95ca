package strategy

import (
	"sort"
	"sync"

	"ledgerkernel/kernelerr"
)

// Registry is the nested event_type → version → Strategy mapping (R14).
// Lookup is always by map access; there is no if/switch on event_type
// anywhere in this package or its callers.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]map[int]Strategy
}

// NewRegistry returns an empty, ready-to-use registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]map[int]Strategy)}
}

// Register validates lifecycle metadata (R23) before admission: version
// >= 1, supported_to >= supported_from when set, replay policy recognized.
func (r *Registry) Register(s Strategy) error {
	if err := validateLifecycle(s); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	versions, ok := r.strategies[s.EventType()]
	if !ok {
		versions = make(map[int]Strategy)
		r.strategies[s.EventType()] = versions
	}
	if _, exists := versions[s.Version()]; exists {
		return kernelerr.Newf(kernelerr.StrategyLifecycleError, "strategy already registered for %s v%d", s.EventType(), s.Version())
	}
	versions[s.Version()] = s
	return nil
}

func validateLifecycle(s Strategy) error {
	if s.Version() < 1 {
		return kernelerr.Newf(kernelerr.StrategyLifecycleError, "strategy version must be >= 1, got %d", s.Version())
	}
	if s.SupportedFromVersion() < 1 {
		return kernelerr.Newf(kernelerr.StrategyLifecycleError, "supported_from_version must be >= 1, got %d", s.SupportedFromVersion())
	}
	if to, ok := s.SupportedToVersion(); ok && to < s.SupportedFromVersion() {
		return kernelerr.Newf(kernelerr.StrategyLifecycleError, "supported_to_version (%d) must be >= supported_from_version (%d)", to, s.SupportedFromVersion())
	}
	switch s.ReplayPolicy() {
	case Strict, Permissive:
	default:
		return kernelerr.Newf(kernelerr.StrategyLifecycleError, "unrecognized replay policy %q", s.ReplayPolicy())
	}
	return nil
}

// Unregister removes a strategy. version == nil removes every version for
// the event type. For test teardown only.
func (r *Registry) Unregister(eventType string, version *int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	versions, ok := r.strategies[eventType]
	if !ok {
		return
	}
	if version == nil {
		delete(r.strategies, eventType)
		return
	}
	delete(versions, *version)
	if len(versions) == 0 {
		delete(r.strategies, eventType)
	}
}

// Get returns the strategy with the maximum registered version when
// version is nil, or the exact version otherwise.
func (r *Registry) Get(eventType string, version *int) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.strategies[eventType]
	if !ok || len(versions) == 0 {
		return nil, kernelerr.Newf(kernelerr.StrategyNotFound, "no strategy found for event type: %s", eventType)
	}

	if version == nil {
		return versions[maxVersion(versions)], nil
	}

	s, ok := versions[*version]
	if !ok {
		return nil, kernelerr.Newf(kernelerr.StrategyVersionNotFound, "strategy version %d not found for %s; available: %v", *version, eventType, sortedVersions(versions)).
			WithField("available_versions", sortedVersions(versions))
	}
	return s, nil
}

func maxVersion(versions map[int]Strategy) int {
	max := 0
	for v := range versions {
		if v > max {
			max = v
		}
	}
	return max
}

func sortedVersions(versions map[int]Strategy) []int {
	out := make([]int, 0, len(versions))
	for v := range versions {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// GetLatestVersion returns the latest registered version for eventType.
func (r *Registry) GetLatestVersion(eventType string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions, ok := r.strategies[eventType]
	if !ok || len(versions) == 0 {
		return 0, kernelerr.Newf(kernelerr.StrategyNotFound, "no strategy found for event type: %s", eventType)
	}
	return maxVersion(versions), nil
}

// GetAllVersions returns every registered version for eventType, sorted.
func (r *Registry) GetAllVersions(eventType string) ([]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions, ok := r.strategies[eventType]
	if !ok {
		return nil, kernelerr.Newf(kernelerr.StrategyNotFound, "no strategy found for event type: %s", eventType)
	}
	return sortedVersions(versions), nil
}

// HasStrategy reports whether any strategy is registered for eventType.
func (r *Registry) HasStrategy(eventType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions, ok := r.strategies[eventType]
	return ok && len(versions) > 0
}

// GetForReplay resolves the strategy to use when replaying an event
// originally posted with originalVersion, under the current systemVersion.
//
// STRICT always requires the exact original version to still be
// registered, and fails STRATEGY_INCOMPATIBLE if the registered strategy's
// supported range no longer covers systemVersion. PERMISSIVE additionally
// falls forward to the latest version within [supported_from, supported_to]
// when the exact original version was deregistered.
func (r *Registry) GetForReplay(eventType string, originalVersion, systemVersion int) (Strategy, error) {
	s, err := r.Get(eventType, &originalVersion)
	if err != nil {
		if ke, ok := err.(*kernelerr.Error); ok && ke.Code == kernelerr.StrategyVersionNotFound {
			if fallback, ferr := r.latestPermissiveFallback(eventType, originalVersion, systemVersion); ferr == nil {
				return fallback, nil
			}
		}
		return nil, err
	}

	if !IsCompatibleWithSystemVersion(s, systemVersion) {
		to, _ := s.SupportedToVersion()
		return nil, kernelerr.Newf(kernelerr.StrategyIncompatible,
			"strategy %s v%d is incompatible with system version %d; supported range [%d, %d]",
			eventType, originalVersion, systemVersion, s.SupportedFromVersion(), to)
	}

	return s, nil
}

// latestPermissiveFallback only succeeds if some registered version for
// eventType declares PERMISSIVE and covers systemVersion; STRICT strategies
// never fall back.
func (r *Registry) latestPermissiveFallback(eventType string, originalVersion, systemVersion int) (Strategy, error) {
	r.mu.RLock()
	versions, ok := r.strategies[eventType]
	r.mu.RUnlock()
	if !ok {
		return nil, kernelerr.Newf(kernelerr.StrategyVersionNotFound, "strategy version %d not found for %s", originalVersion, eventType)
	}

	var best Strategy
	for _, candidate := range versions {
		if candidate.ReplayPolicy() != Permissive {
			continue
		}
		if !IsCompatibleWithSystemVersion(candidate, systemVersion) {
			continue
		}
		if best == nil || candidate.Version() > best.Version() {
			best = candidate
		}
	}
	if best == nil {
		return nil, kernelerr.Newf(kernelerr.StrategyVersionNotFound, "no permissive fallback for %s original v%d under system v%d", eventType, originalVersion, systemVersion)
	}
	return best, nil
}

// ListEventTypes returns every registered event type, sorted.
func (r *Registry) ListEventTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.strategies))
	for et := range r.strategies {
		out = append(out, et)
	}
	sort.Strings(out)
	return out
}
