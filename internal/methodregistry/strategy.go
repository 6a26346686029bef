package methodregistry

import (
	"sort"

	pipelineerrors "github.com/flowkit/pipelinectl/pkg/errors"
)

// Strategy picks one Record out of a non-empty candidate slice (spec §4.2).
// Implementations must be deterministic for a fixed input (testable property #2).
type Strategy func(candidates []Record) (Record, error)

// ResolveStrategy dispatches a strategy name (plus an optional engine argument
// for engine_override) to a Strategy function, grounded on
// orchestrator/registry/strategies.py#resolve_strategy.
func ResolveStrategy(name string, preferredEngine string) (Strategy, error) {
	switch name {
	case "", "default":
		return defaultStrategy, nil
	case "prefer_latest":
		return preferLatestStrategy, nil
	case "prefer_stable":
		return preferStableStrategy, nil
	case "highest_priority":
		return highestPriorityStrategy, nil
	case "engine_override":
		if preferredEngine == "" {
			return nil, pipelineerrors.NewStrategyError(name, "engine_override requires a preferred engine")
		}
		return engineOverrideStrategy(preferredEngine), nil
	default:
		return nil, pipelineerrors.NewStrategyError(name, "unknown selection strategy")
	}
}

func requireNonEmpty(candidates []Record) error {
	if len(candidates) == 0 {
		return pipelineerrors.NewMethodNotFoundError("", "")
	}
	return nil
}

// defaultStrategy orders by (priority, !deprecated, parsed_version) descending.
func defaultStrategy(candidates []Record) (Record, error) {
	if err := requireNonEmpty(candidates); err != nil {
		return Record{}, err
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if lessDefault(best, c) {
			best = c
		}
	}
	return best, nil
}

func lessDefault(a, b Record) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	an, bn := !a.Deprecated, !b.Deprecated
	if an != bn {
		return !an && bn
	}
	return versionLess(ParsedVersion(a.Version), ParsedVersion(b.Version))
}

// preferLatestStrategy orders by (parsed_version, !deprecated) descending.
func preferLatestStrategy(candidates []Record) (Record, error) {
	if err := requireNonEmpty(candidates); err != nil {
		return Record{}, err
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		av, bv := ParsedVersion(best.Version), ParsedVersion(c.Version)
		if versionLess(av, bv) {
			best = c
			continue
		}
		if av == bv {
			an, bn := !best.Deprecated, !c.Deprecated
			if !an && bn {
				best = c
			}
		}
	}
	return best, nil
}

// preferStableStrategy filters to !deprecated (falling back to all if that's
// empty), then picks by parsed_version descending.
func preferStableStrategy(candidates []Record) (Record, error) {
	if err := requireNonEmpty(candidates); err != nil {
		return Record{}, err
	}
	pool := filterNotDeprecated(candidates)
	if len(pool) == 0 {
		pool = candidates
	}
	best := pool[0]
	for _, c := range pool[1:] {
		if versionLess(ParsedVersion(best.Version), ParsedVersion(c.Version)) {
			best = c
		}
	}
	return best, nil
}

// highestPriorityStrategy orders by (priority, parsed_version) descending.
func highestPriorityStrategy(candidates []Record) (Record, error) {
	if err := requireNonEmpty(candidates); err != nil {
		return Record{}, err
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if best.Priority != c.Priority {
			if c.Priority > best.Priority {
				best = c
			}
			continue
		}
		if versionLess(ParsedVersion(best.Version), ParsedVersion(c.Version)) {
			best = c
		}
	}
	return best, nil
}

// engineOverrideStrategy returns the candidate whose EngineType matches
// exactly, or *method_not_found* if none do.
func engineOverrideStrategy(engine string) Strategy {
	return func(candidates []Record) (Record, error) {
		for _, c := range candidates {
			if c.EngineType == engine {
				return c, nil
			}
		}
		if len(candidates) == 0 {
			return Record{}, pipelineerrors.NewMethodNotFoundError("", "")
		}
		return Record{}, pipelineerrors.NewEngineNotFoundError(candidates[0].ComponentType, candidates[0].MethodName, engine)
	}
}

func filterNotDeprecated(candidates []Record) []Record {
	out := make([]Record, 0, len(candidates))
	for _, c := range candidates {
		if !c.Deprecated {
			out = append(out, c)
		}
	}
	return out
}

func versionLess(a, b [3]int) bool {
	for i := 0; i < 3; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// sortedCandidates returns a stable, deterministic ordering of candidates by
// full key — used by List()/Candidates() so repeated calls return identical
// slices (testable property #10, concurrency safety / consistent snapshots).
func sortedCandidates(candidates []Record) []Record {
	out := append([]Record(nil), candidates...)
	sort.Slice(out, func(i, j int) bool { return out[i].FullKey() < out[j].FullKey() })
	return out
}
