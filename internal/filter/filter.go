package filter

import (
	logx "mediarr/pkg/logx"
)

// Release is a candidate item flowing through the filter. Identity is owned
// by the caller; the engine only reads Title/Description and assigns
// Priority to releases it keeps.
type Release struct {
	Title       string
	Description string

	// Priority is assigned by FilterAndPrioritize: 100 for the first tier,
	// decreasing by one per tier. Higher wins.
	Priority int
}

func (r Release) text() string {
	return r.Title + " " + r.Description
}

// Engine evaluates rule chains against releases.
type Engine struct {
	log logx.Logger
	reg Registry
}

func NewEngine(log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{log: log, reg: BuiltinRegistry()}
}

// MatchPredicate reports whether the named predicate matches the release.
// An unknown predicate name is a silent non-match, not an error.
func (e *Engine) MatchPredicate(name string, r Release) bool {
	spec := e.reg[name]
	if spec == nil {
		return false
	}
	text := r.text()
	for _, inc := range spec.Include {
		if !inc.MatchString(text) {
			return false
		}
	}
	for _, exc := range spec.Exclude {
		if exc.MatchString(text) {
			return false
		}
	}
	return true
}

// FilterAndPrioritize keeps the releases matching any tier of the chain and
// assigns each its tier priority, starting at 100 for the first tier and
// decrementing per tier without a floor (very long chains may go negative;
// downstream ordering is relative). Releases matching no tier are dropped.
// Input order is preserved for kept releases.
//
// A tier that fails to parse never matches; the error is logged, not
// returned.
func (e *Engine) FilterAndPrioritize(releases []Release, chain string) []Release {
	tiers := e.parseChain(chain)

	out := make([]Release, 0, len(releases))
	for _, r := range releases {
		pri := 100
		for _, t := range tiers {
			if t != nil && t.Eval(func(name string) bool { return e.MatchPredicate(name, r) }) {
				r.Priority = pri
				out = append(out, r)
				break
			}
			pri--
		}
	}
	return out
}

// parseChain parses each ">"-delimited tier. A malformed tier yields a nil
// entry so the remaining tiers keep their priority slots.
func (e *Engine) parseChain(chain string) []Expr {
	raws := splitTiers(chain)
	tiers := make([]Expr, 0, len(raws))
	for _, raw := range raws {
		expr, err := Parse(raw)
		if err != nil {
			e.log.Warn("rule tier does not parse, treating as non-matching",
				logx.String("tier", raw), logx.Err(err))
			tiers = append(tiers, nil)
			continue
		}
		tiers = append(tiers, expr)
	}
	return tiers
}
