package ruleset

import "errors"

// ErrNoActiveRuleset is returned when a round is started against an
// unknown ruleset id.
var ErrNoActiveRuleset = errors.New("no active ruleset")

// Registry holds the validated rulesets loaded at boot. Rounds snapshot a
// registry entry at start; the registry is never consulted mid-round.
type Registry struct {
	rulesets map[string]Ruleset
}

// NewRegistry validates and indexes the given rulesets.
func NewRegistry(rulesets ...Ruleset) (*Registry, error) {
	reg := &Registry{rulesets: make(map[string]Ruleset, len(rulesets))}
	for _, r := range rulesets {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		reg.rulesets[r.ID] = r
	}
	return reg, nil
}

// Get returns the ruleset with the given id, or ErrNoActiveRuleset.
func (reg *Registry) Get(id string) (Ruleset, error) {
	r, ok := reg.rulesets[id]
	if !ok {
		return Ruleset{}, ErrNoActiveRuleset
	}
	return r, nil
}
