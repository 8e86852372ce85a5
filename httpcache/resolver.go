package httpcache

import "strings"

// Resolver holds a set of route groups and resolves a request path to the
// best-matching group and its cache policy.
type Resolver struct {
	groups []*RouteBuilder
}

// NewResolver creates a Resolver from the supplied route builders.
func NewResolver(groups ...*RouteBuilder) *Resolver {
	return &Resolver{groups: groups}
}

// Match describes a resolved route group: the policy to apply, the matched
// rule's pattern, and the route values the pattern captured from the path.
type Match struct {
	Group   string
	Policy  Policy
	Pattern string
	Values  map[string]string
}

// Resolve finds the best-matching group for path.
//
// Priority rules:
//   - Exact matches beat path-pattern matches, which beat prefix matches,
//     which beat regex matches.
//   - Among matches of the same kind the longer match wins.
//   - When two matches have equal kind and length the group that was
//     registered first (stable order) wins.
//
// If no group matches, ok is false.
func (res *Resolver) Resolve(path string) (groupName string, pol Policy, ok bool) {
	g, _ := res.bestMatch(path)
	if g == nil {
		return "", Policy{}, false
	}
	return g.name, g.policy, true
}

// ResolveMatch resolves path like Resolve and additionally reports which rule
// matched and the route values its pattern captured. Rules without
// placeholders or named capture groups yield nil Values.
func (res *Resolver) ResolveMatch(path string) (Match, bool) {
	g, r := res.bestMatch(path)
	if g == nil {
		return Match{}, false
	}
	return Match{
		Group:   g.name,
		Policy:  g.policy,
		Pattern: r.pattern,
		Values:  r.routeValues(path),
	}, true
}

func (res *Resolver) bestMatch(path string) (*RouteBuilder, *rule) {
	var (
		bestGroup *RouteBuilder
		bestRule  *rule
		bestKind  = matchKind(-1)
		bestLen   = -1
	)
	for _, g := range res.groups {
		for i := range g.rules {
			r := &g.rules[i]
			matched, mLen := r.match(path)
			if !matched {
				continue
			}
			// A lower kind value means higher priority.
			better := bestKind < 0 ||
				r.kind < bestKind ||
				(r.kind == bestKind && mLen > bestLen)
			if better {
				bestGroup, bestRule = g, r
				bestKind, bestLen = r.kind, mLen
			}
		}
	}
	return bestGroup, bestRule
}

// match reports whether r matches path and, when applicable, returns the
// length of the matched portion (used for tie-breaking among same-kind rules).
func (r *rule) match(path string) (matched bool, length int) {
	switch r.kind {
	case kindExact:
		if path == r.pattern {
			return true, len(r.pattern)
		}
	case kindPath, kindRegex:
		if loc := r.re.FindStringIndex(path); loc != nil {
			return true, loc[1] - loc[0]
		}
	case kindPrefix:
		if strings.HasPrefix(path, r.pattern) {
			return true, len(r.pattern)
		}
	}
	return false, 0
}

// routeValues extracts the named captures of the rule's pattern from path.
func (r *rule) routeValues(path string) map[string]string {
	if r.re == nil {
		return nil
	}
	m := r.re.FindStringSubmatch(path)
	if m == nil {
		return nil
	}
	var vals map[string]string
	for i, name := range r.re.SubexpNames() {
		if i == 0 || name == "" || m[i] == "" {
			continue
		}
		if vals == nil {
			vals = make(map[string]string)
		}
		vals[name] = m[i]
	}
	return vals
}
