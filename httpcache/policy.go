// Package httpcache caches whole HTTP response bodies per route and query
// variation, under named per-resource policies.
package httpcache

import (
	"regexp"
	"strings"
	"time"
)

// Policy holds the caching configuration that applies to a matched route
// group: how long entries live, which request attributes participate in the
// cache key, and which tag marks the group's entries for invalidation.
type Policy struct {
	// TTL bounds the staleness of cached responses.
	TTL time.Duration

	// VaryByQuery lists the query parameters that participate in the cache
	// key. Parameters not listed do not create distinct entries.
	VaryByQuery []string

	// VaryByRoute lists the route values that participate in the cache key.
	// Values are captured from the matched rule's pattern: the placeholders
	// of a Path rule or the named capture groups of a Regex rule.
	VaryByRoute []string

	// Tag marks every entry cached under this policy so a single eviction
	// clears the whole resource type.
	Tag string
}

// matchKind distinguishes the three matching strategies.
type matchKind int

const (
	kindExact matchKind = iota // highest priority
	kindPath
	kindPrefix
	kindRegex // lowest priority
)

// rule is a single path-matching rule inside a route group. The pattern is
// kept verbatim for all kinds; it identifies the rule inside cache keys.
type rule struct {
	kind    matchKind
	pattern string
	re      *regexp.Regexp // compiled form for path and regex rules
}

// RouteBuilder constructs a route group with one or more matching rules and
// a policy.
type RouteBuilder struct {
	name   string
	rules  []rule
	policy Policy
}

// Route starts building a new route group. The name doubles as the request
// type inside cache keys, so it should be stable across releases.
func Route(name string) *RouteBuilder {
	return &RouteBuilder{name: name}
}

// Exact adds an exact-match rule for the given request path.
func (b *RouteBuilder) Exact(pattern string) *RouteBuilder {
	b.rules = append(b.rules, rule{kind: kindExact, pattern: pattern})
	return b
}

// Path adds a pattern rule matching a whole request path. "{name}"
// placeholders match a single path segment and are captured as route values
// for [Policy.VaryByRoute].
func (b *RouteBuilder) Path(pattern string) *RouteBuilder {
	b.rules = append(b.rules, rule{kind: kindPath, pattern: pattern, re: compilePathPattern(pattern)})
	return b
}

// Prefix adds a prefix-match rule for the given request path. A prefix rule
// matches many paths under one cache entry; when those paths are distinct
// cacheable views, use Path rules or declare the variation in the policy.
func (b *RouteBuilder) Prefix(pattern string) *RouteBuilder {
	b.rules = append(b.rules, rule{kind: kindPrefix, pattern: pattern})
	return b
}

// Regex adds a regex-match rule.
// The pattern is compiled immediately; an invalid regex will panic.
func (b *RouteBuilder) Regex(pattern string) *RouteBuilder {
	b.rules = append(b.rules, rule{kind: kindRegex, pattern: pattern, re: regexp.MustCompile(pattern)})
	return b
}

// Policy attaches the cache policy to the group and returns the finished
// builder.
func (b *RouteBuilder) Policy(p Policy) *RouteBuilder {
	b.policy = p
	return b
}

// compilePathPattern turns "/api/people/{id}" into an anchored regexp with a
// named capture group per placeholder.
func compilePathPattern(pattern string) *regexp.Regexp {
	segs := strings.Split(pattern, "/")
	for i, seg := range segs {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") && len(seg) > 2 {
			segs[i] = "(?P<" + seg[1:len(seg)-1] + ">[^/]+)"
			continue
		}
		segs[i] = regexp.QuoteMeta(seg)
	}
	return regexp.MustCompile("^" + strings.Join(segs, "/") + "$")
}
