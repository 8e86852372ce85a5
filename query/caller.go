package query

import (
	"context"
	"sort"
	"strings"
)

// Caller identifies the authenticated identity behind a request. It is
// typically populated by an authentication layer and carried in the request
// context via [WithCaller]; the cache key generator folds it into keys for
// requests whose results vary per caller.
type Caller struct {
	Subject string
	Tenant  string
	Roles   []string
}

// cacheKey renders the caller as a stable key segment. Roles participate
// because role-filtered queries return different data for different roles.
func (c Caller) cacheKey() string {
	var b strings.Builder
	b.WriteString(c.Subject)
	if c.Tenant != "" {
		b.WriteString("@")
		b.WriteString(c.Tenant)
	}
	if len(c.Roles) > 0 {
		roles := append([]string(nil), c.Roles...)
		sort.Strings(roles)
		b.WriteString("#")
		b.WriteString(strings.Join(roles, ","))
	}
	return b.String()
}

type callerKey struct{}

// WithCaller returns a derived context carrying the given Caller.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom extracts the Caller stored in ctx, if any.
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}
