package redis

import "strings"

const keyNamespace = "bioshop"

// Key families. Every key the service writes lives under one of these.
const (
	familyIdempotency = "idempotency"
	familyRateLimit   = "rate_limit"
	familyLock        = "lock"
)

// key joins parts under the service namespace, skipping empty parts.
func key(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}

// IdempotencyKey namespaces replay-guard entries, e.g. webhook digests.
func (c *Client) IdempotencyKey(scope, id string) string {
	return key(familyIdempotency, scope, id)
}

// RateLimitKey names the counter family for scope; window buckets are
// appended by FixedWindowAllow.
func (c *Client) RateLimitKey(scope string) string {
	return key(familyRateLimit, scope)
}

// LockKey names a worker lease such as the maintenance cycle lock.
func (c *Client) LockKey(name string) string {
	return key(familyLock, name)
}
