package types

import "context"

// ctxKey keys the request-scoped values stored by the With helpers.
type ctxKey int

const (
	tenantKey ctxKey = iota
	userKey
	rolesKey
)

// stringValue reads a non-empty string stored under key.
func stringValue(ctx context.Context, key ctxKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	return v, ok && v != ""
}

// WithTenantID stamps the caller's tenant on the context.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

// TenantID reports the tenant stamped by WithTenantID.
func TenantID(ctx context.Context) (string, bool) {
	return stringValue(ctx, tenantKey)
}

// WithUserID stamps the authenticated user on the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey, userID)
}

// UserID reports the user stamped by WithUserID.
func UserID(ctx context.Context) (string, bool) {
	return stringValue(ctx, userKey)
}

// WithRoles stamps the caller's roles on the context.
func WithRoles(ctx context.Context, roles []string) context.Context {
	return context.WithValue(ctx, rolesKey, roles)
}

// Roles reports the roles stamped by WithRoles. An empty role set reads
// back as absent.
func Roles(ctx context.Context) ([]string, bool) {
	v, ok := ctx.Value(rolesKey).([]string)
	return v, ok && len(v) > 0
}
