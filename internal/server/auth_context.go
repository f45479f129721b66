package server

import "context"

type authContextKey struct{}

type authPrincipal struct {
	AuthType string
	Admin    bool
}

const authTypeAdminToken = "admin_token"

func contextWithAuthPrincipal(ctx context.Context, principal authPrincipal) context.Context {
	return context.WithValue(ctx, authContextKey{}, principal)
}

func authPrincipalFromContext(ctx context.Context) (authPrincipal, bool) {
	if ctx == nil {
		return authPrincipal{}, false
	}
	principal, ok := ctx.Value(authContextKey{}).(authPrincipal)
	return principal, ok
}

// WithAdmin marks ctx as carrying the administrative capability. The CLI uses
// it for local maintenance commands that bypass the HTTP layer.
func WithAdmin(ctx context.Context) context.Context {
	return contextWithAuthPrincipal(ctx, authPrincipal{AuthType: "local", Admin: true})
}

func isAdmin(ctx context.Context) bool {
	principal, ok := authPrincipalFromContext(ctx)
	return ok && principal.Admin
}
