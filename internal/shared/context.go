package shared

import (
	"context"
	"net/http"
	"strings"
)

type sessionContextKey struct{}

type credentialsContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// IdentityFromContext returns the identity bound to the request session.
func IdentityFromContext(ctx context.Context) Identity {
	if sess := SessionFromContext(ctx); sess != nil {
		return sess.Identity()
	}
	return Identity{}
}

// ContextWithCredentials keeps the caller's cookies so outbound API calls can
// be made on their behalf.
func ContextWithCredentials(ctx context.Context, cookies []*http.Cookie) context.Context {
	return context.WithValue(ctx, credentialsContextKey{}, cookies)
}

// CredentialsFromContext returns the cookies stored by ContextWithCredentials.
func CredentialsFromContext(ctx context.Context) []*http.Cookie {
	cookies, _ := ctx.Value(credentialsContextKey{}).([]*http.Cookie)
	return cookies
}

// SafeReturn returns target when it is a local absolute path, fallback
// otherwise.
func SafeReturn(target, fallback string) string {
	if target == "" || target[0] != '/' || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return fallback
	}
	return target
}
