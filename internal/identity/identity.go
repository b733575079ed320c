// Package identity resolves who is talking to the companion: an anonymous
// per-device id carried in a cookie and a per-tab session id carried in a header.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	AnonCookieName        = "astro_anon_id"
	SessionHeaderName     = "X-Astro-Session-ID"
	SessionQueryParam     = "session_id"
	DefaultSessionIDValue = "default"
	cookieLifetime        = 30 * 24 * time.Hour
)

var (
	anonIDPattern    = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)
	sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
)

// Identity is the (device, tab) pair a conversation belongs to.
type Identity struct {
	UserID    string
	SessionID string
}

// Valid reports whether the user id has the anonymous id shape.
func (id Identity) Valid() bool {
	return anonIDPattern.MatchString(id.UserID)
}

type identityKey struct{}

// WithIdentity returns ctx carrying the given user and tab session. Invalid
// session ids collapse to DefaultSessionIDValue.
func WithIdentity(ctx context.Context, userID, sessionID string) context.Context {
	return context.WithValue(ctx, identityKey{}, Identity{
		UserID:    userID,
		SessionID: normalizeSession(sessionID),
	})
}

// FromContext returns the identity stored by Middleware. The zero value has
// an empty user id and the default session.
func FromContext(ctx context.Context) Identity {
	if id, ok := ctx.Value(identityKey{}).(Identity); ok {
		return id
	}
	return Identity{SessionID: DefaultSessionIDValue}
}

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	return FromContext(ctx).UserID
}

// SessionIDFromContext extracts the tab session ID from the request context.
func SessionIDFromContext(ctx context.Context) string {
	return FromContext(ctx).SessionID
}

// Middleware attaches an Identity to every request, issuing the device
// cookie on first contact and sliding its expiry afterwards.
func Middleware(isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := deviceID(r)
			if err != nil {
				http.Error(w, `{"error":"failed to establish anonymous identity"}`, http.StatusInternalServerError)
				return
			}
			http.SetCookie(w, deviceCookie(userID, !isDev))

			session := r.Header.Get(SessionHeaderName)
			if session == "" {
				session = r.URL.Query().Get(SessionQueryParam)
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), userID, session)))
		})
	}
}

func deviceID(r *http.Request) (string, error) {
	if c, err := r.Cookie(AnonCookieName); err == nil && anonIDPattern.MatchString(c.Value) {
		return c.Value, nil
	}
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return "anon_" + hex.EncodeToString(buf[:]), nil
}

func deviceCookie(id string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     AnonCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(cookieLifetime / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	}
}

func normalizeSession(id string) string {
	id = strings.TrimSpace(id)
	if !sessionIDPattern.MatchString(id) {
		return DefaultSessionIDValue
	}
	return id
}

// IPFromRequest returns the remote IP without its port.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
