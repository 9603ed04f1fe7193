package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"trendseer/internal/observability"
)

// CookieName holds the access token for browser sessions.
const CookieName = "sb-access-token"

var (
	authPages    = map[string]bool{"/login": true, "/signup": true, "/forgot-password": true}
	exemptPrefix = []string{"/static/", "/public/"}
	exemptExact  = map[string]bool{"/health": true, "/favicon.ico": true}
)

type userKey struct{}

func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFromContext returns the signed-in user, if any.
func UserFromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(userKey{}).(User)
	return u, ok
}

type Options struct {
	// Disabled lets every request through unauthenticated.
	Disabled bool
}

// Middleware enforces sessions:
//   - auth pages redirect to / when already signed in;
//   - other pages redirect to /login?redirectedFrom=<path> without a session;
//   - /api/ paths answer 401 without a session.
func Middleware(v Verifier, opts Options) func(http.Handler) http.Handler {
	log := observability.Component("auth")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if opts.Disabled || exempt(path) {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			user, signedIn := session(ctx, v, r, log)
			if signedIn {
				ctx = observability.WithUserID(WithUser(ctx, user), user.ID)
				r = r.WithContext(ctx)
			}

			switch {
			case authPages[path]:
				if signedIn {
					http.Redirect(w, r, "/", http.StatusFound)
					return
				}
			case !signedIn && strings.HasPrefix(path, "/api/"):
				log.Debug(ctx, "api request without session", "path", path)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
				return
			case !signedIn:
				target := url.URL{Path: "/login", RawQuery: url.Values{"redirectedFrom": {path}}.Encode()}
				http.Redirect(w, r, target.String(), http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func session(ctx context.Context, v Verifier, r *http.Request, log *observability.Logger) (User, bool) {
	token := bearerToken(r)
	if token == "" {
		return User{}, false
	}
	u, err := v.Verify(ctx, token)
	if err != nil {
		log.Debug(ctx, "session rejected", "error", err)
		return User{}, false
	}
	return u, true
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

func exempt(path string) bool {
	if exemptExact[path] {
		return true
	}
	for _, p := range exemptPrefix {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
