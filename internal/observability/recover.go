package observability

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
)

// RecoverMiddleware turns a handler panic into a JSON 500 and a logged traceback.
func RecoverMiddleware(component string, next http.Handler) http.Handler {
	log := Component(component)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.Error(r.Context(), "panic recovered",
					"panic", fmt.Sprintf("%v", rec),
					"method", r.Method,
					"path", r.URL.Path,
					"traceback", compactStack(string(debug.Stack())),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"An error occurred during the request"}`))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func compactStack(stack string) string {
	lines := strings.Split(stack, "\n")
	if len(lines) <= 16 {
		return strings.TrimSpace(stack)
	}
	return strings.TrimSpace(strings.Join(lines[:16], "\n"))
}
