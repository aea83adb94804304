package middleware

import (
	"errors"
	"log"
	"net"
	"net/http"
	"strings"

	authgate "github.com/playbaseball/authgate"
	"github.com/playbaseball/authgate/routes"
)

var errInternal = errors.New("internal error")

// Classifier yields the route rule for a request. Both *routes.Table and
// *routes.Watcher satisfy it.
type Classifier interface {
	Classify(method, path string) routes.Rule
}

// Gate runs the authentication pipeline for every request. Admitted requests
// continue with the principal bound to the context; rejections become JSON
// error bodies. When the pipeline recovered an expired credential through the
// refresh token, the fresh access token is handed back in the Authorization
// response header.
//
// Panics from downstream collaborators are caught here and reported as a
// generic 500, with details only in the log.
func Gate(engine *authgate.Engine, classifier Classifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Printf("authgate: panic during request gating: %v", rec)
					WriteError(w, r, errInternal)
				}
			}()

			if engine == nil {
				WriteError(w, r, authgate.ErrEngineNotReady)
				return
			}

			rule := classifier.Classify(r.Method, r.URL.Path)
			req := authgate.Request{
				AccessToken:  bearerToken(r.Header.Get("Authorization")),
				RefreshToken: refreshTokenFromRequest(r),
				Method:       r.Method,
				Path:         r.URL.Path,
				ClientIP:     clientIP(r),
				UserAgent:    r.UserAgent(),
				Rule:         rule,
			}

			decision, err := engine.Authenticate(r.Context(), req)
			if err != nil {
				WriteError(w, r, err)
				return
			}

			if rule.Access == routes.AccessAdmin {
				if decision.Principal == nil || decision.Principal.Role != authgate.RoleAdmin {
					WriteError(w, r, authgate.ErrForbidden)
					return
				}
			}

			if decision.FreshAccessToken != "" {
				w.Header().Set("Authorization", "Bearer "+decision.FreshAccessToken)
				w.Header().Set("Access-Control-Expose-Headers", "Authorization")
			}

			ctx := authgate.WithPrincipal(r.Context(), decision.Principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) string {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return ""
	}
	return strings.TrimSpace(value[len(bearer):])
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// connection's remote address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
