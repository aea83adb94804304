package middleware

import (
	"encoding/json"
	"net/http"

	authgate "github.com/playbaseball/authgate"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// LoginHandler exchanges email+password for a token pair: the access token
// travels in the Authorization response header, the refresh token in the
// HttpOnly cookie.
func LoginHandler(engine *authgate.Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, r, authgate.ErrInvalidCredentials)
			return
		}

		pair, principal, err := engine.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			WriteError(w, r, err)
			return
		}

		w.Header().Set("Authorization", "Bearer "+pair.AccessToken)
		w.Header().Set("Access-Control-Expose-Headers", "Authorization")
		SetRefreshCookie(w, pair.RefreshToken, engine.RefreshTTL())

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(loginResponse{
			Email: principal.Email,
			Role:  string(principal.Role),
		})
	})
}

// LogoutHandler revokes the presented access token and clears the refresh
// cookie. Logging out twice, or with an expired token, succeeds quietly.
func LogoutHandler(engine *authgate.Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		if err := engine.Logout(r.Context(), bearerToken(r.Header.Get("Authorization"))); err != nil {
			WriteError(w, r, err)
			return
		}
		ClearRefreshCookie(w)
		w.WriteHeader(http.StatusOK)
	})
}

// DeactivateHandler marks the caller's account deleted, revokes the
// authorizing token, and clears the refresh cookie.
func DeactivateHandler(engine *authgate.Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete && r.Method != http.MethodPost {
			w.Header().Set("Allow", "DELETE, POST")
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		if err := engine.DeactivateAccount(r.Context(), bearerToken(r.Header.Get("Authorization"))); err != nil {
			WriteError(w, r, err)
			return
		}
		ClearRefreshCookie(w)
		w.WriteHeader(http.StatusOK)
	})
}
