package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/appointment-engine/internal/actor"
	"github.com/wolfman30/appointment-engine/internal/appointments"
)

const (
	actorRoleHeader = "X-Actor-Role"
	actorIDHeader   = "X-Actor-ID"
)

// ActorClaims is the token shape accepted by ActorJWT: sub is the actor id.
type ActorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ActorHeaders trusts X-Actor-Role and X-Actor-ID set by an upstream
// gateway. Requests without a role pass through with no identity; a role
// that is present but unknown is rejected.
func ActorHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(actorRoleHeader))
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			role, err := actor.ParseRole(raw)
			if err != nil {
				http.Error(w, "invalid actor role", http.StatusBadRequest)
				return
			}
			id := actor.Identity{Role: role, ID: strings.TrimSpace(r.Header.Get(actorIDHeader))}
			if id.Role == appointments.ActorPatient && id.ID == "" {
				http.Error(w, "patient requires "+actorIDHeader, http.StatusBadRequest)
				return
			}
			next.ServeHTTP(w, r.WithContext(actor.WithIdentity(r.Context(), id)))
		})
	}
}

// ActorJWT reads the identity from an HMAC-signed bearer token instead of
// plain headers. Requests without a token pass through with no identity.
func ActorJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "invalid authorization header", http.StatusUnauthorized)
				return
			}
			claims := ActorClaims{}
			token, err := jwt.ParseWithClaims(strings.TrimPrefix(auth, "Bearer "), &claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			role, err := actor.ParseRole(claims.Role)
			if err != nil {
				http.Error(w, "invalid actor role", http.StatusUnauthorized)
				return
			}
			id := actor.Identity{Role: role, ID: strings.TrimSpace(claims.Subject)}
			if id.Role == appointments.ActorPatient && id.ID == "" {
				http.Error(w, "patient token requires a subject", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(actor.WithIdentity(r.Context(), id)))
		})
	}
}
