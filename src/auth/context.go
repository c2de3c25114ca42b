package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"
)

type contextKey string

const OperatorKey contextKey = "operator"

// Operator is the caller of the query API once its bearer token checked out.
type Operator struct {
	RemoteAddr      string
	AuthenticatedAt time.Time
}

type tokenVerifier interface {
	Verify(token string) bool
}

func GetOperatorFromContext(ctx context.Context) (*Operator, bool) {
	operator, ok := ctx.Value(OperatorKey).(*Operator)
	return operator, ok
}

// RequireOperator rejects requests without a valid "Authorization: Bearer" token.
func RequireOperator(verifier tokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok || !verifier.Verify(token) {
				logger.WithFields(map[string]interface{}{
					"path":   r.URL.Path,
					"remote": r.RemoteAddr,
				}).Warn("Rejected operator request")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			operator := &Operator{RemoteAddr: r.RemoteAddr, AuthenticatedAt: time.Now()}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), OperatorKey, operator)))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
