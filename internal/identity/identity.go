// Package identity validates the caller headers set by the upstream gateway
// (pp-identity, pp-cluster) and carries them through the request context.
package identity

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ziadkadry99/econsult/internal/apperr"
)

const (
	HeaderIdentity = "pp-identity"
	HeaderCluster  = "pp-cluster"

	// DevIdentity stands in for a missing pp-identity in development mode.
	DevIdentity = "dev-user"

	MissingIdentityDetail = "The user identity should be present on the header!"
)

// Context is the validated caller identity.
type Context struct {
	UserIdentity string
	ClusterID    string
}

func (c Context) String() string {
	cluster := c.ClusterID
	if cluster == "" {
		cluster = "none"
	}
	return fmt.Sprintf("Context(user_identity=%s, cluster_id=%s)", c.UserIdentity, cluster)
}

type ctxKey struct{}

// WithContext returns a copy of ctx carrying c.
func WithContext(ctx context.Context, c Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext returns the identity stored by Middleware, if any.
func FromContext(ctx context.Context) (Context, bool) {
	c, ok := ctx.Value(ctxKey{}).(Context)
	return c, ok
}

// FromRequest reads the identity headers. A missing or blank pp-identity is
// a KindHeaderValidation error unless development is set, in which case
// DevIdentity is used.
func FromRequest(r *http.Request, development bool) (Context, error) {
	user := strings.TrimSpace(r.Header.Get(HeaderIdentity))
	if user == "" {
		if !development {
			return Context{}, apperr.New(apperr.KindHeaderValidation, MissingIdentityDetail)
		}
		user = DevIdentity
	}
	return Context{
		UserIdentity: user,
		ClusterID:    strings.TrimSpace(r.Header.Get(HeaderCluster)),
	}, nil
}

// Middleware rejects requests without a caller identity with 401 and stores
// the validated identity in the request context.
func Middleware(development bool, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := FromRequest(r, development)
			if err != nil {
				logger.Warn("missing required header",
					zap.String("header", HeaderIdentity),
					zap.String("path", r.URL.Path),
				)
				w.Header().Set("WWW-Authenticate", "Bearer")
				apperr.WriteError(w, http.StatusUnauthorized, MissingIdentityDetail)
				return
			}
			logger.Debug("header validation successful",
				zap.String("user", c.UserIdentity),
				zap.String("cluster", c.ClusterID),
			)
			next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), c)))
		})
	}
}
