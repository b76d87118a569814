package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/satoshigo/hunt/internal/logging"
	"github.com/satoshigo/hunt/pkg/core"
)

const apiKeyHeader = "X-Api-Key"

type walletKey struct{}

// requestLogger tags the request context with its id and logs completion.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logging.WithAttrs(r.Context(), slog.String("request_id", middleware.GetReqID(r.Context())))
		r = r.WithContext(ctx)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.DebugContext(ctx, "Request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}

// requireWallet resolves the X-Api-Key header. With admin set only admin
// keys are accepted.
func (s *Server) requireWallet(admin bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wallet, ok := s.wallets.Lookup(r.Header.Get(apiKeyHeader))
			if !ok {
				s.writeError(w, r, errUnauthorized)
				return
			}
			if admin && !wallet.Admin {
				s.writeError(w, r, fmt.Errorf("admin key required: %w", core.ErrForbidden))
				return
			}
			ctx := context.WithValue(r.Context(), walletKey{}, wallet)
			ctx = logging.WithAttrs(ctx, slog.String("wallet", wallet.ID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// walletFrom returns the wallet stored by requireWallet.
func walletFrom(ctx context.Context) Wallet {
	w, _ := ctx.Value(walletKey{}).(Wallet)
	return w
}
