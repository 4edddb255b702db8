package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/platinummonkey/modgraph/pkg/audit"
	"github.com/platinummonkey/modgraph/pkg/observability"
)

const (
	// ActorHeader names the caller recorded on audit events
	ActorHeader = "X-Actor"
	// RequestIDHeader carries the request id in and out
	RequestIDHeader = "X-Request-ID"
)

// requestIDMiddleware reuses the caller's request id or assigns one
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(observability.WithRequestID(r.Context(), id)))
	})
}

// actorMiddleware carries the caller identity and request id into the audit context
func actorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if actor := r.Header.Get(ActorHeader); actor != "" {
			ctx = audit.WithActor(ctx, actor)
		}
		if id := observability.GetRequestID(ctx); id != "" {
			ctx = audit.WithRequestID(ctx, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
