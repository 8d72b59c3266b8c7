package audit

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/obs"
)

// HTTPRecorder records HTTP requests after they have been handled.
type HTTPRecorder struct {
	Service   Service
	OnError   func(error)
	ActorFunc func(*http.Request) Actor
}

// Mutations records every non-safe request passing through. The resource id is the
// last URL parameter of the matched route.
func (r HTTPRecorder) Mutations(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !r.Service.Enabled || isSafe(req.Method) {
			next.ServeHTTP(w, req)
			return
		}
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, req)

		ctx := req.Context()
		resourceID := ""
		if rctx := chi.RouteContext(ctx); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" && obs.RoutePatternFromContext(ctx) == "" {
				req = req.WithContext(obs.WithRoutePattern(ctx, pattern))
			}
			if n := len(rctx.URLParams.Values); n > 0 {
				resourceID = rctx.URLParams.Values[n-1]
			}
		}
		metadata, _ := json.Marshal(map[string]any{"success": rec.Status() < http.StatusBadRequest})

		err := r.Service.Record(context.WithoutCancel(ctx), r.actor(req), "", "", resourceID, req, rec.Status(), metadata)
		if err != nil {
			if r.OnError != nil {
				r.OnError(err)
				return
			}
			zerolog.Ctx(ctx).Warn().Err(err).Msg("audit record failed")
		}
	})
}

func (r HTTPRecorder) actor(req *http.Request) Actor {
	if r.ActorFunc != nil {
		return r.ActorFunc(req)
	}
	if userID, ok := common.UserID(req.Context()); ok && userID != "" {
		return Actor{Kind: ActorKindUser, UserID: &userID}
	}
	return Actor{Kind: ActorKindAnonymous}
}

func isSafe(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Status() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}
