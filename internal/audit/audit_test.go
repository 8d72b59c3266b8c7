package audit_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/audit"
	"github.com/noah-isme/backend-pos/internal/common"
)

type memoryStore struct {
	mu      sync.Mutex
	entries []audit.Entry
	err     error
}

func (m *memoryStore) Insert(_ context.Context, e audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	e.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, e)
	return nil
}

func (m *memoryStore) List(_ context.Context, limit, offset int) ([]audit.Entry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := len(m.entries)
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)
	return append([]audit.Entry(nil), m.entries[offset:end]...), total, nil
}

func withUser(id string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(common.WithUserID(r.Context(), id)))
		})
	}
}

func newRouter(store *memoryStore, enabled bool) http.Handler {
	rec := audit.HTTPRecorder{Service: audit.Service{Store: store, Enabled: enabled}}
	r := chi.NewRouter()
	r.Route("/api/v1/users", func(r chi.Router) {
		r.Use(withUser("00000000-0000-0000-0000-0000000000aa"))
		r.Use(rec.Mutations)
		r.Get("/", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
		r.Patch("/{userId}/status", func(w http.ResponseWriter, r *http.Request) {
			common.Success(w, http.StatusOK, "ok", nil)
		})
		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			common.JSONError(w, http.StatusConflict, "EMAIL_EXISTS", "email already registered", nil)
		})
	})
	return r
}

func TestMutationsRecordsAdminWrites(t *testing.T) {
	store := &memoryStore{}
	r := newRouter(store, true)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/users/1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed/status", nil)
	req.Header.Set("User-Agent", "pos-test")
	r.ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, store.entries, 1)
	e := store.entries[0]
	require.Equal(t, audit.ActorKindUser, e.ActorKind)
	require.Equal(t, "00000000-0000-0000-0000-0000000000aa", *e.ActorUserID)
	require.Equal(t, "PATCH /api/v1/users/{userId}/status", e.Action)
	require.Equal(t, "users", e.ResourceType)
	require.Equal(t, "1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed", *e.ResourceID)
	require.Equal(t, http.StatusOK, e.Status)
	require.Equal(t, "pos-test", *e.UserAgent)

	var meta map[string]any
	require.NoError(t, json.Unmarshal(e.Metadata, &meta))
	require.Equal(t, true, meta["success"])
}

func TestMutationsRecordsFailuresAndSkipsReads(t *testing.T) {
	store := &memoryStore{}
	r := newRouter(store, true)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/users", nil))
	require.Empty(t, store.entries)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/users", nil))
	require.Len(t, store.entries, 1)
	require.Equal(t, http.StatusConflict, store.entries[0].Status)
	require.Nil(t, store.entries[0].ResourceID)
}

func TestMutationsDisabled(t *testing.T) {
	store := &memoryStore{}
	r := newRouter(store, false)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/users", nil))
	require.Empty(t, store.entries)
}

func TestMutationsReportsStoreErrors(t *testing.T) {
	store := &memoryStore{err: errors.New("db down")}
	var seen error
	rec := audit.HTTPRecorder{Service: audit.Service{Store: store, Enabled: true}, OnError: func(err error) { seen = err }}
	h := rec.Mutations(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusCreated) }))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/products", nil))
	require.Equal(t, http.StatusCreated, rr.Code)
	require.EqualError(t, seen, "db down")
}

func TestRecordAnonymousActor(t *testing.T) {
	store := &memoryStore{}
	svc := audit.Service{Store: store, Enabled: true}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", nil)
	require.NoError(t, svc.Record(context.Background(), audit.Actor{}, "product.create", "", "", req, 0, nil))

	e := store.entries[0]
	require.Equal(t, audit.ActorKindAnonymous, e.ActorKind)
	require.Equal(t, "product.create", e.Action)
	require.Equal(t, "products", e.ResourceType)
	require.Equal(t, http.StatusOK, e.Status)
}

func TestHandlerList(t *testing.T) {
	store := &memoryStore{}
	svc := audit.Service{Store: store, Enabled: true}
	for range 3 {
		require.NoError(t, svc.Record(context.Background(), audit.Actor{}, "", "", "", httptest.NewRequest(http.MethodPost, "/api/v1/products", nil), 201, nil))
	}

	rr := httptest.NewRecorder()
	audit.Handler{Store: store}.List(rr, httptest.NewRequest(http.MethodGet, "/api/v1/audit-logs?limit=2&page=2", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Data       []audit.Entry `json:"data"`
		Pagination struct {
			TotalItems int `json:"total_items"`
			TotalPages int `json:"total_pages"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.Equal(t, 3, body.Pagination.TotalItems)
	require.Equal(t, 2, body.Pagination.TotalPages)
}
