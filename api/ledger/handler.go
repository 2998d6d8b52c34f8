package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/kilianp07/routeloop/core/ledger"
)

// Querier is the read surface the handler needs. Both the record store
// and the ledger itself satisfy it.
type Querier interface {
	Query(ctx context.Context, q ledger.Query) ([]ledger.Record, error)
}

// NewRecordHandler returns an HTTP handler exposing ledger records via
// GET /api/ledger/records. Requests must include an Authorization header
// with "Bearer <token>" when token is non-empty.
func NewRecordHandler(store Querier, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != "" {
			auth := r.Header.Get("Authorization")
			if auth != "Bearer "+token {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		q := ledger.Query{}
		q.ActorID = r.URL.Query().Get("actor_id")
		if s := r.URL.Query().Get("cycle_id"); s != "" {
			if v, err := strconv.ParseUint(s, 10, 64); err == nil {
				q.CycleID = v
			}
		}
		if s := r.URL.Query().Get("state"); s != "" {
			q.State = ledger.State(s)
		}
		if s := r.URL.Query().Get("start"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.Start = t
			}
		}
		if s := r.URL.Query().Get("end"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.End = t
			}
		}
		records, err := store.Query(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(records); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}
