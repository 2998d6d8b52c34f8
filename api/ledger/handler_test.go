package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	coreledger "github.com/kilianp07/routeloop/core/ledger"
)

func seedStore(t *testing.T) coreledger.Store {
	t.Helper()
	store := coreledger.NewMemoryStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	recs := []coreledger.Record{
		{CycleID: 1, ActorID: "actor-a", State: coreledger.StateArchived, Timestamp: base},
		{CycleID: 2, ActorID: "actor-a", State: coreledger.StateCommitted, Timestamp: base.Add(time.Minute)},
		{CycleID: 1, ActorID: "actor-b", State: coreledger.StateRejected, Timestamp: base},
	}
	for _, r := range recs {
		if err := store.Append(context.Background(), r); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return store
}

func TestRecordHandler_AuthAndFilters(t *testing.T) {
	h := NewRecordHandler(seedStore(t), "tok")

	req := httptest.NewRequest("GET", "/api/ledger/records?actor_id=actor-a&state=committed", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var out []coreledger.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 1 || out[0].CycleID != 2 {
		t.Fatalf("expected the committed record, got %+v", out)
	}

	// unauthorized
	req = httptest.NewRequest("GET", "/api/ledger/records", nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
}

func TestRecordHandler_CycleAndWindowFilters(t *testing.T) {
	h := NewRecordHandler(seedStore(t), "")

	req := httptest.NewRequest("GET", "/api/ledger/records?cycle_id=1", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var out []coreledger.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 first-cycle records, got %d", len(out))
	}

	req = httptest.NewRequest("GET", "/api/ledger/records?start=2026-03-01T12:00:30Z", nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	out = nil
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 1 || out[0].CycleID != 2 {
		t.Fatalf("window filter failed: %+v", out)
	}
}
