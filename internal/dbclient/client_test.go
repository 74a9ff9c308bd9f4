package dbclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kdt-ai/neo-backend/internal/model"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New(map[model.Source]string{model.SourcePatents: srv.URL}, "test-secret")
	c.firstTimeout = 200 * time.Millisecond
	c.retryBudget = 200 * time.Millisecond
	return c, srv
}

func sqlHandler(t *testing.T, gotQueries *[]string, result model.QueryResult) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req sqlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		*gotQueries = append(*gotQueries, req.Query)
		json.NewEncoder(w).Encode(result)
	})
}

func TestExecute_AppendsLimit(t *testing.T) {
	var queries []string
	c, _ := newTestClient(t, sqlHandler(t, &queries, model.QueryResult{
		Columns: []string{"count"}, Rows: []map[string]any{{"count": float64(42)}}, RowCount: 1,
	}))

	_, err := c.Execute(context.Background(), model.SourcePatents, "SELECT COUNT(*) as count FROM patents;")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(queries) != 1 {
		t.Fatalf("expected 1 upstream call, got %d", len(queries))
	}
	if queries[0] != "SELECT COUNT(*) as count FROM patents LIMIT 100" {
		t.Fatalf("unexpected transmitted SQL: %q", queries[0])
	}
}

func TestExecute_CapsLimitAtSafetyCeiling(t *testing.T) {
	var queries []string
	c, _ := newTestClient(t, sqlHandler(t, &queries, model.QueryResult{}))

	_, err := c.ExecuteWithOptions(context.Background(), model.SourcePatents, "SELECT id FROM patents", 9000, false)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.HasSuffix(queries[0], "LIMIT 500") {
		t.Fatalf("limit not capped at 500: %q", queries[0])
	}
}

func TestExecute_PreservesExistingLimit(t *testing.T) {
	var queries []string
	c, _ := newTestClient(t, sqlHandler(t, &queries, model.QueryResult{}))

	_, err := c.Execute(context.Background(), model.SourcePatents, "SELECT id FROM patents LIMIT 7")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if queries[0] != "SELECT id FROM patents LIMIT 7" {
		t.Fatalf("existing LIMIT was rewritten: %q", queries[0])
	}
}

func TestExecute_RejectsNonSelect(t *testing.T) {
	var queries []string
	c, _ := newTestClient(t, sqlHandler(t, &queries, model.QueryResult{}))

	_, err := c.Execute(context.Background(), model.SourcePatents, "DELETE FROM patents")
	if !IsRejected(err) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if len(queries) != 0 {
		t.Fatal("non-SELECT statement reached the upstream")
	}
}

func TestExecute_UnknownSource(t *testing.T) {
	c := New(map[model.Source]string{}, "")

	_, err := c.Execute(context.Background(), model.SourceGrants, "SELECT 1")
	var qe *QueryError
	if !asQueryError(err, &qe) || qe.Kind != KindUnknownSource {
		t.Fatalf("expected unknown source error, got %v", err)
	}
}

func TestExecute_CacheSkipsHTTP(t *testing.T) {
	var queries []string
	c, _ := newTestClient(t, sqlHandler(t, &queries, model.QueryResult{
		Rows: []map[string]any{{"id": "p1"}}, RowCount: 1,
	}))

	for i := 0; i < 3; i++ {
		res, err := c.Execute(context.Background(), model.SourcePatents, "SELECT id FROM patents")
		if err != nil {
			t.Fatalf("Execute %d: %v", i, err)
		}
		if res.RowCount != 1 {
			t.Fatalf("Execute %d: unexpected result %+v", i, res)
		}
	}
	if len(queries) != 1 {
		t.Fatalf("cache did not skip HTTP: %d upstream calls", len(queries))
	}
}

func TestExecute_CacheKeyNormalization(t *testing.T) {
	var queries []string
	c, _ := newTestClient(t, sqlHandler(t, &queries, model.QueryResult{}))

	if _, err := c.Execute(context.Background(), model.SourcePatents, "SELECT id FROM patents"); err != nil {
		t.Fatal(err)
	}
	// Same statement modulo case and whitespace hits the cache.
	if _, err := c.Execute(context.Background(), model.SourcePatents, "  select ID from PATENTS  "); err != nil {
		t.Fatal(err)
	}
	if len(queries) != 1 {
		t.Fatalf("normalized statement missed the cache: %d upstream calls", len(queries))
	}
}

func TestExecute_RejectedNotRetried(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"detail": "no such table: patnets"})
	}))

	_, err := c.Execute(context.Background(), model.SourcePatents, "SELECT id FROM patnets")
	if !IsRejected(err) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if !strings.Contains(err.Error(), "no such table: patnets") {
		t.Fatalf("detail not surfaced: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("4xx was retried: %d calls", calls.Load())
	}
}

func TestExecute_TimeoutRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			time.Sleep(500 * time.Millisecond) // exceed the first attempt budget
			return
		}
		json.NewEncoder(w).Encode(model.QueryResult{RowCount: 1, Rows: []map[string]any{{"id": "p1"}}})
	}))

	res, err := c.Execute(context.Background(), model.SourcePatents, "SELECT id FROM patents")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.RowCount != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestExecute_TimeoutExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(500 * time.Millisecond)
	}))

	_, err := c.Execute(context.Background(), model.SourcePatents, "SELECT id FROM patents")
	if !IsTimeout(err) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if !strings.Contains(err.Error(), "2 attempts") {
		t.Fatalf("attempt count missing from message: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestExecute_ForwardsSecret(t *testing.T) {
	var gotSecret string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req sqlRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotSecret = req.Secret
		json.NewEncoder(w).Encode(model.QueryResult{})
	}))

	if _, err := c.Execute(context.Background(), model.SourcePatents, "SELECT 1"); err != nil {
		t.Fatal(err)
	}
	if gotSecret != "test-secret" {
		t.Fatalf("secret not forwarded: %q", gotSecret)
	}
}

func TestListTablesAndDescribe(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sql/tables", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"tables": []string{"patents", "inventors"}})
	})
	mux.HandleFunc("/api/sql/schema/patents", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"columns": []model.ColumnInfo{
			{Name: "id", Type: "TEXT", PK: true},
			{Name: "title", Type: "TEXT"},
		}})
	})
	c, _ := newTestClient(t, mux)

	tables, err := c.ListTables(context.Background(), model.SourcePatents)
	if err != nil {
		t.Fatalf("ListTables: %v", err)
	}
	if len(tables) != 2 || tables[0].Name != "patents" {
		t.Fatalf("unexpected tables: %+v", tables)
	}

	cols, err := c.Describe(context.Background(), model.SourcePatents, "patents")
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if len(cols) != 2 || !cols[0].PK {
		t.Fatalf("unexpected columns: %+v", cols)
	}
}

func asQueryError(err error, target **QueryError) bool {
	qe, ok := err.(*QueryError)
	if ok {
		*target = qe
	}
	return ok
}
