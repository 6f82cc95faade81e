package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(url string) *Client {
	return NewClient(url, "secret", zerolog.Nop(),
		WithBackoff(func(int) time.Duration { return 0 }),
		WithRateLimit(1000),
	)
}

func TestClient_FetchFollowsCursor(t *testing.T) {
	var requests []queryRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query.json", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))

		var req queryRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		requests = append(requests, req)

		w.Header().Set("Content-Type", "application/json")
		if req.CursorID == "" {
			w.Write([]byte(`{"datatable":{"columns":[{"name":"vmpp","type":"Integer"},{"name":"month","type":"Date"}],
				"data":[[1040511000001102,"2023-01-01"]]},"meta":{"next_cursor_id":"c2"}}`))
			return
		}
		w.Write([]byte(`{"datatable":{"columns":[{"name":"vmpp","type":"Integer"},{"name":"month","type":"Date"}],
			"data":[[2,"2023-02-01"],[3,"2023-03-01"]]},"meta":{"next_cursor_id":null}}`))
	}))
	defer srv.Close()

	tbl, err := testClient(srv.URL).Fetch(context.Background(), Query{Name: "concessions", SQL: "SELECT 1"})
	require.NoError(t, err)

	require.Len(t, requests, 2)
	assert.Equal(t, "SELECT 1", requests[0].Query)
	assert.Equal(t, "c2", requests[1].CursorID)

	assert.Equal(t, []string{"vmpp", "month"}, tbl.ColumnNames())
	require.Equal(t, 3, tbl.Len())
	assert.Equal(t, json.Number("1040511000001102"), tbl.Data[0][0], "large ids decode exactly")
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "warehouse busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"datatable":{"columns":[{"name":"x","type":"Integer"}],"data":[[1]]},"meta":{}}`))
	}))
	defer srv.Close()

	tbl, err := testClient(srv.URL).Fetch(context.Background(), Query{Name: "q"})
	require.NoError(t, err)
	assert.Equal(t, 1, tbl.Len())
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Fetch(context.Background(), Query{Name: "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
	assert.Equal(t, int32(maxAttempts), atomic.LoadInt32(&calls))
}

func TestClient_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected after cancellation")
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(srv.URL, "", zerolog.Nop(), WithRateLimit(1))
	c.limiter.lastCall = time.Now()
	_, err := c.Fetch(ctx, Query{Name: "q"})
	assert.ErrorIs(t, err, context.Canceled)
}
