package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendordesk/internal/model"
	"vendordesk/pkg/circuitbreaker"
	"vendordesk/pkg/trace"
)

func TestSessionsSendsTabAndTrace(t *testing.T) {
	var gotTab, gotTrace string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/sessions", r.URL.Path)
		gotTab = r.URL.Query().Get("tab")
		gotTrace = r.Header.Get(trace.HeaderName)
		_ = json.NewEncoder(w).Encode([]map[string]any{{"id": 4, "displayStatus": "REPLIED"}})
	}))
	defer srv.Close()

	c := New(srv.URL+"/", time.Second)
	ctx := trace.WithContext(context.Background(), "t-9")
	got, err := c.Sessions(ctx, "replied")
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, int64(4), got[0].ID)
	assert.Equal(t, "replied", gotTab)
	assert.Equal(t, "t-9", gotTrace)
}

func TestReplyPostsContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/emails/12/reply", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_ = json.NewEncoder(w).Encode(model.Email{ID: 12, Responses: []model.EmailReply{{Body: body["content"]}}})
	}))
	defer srv.Close()

	got, err := New(srv.URL, time.Second).Reply(context.Background(), 12, "thanks")
	require.NoError(t, err)
	require.Len(t, got.Responses, 1)
	assert.Equal(t, "thanks", got.Responses[0].Body)
}

func TestClientErrorDoesNotTripBreaker(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	for i := 0; i < 5; i++ {
		_, err := c.Assign(context.Background(), 1, 2)
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
	}
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
	assert.Equal(t, circuitbreaker.StateClosed, c.cb.GetState())
}

func TestServerErrorsOpenBreaker(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal error"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	for i := 0; i < 3; i++ {
		_, err := c.Summary(context.Background())
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "internal error", apiErr.Message)
	}

	_, err := c.Summary(context.Background())
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitBreakerOpen)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}
