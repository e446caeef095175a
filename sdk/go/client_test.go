package joblinesdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newFakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v0/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "owner123" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":{"code":"invalid_credentials","message":"invalid credentials"}}`)
			return
		}
		fmt.Fprint(w, `{"token":"tok","session_id":"s1","viewer":{"role":"owner","actor_id":"owner"}}`)
	})
	mux.HandleFunc("GET /v0/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":{"code":"unauthorized","message":"authentication required"}}`)
			return
		}
		fmt.Fprint(w, `{"items":[{"id":"j1","title":"Fix","status":"pending","reward":5}]}`)
	})
	mux.HandleFunc("POST /v0/jobs/{id}/complete", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"error":{"code":"conflict","message":"job is not pending"}}`)
	})
	mux.HandleFunc("POST /v0/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /v0/events", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"items":[{"id":3,"type":"job.completed"}],"next_cursor":%q}`, r.URL.Query().Get("limit")+":"+r.URL.Query().Get("cursor"))
	})
	mux.HandleFunc("GET /v0/stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: view\ndata: {\"seq\":1,\"jobs\":[]}\n\n")
		fmt.Fprint(w, "event: view\ndata: {\"seq\":2,\"jobs\":[{\"id\":\"j1\"}]}\n\n")
		fmt.Fprint(w, "event: error\ndata: {\"code\":\"forbidden\",\"message\":\"no\"}\n\n")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLoginStoresToken(t *testing.T) {
	srv := newFakeAPI(t)
	c := New(srv.URL + "/")
	ctx := context.Background()

	_, err := c.Login(ctx, "owner@example.com", "bad")
	require.True(t, IsStatus(err, http.StatusUnauthorized))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, "invalid_credentials", apiErr.Code)
	require.Empty(t, c.BearerToken)

	s, err := c.Login(ctx, "owner@example.com", "owner123")
	require.NoError(t, err)
	require.Equal(t, "owner", s.Viewer.Role)
	require.Equal(t, "tok", c.BearerToken)

	jobs, err := c.Jobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, float64(5), jobs[0].Reward)

	_, err = c.CompleteJob(ctx, "j1")
	require.True(t, IsStatus(err, http.StatusConflict))
	require.NoError(t, c.Logout(ctx))
}

func TestEventsPageQuery(t *testing.T) {
	srv := newFakeAPI(t)
	c := New(srv.URL)
	page, err := c.EventsPage(context.Background(), 10, "42")
	require.NoError(t, err)
	require.Equal(t, "10:42", page.NextCursor)
	require.Len(t, page.Items, 1)
}

func TestStreamDecodesFrames(t *testing.T) {
	srv := newFakeAPI(t)
	c := New(srv.URL)
	var seqs []uint64
	err := c.Stream(context.Background(), func(v View) error {
		seqs = append(seqs, v.Seq)
		return nil
	})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "forbidden", apiErr.Code)
	require.Equal(t, []uint64{1, 2}, seqs)

	stop := errors.New("stop")
	err = c.Stream(context.Background(), func(View) error { return stop })
	require.ErrorIs(t, err, stop)
}
