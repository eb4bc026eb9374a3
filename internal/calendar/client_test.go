package calendar

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type staticTokens struct{}

func (staticTokens) TokenSource(ctx context.Context) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token", TokenType: "Bearer"})
}

func newAPIServer(t *testing.T, mux *http.ServeMux) Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewGoogleClient(staticTokens{}, srv.URL+"/calendar/v3/")
}

func TestGoogleClientInsert(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/calendar/v3/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)

		var got map[string]any
		assert.NoError(t, json.Unmarshal(body, &got))
		assert.Equal(t, "Meeting: A - Slot 1", got["summary"])
		start := got["start"].(map[string]any)
		assert.Equal(t, "2026-03-02T10:00:00Z", start["dateTime"])
		reminders := got["reminders"].(map[string]any)
		assert.Equal(t, false, reminders["useDefault"])

		_, _ = w.Write([]byte(`{"id":"abc123"}`))
	})
	c := newAPIServer(t, mux)

	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	id, err := c.Insert(context.Background(), "primary", Event{
		Summary:   "Meeting: A - Slot 1",
		Start:     start,
		End:       start.Add(time.Hour),
		TimeZone:  "UTC",
		Reminders: defaultReminders,
	})
	require.NoError(t, err)
	assert.Equal(t, "abc123", id)
}

func TestGoogleClientDeleteGone(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/calendar/v3/calendars/primary/events/missing", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusGone)
		_, _ = w.Write([]byte(`{"error":{"code":410,"message":"Resource has been deleted"}}`))
	})
	mux.HandleFunc("/calendar/v3/calendars/primary/events/present", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	c := newAPIServer(t, mux)

	assert.ErrorIs(t, c.Delete(context.Background(), "primary", "missing"), ErrEventGone)
	assert.NoError(t, c.Delete(context.Background(), "primary", "present"))
}

func TestGoogleClientSearch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/calendar/v3/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "A - Slot 1", r.URL.Query().Get("q"))
		assert.Equal(t, "true", r.URL.Query().Get("singleEvents"))
		_, _ = w.Write([]byte(`{"items":[{"id":"e1","summary":"Meeting: A - Slot 1","description":"Booking ID: req-1","start":{"dateTime":"2026-03-02T10:00:00+05:30"}}]}`))
	})
	c := newAPIServer(t, mux)

	found, err := c.Search(context.Background(), "primary", "A - Slot 1", time.Now(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "e1", found[0].ID)
	assert.Equal(t, "Meeting: A - Slot 1", found[0].Summary)
	assert.Equal(t, "Booking ID: req-1", found[0].Description)
	assert.True(t, found[0].Start.Equal(time.Date(2026, 3, 2, 4, 30, 0, 0, time.UTC)))
}

func TestGoogleClientFreeBusy(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/calendar/v3/freeBusy", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		_, _ = w.Write([]byte(`{"calendars":{"shared":{"busy":[{"start":"2026-03-02T10:00:00Z","end":"2026-03-02T11:00:00Z"}]}}}`))
	})
	c := newAPIServer(t, mux)

	busy, err := c.FreeBusy(context.Background(), []string{"shared"}, time.Now(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, busy, 1)
	assert.Equal(t, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), busy[0].Start.UTC())
	assert.Equal(t, time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC), busy[0].End.UTC())
}

func TestGoogleClientFreeBusyCalendarError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/calendar/v3/freeBusy", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"calendars":{"shared":{"errors":[{"domain":"global","reason":"notFound"}]}}}`))
	})
	c := newAPIServer(t, mux)

	_, err := c.FreeBusy(context.Background(), []string{"shared"}, time.Now(), time.Now().Add(time.Hour))
	assert.ErrorContains(t, err, "notFound")
}
