package playback

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestToken_Expired(t *testing.T) {
	issued := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tok := Token{ExpiresIn: 3600, CreatedAt: issued}

	cases := []struct {
		at   time.Time
		want bool
	}{
		{issued.Add(30 * time.Minute), false},
		{issued.Add(59*time.Minute + 30*time.Second), true},
		{issued.Add(2 * time.Hour), true},
	}
	for _, tc := range cases {
		if got := tok.Expired(tc.at); got != tc.want {
			t.Fatalf("Expired(%s) = %v, want %v", tc.at.Sub(issued), got, tc.want)
		}
	}
	if (Token{ExpiresIn: 3600}).Expired(issued) {
		t.Fatal("unknown issue time must not count as expired")
	}
}

// accounts serves the token endpoint and counts exchanges.
func accounts(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Form.Get("grant_type") != "refresh_token" || r.Form.Get("refresh_token") != "r1" || r.Form.Get("client_id") != "cid" {
			t.Errorf("unexpected refresh form %v", r.Form)
		}
		calls.Add(1)
		_, _ = w.Write([]byte(`{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRefresher_WritesBack(t *testing.T) {
	var calls atomic.Int32
	srv := accounts(t, &calls)
	path := filepath.Join(t.TempDir(), "creds.json")

	r := NewRefresher(srv.URL, "cid", path, time.Second)
	now := time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	next, err := r.Refresh(context.Background(), Token{AccessToken: "stale", RefreshToken: "r1"})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.AccessToken != "fresh" || next.RefreshToken != "r1" || !next.CreatedAt.Equal(now) {
		t.Fatalf("unexpected token %+v", next)
	}

	stored, err := LoadToken(path)
	if err != nil {
		t.Fatalf("LoadToken: %v", err)
	}
	if stored.AccessToken != "fresh" || stored.RefreshToken != "r1" {
		t.Fatalf("credentials file not rewritten: %+v", stored)
	}
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if fi.Mode().Perm() != 0o600 {
		t.Fatalf("credentials must be owner-only, got %v", fi.Mode().Perm())
	}
}

func TestRefresher_NeedsRefreshToken(t *testing.T) {
	r := NewRefresher("http://127.0.0.1:1", "cid", "", time.Second)
	if _, err := r.Refresh(context.Background(), Token{AccessToken: "a"}); !errors.Is(err, ErrNoRefreshToken) {
		t.Fatalf("want ErrNoRefreshToken, got %v", err)
	}
}

func TestSpotifyClient_RefreshesExpiredToken(t *testing.T) {
	var exchanges atomic.Int32
	acc := accounts(t, &exchanges)
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer fresh" {
			t.Errorf("request sent with %q", got)
		}
		_, _ = w.Write([]byte(`{"id":"u1","display_name":"Listener"}`))
	}))
	t.Cleanup(api.Close)

	old := Token{AccessToken: "stale", TokenType: "Bearer", ExpiresIn: 3600, RefreshToken: "r1", CreatedAt: time.Now().Add(-2 * time.Hour)}
	c := NewSpotifyClient(api.URL, "", old, time.Second).
		WithRefresh(NewRefresher(acc.URL, "cid", "", time.Second))

	for i := 0; i < 2; i++ {
		if _, err := c.CurrentUser(context.Background()); err != nil {
			t.Fatalf("CurrentUser: %v", err)
		}
	}
	if n := exchanges.Load(); n != 1 {
		t.Fatalf("want one refresh, got %d", n)
	}
}

func TestSpotifyClient_RetriesOnceAfterUnauthorized(t *testing.T) {
	var exchanges atomic.Int32
	acc := accounts(t, &exchanges)
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			http.Error(w, `{"error":{"status":401,"message":"The access token expired"}}`, http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(api.Close)

	// No issue time: only the 401 reveals the token is stale.
	c := NewSpotifyClient(api.URL, "", Token{AccessToken: "stale", TokenType: "Bearer", RefreshToken: "r1"}, time.Second).
		WithRefresh(NewRefresher(acc.URL, "cid", "", time.Second))

	if _, err := c.CurrentlyPlaying(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("want ErrNoSession after the retried call, got %v", err)
	}
	if n := exchanges.Load(); n != 1 {
		t.Fatalf("want one refresh, got %d", n)
	}
}
