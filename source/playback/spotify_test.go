package playback

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const playingBody = `{"timestamp":1700000000000,"progress_ms":150000,"is_playing":true,
"currently_playing_type":"track",
"item":{"id":"track-1","name":"Song","duration_ms":200000,"artists":[{"id":"a1","name":"Band"}]}}`

func newTestClient(t *testing.T, h http.HandlerFunc) *SpotifyClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewSpotifyClient(srv.URL, "SE", Token{AccessToken: "tok", TokenType: "Bearer"}, time.Second)
}

func TestCurrentlyPlaying_Snapshot(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me/player/currently-playing" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("market") != "SE" {
			t.Errorf("market not forwarded: %s", r.URL.RawQuery)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected auth header %q", got)
		}
		_, _ = w.Write([]byte(playingBody))
	})

	s, err := c.CurrentlyPlaying(context.Background())
	if err != nil {
		t.Fatalf("CurrentlyPlaying: %v", err)
	}
	if s.TrackID != "track-1" || s.DurationMS != 200000 || s.ProgressMS != 150000 || !s.HasProgress {
		t.Fatalf("unexpected snapshot: %+v", s)
	}
	d, err := NextDelay(s)
	if err != nil || d != 50*time.Second {
		t.Fatalf("want 50s delay, got %s (%v)", d, err)
	}
}

func TestCurrentlyPlaying_NoContentIsNoSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if _, err := c.CurrentlyPlaying(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("want ErrNoSession, got %v", err)
	}
}

func TestCurrentlyPlaying_NullItemIsNoSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"progress_ms":0,"is_playing":false,"item":null}`))
	})
	if _, err := c.CurrentlyPlaying(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("want ErrNoSession, got %v", err)
	}
}

func TestCurrentlyPlaying_HTTPError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"status":401}}`, http.StatusUnauthorized)
	})
	_, err := c.CurrentlyPlaying(context.Background())
	if err == nil || errors.Is(err, ErrNoSession) {
		t.Fatalf("want transport error, got %v", err)
	}
}

func TestCurrentUser(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"u1","display_name":"Listener"}`))
	})
	u, err := c.CurrentUser(context.Background())
	if err != nil {
		t.Fatalf("CurrentUser: %v", err)
	}
	if u.ID != "u1" || u.DisplayName != "Listener" {
		t.Fatalf("unexpected user %+v", u)
	}
}

func TestLoadToken(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "creds.json")
	if err := os.WriteFile(good, []byte(`{"access_token":"abc","expires_in":3600}`), 0o600); err != nil {
		t.Fatalf("write creds: %v", err)
	}
	tok, err := LoadToken(good)
	if err != nil {
		t.Fatalf("LoadToken: %v", err)
	}
	if tok.AccessToken != "abc" || tok.TokenType != "Bearer" {
		t.Fatalf("unexpected token %+v", tok)
	}

	empty := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(empty, []byte(`{}`), 0o600); err != nil {
		t.Fatalf("write creds: %v", err)
	}
	if _, err := LoadToken(empty); err == nil {
		t.Fatal("expected error for empty access_token")
	}
	if _, err := LoadToken(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
