package playback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// SpotifyClient reads the user's player through the Web API. It is not safe
// for concurrent use; the producer loop is its only caller.
type SpotifyClient struct {
	base    string
	market  string
	token   Token
	refresh *Refresher
	http    *http.Client
}

func NewSpotifyClient(baseURL, market string, tok Token, timeout time.Duration) *SpotifyClient {
	return &SpotifyClient{
		base:   strings.TrimRight(baseURL, "/"),
		market: market,
		token:  tok,
		http:   &http.Client{Timeout: timeout},
	}
}

// WithRefresh renews the token before it expires and once after a 401.
func (c *SpotifyClient) WithRefresh(r *Refresher) *SpotifyClient {
	c.refresh = r
	return c
}

func (c *SpotifyClient) renew(ctx context.Context) error {
	tok, err := c.refresh.Refresh(ctx, c.token)
	if err != nil {
		return fmt.Errorf("spotify: %w", err)
	}
	c.token = tok
	return nil
}

type currentlyPlaying struct {
	Timestamp  int64           `json:"timestamp"`
	ProgressMS *int64          `json:"progress_ms"`
	IsPlaying  bool            `json:"is_playing"`
	Type       string          `json:"currently_playing_type"`
	Item       json.RawMessage `json:"item"`
}

type playableItem struct {
	ID         string `json:"id"`
	DurationMS int64  `json:"duration_ms"`
}

func (c *SpotifyClient) CurrentlyPlaying(ctx context.Context) (Snapshot, error) {
	q := url.Values{}
	if c.market != "" {
		q.Set("market", c.market)
	}
	var cp currentlyPlaying
	found, err := c.get(ctx, "/me/player/currently-playing", q, &cp)
	if err != nil {
		return Snapshot{}, err
	}
	if !found || len(cp.Item) == 0 || string(cp.Item) == "null" {
		return Snapshot{}, ErrNoSession
	}

	var item playableItem
	if err := json.Unmarshal(cp.Item, &item); err != nil {
		return Snapshot{}, fmt.Errorf("spotify: decode item: %w", err)
	}
	if item.ID == "" {
		return Snapshot{}, fmt.Errorf("%w: %s item has no id", ErrNoSession, cp.Type)
	}

	s := Snapshot{
		TrackID:    item.ID,
		Metadata:   cp.Item,
		DurationMS: item.DurationMS,
		Playing:    cp.IsPlaying,
		At:         time.UnixMilli(cp.Timestamp),
	}
	if cp.ProgressMS != nil {
		s.ProgressMS, s.HasProgress = *cp.ProgressMS, true
	}
	return s, nil
}

func (c *SpotifyClient) CurrentUser(ctx context.Context) (User, error) {
	var u User
	if _, err := c.get(ctx, "/me", nil, &u); err != nil {
		return User{}, err
	}
	return u, nil
}

// get reports found=false for 204 No Content.
func (c *SpotifyClient) get(ctx context.Context, path string, q url.Values, out any) (bool, error) {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	if c.refresh != nil && c.token.Expired(time.Now()) {
		if err := c.renew(ctx); err != nil {
			return false, err
		}
	}
	found, status, err := c.do(ctx, path, u, out)
	if status == http.StatusUnauthorized && c.refresh != nil {
		if rerr := c.renew(ctx); rerr != nil {
			return false, errors.Join(err, rerr)
		}
		found, _, err = c.do(ctx, path, u, out)
	}
	return found, err
}

func (c *SpotifyClient) do(ctx context.Context, path, u string, out any) (bool, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, 0, err
	}
	req.Header.Set("Authorization", c.token.TokenType+" "+c.token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, 0, fmt.Errorf("spotify %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return false, resp.StatusCode, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, resp.StatusCode, fmt.Errorf("spotify %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, resp.StatusCode, fmt.Errorf("spotify %s: decode: %w", path, err)
	}
	return true, resp.StatusCode, nil
}
