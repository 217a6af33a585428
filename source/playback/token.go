package playback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"playrelay/internal/logging"
)

var ErrNoRefreshToken = errors.New("token has no refresh_token")

// expirySkew renews a token this long before Spotify would reject it.
const expirySkew = time.Minute

// Token is the stored OAuth token response. The login flow writes the first
// one; Refresher rewrites it in place.
type Token struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	Scope        string    `json:"scope"`
	ExpiresIn    int       `json:"expires_in"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Expired is false when the issue time is unknown; the API's 401 decides then.
func (t Token) Expired(now time.Time) bool {
	if t.CreatedAt.IsZero() || t.ExpiresIn <= 0 {
		return false
	}
	return !now.Before(t.CreatedAt.Add(time.Duration(t.ExpiresIn)*time.Second - expirySkew))
}

// LoadToken reads a token previously written by the login flow.
func LoadToken(path string) (Token, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Token{}, fmt.Errorf("credentials: %w", err)
	}
	var tok Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return Token{}, fmt.Errorf("credentials %s: %w", path, err)
	}
	if tok.AccessToken == "" {
		return Token{}, fmt.Errorf("credentials %s: access_token is empty", path)
	}
	if tok.TokenType == "" {
		tok.TokenType = "Bearer"
	}
	return tok, nil
}

// SaveToken replaces the credentials file atomically, readable by the owner
// only.
func SaveToken(path string, tok Token) error {
	raw, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".creds-*")
	if err != nil {
		return fmt.Errorf("credentials: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("credentials: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("credentials: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// Refresher exchanges a refresh token at the accounts service, as a public
// PKCE client (client id, no secret), and writes the result back.
type Refresher struct {
	tokenURL string
	clientID string
	path     string // empty keeps refreshed tokens in memory only
	http     *http.Client
	now      func() time.Time
}

func NewRefresher(tokenURL, clientID, path string, timeout time.Duration) *Refresher {
	return &Refresher{
		tokenURL: tokenURL,
		clientID: clientID,
		path:     path,
		http:     &http.Client{Timeout: timeout},
		now:      time.Now,
	}
}

func (r *Refresher) Refresh(ctx context.Context, tok Token) (Token, error) {
	if tok.RefreshToken == "" {
		return tok, ErrNoRefreshToken
	}
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {tok.RefreshToken},
		"client_id":     {r.clientID},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return tok, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.http.Do(req)
	if err != nil {
		return tok, fmt.Errorf("refresh token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return tok, fmt.Errorf("refresh token: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var next Token
	if err := json.NewDecoder(resp.Body).Decode(&next); err != nil {
		return tok, fmt.Errorf("refresh token: decode: %w", err)
	}
	if next.AccessToken == "" {
		return tok, errors.New("refresh token: response has no access_token")
	}
	// Spotify may omit the refresh token when it did not rotate it.
	if next.RefreshToken == "" {
		next.RefreshToken = tok.RefreshToken
	}
	if next.TokenType == "" {
		next.TokenType = "Bearer"
	}
	next.CreatedAt = r.now().UTC()

	if r.path != "" {
		if err := SaveToken(r.path, next); err != nil {
			return tok, err
		}
	}
	logging.For("spotify").Info("access token refreshed", "expires_in", next.ExpiresIn)
	return next, nil
}
