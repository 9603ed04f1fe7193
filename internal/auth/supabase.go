// Package auth guards the HTTP surface with Supabase sessions.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

var ErrInvalidSession = errors.New("auth: invalid session")

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Verifier resolves an access token to the user it belongs to.
type Verifier interface {
	Verify(ctx context.Context, token string) (User, error)
}

// SupabaseVerifier checks tokens against the Supabase auth API. Verified
// sessions are cached for a minute.
type SupabaseVerifier struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	cache      *sessionCache
	retryDelay time.Duration
}

const sessionTTL = time.Minute

func NewSupabaseVerifier(supabaseURL, anonKey string) *SupabaseVerifier {
	return NewSupabaseVerifierWithClient(supabaseURL, anonKey, &http.Client{Timeout: 10 * time.Second})
}

func NewSupabaseVerifierWithClient(supabaseURL, anonKey string, httpClient *http.Client) *SupabaseVerifier {
	return &SupabaseVerifier{
		baseURL:    strings.TrimRight(supabaseURL, "/"),
		anonKey:    anonKey,
		httpClient: httpClient,
		cache:      newSessionCache(sessionTTL),
		retryDelay: 200 * time.Millisecond,
	}
}

// Close stops the cache janitor.
func (v *SupabaseVerifier) Close() {
	v.cache.close()
}

func (v *SupabaseVerifier) Verify(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrInvalidSession
	}
	if u, ok := v.cache.get(token); ok {
		return u, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = v.retryDelay
	u, err := backoff.Retry(ctx, func() (User, error) {
		return v.fetchUser(ctx, token)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(3))
	if err != nil {
		return User{}, err
	}
	v.cache.put(token, u)
	return u, nil
}

func (v *SupabaseVerifier) fetchUser(ctx context.Context, token string) (User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return User{}, backoff.Permanent(fmt.Errorf("auth: build request: %w", err))
	}
	req.Header.Set("apikey", v.anonKey)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return User{}, backoff.Permanent(err)
		}
		return User{}, fmt.Errorf("auth: user request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return User{}, backoff.Permanent(ErrInvalidSession)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return User{}, fmt.Errorf("auth: status %d: %s", resp.StatusCode, body)
	default:
		return User{}, backoff.Permanent(fmt.Errorf("%w: status %d", ErrInvalidSession, resp.StatusCode))
	}

	var u User
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return User{}, backoff.Permanent(fmt.Errorf("auth: decode user: %w", err))
	}
	if u.ID == "" {
		return User{}, backoff.Permanent(ErrInvalidSession)
	}
	return u, nil
}
