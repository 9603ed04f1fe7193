// Package tools wraps the external data sources the assistant can consult:
// NewsAPI for articles and Serper for web search. Every client is best
// effort: failures become an Error field on the result, never a Go error.
package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

var ErrMissingAPIKey = errors.New("tools: API key is missing")

const maxAttempts = 3

// statusError is a non-2xx upstream response.
type statusError struct {
	service string
	code    int
	body    string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s error: %d - %s", e.service, e.code, e.body)
}

// doWithRetry sends the request built by newReq, retrying rate limits,
// server errors and transport failures with exponential backoff. Other
// non-2xx responses fail immediately.
func doWithRetry(ctx context.Context, client *http.Client, initial time.Duration, service string, newReq func(context.Context) (*http.Request, error)) ([]byte, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial

	return backoff.Retry(ctx, func() ([]byte, error) {
		req, err := newReq(ctx)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			serr := &statusError{service: service, code: resp.StatusCode, body: string(body)}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return nil, serr
			}
			return nil, backoff.Permanent(serr)
		}
		return body, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(maxAttempts))
}
