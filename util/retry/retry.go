package retry

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"time"
)

var (
	DefaultRetry    = Retry{Base: 4 * time.Second, Cap: 64 * time.Second, Tries: 12}
	ErrOutOfRetries = errors.New("tried too many times")
)

type Retry struct {
	Base  time.Duration // Min amount of time to sleep per iteration
	Cap   time.Duration // Max amount of time to sleep per iteration
	Tries int           // Number of times to try
}

// Backoff returns a jittered exponential delay for the i-th attempt, bounded by Cap.
func (r Retry) Backoff(i int) time.Duration {
	if r.Base <= 0 {
		return 0
	}
	ceiling := r.Base << uint(i)
	if ceiling <= 0 || (r.Cap > 0 && ceiling > r.Cap) {
		ceiling = r.Cap
	}
	if ceiling <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(ceiling)))
}

// Sleep waits for the i-th backoff delay, returning early if the context is done.
func (r Retry) Sleep(ctx context.Context, i int) error {
	d := r.Backoff(i)
	if d == 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func RetryRequest(c *http.Client, req *http.Request) (*http.Response, error) {
	return RetryRequestWithRetry(c, req, DefaultRetry)
}

// RetryRequestWithRetry retries a request for as long as the server responds with 429.
func RetryRequestWithRetry(c *http.Client, req *http.Request, r Retry) (*http.Response, error) {
	for i := 0; i < r.Tries; i++ {
		if i > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			req.Body = body
		}

		resp, err := c.Do(req)
		if err != nil {
			return resp, err
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, err
		}
		resp.Body.Close()

		if err := r.Sleep(req.Context(), i); err != nil {
			return nil, err
		}
	}
	return nil, ErrOutOfRetries
}

// RetryFunc calls f until it succeeds, shouldRetry rejects its error, or the tries are used up.
// When the tries are used up the last error is returned wrapped alongside ErrOutOfRetries.
func RetryFunc(ctx context.Context, f func(ctx context.Context) error, shouldRetry func(error) bool, r Retry) error {
	var err error
	for i := 0; i < r.Tries; i++ {
		err = f(ctx)
		if err == nil {
			return nil
		}

		if !shouldRetry(err) {
			return err
		}

		if i == r.Tries-1 {
			break
		}

		if sleepErr := r.Sleep(ctx, i); sleepErr != nil {
			return sleepErr
		}
	}
	return errors.Join(ErrOutOfRetries, err)
}
