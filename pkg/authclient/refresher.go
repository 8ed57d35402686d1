package authclient

import (
	"context"
	"net/http"
	"sync"
)

// RefreshFunc performs one rotation call and returns the new access token.
type RefreshFunc func(ctx context.Context) (string, error)

type refresherState int

const (
	stateIdle refresherState = iota
	stateRefreshing
)

type refreshResult struct {
	token string
	err   error
}

// Refresher is an http.RoundTripper that attaches the current access token
// to every request and, on an authorization failure, rotates the
// credentials through exactly one in-flight refresh call no matter how
// many requests fail concurrently. Each failed request is retried once
// with the new token; a request that fails again after its retry is
// surfaced as-is so a dead refresh credential cannot loop.
type Refresher struct {
	base    http.RoundTripper
	refresh RefreshFunc

	mu      sync.Mutex
	state   refresherState
	waiters []chan refreshResult
	token   string
}

func NewRefresher(base http.RoundTripper, refresh RefreshFunc) *Refresher {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Refresher{base: base, refresh: refresh}
}

// NewRefresher builds a Refresher whose rotation call goes through this
// client's /auth/refresh endpoint.
func (c *Client) NewRefresher(base http.RoundTripper) *Refresher {
	return NewRefresher(base, c.Refresh)
}

func (r *Refresher) AccessToken() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.token
}

// SetAccessToken seeds the token after login; an empty value clears it.
func (r *Refresher) SetAccessToken(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.token = token
}

func (r *Refresher) RoundTrip(req *http.Request) (*http.Response, error) {
	attempt, err := cloneWithToken(req, r.AccessToken())
	if err != nil {
		return nil, err
	}
	resp, err := r.base.RoundTrip(attempt)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	// A request whose body cannot be rebuilt cannot be replayed; hand the
	// 401 back instead of consuming a rotation for nothing.
	if req.Body != nil && req.GetBody == nil {
		return resp, nil
	}
	resp.Body.Close()

	token, refreshErr := r.awaitRefresh()
	if refreshErr != nil {
		return nil, refreshErr
	}

	retry, err := cloneWithToken(req, token)
	if err != nil {
		return nil, err
	}
	return r.base.RoundTrip(retry)
}

// awaitRefresh collapses concurrent failures into one rotation call. The
// first caller in idle state performs the call; everyone else queues and
// waits for its outcome, however long it takes. On failure the stored
// token is cleared, which is the logged-out state.
func (r *Refresher) awaitRefresh() (string, error) {
	r.mu.Lock()
	if r.state == stateRefreshing {
		ch := make(chan refreshResult, 1)
		r.waiters = append(r.waiters, ch)
		r.mu.Unlock()
		res := <-ch
		return res.token, res.err
	}
	r.state = stateRefreshing
	r.mu.Unlock()

	// The rotation call carries its own timeout via the auth client; a
	// caller's cancelled context must not fail the rotation for the
	// queued requests.
	token, err := r.refresh(context.Background())

	r.mu.Lock()
	if err != nil {
		r.token = ""
	} else {
		r.token = token
	}
	waiters := r.waiters
	r.waiters = nil
	r.state = stateIdle
	r.mu.Unlock()

	for _, ch := range waiters {
		ch <- refreshResult{token: token, err: err}
	}
	return token, err
}

func cloneWithToken(req *http.Request, token string) (*http.Request, error) {
	out := req.Clone(req.Context())
	if req.Body != nil && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		out.Body = body
	}
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	} else {
		out.Header.Del("Authorization")
	}
	return out, nil
}
