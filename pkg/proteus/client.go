// Package proteus is a client for the batched tRPC API behind the Proteus
// (Delta Green) inverter management app.
//
// A Client logs in once to obtain a session and then issues one or more
// procedure calls per HTTP request. Results come back in batch order, one per
// line of the jsonl response.
package proteus

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/raterudder/proteus/pkg/log"
	"github.com/raterudder/proteus/pkg/types"
)

// DefaultBaseURL is where the Proteus web app lives.
const DefaultBaseURL = "https://proteus.deltagreen.cz"

// Client talks to the Proteus backend on behalf of a single account. It is
// safe to issue calls concurrently, but calls racing a Login may see either
// the old or the new session.
type Client struct {
	client  *http.Client
	baseURL string

	loginMu  sync.Mutex
	sessions sessionStore

	targetMu sync.RWMutex
	target   types.Target

	cache *resultCache
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the http client used for every request.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// WithBaseURL overrides DefaultBaseURL.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithTarget sets the inverter and household used by named operations.
func WithTarget(t types.Target) Option {
	return func(c *Client) {
		c.target = t
	}
}

// WithCache caches the results of named operations for ttl. A size or ttl of
// 0 disables the cache.
func WithCache(size int, ttl time.Duration) Option {
	return func(c *Client) {
		if size <= 0 || ttl <= 0 {
			c.cache = nil
			return
		}
		rc, err := newResultCache(size, ttl)
		if err != nil {
			// size was validated above, lru.New only fails on size <= 0
			panic(err)
		}
		c.cache = rc
	}
}

// New returns an unauthenticated Client.
func New(opts ...Option) *Client {
	c := &Client{
		client:  http.DefaultClient,
		baseURL: DefaultBaseURL,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Session returns a copy of the current session.
func (c *Client) Session() types.Session {
	return c.sessions.get()
}

// Authenticated returns true once a login has produced both tokens.
func (c *Client) Authenticated() bool {
	return c.sessions.get().Valid()
}

// Target returns the inverter and household named operations are issued for.
func (c *Client) Target() types.Target {
	c.targetMu.RLock()
	defer c.targetMu.RUnlock()
	return c.target
}

// SetTarget changes the inverter and household named operations are issued
// for.
func (c *Client) SetTarget(t types.Target) {
	c.targetMu.Lock()
	c.target = t
	c.targetMu.Unlock()
	if c.cache != nil {
		c.cache.purge()
	}
}

// Call issues all calls in one batch request and returns the decoded lines
// of the response in order. A line that isn't valid JSON is returned as a
// fallback result rather than failing the batch.
func (c *Client) Call(ctx context.Context, calls []types.Call) ([]types.Result, error) {
	req, err := buildBatchRequest(ctx, c.baseURL, calls, c.sessions.get())
	if err != nil {
		return nil, err
	}

	procs := procedureNames(calls)
	log.Ctx(ctx).DebugContext(ctx, "proteus batch call", slog.Any("procedures", procs))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "call", Err: err}
	}
	defer resp.Body.Close()

	results, err := decodeResponse(resp)
	if err != nil {
		return nil, err
	}
	// a cancelled request must not hand back partial results
	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Op: "call", Err: err}
	}

	log.Ctx(ctx).DebugContext(
		ctx,
		"proteus batch call success",
		slog.Int("calls", len(calls)),
		slog.Int("lines", len(results)),
	)
	return results, nil
}

// drain reads what's left of a body so the connection can be reused.
func drain(r io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, 1<<16))
}
