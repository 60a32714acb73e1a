package proteus

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/raterudder/proteus/pkg/log"
	"github.com/raterudder/proteus/pkg/types"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}

var testSession = types.Session{Token: "S1", CSRF: "C1"}

// recordingTransport records every request. Without next it fails every
// request so tests can assert nothing went out.
type recordingTransport struct {
	mu   sync.Mutex
	reqs []*http.Request
	next http.RoundTripper
}

func (rt *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rt.mu.Lock()
	rt.reqs = append(rt.reqs, req)
	rt.mu.Unlock()
	if rt.next == nil {
		return nil, errors.New("unexpected request")
	}
	return rt.next.RoundTrip(req)
}

func (rt *recordingTransport) count() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.reqs)
}

// newTestClient returns a client pointed at ts whose requests are recorded.
func newTestClient(ts *httptest.Server, opts ...Option) (*Client, *recordingTransport) {
	rt := &recordingTransport{next: ts.Client().Transport}
	opts = append([]Option{
		WithHTTPClient(&http.Client{Transport: rt}),
		WithBaseURL(ts.URL),
	}, opts...)
	return New(opts...), rt
}

// newLoggedInClient is newTestClient with a session already in place.
func newLoggedInClient(ts *httptest.Server, opts ...Option) (*Client, *recordingTransport) {
	c, rt := newTestClient(ts, opts...)
	c.sessions.set(testSession)
	return c, rt
}
