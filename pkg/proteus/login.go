package proteus

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/raterudder/proteus/pkg/log"
	"github.com/raterudder/proteus/pkg/types"
)

const loginProcedure = "users.loginWithEmailAndPassword"

type loginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TenantID string `json:"tenantId"`
}

func (c *Client) newLoginRequest(ctx context.Context, creds types.Credentials) (*http.Request, error) {
	u, err := trpcURL(c.baseURL, loginProcedure)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(envelope{JSON: loginInput{
		Email:    creds.Email,
		Password: creds.Password,
		TenantID: creds.Tenant(),
	}})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	origin := strings.TrimSuffix(c.baseURL, "/")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Origin", origin)
	req.Header.Set("Referer", origin+"/cs/auth/login/email-and-password")
	return req, nil
}

// Login exchanges the credentials for a session and stores it, replacing any
// previous session. Only one login can run at a time; a concurrent call gets
// ErrLoginInProgress.
//
// If the backend answers 200 but leaves out either cookie the client ends up
// without a session: the returned session is empty, no error is returned and
// every following call fails with ErrUnauthenticated.
func (c *Client) Login(ctx context.Context, creds types.Credentials) (types.Session, error) {
	if !c.loginMu.TryLock() {
		return types.Session{}, &AuthError{Reason: ReasonLoginInProgress}
	}
	defer c.loginMu.Unlock()

	req, err := c.newLoginRequest(ctx, creds)
	if err != nil {
		return types.Session{}, err
	}

	log.Ctx(ctx).DebugContext(ctx, "logging in to proteus", slog.String("email", creds.Email))
	resp, err := c.client.Do(req)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "proteus login request failed", slog.Any("error", err))
		return types.Session{}, &TransportError{Op: "login", Err: err}
	}
	defer resp.Body.Close()
	drain(resp.Body)

	if resp.StatusCode != http.StatusOK {
		log.Ctx(ctx).ErrorContext(ctx, "proteus login rejected", slog.Int("status", resp.StatusCode))
		return types.Session{}, &AuthError{Reason: ReasonBadCredentials, Status: resp.StatusCode}
	}

	// the caller gave up, leave the current session alone
	if err := ctx.Err(); err != nil {
		return types.Session{}, &TransportError{Op: "login", Err: err}
	}

	sess, ok := parseSessionCookies(resp.Header)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "proteus login succeeded but session cookies are missing")
	} else {
		log.Ctx(ctx).InfoContext(ctx, "logged in to proteus", slog.String("email", creds.Email))
	}
	c.sessions.set(sess)
	if c.cache != nil {
		c.cache.purge()
	}
	return sess, nil
}
