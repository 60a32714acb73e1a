package proteus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/raterudder/proteus/pkg/types"
)

const trpcPath = "api/trpc"

// envelope is how the backend expects every input to be wrapped.
type envelope struct {
	JSON any `json:"json"`
	Meta any `json:"meta,omitempty"`
}

func procedureNames(calls []types.Call) []string {
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Procedure
	}
	return names
}

// encodeBatchInput builds {"0":{"json":...},"1":{"json":...}}. Keys are
// written in call order since the backend lines up inputs, procedures and
// response lines by position.
func encodeBatchInput(calls []types.Call) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range calls {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(strconv.Itoa(i))
		buf.Write(key)
		buf.WriteByte(':')

		val, err := json.Marshal(envelope{JSON: c.Input, Meta: c.Meta})
		if err != nil {
			return nil, fmt.Errorf("failed to encode input for %s (%d): %w", c.Procedure, i, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func trpcURL(baseURL, procedures string) (*url.URL, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	u.Path, err = url.JoinPath(u.Path, trpcPath, procedures)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// buildBatchRequest returns the GET request for a batch. It fails before
// doing anything if there is no valid session.
func buildBatchRequest(ctx context.Context, baseURL string, calls []types.Call, sess types.Session) (*http.Request, error) {
	if !sess.Valid() {
		return nil, &AuthError{Reason: ReasonUnauthenticated}
	}
	if len(calls) == 0 {
		return nil, ErrEmptyBatch
	}
	for _, c := range calls {
		if c.Procedure == "" {
			return nil, ErrEmptyProcedure
		}
	}

	input, err := encodeBatchInput(calls)
	if err != nil {
		return nil, err
	}

	u, err := trpcURL(baseURL, strings.Join(procedureNames(calls), ","))
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("batch", "1")
	params.Set("input", string(input))
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cookie", cookieHeader(sess))
	req.Header.Set("x-proteus-csrf", sess.CSRF)
	req.Header.Set("trpc-accept", "application/jsonl")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Referer", strings.TrimSuffix(baseURL, "/")+"/")
	return req, nil
}
