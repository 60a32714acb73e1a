package proteus

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/raterudder/proteus/pkg/types"
)

// Decode splits a jsonl body into lines and parses each one on its own. The
// result has one entry per non-empty line, in line order. Lines that are not
// valid JSON are kept as fallback results so one bad line never hides its
// siblings.
func Decode(body string) []types.Result {
	body = strings.TrimSpace(body)
	if body == "" {
		return []types.Result{}
	}

	lines := strings.Split(body, "\n")
	results := make([]types.Result, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		results = append(results, decodeLine(line))
	}
	return results
}

// decodeLine parses a single trimmed, non-empty line.
func decodeLine(line string) types.Result {
	var v any
	if err := json.Unmarshal([]byte(line), &v); err != nil {
		return types.Result{Raw: line, Fallback: true}
	}
	return types.Result{Value: v, Raw: line}
}

// decodeResponse reads a batch response. Anything but a 200 is returned as
// an RPCError carrying the body.
func decodeResponse(resp *http.Response) ([]types.Result, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: "call", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &RPCError{Status: resp.StatusCode, Body: string(body)}
	}
	return Decode(string(body)), nil
}
