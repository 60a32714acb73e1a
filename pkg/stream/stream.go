// Package stream picks apart the lines of a jsonl batch response.
//
// When the backend streams a batch each line looks like
//
//	{"json":[index, 0, [[data]]]}
//
// where index is either the position of the call in the batch or a reference
// handed out by an earlier line. Data for a call can be spread over multiple
// lines that reference each other through ["result"|"data", 0, ref].
package stream

import (
	"github.com/raterudder/proteus/pkg/types"
)

// chunk returns the "json" array of a result line or nil when the line isn't
// shaped like a streamed chunk.
func chunk(r types.Result) []any {
	if r.Fallback {
		return nil
	}
	obj, ok := r.Value.(map[string]any)
	if !ok {
		return nil
	}
	arr, ok := obj["json"].([]any)
	if !ok || len(arr) == 0 {
		return nil
	}
	return arr
}

// chunkIndex returns the leading index of a chunk. JSON numbers decode as
// float64 so only integral values are accepted.
func chunkIndex(arr []any) (int, bool) {
	f, ok := arr[0].(float64)
	if !ok || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

// reference returns the index that a chunk points to, if any.
func reference(arr []any) (int, bool) {
	if len(arr) < 3 {
		return 0, false
	}
	nested, ok := arr[2].([]any)
	if !ok || len(nested) < 2 {
		return 0, false
	}
	ref, ok := nested[1].([]any)
	if !ok || len(ref) < 3 {
		return 0, false
	}
	return chunkIndex(ref[2:])
}

// ForIndex returns the lines that belong to the call at index, following
// references to later chunks. If nothing matches, all results are returned.
func ForIndex(results []types.Result, index int) []types.Result {
	want := map[int]bool{index: true}
	picked := make([]bool, len(results))
	var found bool

	// references only ever point forward so a single pass collects the
	// chain, the second pass catches anything referenced out of order
	for pass := 0; pass < 2; pass++ {
		for i, r := range results {
			if picked[i] {
				continue
			}
			arr := chunk(r)
			if arr == nil {
				continue
			}
			idx, ok := chunkIndex(arr)
			if !ok || !want[idx] {
				continue
			}
			picked[i] = true
			found = true
			if ref, ok := reference(arr); ok {
				want[ref] = true
			}
		}
	}

	if !found {
		return results
	}
	filtered := make([]types.Result, 0, len(results))
	for i, r := range results {
		if picked[i] {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// payload returns the data object of a line, either the first entry of a
// streamed chunk or a plain {"json": {...}} object.
func payload(r types.Result) (map[string]any, bool) {
	if arr := chunk(r); arr != nil {
		if len(arr) < 3 {
			return nil, false
		}
		outer, ok := arr[2].([]any)
		if !ok || len(outer) == 0 {
			return nil, false
		}
		inner, ok := outer[0].([]any)
		if !ok || len(inner) == 0 {
			return nil, false
		}
		obj, ok := inner[0].(map[string]any)
		return obj, ok
	}
	if r.Fallback {
		return nil, false
	}
	obj, ok := r.Value.(map[string]any)
	if !ok {
		return nil, false
	}
	data, ok := obj["json"].(map[string]any)
	return data, ok
}

// Find returns the value stored under key in the first line whose payload
// contains it.
func Find(results []types.Result, key string) (any, bool) {
	for _, r := range results {
		obj, ok := payload(r)
		if !ok {
			continue
		}
		if v, ok := obj[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// Payloads returns every data object found in the results, in line order.
func Payloads(results []types.Result) []map[string]any {
	var out []map[string]any
	for _, r := range results {
		if obj, ok := payload(r); ok {
			out = append(out, obj)
		}
	}
	return out
}

// ByProcedure associates each procedure of a snapshot with the lines that
// belong to it, relying on the batch position of the procedure.
func ByProcedure(snap types.Snapshot) map[string][]types.Result {
	out := make(map[string][]types.Result, len(snap.Procedures))
	for i, p := range snap.Procedures {
		out[p] = ForIndex(snap.Results, i)
	}
	return out
}
