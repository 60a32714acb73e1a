package proteus

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/raterudder/proteus/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTarget = types.Target{InverterID: "inv-1", HouseholdID: "hh-1"}

// batchEcho answers every batch with one line per procedure containing the
// procedure name and its input.
func batchEcho(t *testing.T, hits *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		procs := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/trpc/"), ",")
		var input map[string]json.RawMessage
		require.NoError(t, json.Unmarshal([]byte(r.URL.Query().Get("input")), &input))
		require.Len(t, input, len(procs))
		for i, p := range procs {
			line, err := json.Marshal(map[string]any{
				"procedure": p,
				"input":     input[strconv.Itoa(i)],
			})
			require.NoError(t, err)
			w.Write(append(line, '\n'))
		}
	}
}

func TestOperations(t *testing.T) {
	t.Run("Catalogue", func(t *testing.T) {
		ops := Operations()
		assert.Len(t, ops, len(operations), "every operation should be listed")
		for _, op := range ops {
			procs, err := op.Procedures()
			require.NoError(t, err, op)
			assert.NotEmpty(t, procs, op)
		}
	})

	t.Run("DashboardSnapshotIsEverythingReadOnly", func(t *testing.T) {
		procs, err := OpDashboardSnapshot.Procedures()
		require.NoError(t, err)
		seen := map[string]bool{}
		for _, p := range procs {
			assert.False(t, seen[p], "duplicate procedure %s", p)
			seen[p] = true
		}
		for op, defs := range operations {
			if op == OpInverterList {
				continue
			}
			for _, s := range defs {
				assert.True(t, seen[s.name], "%s from %s missing from snapshot", s.name, op)
			}
		}
	})

	t.Run("Calls", func(t *testing.T) {
		calls, err := OpInverterPlanPage.Calls(testTarget)
		require.NoError(t, err)
		assert.Equal(t, []types.Call{
			types.NewCall("linkBoxes.connectionState", map[string]any{"householdId": "hh-1"}),
			types.NewCall("inverters.detail", map[string]any{"inverterId": "inv-1"}),
			types.NewCall("controlPlans.active", map[string]any{"inverterId": "inv-1"}),
		}, calls)

		calls, err = OpWSToken.Calls(types.Target{})
		require.NoError(t, err)
		assert.Equal(t, []types.Call{types.NewCall("users.wsToken", map[string]any{})}, calls)
	})

	t.Run("MissingIDs", func(t *testing.T) {
		_, err := OpCurrentStep.Calls(types.Target{HouseholdID: "hh-1"})
		assert.ErrorIs(t, err, ErrMissingInverterID)

		_, err = OpLinkBoxConnectionState.Calls(types.Target{InverterID: "inv-1"})
		assert.ErrorIs(t, err, ErrMissingHouseholdID)

		_, err = OpDashboardSummary.Calls(types.Target{InverterID: "inv-1"})
		assert.NoError(t, err, "summary does not need a household")
	})

	t.Run("SnapshotWithoutHousehold", func(t *testing.T) {
		calls, err := OpDashboardSnapshot.Calls(types.Target{InverterID: "inv-1"})
		require.NoError(t, err)
		procs, _ := OpDashboardSnapshot.Procedures()
		assert.Len(t, calls, len(procs)-1)
		for _, c := range calls {
			assert.NotEqual(t, "linkBoxes.connectionState", c.Procedure)
		}

		_, err = OpDashboardSnapshot.Calls(types.Target{HouseholdID: "hh-1"})
		assert.ErrorIs(t, err, ErrMissingInverterID, "the inverter is still required")

		_, err = OpInverterPlanPage.Calls(types.Target{InverterID: "inv-1"})
		assert.ErrorIs(t, err, ErrMissingHouseholdID, "only the snapshot skips the link box")
	})

	t.Run("Unknown", func(t *testing.T) {
		_, err := Operation("nope").Procedures()
		assert.ErrorIs(t, err, ErrUnknownOperation)
		_, err = Operation("nope").Calls(testTarget)
		assert.ErrorIs(t, err, ErrUnknownOperation)
	})
}

func TestRun(t *testing.T) {
	named := map[Operation]func(*Client, context.Context) ([]types.Result, error){
		OpActiveControlPlan:         (*Client).ActiveControlPlan,
		OpInverterDetail:            (*Client).InverterDetail,
		OpLinkBoxConnectionState:    (*Client).LinkBoxConnectionState,
		OpCurrentCommands:           (*Client).CurrentCommands,
		OpCurrentStep:               (*Client).CurrentStep,
		OpCurrentDistributionPrices: (*Client).CurrentDistributionPrices,
		OpWSToken:                   (*Client).WSToken,
		OpExtendedDetail:            (*Client).ExtendedDetail,
		OpLastState:                 (*Client).LastState,
		OpFlexibilityRewardsSummary: (*Client).FlexibilityRewardsSummary,
		OpInverterList:              (*Client).InverterList,
		OpInverterPlanPage:          (*Client).InverterPlanPage,
		OpDashboardSummary:          (*Client).DashboardSummary,
		OpDashboardSnapshot: func(c *Client, ctx context.Context) ([]types.Result, error) {
			snap, err := c.DashboardSnapshot(ctx)
			return snap.Results, err
		},
	}

	t.Run("Unauthenticated", func(t *testing.T) {
		rt := &recordingTransport{}
		c := New(WithHTTPClient(&http.Client{Transport: rt}), WithTarget(testTarget))
		for op, fn := range named {
			_, err := fn(c, context.Background())
			assert.ErrorIs(t, err, ErrUnauthenticated, op)
		}
		assert.Equal(t, 0, rt.count(), "no request should be made without a session")
	})

	t.Run("PositionalResults", func(t *testing.T) {
		ts := httptest.NewServer(batchEcho(t, nil))
		defer ts.Close()

		c, _ := newLoggedInClient(ts, WithTarget(testTarget))
		for op, fn := range named {
			results, err := fn(c, context.Background())
			require.NoError(t, err, op)

			procs, err := op.Procedures()
			require.NoError(t, err)
			require.Len(t, results, len(procs), op)
			for i, p := range procs {
				var line struct {
					Procedure string          `json:"procedure"`
					Input     json.RawMessage `json:"input"`
				}
				require.NoError(t, results[i].Decode(&line))
				assert.Equal(t, p, line.Procedure, "%s result %d", op, i)
			}
		}
	})

	t.Run("InverterListMeta", func(t *testing.T) {
		ts := httptest.NewServer(batchEcho(t, nil))
		defer ts.Close()

		c, _ := newLoggedInClient(ts)
		results, err := c.InverterList(context.Background())
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t,
			`{"input":{"json":null,"meta":{"values":["undefined"]}},"procedure":"inverters.list"}`,
			results[0].Raw,
		)
	})

	t.Run("MissingInverter", func(t *testing.T) {
		rt := &recordingTransport{}
		c := New(WithHTTPClient(&http.Client{Transport: rt}))
		c.sessions.set(testSession)

		_, err := c.LastState(context.Background())
		assert.ErrorIs(t, err, ErrMissingInverterID)
		assert.Equal(t, 0, rt.count())
	})

	t.Run("DashboardSnapshot", func(t *testing.T) {
		ts := httptest.NewServer(batchEcho(t, nil))
		defer ts.Close()

		c, rt := newLoggedInClient(ts, WithTarget(testTarget))
		before := time.Now()
		snap, err := c.DashboardSnapshot(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, rt.count(), "snapshot is a single round trip")
		assert.Equal(t, "inv-1", snap.InverterID)
		assert.False(t, snap.Timestamp.Before(before))

		procs, _ := OpDashboardSnapshot.Procedures()
		assert.Equal(t, procs, snap.Procedures)
		assert.Len(t, snap.Results, len(procs))
	})

	t.Run("DashboardSnapshotAfterDiscovery", func(t *testing.T) {
		echo := batchEcho(t, nil)
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/api/trpc/inverters.list" {
				w.Write([]byte(`{"json":[0,0,[[{"id":"inv-1","name":"Home"}]]]}` + "\n"))
				return
			}
			echo(w, r)
		}))
		defer ts.Close()

		c, rt := newLoggedInClient(ts)
		target, err := c.UseFirstInverter(context.Background())
		require.NoError(t, err)
		assert.Equal(t, types.Target{InverterID: "inv-1"}, target)

		snap, err := c.DashboardSnapshot(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, rt.count())
		assert.Equal(t, "inv-1", snap.InverterID)
		assert.NotContains(t, snap.Procedures, "linkBoxes.connectionState")
		require.Len(t, snap.Results, len(snap.Procedures))
		for i, p := range snap.Procedures {
			var line struct {
				Procedure string `json:"procedure"`
			}
			require.NoError(t, snap.Results[i].Decode(&line))
			assert.Equal(t, p, line.Procedure)
		}
	})

	t.Run("DashboardSnapshotKeepsFetchedTarget", func(t *testing.T) {
		var c *Client
		echo := batchEcho(t, nil)
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// the target changes while the batch is in flight
			c.SetTarget(types.Target{InverterID: "inv-2", HouseholdID: "hh-2"})
			echo(w, r)
		}))
		defer ts.Close()

		c, _ = newLoggedInClient(ts, WithTarget(testTarget))
		snap, err := c.DashboardSnapshot(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "inv-1", snap.InverterID)
		assert.Equal(t, "inv-2", c.Target().InverterID)
	})
}

func TestRunCache(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/trpc/users.loginWithEmailAndPassword" {
			http.SetCookie(w, &http.Cookie{Name: "proteus_session", Value: "S2"})
			http.SetCookie(w, &http.Cookie{Name: "proteus_csrf", Value: "C2"})
			return
		}
		batchEcho(t, &hits)(w, r)
	}))
	defer ts.Close()

	c, _ := newLoggedInClient(ts, WithTarget(testTarget), WithCache(8, time.Minute))
	now := time.Now()
	c.cache.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := c.LastState(ctx)
	require.NoError(t, err)
	_, err = c.LastState(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load(), "second call should be cached")

	_, err = c.CurrentStep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load(), "different operation is not cached")

	now = now.Add(2 * time.Minute)
	_, err = c.LastState(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load(), "expired entry should be refetched")

	_, err = c.Login(ctx, testCreds)
	require.NoError(t, err)
	_, err = c.LastState(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(4), hits.Load(), "login clears the cache")

	c.SetTarget(types.Target{InverterID: "inv-2"})
	_, err = c.LastState(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(5), hits.Load(), "new target is not cached")

	_, err = c.Call(ctx, []types.Call{types.NewCall("inverters.lastState", map[string]any{"inverterId": "inv-2"})})
	require.NoError(t, err)
	assert.Equal(t, int32(6), hits.Load(), "generic calls are never cached")
}

func TestWithCacheDisabled(t *testing.T) {
	assert.Nil(t, New(WithCache(0, time.Minute)).cache)
	assert.Nil(t, New(WithCache(8, 0)).cache)
	assert.NotNil(t, New(WithCache(8, time.Second)).cache)
}

func TestRunCacheIsolation(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(batchEcho(t, &hits))
	defer ts.Close()

	c, _ := newLoggedInClient(ts, WithTarget(testTarget), WithCache(8, time.Minute))
	ctx := context.Background()

	first, err := c.LastState(ctx)
	require.NoError(t, err)
	first[0].Value.(map[string]any)["procedure"] = "changed"

	second, err := c.LastState(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, "inverters.lastState", second[0].Value.(map[string]any)["procedure"])

	second[0].Value.(map[string]any)["procedure"] = "changed again"
	third, err := c.LastState(ctx)
	require.NoError(t, err)
	assert.Equal(t, "inverters.lastState", third[0].Value.(map[string]any)["procedure"])

	t.Run("Fallback", func(t *testing.T) {
		rc, err := newResultCache(4, time.Minute)
		require.NoError(t, err)
		rc.set(OpLastState, testTarget, Decode("{\"json\":1}\n<html>\n"))

		results, ok := rc.get(OpLastState, testTarget)
		require.True(t, ok)
		require.Len(t, results, 2)
		assert.Equal(t, types.Result{Value: map[string]any{"json": 1.0}, Raw: `{"json":1}`}, results[0])
		assert.Equal(t, types.Result{Raw: "<html>", Fallback: true}, results[1])
	})
}
