package proteus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/raterudder/proteus/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const inverterListBody = `{"json":{"0":[[0],[null,0,0]]}}
{"json":[0,0,[[{"id":"0123456789abcdef","vendor":"goodwe","controlMode":"AUTOMATIC","controlEnabled":true}]]]}
{"json":[1,0,[[{"id":"fedcba98","name":"Garage","householdId":"hh-9"}]]]}
{"json":[2,0,[[{"name":"no id"}]]]}
`

func TestDiscoverInverters(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/trpc/inverters.list", r.URL.Path)
		w.Write([]byte(inverterListBody))
	}))
	defer ts.Close()

	t.Run("List", func(t *testing.T) {
		c, _ := newLoggedInClient(ts)
		inverters, err := c.DiscoverInverters(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []types.Inverter{
			{
				ID:             "0123456789abcdef",
				Name:           "Inverter 01234567",
				Vendor:         "goodwe",
				ControlMode:    "AUTOMATIC",
				ControlEnabled: true,
			},
			{
				ID:          "fedcba98",
				HouseholdID: "hh-9",
				Name:        "Garage",
				Vendor:      "Unknown",
			},
		}, inverters)
	})

	t.Run("UseFirstInverter", func(t *testing.T) {
		c, _ := newLoggedInClient(ts)
		target, err := c.UseFirstInverter(context.Background())
		require.NoError(t, err)
		assert.Equal(t, types.Target{InverterID: "0123456789abcdef"}, target)
		assert.Equal(t, target, c.Target())
	})

	t.Run("AlreadyConfigured", func(t *testing.T) {
		c, rt := newLoggedInClient(ts, WithTarget(types.Target{InverterID: "mine"}))
		target, err := c.UseFirstInverter(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "mine", target.InverterID)
		assert.Equal(t, 0, rt.count())
	})

	t.Run("NoInverters", func(t *testing.T) {
		empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("{\"json\":[0,0,[[]]]}\n"))
		}))
		defer empty.Close()

		c, _ := newLoggedInClient(empty)
		_, err := c.UseFirstInverter(context.Background())
		assert.ErrorIs(t, err, ErrNoInverters)
	})

	t.Run("Unauthenticated", func(t *testing.T) {
		c, rt := newTestClient(ts)
		_, err := c.UseFirstInverter(context.Background())
		assert.ErrorIs(t, err, ErrUnauthenticated)
		assert.Equal(t, 0, rt.count())
	})
}
