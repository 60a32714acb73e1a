package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/proteus/pkg/log"
	"github.com/raterudder/proteus/pkg/proteus"
	"github.com/raterudder/proteus/pkg/storage"
	"github.com/raterudder/proteus/pkg/types"
)

func main() {
	os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")
	s := storage.Configured()
	inverterID := lflag.String("inverter-id", "00000000-seed-inverter", "Inverter ID to seed snapshots for")
	lflag.Configure()

	ctx := context.Background()
	if !s.Enabled() {
		log.Ctx(ctx).ErrorContext(ctx, "a storage provider is required, pass -storage-provider=firestore")
		os.Exit(1)
	}
	defer s.Close()

	log.Ctx(ctx).InfoContext(ctx, "seeding mock snapshots")

	procs, err := proteus.OpDashboardSnapshot.Procedures()
	if err != nil {
		panic(err)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	now := time.Now().UTC()
	start := now.Truncate(24 * time.Hour)

	const (
		BatteryCapacityKWH = 10.0
		MaxBatteryKW       = 5.0
		SolarPeakKW        = 6.0
	)
	currentSOC := 40.0

	for t := start; t.Before(now); t = t.Add(time.Hour) {
		hour := t.Hour()

		// Price in EUR/MWh, cheap around noon and at night
		price := 90.0
		if hour >= 6 && hour < 9 {
			price = 180
		} else if hour >= 10 && hour < 15 {
			price = 40
		} else if hour >= 17 && hour < 21 {
			price = 240
		}
		price += rng.Float64()*10 - 5

		solarKW := 0.0
		if hour > 6 && hour < 19 {
			dist := math.Abs(float64(hour) - 13.0)
			solarKW = SolarPeakKW * math.Exp(-(dist*dist)/12.0)
		}

		var mode types.BatteryPlanMode
		var batKW float64
		switch {
		case price < 60 && solarKW > 1:
			mode = types.BatteryPlanModeChargeFromPV
			batKW = -math.Min(solarKW, MaxBatteryKW)
		case price < 60:
			mode = types.BatteryPlanModeChargeFromGrid
			batKW = -MaxBatteryKW
		case price > 150:
			mode = types.BatteryPlanModeDischargeToHousehold
			batKW = MaxBatteryKW / 2
		default:
			mode = types.BatteryPlanModeDefault
		}

		currentSOC = math.Max(5, math.Min(100, currentSOC-(batKW/BatteryCapacityKWH)*100))

		step := map[string]any{
			"id":              fmt.Sprintf("seed-%02d", hour),
			"startAt":         t.Format(time.RFC3339),
			"durationMinutes": 60,
			"metadata": map[string]any{
				"flexalgoBattery":     string(mode),
				"targetSoC":           math.Round(currentSOC),
				"priceMwhConsumption": math.Round(price*100) / 100,
			},
		}
		state := map[string]any{
			"batteryStateOfCharge": math.Round(currentSOC),
			"photovoltaicPower":    math.Round(solarKW * 1000),
			"batteryPower":         math.Round(batKW * 1000),
		}

		snap := types.Snapshot{
			InverterID: *inverterID,
			Timestamp:  t,
			Procedures: procs,
			Results:    proteus.Decode(seedBody(step, state)),
		}
		if err := s.Database.SaveSnapshot(ctx, snap); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to seed snapshot", "error", err)
			os.Exit(1)
		}

		fmt.Printf("Seeded snapshot at %s: %s (Price: %.1f EUR/MWh, SOC: %.0f%%, Solar: %.1fkW)\n",
			t.Format(time.Kitchen), mode, price, currentSOC, solarKW)
	}

	log.Ctx(ctx).InfoContext(ctx, "seeded mock snapshots successfully")
}

// seedBody renders a response stream the way the backend would send it: a
// header line followed by one chunk per payload.
func seedBody(step, state map[string]any) string {
	var sb strings.Builder
	sb.WriteString(`{"json":{"0":[[0],[null,0,0]],"1":[[0],[null,0,1]]}}` + "\n")
	for i, v := range []any{map[string]any{"step": step}, state} {
		b, err := json.Marshal(map[string]any{"json": []any{i, 0, []any{[]any{v}}}})
		if err != nil {
			panic(err)
		}
		sb.Write(b)
		sb.WriteByte('\n')
	}
	return sb.String()
}
