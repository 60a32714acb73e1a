// Package schedule turns the controlPlans.active response into the list of
// steps the optimizer planned for the battery.
package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/raterudder/proteus/pkg/stream"
	"github.com/raterudder/proteus/pkg/types"
)

// ErrNoActivePlan is returned when the response has no active control plan.
var ErrNoActivePlan = errors.New("no active control plan")

type activePlan struct {
	Payload struct {
		Steps []planStep `json:"steps"`
	} `json:"payload"`
}

type planStep struct {
	ID              string  `json:"id"`
	StartAt         string  `json:"startAt"`
	DurationMinutes float64 `json:"durationMinutes"`
	Metadata        struct {
		FlexalgoBattery      string   `json:"flexalgoBattery"`
		TargetSoC            float64  `json:"targetSoC"`
		PriceMwh             *float64 `json:"priceMwh"`
		PriceMwhConsumption  *float64 `json:"priceMwhConsumption"`
		PredictedConsumption *float64 `json:"predictedConsumption"`
		PredictedProduction  *float64 `json:"predictedProduction"`
	} `json:"metadata"`
	State *struct {
		StartedAt  string `json:"startedAt"`
		FinishedAt string `json:"finishedAt"`
	} `json:"state"`
}

// FromResults finds the active plan in the lines of a controlPlans.active
// response (on its own or as part of a larger batch) and returns its steps
// ordered by start time. Steps without a parseable start are dropped.
func FromResults(results []types.Result) ([]types.ScheduleStep, error) {
	raw, ok := stream.Find(results, "activePlan")
	if !ok || raw == nil {
		return nil, ErrNoActivePlan
	}

	// round-trip through JSON to get typed fields out of the decoded value
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encode active plan: %w", err)
	}
	var plan activePlan
	if err := json.Unmarshal(b, &plan); err != nil {
		return nil, fmt.Errorf("failed to decode active plan: %w", err)
	}

	steps := make([]types.ScheduleStep, 0, len(plan.Payload.Steps))
	for _, ps := range plan.Payload.Steps {
		step, ok := convertStep(ps)
		if !ok {
			continue
		}
		steps = append(steps, step)
	}
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].Start.Before(steps[j].Start)
	})
	return steps, nil
}

func convertStep(ps planStep) (types.ScheduleStep, bool) {
	start, err := time.Parse(time.RFC3339, ps.StartAt)
	if err != nil {
		return types.ScheduleStep{}, false
	}

	step := types.ScheduleStep{
		ID:                   ps.ID,
		Start:                start,
		Duration:             time.Duration(ps.DurationMinutes * float64(time.Minute)),
		Mode:                 types.BatteryPlanMode(ps.Metadata.FlexalgoBattery),
		TargetSoC:            ps.Metadata.TargetSoC,
		PredictedConsumption: ps.Metadata.PredictedConsumption,
		PredictedProduction:  ps.Metadata.PredictedProduction,
	}
	switch {
	case ps.Metadata.PriceMwhConsumption != nil:
		step.PriceMWh = *ps.Metadata.PriceMwhConsumption
	case ps.Metadata.PriceMwh != nil:
		step.PriceMWh = *ps.Metadata.PriceMwh
	}
	if ps.State != nil {
		// missing or malformed timestamps just stay zero
		step.StartedAt, _ = time.Parse(time.RFC3339, ps.State.StartedAt)
		step.FinishedAt, _ = time.Parse(time.RFC3339, ps.State.FinishedAt)
	}
	return step, true
}

// Upcoming returns the steps that start in the current hour or later.
func Upcoming(steps []types.ScheduleStep, now time.Time) []types.ScheduleStep {
	hour := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
	var out []types.ScheduleStep
	for _, s := range steps {
		if !s.Start.Before(hour) {
			out = append(out, s)
		}
	}
	return out
}

// Current returns the step running at now, or the next one to start.
func Current(steps []types.ScheduleStep, now time.Time) (types.ScheduleStep, bool) {
	for _, s := range steps {
		if !now.Before(s.Start) && now.Before(s.End()) {
			return s, true
		}
		if s.Start.After(now) {
			return s, true
		}
	}
	return types.ScheduleStep{}, false
}

// Between returns the steps overlapping [start, end).
func Between(steps []types.ScheduleStep, start, end time.Time) []types.ScheduleStep {
	var out []types.ScheduleStep
	for _, s := range steps {
		if s.Start.Before(end) && s.End().After(start) {
			out = append(out, s)
		}
	}
	return out
}
