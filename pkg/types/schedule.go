package types

import "time"

// BatteryPlanMode is the battery mode the optimizer picked for a control plan
// step.
type BatteryPlanMode string

const (
	BatteryPlanModeChargeFromGrid       BatteryPlanMode = "charge_from_grid"
	BatteryPlanModeDischargeToHousehold BatteryPlanMode = "discharge_to_household"
	BatteryPlanModeDoNotDischarge       BatteryPlanMode = "do_not_discharge"
	BatteryPlanModeChargeFromPV         BatteryPlanMode = "charge_from_pv"
	BatteryPlanModeDefault              BatteryPlanMode = "default"
)

// ScheduleStep is one step of the active control plan.
type ScheduleStep struct {
	ID        string          `json:"id"`
	Start     time.Time       `json:"start"`
	Duration  time.Duration   `json:"duration"`
	Mode      BatteryPlanMode `json:"mode"`
	TargetSoC float64         `json:"targetSoC"`
	// PriceMWh is the consumption price for the step in CZK/MWh.
	PriceMWh float64 `json:"priceMwh"`

	// predictions are in Wh and not always present
	PredictedConsumption *float64 `json:"predictedConsumption,omitempty"`
	PredictedProduction  *float64 `json:"predictedProduction,omitempty"`

	StartedAt  time.Time `json:"startedAt,omitzero"`
	FinishedAt time.Time `json:"finishedAt,omitzero"`
}

// End returns when the step is over.
func (s ScheduleStep) End() time.Time {
	return s.Start.Add(s.Duration)
}

// PriceKWh returns the price in CZK/kWh.
func (s ScheduleStep) PriceKWh() float64 {
	return s.PriceMWh / 1000
}
