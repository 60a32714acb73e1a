package types

// Inverter is an inverter that belongs to the logged-in user.
type Inverter struct {
	ID             string `json:"id"`
	HouseholdID    string `json:"householdId,omitempty"`
	Name           string `json:"name"`
	Vendor         string `json:"vendor"`
	ControlMode    string `json:"controlMode,omitempty"`
	ControlEnabled bool   `json:"controlEnabled"`
}

// Target identifies which inverter and household named operations are issued
// for.
type Target struct {
	InverterID  string `json:"inverterId"`
	HouseholdID string `json:"householdId"`
}
