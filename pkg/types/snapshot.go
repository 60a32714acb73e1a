package types

import "time"

// Snapshot is the raw output of one dashboard batch along with the procedures
// it was issued for. Results are in line order, which is not necessarily the
// same length as Procedures.
type Snapshot struct {
	InverterID string    `json:"inverterId"`
	Timestamp  time.Time `json:"timestamp"`
	Procedures []string  `json:"procedures"`
	Results    []Result  `json:"results"`
}
