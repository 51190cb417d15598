package weather

import "context"

// NoneSource is the provider used when weather is disabled. It always
// returns an empty observation, never an error, so the adapter serves a
// neutral snapshot and the coordinator schedules rain-unaware.
type NoneSource struct{}

// NewNoneSource creates the neutral provider.
func NewNoneSource() *NoneSource { return &NoneSource{} }

// Name implements Source.
func (*NoneSource) Name() string { return "none" }

// Fetch implements Source.
func (*NoneSource) Fetch(_ context.Context) (Observation, error) {
	return Observation{}, nil
}
