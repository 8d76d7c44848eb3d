package tracking

// Config holds tunable parameters for the inference scheduler.
type Config struct {
	// LostFaceAfter logs "lost face" once this many consecutive ticks
	// produce no update. Zero disables the message.
	LostFaceAfter int

	// FailureLogEvery rate-limits backend failure logs: the first failure of
	// a run is logged, then every Nth.
	FailureLogEvery int
}

// DefaultConfig returns the recommended configuration.
func DefaultConfig() Config {
	return Config{
		LostFaceAfter:   5,
		FailureLogEvery: 30,
	}
}
