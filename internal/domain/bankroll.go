package domain

// BankrollSnapshot is a point-in-time copy of the engine's capital state,
// exposed to the API surface and event consumers. The live, mutex-guarded
// state lives in the engine; this copy is safe to serialize.
type BankrollSnapshot struct {
	AvailableCapital float64
	TotalCommitted   float64
	// PerBookmakerExposure maps bookmaker ID to capital currently committed
	// at that bookmaker.
	PerBookmakerExposure map[string]float64
}
