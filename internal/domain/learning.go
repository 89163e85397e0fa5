package domain

// BucketStat is the realized win-rate/PnL accumulator for one learning
// bucket (a market-regime/strength combination), fed by TradeHistory as
// trades close.
type BucketStat struct {
	Key       string
	Wins      int
	Losses    int
	TotalPnL  float64
	AvgPnLPct float64
}

// LearningState is the single JSON snapshot persisted between process
// runs for the dynamic-filter feedback loop: the current policy
// parameters, the accumulated bucket statistics, and a rollback point to
// revert to if the policy regresses.
type LearningState struct {
	SchemaVersion int
	SavedAtMs     int64
	PolicyParams  map[string]float64
	BucketStats   map[string]BucketStat
	RollbackPoint map[string]float64
}
