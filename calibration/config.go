package calibration

// Config tunes one calibration run.
type Config struct {
	// Budget caps stage-1 candidates, baseline included.
	Budget int
	// TopRefine is how many stage-1 performers get refined.
	TopRefine int
	// Finalists go through Monte Carlo.
	Finalists int

	MCRuns             int
	MCMonths           int
	MaxDrawdownPct     float64
	MaxMonthlyLossProb float64
	StressHitDrop      float64
	FastMC             bool

	MinTradesPerDay float64
	Workers         int
	// Stride samples every Nth frame row when synthesizing snapshots.
	Stride int
	// Balance is the sleeve balance used for synthetic snapshots.
	Balance float64
}

func DefaultConfig() Config {
	return Config{
		Budget:             300,
		TopRefine:          20,
		Finalists:          10,
		MCRuns:             1000,
		MCMonths:           12,
		MaxDrawdownPct:     15,
		MaxMonthlyLossProb: 25,
		StressHitDrop:      0.10,
		MinTradesPerDay:    0.3,
		Stride:             4,
		Balance:            10000,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Budget <= 0 {
		c.Budget = d.Budget
	}
	if c.TopRefine <= 0 {
		c.TopRefine = d.TopRefine
	}
	if c.Finalists <= 0 {
		c.Finalists = d.Finalists
	}
	if c.MCRuns <= 0 {
		c.MCRuns = d.MCRuns
	}
	if c.MCMonths <= 0 {
		c.MCMonths = d.MCMonths
	}
	if c.MaxDrawdownPct <= 0 {
		c.MaxDrawdownPct = d.MaxDrawdownPct
	}
	if c.MaxMonthlyLossProb <= 0 {
		c.MaxMonthlyLossProb = d.MaxMonthlyLossProb
	}
	if c.StressHitDrop <= 0 {
		c.StressHitDrop = d.StressHitDrop
	}
	if c.MinTradesPerDay <= 0 {
		c.MinTradesPerDay = d.MinTradesPerDay
	}
	if c.Stride <= 0 {
		c.Stride = d.Stride
	}
	if c.Balance <= 0 {
		c.Balance = d.Balance
	}
	return c
}
