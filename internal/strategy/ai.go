package strategy

// Oracle is the decision backend of the AI strategy. The LLM adapter
// implements it; tests substitute a canned one.
type Oracle interface {
	Decide(sc *Context) (Action, error)
}

// Default fallback discipline: after FallbackThreshold consecutive oracle
// failures the fallback strategy drives for FallbackDuration turns, then the
// oracle is retried.
const (
	DefaultFallbackThreshold = 3
	DefaultFallbackDuration  = 10
)

// AI delegates decisions to an oracle with a local fallback strategy.
type AI struct {
	Oracle    Oracle
	Fallback  Strategy
	Threshold int
	Duration  int

	failures      int
	fallbackTurns int
}

// NewAI wires an oracle to a fallback strategy. Zero threshold/duration pick
// the defaults.
func NewAI(oracle Oracle, fallback Strategy, threshold, duration int) *AI {
	if threshold <= 0 {
		threshold = DefaultFallbackThreshold
	}
	if duration <= 0 {
		duration = DefaultFallbackDuration
	}
	return &AI{Oracle: oracle, Fallback: fallback, Threshold: threshold, Duration: duration}
}

func (s *AI) Name() string { return "ai_strategy" }

// InFallback reports whether the fallback strategy is currently driving.
func (s *AI) InFallback() bool { return s.fallbackTurns > 0 }

func (s *AI) Decide(sc *Context) (Action, error) {
	if s.fallbackTurns > 0 {
		s.fallbackTurns--
		return s.Fallback.Decide(sc)
	}

	a, err := s.Oracle.Decide(sc)
	if err != nil {
		s.failures++
		if s.failures >= s.Threshold {
			s.failures = 0
			s.fallbackTurns = s.Duration
		}
		return s.Fallback.Decide(sc)
	}
	s.failures = 0
	return a, nil
}

func (s *AI) OnOutcome(a Action, outcome string) {
	s.Fallback.OnOutcome(a, outcome)
}
