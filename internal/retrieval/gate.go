package retrieval

// Decision is the two-state outcome of the confidence gate.
type Decision int

const (
	DecisionSufficient Decision = iota
	DecisionEscalate
)

func (d Decision) String() string {
	if d == DecisionEscalate {
		return "escalate"
	}
	return "sufficient"
}

// Gate decides whether retrieved evidence is enough or a web search fallback
// must run. The threshold is inclusive on the sufficient side so a result
// sitting exactly at the boundary does not oscillate.
func Gate(result Result, threshold float64) Decision {
	if len(result.Ranked) == 0 {
		return DecisionEscalate
	}
	if result.Confidence >= threshold {
		return DecisionSufficient
	}
	return DecisionEscalate
}
