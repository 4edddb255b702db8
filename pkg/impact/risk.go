package impact

import "fmt"

// RiskLevel is the ordered risk of a change to one module
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

var riskOrder = []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}

// Rank returns the position of the level in low < medium < high < critical
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	}
	return -1
}

func (r RiskLevel) Valid() bool { return r.Rank() >= 0 }

// Escalate raises the level by n steps, capped at critical
func (r RiskLevel) Escalate(n int) RiskLevel {
	return riskAt(r.Rank() + n)
}

// Decay lowers the level by n steps, floored at low
func (r RiskLevel) Decay(n int) RiskLevel {
	return riskAt(r.Rank() - n)
}

func riskAt(i int) RiskLevel {
	if i < 0 {
		i = 0
	}
	if i >= len(riskOrder) {
		i = len(riskOrder) - 1
	}
	return riskOrder[i]
}

// MaxRisk returns the highest of the given levels, or low when empty
func MaxRisk(levels ...RiskLevel) RiskLevel {
	out := RiskLow
	for _, l := range levels {
		if l.Rank() > out.Rank() {
			out = l
		}
	}
	return out
}

// ParseRisk parses a risk level name
func ParseRisk(raw string) (RiskLevel, error) {
	r := RiskLevel(raw)
	if !r.Valid() {
		return "", fmt.Errorf("unknown risk level %q", raw)
	}
	return r, nil
}
