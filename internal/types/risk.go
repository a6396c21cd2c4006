package types

import "fmt"

// RiskLevel is totally ordered: Low < Medium < High < Critical.
type RiskLevel uint8

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

var riskNames = [...]string{"low", "medium", "high", "critical"}

func (r RiskLevel) String() string {
	if int(r) < len(riskNames) {
		return riskNames[r]
	}
	return fmt.Sprintf("RiskLevel(%d)", uint8(r))
}

func (r RiskLevel) Valid() bool {
	return r <= RiskCritical
}

func ParseRiskLevel(s string) (RiskLevel, error) {
	for i, name := range riskNames {
		if name == s {
			return RiskLevel(i), nil
		}
	}
	return RiskLow, fmt.Errorf("unknown risk level %q", s)
}

func (r RiskLevel) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid risk level %d", uint8(r))
	}
	return []byte(r.String()), nil
}

func (r *RiskLevel) UnmarshalText(text []byte) error {
	level, err := ParseRiskLevel(string(text))
	if err != nil {
		return err
	}
	*r = level
	return nil
}

// MaxRisk returns the highest of the given levels, or RiskLow when none are given.
func MaxRisk(levels ...RiskLevel) RiskLevel {
	out := RiskLow
	for _, l := range levels {
		if l > out {
			out = l
		}
	}
	return out
}

// RiskCounts tallies items by risk level.
type RiskCounts struct {
	Low      int `json:"low"`
	Medium   int `json:"medium"`
	High     int `json:"high"`
	Critical int `json:"critical"`
}

func (c *RiskCounts) Add(level RiskLevel) {
	switch level {
	case RiskLow:
		c.Low++
	case RiskMedium:
		c.Medium++
	case RiskHigh:
		c.High++
	case RiskCritical:
		c.Critical++
	}
}
