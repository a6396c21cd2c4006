package collision

import (
	"canaswarm-vision-go/internal/config"
	"canaswarm-vision-go/internal/types"
)

type Category string

const (
	CategoryVulnerable Category = "vulnerable"
	CategoryVehicle    Category = "vehicle"
	CategoryStatic     Category = "static"
	CategoryUnknown    Category = "unknown"
)

// detectorClasses is the fixed class set of the object detector.
var detectorClasses = map[string]Category{
	"person":        CategoryVulnerable,
	"animal_cattle": CategoryVulnerable,
	"animal_horse":  CategoryVulnerable,
	"animal_dog":    CategoryVulnerable,
	"tractor":       CategoryVehicle,
	"truck":         CategoryVehicle,
	"car":           CategoryVehicle,
	"other_robot":   CategoryVehicle,
	"pole":          CategoryStatic,
	"tree":          CategoryStatic,
	"rock":          CategoryStatic,
	"machinery":     CategoryStatic,
}

// ClassPolicy is the resolved risk record for one class. Each threshold is
// an exclusive upper bound on distance, so a closer object never gets a
// lower level than a farther one of the same class.
type ClassPolicy struct {
	Category      Category
	Base          types.RiskLevel
	HighWithinM   float64
	MediumWithinM float64
	MarginApplies bool
}

func policyFor(category Category, p config.ObjectPolicy) ClassPolicy {
	switch category {
	case CategoryVulnerable:
		return ClassPolicy{
			Category:      category,
			Base:          types.RiskLow,
			HighWithinM:   p.VulnerableHighM,
			MediumWithinM: p.MediumM,
			MarginApplies: true,
		}
	case CategoryVehicle, CategoryUnknown:
		return ClassPolicy{
			Category:      category,
			Base:          types.RiskMedium,
			HighWithinM:   p.VehicleHighM,
			MediumWithinM: p.MediumM,
		}
	default:
		return ClassPolicy{
			Category:      CategoryStatic,
			Base:          types.RiskLow,
			MediumWithinM: p.MediumM,
		}
	}
}

// buildClassTable resolves every known class once, at construction time.
func buildClassTable(p config.ObjectPolicy) map[string]ClassPolicy {
	table := make(map[string]ClassPolicy, len(detectorClasses)+len(p.ExtraClasses))
	for class, category := range detectorClasses {
		table[class] = policyFor(category, p)
	}
	for class, category := range p.ExtraClasses {
		table[class] = policyFor(Category(category), p)
	}
	return table
}
