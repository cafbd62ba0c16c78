// Package plans holds the pricing plan catalogue.
//
// The catalogue is the single source of truth for what each tier may do and
// how many metered units it gets per billing period. Quota limits are
// snapshotted into the ledger when a period opens, so editing the catalogue
// only affects periods opened afterwards.
package plans

import "errors"

var ErrPlanNotFound = errors.New("plan not found")

// ID identifies a pricing tier.
type ID string

const (
	Free      ID = "free"
	Pro       ID = "pro"
	Executive ID = "executive"
)

// Feature names gate access to product capabilities.
const (
	FeatureAutoApply      = "auto_apply"
	FeatureCVReview       = "cv_review"
	FeatureRecruiterReach = "recruiter_reach"
)

// Plan defines limits and features for a pricing tier.
type Plan struct {
	ID           ID       `json:"id"`
	Name         string   `json:"name"`
	MonthlyQuota int      `json:"monthlyQuota"` // metered auto-apply units per period
	PriceCents   int      `json:"priceCents"`   // monthly price, ZAR cents
	Features     []string `json:"features"`
}

// HasFeature reports whether the plan includes the named feature.
func (p Plan) HasFeature(feature string) bool {
	for _, f := range p.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// defaults is the built-in catalogue.
var defaults = map[ID]Plan{
	Free: {
		ID:           Free,
		Name:         "Free",
		MonthlyQuota: 5,
		PriceCents:   0,
		Features:     []string{FeatureAutoApply},
	},
	Pro: {
		ID:           Pro,
		Name:         "Pro",
		MonthlyQuota: 100,
		PriceCents:   9900,
		Features:     []string{FeatureAutoApply, FeatureCVReview},
	},
	Executive: {
		ID:           Executive,
		Name:         "Executive",
		MonthlyQuota: 1000,
		PriceCents:   29900,
		Features:     []string{FeatureAutoApply, FeatureCVReview, FeatureRecruiterReach},
	},
}

// Catalog is an immutable plan lookup.
type Catalog struct {
	plans map[ID]Plan
}

// New builds a catalogue from the built-in defaults, applying any quota
// overrides (plan ID -> monthly quota). Overrides <= 0 are ignored.
func New(quotaOverrides map[ID]int) *Catalog {
	plans := make(map[ID]Plan, len(defaults))
	for id, p := range defaults {
		if q, ok := quotaOverrides[id]; ok && q > 0 {
			p.MonthlyQuota = q
		}
		plans[id] = p
	}
	return &Catalog{plans: plans}
}

// Get returns the plan for the given ID.
func (c *Catalog) Get(id ID) (Plan, error) {
	p, ok := c.plans[id]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return p, nil
}

// List returns all plans in display order.
func (c *Catalog) List() []Plan {
	out := make([]Plan, 0, len(c.plans))
	for _, id := range []ID{Free, Pro, Executive} {
		if p, ok := c.plans[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Valid returns true if the plan ID is recognised.
func (c *Catalog) Valid(id ID) bool {
	_, ok := c.plans[id]
	return ok
}
