package models

// Plan is the subscription tier stored on a user document.
// A stored lite/pro plan with a past expiry is NOT reset to free; always
// derive an EffectivePlan before reasoning about entitlements.
type Plan string

const (
	PlanFree Plan = "free"
	PlanLite Plan = "lite"
	PlanPro  Plan = "pro"
)

// Valid reports whether p is one of the known tiers.
func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanLite, PlanPro:
		return true
	}
	return false
}

// Paid reports whether p is a paid tier (lite or pro).
func (p Plan) Paid() bool {
	return p == PlanLite || p == PlanPro
}

// ParsePlan converts a raw string into a Plan; unknown values map to free.
func ParsePlan(s string) Plan {
	p := Plan(s)
	if p.Valid() {
		return p
	}
	return PlanFree
}

// EffectivePlan is the tier that currently grants limits, after taking the
// subscription expiry into account. It is computed, never stored.
type EffectivePlan string

const (
	EffectiveFree EffectivePlan = "free"
	EffectiveLite EffectivePlan = "lite"
	EffectivePro  EffectivePlan = "pro"
)

// UsageKind identifies the request counter a message is metered against.
type UsageKind string

const (
	UsageText  UsageKind = "text"
	UsagePhoto UsageKind = "photo"
)

// Field returns the user document counter for k, or "" for unknown kinds.
func (k UsageKind) Field() string {
	switch k {
	case UsageText:
		return "text_used"
	case UsagePhoto:
		return "photo_used"
	}
	return ""
}
