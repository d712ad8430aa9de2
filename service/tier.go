package service

import (
	"github.com/jahboukie/ndarite/config"
)

// Subscription tier names, ordered free < starter < professional < enterprise.
const (
	TierFree         = "free"
	TierStarter      = "starter"
	TierProfessional = "professional"
	TierEnterprise   = "enterprise"
)

// UnlimitedQuota is the sentinel quota meaning no monthly ceiling.
const UnlimitedQuota = -1

// tierLevels is the single place the tier ordering lives. Every access and
// quota decision routes through TierPolicy; callers never reimplement this.
var tierLevels = map[string]int{
	TierFree:         0,
	TierStarter:      1,
	TierProfessional: 2,
	TierEnterprise:   3,
}

// TierPolicy resolves tier ordering, quota limits and template access.
// It is pure: deterministic given its configuration, no state of its own.
type TierPolicy struct {
	quotas map[string]int
}

// NewTierPolicy builds a policy from the configured per-tier quotas.
func NewTierPolicy(cfg *config.TiersConfig) *TierPolicy {
	return &TierPolicy{
		quotas: map[string]int{
			TierFree:         *cfg.FreeLimit,
			TierStarter:      *cfg.StarterLimit,
			TierProfessional: *cfg.ProfessionalLimit,
			TierEnterprise:   *cfg.EnterpriseLimit,
		},
	}
}

// Level maps a tier name to its ordinal. Unknown tiers resolve to the lowest
// ordinal: the policy fails safe-deny, never open.
func (p *TierPolicy) Level(tier string) int {
	return tierLevels[tier]
}

// CanAccessTemplate reports whether a caller tier meets a template's
// tier requirement. Access is monotonic in tier ordinal.
func (p *TierPolicy) CanAccessTemplate(callerTier, tierRequirement string) bool {
	return p.Level(callerTier) >= p.Level(tierRequirement)
}

// QuotaFor returns the monthly document ceiling for a tier, or
// UnlimitedQuota. Unrecognized tiers get the free quota.
func (p *TierPolicy) QuotaFor(tier string) int {
	if quota, ok := p.quotas[tier]; ok {
		return quota
	}
	return p.quotas[TierFree]
}

// HasQuotaRemaining reports whether another generation attempt is allowed
// given the caller's current-period count.
func (p *TierPolicy) HasQuotaRemaining(tier string, currentPeriodCount int) bool {
	quota := p.QuotaFor(tier)
	if quota == UnlimitedQuota {
		return true
	}
	return currentPeriodCount < quota
}

// Plan describes one subscription tier for the plan catalog.
type Plan struct {
	Tier         string `json:"tier"`
	Level        int    `json:"level"`
	MonthlyQuota int    `json:"monthly_quota"`
	Unlimited    bool   `json:"unlimited"`
}

// Plans returns the tier catalog in ascending order.
func (p *TierPolicy) Plans() []Plan {
	tiers := []string{TierFree, TierStarter, TierProfessional, TierEnterprise}
	plans := make([]Plan, 0, len(tiers))
	for _, tier := range tiers {
		quota := p.QuotaFor(tier)
		plans = append(plans, Plan{
			Tier:         tier,
			Level:        p.Level(tier),
			MonthlyQuota: quota,
			Unlimited:    quota == UnlimitedQuota,
		})
	}
	return plans
}
