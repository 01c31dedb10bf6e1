// Package tier is the single source of truth for plan entitlements.
// Feature sets and prompt quotas are always derived from this table,
// never stored independently of the tier that produced them.
package tier

import (
	"strings"

	"github.com/scalehq/entitlements/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Tier identifies a subscription plan level.
type Tier string

const (
	TierBasic Tier = "basic"
	TierMid   Tier = "mid"
	TierTop   Tier = "top"
)

// UnlimitedPrompts marks a tier without a monthly prompt cap.
const UnlimitedPrompts = -1

// Feature identifiers unlocked by tiers.
const (
	FeatureChat                    = "chat"
	FeatureAgent                   = "agent"
	FeatureCodeCompletion          = "codeCompletion"
	FeatureDependencyVisualization = "dependencyVisualization"
	FeatureKnowledgeBase           = "knowledgeBase"
	FeatureFineTuning              = "fineTuning"
	FeatureRBAC                    = "rbac"
	FeatureAuditLogging            = "auditLogging"
	FeatureSSO                     = "sso"
)

// Policy describes what a tier entitles a user to.
type Policy struct {
	PromptsPerMonth int
	Features        []string
}

var policies = map[Tier]Policy{
	TierBasic: {
		PromptsPerMonth: 75,
		Features: []string{
			FeatureChat,
			FeatureAgent,
			FeatureCodeCompletion,
		},
	},
	TierMid: {
		PromptsPerMonth: UnlimitedPrompts,
		Features: []string{
			FeatureChat,
			FeatureAgent,
			FeatureCodeCompletion,
			FeatureDependencyVisualization,
			FeatureKnowledgeBase,
		},
	},
	TierTop: {
		PromptsPerMonth: UnlimitedPrompts,
		Features: []string{
			FeatureChat,
			FeatureAgent,
			FeatureCodeCompletion,
			FeatureDependencyVisualization,
			FeatureKnowledgeBase,
			FeatureFineTuning,
			FeatureRBAC,
			FeatureAuditLogging,
			FeatureSSO,
		},
	},
}

// planIDs maps billing-provider plan identifiers to tiers.
var planIDs = map[string]Tier{
	"scale-basic":      TierBasic,
	"scale-starter":    TierBasic,
	"scale-developer":  TierMid,
	"scale-team":       TierMid,
	"scale-pro":        TierTop,
	"scale-enterprise": TierTop,
}

// Parse normalizes a tier string. Unknown or legacy values fall back to
// basic; callers that need strictness should check ok.
func Parse(raw string) (Tier, bool) {
	switch Tier(strings.ToLower(strings.TrimSpace(raw))) {
	case TierBasic:
		return TierBasic, true
	case TierMid:
		return TierMid, true
	case TierTop:
		return TierTop, true
	default:
		return TierBasic, false
	}
}

// canonicalPlanIDs picks the plan identifier used when we initiate a
// purchase; the inverse map above stays tolerant of every alias.
var canonicalPlanIDs = map[Tier]string{
	TierBasic: "scale-basic",
	TierMid:   "scale-developer",
	TierTop:   "scale-pro",
}

// PlanIDFor returns the canonical billing plan identifier for a tier.
func PlanIDFor(t Tier) string {
	return canonicalPlanIDs[t]
}

// FromPlanID resolves a billing-provider plan identifier. Unknown plan IDs
// fall back to basic with ok=false so callers can log the mismatch.
func FromPlanID(planID string) (Tier, bool) {
	t, ok := planIDs[strings.ToLower(strings.TrimSpace(planID))]
	if !ok {
		return TierBasic, false
	}
	return t, true
}

// Resolver answers policy lookups, layering operator overrides from the
// reloadable policy file over the compiled-in table.
type Resolver struct {
	holder *config.PolicyHolder
}

func NewResolver(holder *config.PolicyHolder) *Resolver {
	return &Resolver{holder: holder}
}

// PolicyFor returns the effective policy for a tier. Unknown tiers resolve
// to the basic policy.
func (r *Resolver) PolicyFor(t Tier) Policy {
	base, ok := policies[t]
	if !ok {
		base = policies[TierBasic]
	}

	p := Policy{
		PromptsPerMonth: base.PromptsPerMonth,
		Features:        append([]string(nil), base.Features...),
	}

	if r == nil || r.holder == nil {
		return p
	}
	override, ok := r.holder.Get().Tiers[string(t)]
	if !ok {
		return p
	}
	if override.PromptsPerMonth != nil {
		p.PromptsPerMonth = *override.PromptsPerMonth
	}
	if len(override.Features) > 0 {
		p.Features = append([]string(nil), override.Features...)
	}
	return p
}

// validate rejects a broken policy table at startup.
func validate(log *zap.Logger, r *Resolver) error {
	for _, t := range []Tier{TierBasic, TierMid, TierTop} {
		p := r.PolicyFor(t)
		if len(p.Features) == 0 {
			log.Error("tier policy has no features", zap.String("tier", string(t)))
			return errEmptyPolicy
		}
		if p.PromptsPerMonth == 0 {
			log.Error("tier policy has zero quota", zap.String("tier", string(t)))
			return errEmptyPolicy
		}
	}
	return nil
}

var Module = fx.Module("tier",
	fx.Provide(NewResolver),
	fx.Invoke(validate),
)
