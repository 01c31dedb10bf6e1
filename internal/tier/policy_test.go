package tier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyTable(t *testing.T) {
	r := NewResolver(nil)

	tests := []struct {
		tier     Tier
		prompts  int
		features []string
	}{
		{
			tier:     TierBasic,
			prompts:  75,
			features: []string{FeatureChat, FeatureAgent, FeatureCodeCompletion},
		},
		{
			tier:    TierMid,
			prompts: UnlimitedPrompts,
			features: []string{
				FeatureChat, FeatureAgent, FeatureCodeCompletion,
				FeatureDependencyVisualization, FeatureKnowledgeBase,
			},
		},
		{
			tier:    TierTop,
			prompts: UnlimitedPrompts,
			features: []string{
				FeatureChat, FeatureAgent, FeatureCodeCompletion,
				FeatureDependencyVisualization, FeatureKnowledgeBase,
				FeatureFineTuning, FeatureRBAC, FeatureAuditLogging, FeatureSSO,
			},
		},
	}

	for _, tc := range tests {
		t.Run(string(tc.tier), func(t *testing.T) {
			p := r.PolicyFor(tc.tier)
			assert.Equal(t, tc.prompts, p.PromptsPerMonth)
			assert.Equal(t, tc.features, p.Features)
		})
	}
}

func TestPolicyForUnknownTierFallsBackToBasic(t *testing.T) {
	r := NewResolver(nil)
	p := r.PolicyFor(Tier("enterprise-legacy"))
	assert.Equal(t, 75, p.PromptsPerMonth)
	assert.Equal(t, r.PolicyFor(TierBasic), p)
}

func TestParse(t *testing.T) {
	tests := []struct {
		raw  string
		want Tier
		ok   bool
	}{
		{"basic", TierBasic, true},
		{"MID", TierMid, true},
		{" top ", TierTop, true},
		{"", TierBasic, false},
		{"premium", TierBasic, false},
	}

	for _, tc := range tests {
		got, ok := Parse(tc.raw)
		assert.Equal(t, tc.want, got, "parse %q", tc.raw)
		assert.Equal(t, tc.ok, ok, "parse %q ok", tc.raw)
	}
}

func TestFromPlanID(t *testing.T) {
	got, ok := FromPlanID("scale-developer")
	require.True(t, ok)
	assert.Equal(t, TierMid, got)

	got, ok = FromPlanID("scale-pro")
	require.True(t, ok)
	assert.Equal(t, TierTop, got)

	got, ok = FromPlanID("totally-unknown-plan")
	assert.False(t, ok)
	assert.Equal(t, TierBasic, got)
}

func TestPlanIDForRoundTrips(t *testing.T) {
	for _, tier := range []Tier{TierBasic, TierMid, TierTop} {
		planID := PlanIDFor(tier)
		require.NotEmpty(t, planID)
		got, ok := FromPlanID(planID)
		require.True(t, ok)
		assert.Equal(t, tier, got)
	}
}

func TestPolicyResolverCopiesFeatures(t *testing.T) {
	r := NewResolver(nil)
	p := r.PolicyFor(TierBasic)
	p.Features[0] = "mutated"

	fresh := r.PolicyFor(TierBasic)
	assert.Equal(t, FeatureChat, fresh.Features[0])
}
