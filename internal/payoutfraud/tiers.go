package payoutfraud

const (
	// EvidenceDeadlineHours is how long a creator has to respond to an
	// evidence request.
	EvidenceDeadlineHours = 48

	// NewCreatorDays is the account age below which a creator counts as new.
	NewCreatorDays = 30

	// NewCreatorAmountThreshold is the payout amount above which a new
	// creator is flagged.
	NewCreatorAmountThreshold = 100.0

	// VelocityMultiplier is the view growth ratio that counts as a spike.
	VelocityMultiplier = 10.0

	// BotScoreFlagThreshold is the average bot score at which a flag is
	// raised.
	BotScoreFlagThreshold = 60.0
)

// approvalThresholds maps each payout tier to its eligibility minimums.
// Thresholds increase monotonically with tier.
var approvalThresholds = map[PayoutTier]ApprovalThresholds{
	TierMicro:  {MinTrustScore: 60, MinAccountAgeDays: 0, MinSuccessfulPayouts: 0},
	TierSmall:  {MinTrustScore: 70, MinAccountAgeDays: 14, MinSuccessfulPayouts: 0},
	TierMedium: {MinTrustScore: 80, MinAccountAgeDays: 30, MinSuccessfulPayouts: 3},
	TierLarge:  {MinTrustScore: 90, MinAccountAgeDays: 60, MinSuccessfulPayouts: 5},
}

// engagementThresholds maps brand fraud sensitivity to the minimum
// acceptable engagement rate.
var engagementThresholds = map[FraudSensitivity]float64{
	SensitivityStrict:  0.0015, // 0.15%
	SensitivityNormal:  0.001,  // 0.1%
	SensitivityLenient: 0.0005, // 0.05%
}

// GetTier buckets a payout amount. Upper bounds are inclusive.
func GetTier(amount float64) PayoutTier {
	switch {
	case amount <= 50:
		return TierMicro
	case amount <= 200:
		return TierSmall
	case amount <= 1000:
		return TierMedium
	default:
		return TierLarge
	}
}

// ThresholdsForTier returns the approval thresholds for a tier. Unknown
// tiers fall back to the small-tier thresholds.
func ThresholdsForTier(tier PayoutTier) ApprovalThresholds {
	if thresholds, ok := approvalThresholds[tier]; ok {
		return thresholds
	}
	return approvalThresholds[TierSmall]
}

// EngagementThreshold returns the engagement-rate floor for a sensitivity
// setting, defaulting to normal.
func EngagementThreshold(sensitivity FraudSensitivity) float64 {
	if threshold, ok := engagementThresholds[sensitivity]; ok {
		return threshold
	}
	return engagementThresholds[SensitivityNormal]
}

// EngagementRate computes comments/views, falling back to
// (likes+shares)/views when comments are zero (often disabled per-video).
// Zero views yields zero.
func EngagementRate(m VideoMetrics) float64 {
	if m.Views == 0 {
		return 0
	}
	if m.Comments > 0 {
		return float64(m.Comments) / float64(m.Views)
	}
	return float64(m.Likes+m.Shares) / float64(m.Views)
}
