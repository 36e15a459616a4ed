package payoutfraud

import (
	"time"

	"github.com/google/uuid"
)

// FlagType classifies a raised fraud flag
type FlagType string

const (
	FlagTypeEngagement    FlagType = "engagement"
	FlagTypeVelocity      FlagType = "velocity"
	FlagTypeNewCreator    FlagType = "new_creator"
	FlagTypePreviousFraud FlagType = "previous_fraud"
)

// FlagStatus tracks a persisted flag through human review
type FlagStatus string

const (
	FlagStatusPending   FlagStatus = "pending"
	FlagStatusConfirmed FlagStatus = "confirmed"
	FlagStatusDismissed FlagStatus = "dismissed"
)

// PayoutTier buckets payout amounts for approval thresholds
type PayoutTier string

const (
	TierMicro  PayoutTier = "micro"
	TierSmall  PayoutTier = "small"
	TierMedium PayoutTier = "medium"
	TierLarge  PayoutTier = "large"
)

// FraudSensitivity is a brand-level setting controlling the engagement floor
type FraudSensitivity string

const (
	SensitivityStrict  FraudSensitivity = "strict"
	SensitivityNormal  FraudSensitivity = "normal"
	SensitivityLenient FraudSensitivity = "lenient"
)

// SourceType identifies which store a ledger entry was earned from
type SourceType string

const (
	SourceTypeCampaign SourceType = "campaign"
	SourceTypeBoost    SourceType = "boost"
)

// ApprovalStatus is the auto-approval outcome written onto the payout request
type ApprovalStatus string

const (
	ApprovalStatusApproved        ApprovalStatus = "approved"
	ApprovalStatusPendingEvidence ApprovalStatus = "pending_evidence"
)

// CreatorProfile is the creator subset the evaluator reads
type CreatorProfile struct {
	ID                 uuid.UUID  `json:"id" db:"id"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	TrustScore         float64    `json:"trust_score" db:"trust_score"`
	FraudFlagPermanent bool       `json:"fraud_flag_permanent" db:"fraud_flag_permanent"`
	FraudFlagCount     int        `json:"fraud_flag_count" db:"fraud_flag_count"`
	BannedAt           *time.Time `json:"banned_at,omitempty" db:"banned_at"`
}

// PayoutRequest is a creator's payout request joined with its creator profile
type PayoutRequest struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	UserID      uuid.UUID       `json:"user_id" db:"user_id"`
	TotalAmount float64         `json:"total_amount" db:"total_amount"`
	Status      string          `json:"status" db:"status"`
	Creator     *CreatorProfile `json:"creator,omitempty"`
}

// LedgerEntry is one payout line item joined to its video submission
type LedgerEntry struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	PayoutRequestID   uuid.UUID  `json:"payout_request_id" db:"payout_request_id"`
	SourceType        SourceType `json:"source_type" db:"source_type"`
	SourceID          uuid.UUID  `json:"source_id" db:"source_id"`
	VideoSubmissionID uuid.UUID  `json:"video_submission_id" db:"video_submission_id"`
	VideoURL          string     `json:"video_url" db:"video_url"`
	Views             int64      `json:"views" db:"views"`
}

// VideoMetrics is the periodically refreshed engagement snapshot for a video.
// Freshness is managed by the sync job that owns the cache, not here.
type VideoMetrics struct {
	Views         int64 `json:"views" db:"views"`
	PreviousViews int64 `json:"previous_views" db:"previous_views"`
	Likes         int64 `json:"likes" db:"likes"`
	Comments      int64 `json:"comments" db:"comments"`
	Shares        int64 `json:"shares" db:"shares"`
}

// FraudFlag is one raised check failure. Flags are raised per offending
// video, not per request, so a single check can appear multiple times.
type FraudFlag struct {
	Type           FlagType `json:"type"`
	Reason         string   `json:"reason"`
	DetectedValue  *float64 `json:"detectedValue,omitempty"`
	ThresholdValue *float64 `json:"thresholdValue,omitempty"`
}

// FlagRecord is a persisted fraud flag awaiting human review
type FlagRecord struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	CreatorID       uuid.UUID  `json:"creator_id" db:"creator_id"`
	PayoutRequestID uuid.UUID  `json:"payout_request_id" db:"payout_request_id"`
	FlagType        FlagType   `json:"flag_type" db:"flag_type"`
	FlagReason      string     `json:"flag_reason" db:"flag_reason"`
	DetectedValue   *float64   `json:"detected_value,omitempty" db:"detected_value"`
	ThresholdValue  *float64   `json:"threshold_value,omitempty" db:"threshold_value"`
	Status          FlagStatus `json:"status" db:"status"`
	ReviewedBy      *uuid.UUID `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty" db:"reviewed_at"`
	ReviewNotes     string     `json:"review_notes,omitempty" db:"review_notes"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
}

// ApprovalThresholds are the tier-dependent eligibility minimums
type ApprovalThresholds struct {
	MinTrustScore        float64 `json:"minTrustScore"`
	MinAccountAgeDays    int     `json:"minAccountAgeDays"`
	MinSuccessfulPayouts int     `json:"minSuccessfulPayouts"`
}

// CreatorStats are the creator-side inputs to the eligibility check
type CreatorStats struct {
	TrustScore            float64 `json:"trustScore"`
	AccountAgeDays        int     `json:"accountAgeDays"`
	SuccessfulPayoutCount int     `json:"successfulPayoutCount"`
}

// BotScoringSummary folds the external bot-scoring result into the verdict
type BotScoringSummary struct {
	AvgScore float64  `json:"avgScore"`
	Flags    []string `json:"flags"`
}

// FraudCheckResult is the full structured verdict persisted onto the payout
// request
type FraudCheckResult struct {
	Approved         bool               `json:"approved"`
	Tier             PayoutTier         `json:"tier"`
	Flags            []FraudFlag        `json:"flags"`
	Thresholds       ApprovalThresholds `json:"thresholds"`
	CreatorStats     CreatorStats       `json:"creatorStats"`
	FraudSensitivity FraudSensitivity   `json:"fraudSensitivity"`
	BotScoring       BotScoringSummary  `json:"botScoring"`
	CheckedAt        time.Time          `json:"checkedAt"`
}

// ApprovalUpdate carries the approval fields written with the verdict
type ApprovalUpdate struct {
	Status              ApprovalStatus
	EvidenceRequestedAt *time.Time
	EvidenceDeadline    *time.Time
}

// CheckOutcome is the caller-facing result of one evaluation
type CheckOutcome struct {
	Approved         bool        `json:"approved"`
	Flags            []FraudFlag `json:"flags"`
	Tier             PayoutTier  `json:"tier"`
	RequiresEvidence bool        `json:"requiresEvidence"`
	EvidenceDeadline *time.Time  `json:"evidenceDeadline,omitempty"`
}

// EvidenceRequest is the payload sent to the evidence-request notifier
type EvidenceRequest struct {
	PayoutRequestID uuid.UUID   `json:"payoutRequestId"`
	CreatorID       uuid.UUID   `json:"creatorId"`
	Flags           []FraudFlag `json:"flags"`
	Deadline        *time.Time  `json:"deadline,omitempty"`
}

// FraudAlert is the payload for high-priority webhook alerts
type FraudAlert struct {
	PayoutRequestID uuid.UUID   `json:"payoutRequestId"`
	CreatorID       uuid.UUID   `json:"creatorId"`
	Amount          float64     `json:"amount"`
	Flags           []FraudFlag `json:"flags"`
	Priority        string      `json:"priority"`
}

// ========================================
// REQUEST/RESPONSE TYPES
// ========================================

// CheckPayoutRequest is the body of POST /fraud/check
type CheckPayoutRequest struct {
	PayoutRequestID string `json:"payoutRequestId" binding:"required"`
}

// ResolveFlagRequest is the body of POST /fraud/flags/:id/resolve
type ResolveFlagRequest struct {
	ReviewerID uuid.UUID `json:"reviewerId" binding:"required"`
	Status     string    `json:"status" binding:"required,oneof=confirmed dismissed"`
	Notes      string    `json:"notes,omitempty" binding:"max=2000"`
}
