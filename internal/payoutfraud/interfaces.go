package payoutfraud

import (
	"context"

	"github.com/google/uuid"
)

// PayoutRepository is the persistence surface the evaluator needs. The
// payout, ledger, metrics and brand tables are owned by other services;
// this component only reads them and writes verdict fields and flag rows.
type PayoutRepository interface {
	// GetPayoutRequest returns the payout request joined with its creator
	// profile, or ErrPayoutNotFound.
	GetPayoutRequest(ctx context.Context, id uuid.UUID) (*PayoutRequest, error)

	// GetLedgerEntries returns the line items of a payout request joined to
	// their video submissions.
	GetLedgerEntries(ctx context.Context, payoutRequestID uuid.UUID) ([]LedgerEntry, error)

	// GetVideoMetrics returns the cached engagement snapshot for a video
	// URL, or (nil, nil) when no snapshot exists.
	GetVideoMetrics(ctx context.Context, videoURL string) (*VideoMetrics, error)

	// GetBrandSensitivity resolves the fraud sensitivity of the brand
	// behind a campaign or boost. Missing rows resolve to normal.
	GetBrandSensitivity(ctx context.Context, sourceType SourceType, sourceID uuid.UUID) (FraudSensitivity, error)

	// CountCompletedPayouts counts a creator's completed payout requests,
	// capped at limit.
	CountCompletedPayouts(ctx context.Context, creatorID uuid.UUID, limit int) (int, error)

	// SaveCheckResult writes the verdict, views snapshot and approval
	// fields onto the payout request in one statement.
	SaveCheckResult(ctx context.Context, payoutRequestID uuid.UUID, result *FraudCheckResult, viewsSnapshot map[string]int64, approval ApprovalUpdate) error

	// InsertFraudFlags appends flag rows to the review ledger.
	InsertFraudFlags(ctx context.Context, records []FlagRecord) error

	// GetCheckResult returns the persisted verdict for a payout request, or
	// (nil, nil) when the request exists but has never been checked.
	GetCheckResult(ctx context.Context, payoutRequestID uuid.UUID) (*FraudCheckResult, error)

	// ListPendingFlags returns pending flag rows newest first with the
	// total pending count.
	ListPendingFlags(ctx context.Context, limit, offset int) ([]*FlagRecord, int64, error)

	// ResolveFlag moves a pending flag to confirmed or dismissed.
	ResolveFlag(ctx context.Context, flagID, reviewerID uuid.UUID, status FlagStatus, notes string) error
}

// RiskScorer scores the videos behind a payout request for bot activity.
// Implementations must bound their own latency; callers treat any error as
// a neutral zero score.
type RiskScorer interface {
	Score(ctx context.Context, payoutRequestID uuid.UUID) (*BotScoringSummary, error)
}

// Notifier delivers evaluation side effects. Both calls are best-effort;
// errors are logged by the caller and never fail the evaluation.
type Notifier interface {
	SendEvidenceRequest(ctx context.Context, req EvidenceRequest) error
	SendFraudAlert(ctx context.Context, alert FraudAlert) error
}
