package payoutfraud

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/richxcame/creator-payouts/pkg/common"
	"github.com/richxcame/creator-payouts/pkg/logger"
	"go.uber.org/zap"
)

var (
	// ErrPayoutNotFound indicates the payout request does not exist.
	ErrPayoutNotFound = errors.New("payout request not found")
	// ErrFlagNotFound indicates the flag does not exist or is not pending.
	ErrFlagNotFound = errors.New("fraud flag not found")
)

var (
	fraudChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payout_fraud_checks_total",
			Help: "Total number of payout fraud checks by outcome",
		},
		[]string{"outcome"},
	)

	fraudFlagsRaisedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payout_fraud_flags_raised_total",
			Help: "Total number of fraud flags raised by type",
		},
		[]string{"flag_type"},
	)
)

// Service runs payout fraud evaluations
type Service struct {
	repo     PayoutRepository
	scorer   RiskScorer
	notifier Notifier
	now      func() time.Time
}

// NewService creates a new fraud evaluation service
func NewService(repo PayoutRepository, scorer RiskScorer, notifier Notifier) *Service {
	return &Service{
		repo:     repo,
		scorer:   scorer,
		notifier: notifier,
		now:      time.Now,
	}
}

// CheckPayout evaluates a payout request for fraud, persists the verdict and
// fires downstream notifications. The evaluation is stateless per request
// and idempotent at the persistence layer: re-running overwrites the same
// verdict fields.
func (s *Service) CheckPayout(ctx context.Context, payoutRequestID uuid.UUID) (*CheckOutcome, error) {
	payout, err := s.repo.GetPayoutRequest(ctx, payoutRequestID)
	if err != nil {
		if errors.Is(err, ErrPayoutNotFound) {
			return nil, common.NewNotFoundError("Payout request not found", err)
		}
		logger.Error("failed to fetch payout request",
			zap.String("payout_request_id", payoutRequestID.String()),
			zap.Error(err),
		)
		return nil, common.NewInternalServerError("failed to fetch payout request")
	}

	creator := payout.Creator
	amount := payout.TotalAmount

	// Banned creators short-circuit before any flag is computed or persisted
	if creator.BannedAt != nil {
		return nil, common.NewForbiddenError("Creator is banned")
	}

	tier := GetTier(amount)
	thresholds := ThresholdsForTier(tier)

	entries, err := s.repo.GetLedgerEntries(ctx, payoutRequestID)
	if err != nil {
		logger.Error("failed to fetch ledger entries",
			zap.String("payout_request_id", payoutRequestID.String()),
			zap.Error(err),
		)
		return nil, common.NewInternalServerError("failed to fetch ledger entries")
	}

	sensitivity := s.resolveSensitivity(ctx, entries)
	engagementFloor := EngagementThreshold(sensitivity)

	flags := make([]FraudFlag, 0)

	// Previous fraud: permanent, raised regardless of anything else
	if creator.FraudFlagPermanent {
		flags = append(flags, FraudFlag{
			Type:   FlagTypePreviousFraud,
			Reason: fmt.Sprintf("Creator has %d previous confirmed fraud(s)", creator.FraudFlagCount),
		})
	}

	now := s.now()
	accountAgeDays := int(now.Sub(creator.CreatedAt).Hours() / 24)
	if accountAgeDays < NewCreatorDays && amount > NewCreatorAmountThreshold {
		flags = append(flags, FraudFlag{
			Type:           FlagTypeNewCreator,
			Reason:         fmt.Sprintf("Account is %d days old with payout of $%.2f", accountAgeDays, amount),
			DetectedValue:  float64Ptr(float64(accountAgeDays)),
			ThresholdValue: float64Ptr(NewCreatorDays),
		})
	}

	// Per-video checks. One flag per qualifying video, not deduplicated:
	// downstream review tooling depends on per-video granularity. The views
	// snapshot is built for every entry regardless of flag outcome.
	viewsSnapshot := make(map[string]int64, len(entries))
	for _, entry := range entries {
		viewsSnapshot[entry.ID.String()] = entry.Views

		metrics, err := s.repo.GetVideoMetrics(ctx, entry.VideoURL)
		if err != nil {
			logger.Warn("failed to fetch cached video metrics",
				zap.String("video_url", entry.VideoURL),
				zap.Error(err),
			)
			continue
		}
		if metrics == nil {
			continue
		}

		rate := EngagementRate(*metrics)
		if rate < engagementFloor {
			flags = append(flags, FraudFlag{
				Type:           FlagTypeEngagement,
				Reason:         fmt.Sprintf("Low engagement rate on video: %.3f%%", rate*100),
				DetectedValue:  float64Ptr(rate),
				ThresholdValue: float64Ptr(engagementFloor),
			})
		}

		if metrics.PreviousViews > 0 {
			multiplier := float64(metrics.Views) / float64(metrics.PreviousViews)
			if multiplier >= VelocityMultiplier {
				flags = append(flags, FraudFlag{
					Type:           FlagTypeVelocity,
					Reason:         fmt.Sprintf("Suspicious view spike: %.1fx increase", multiplier),
					DetectedValue:  float64Ptr(multiplier),
					ThresholdValue: float64Ptr(VelocityMultiplier),
				})
			}
		}
	}

	// Bot scoring degrades to a zero score instead of failing the check
	botScoring := s.scoreBots(ctx, payoutRequestID)
	if botScoring.AvgScore >= BotScoreFlagThreshold {
		flags = append(flags, FraudFlag{
			Type:           FlagTypeEngagement,
			Reason:         fmt.Sprintf("High bot score detected: %.1f/100", botScoring.AvgScore),
			DetectedValue:  float64Ptr(botScoring.AvgScore),
			ThresholdValue: float64Ptr(BotScoreFlagThreshold),
		})
	}

	successfulPayouts, err := s.repo.CountCompletedPayouts(ctx, creator.ID, thresholds.MinSuccessfulPayouts+1)
	if err != nil {
		logger.Error("failed to count completed payouts",
			zap.String("creator_id", creator.ID.String()),
			zap.Error(err),
		)
		return nil, common.NewInternalServerError("failed to count completed payouts")
	}

	meetsThresholds := creator.TrustScore >= thresholds.MinTrustScore &&
		accountAgeDays >= thresholds.MinAccountAgeDays &&
		successfulPayouts >= thresholds.MinSuccessfulPayouts

	// A single flag on one video blocks the whole payout. All-or-nothing is
	// deliberate: partial approval would let flagged earnings through.
	approved := len(flags) == 0 && meetsThresholds

	result := &FraudCheckResult{
		Approved:   approved,
		Tier:       tier,
		Flags:      flags,
		Thresholds: thresholds,
		CreatorStats: CreatorStats{
			TrustScore:            creator.TrustScore,
			AccountAgeDays:        accountAgeDays,
			SuccessfulPayoutCount: successfulPayouts,
		},
		FraudSensitivity: sensitivity,
		BotScoring:       *botScoring,
		CheckedAt:        now,
	}

	approval := ApprovalUpdate{Status: ApprovalStatusApproved}
	var evidenceDeadline *time.Time
	if !approved {
		requestedAt := now
		deadline := now.Add(EvidenceDeadlineHours * time.Hour)
		approval = ApprovalUpdate{
			Status:              ApprovalStatusPendingEvidence,
			EvidenceRequestedAt: &requestedAt,
			EvidenceDeadline:    &deadline,
		}
		evidenceDeadline = &deadline
	}

	if err := s.repo.SaveCheckResult(ctx, payoutRequestID, result, viewsSnapshot, approval); err != nil {
		logger.Error("failed to persist fraud check result",
			zap.String("payout_request_id", payoutRequestID.String()),
			zap.Error(err),
		)
		return nil, common.NewInternalServerError("failed to persist fraud check result")
	}

	if len(flags) > 0 {
		records := make([]FlagRecord, 0, len(flags))
		for _, flag := range flags {
			records = append(records, FlagRecord{
				ID:              uuid.New(),
				CreatorID:       creator.ID,
				PayoutRequestID: payoutRequestID,
				FlagType:        flag.Type,
				FlagReason:      flag.Reason,
				DetectedValue:   flag.DetectedValue,
				ThresholdValue:  flag.ThresholdValue,
				Status:          FlagStatusPending,
				CreatedAt:       now,
			})
			fraudFlagsRaisedTotal.WithLabelValues(string(flag.Type)).Inc()
		}
		if err := s.repo.InsertFraudFlags(ctx, records); err != nil {
			logger.Error("failed to record fraud flags",
				zap.String("payout_request_id", payoutRequestID.String()),
				zap.Error(err),
			)
			return nil, common.NewInternalServerError("failed to record fraud flags")
		}
	}

	if !approved {
		s.notifyNotApproved(ctx, payoutRequestID, creator, amount, flags, evidenceDeadline)
	}

	outcome := "denied"
	if approved {
		outcome = "approved"
	}
	fraudChecksTotal.WithLabelValues(outcome).Inc()

	logger.Info("Fraud check completed",
		zap.String("payout_request_id", payoutRequestID.String()),
		zap.Bool("approved", approved),
		zap.Int("flag_count", len(flags)),
		zap.String("tier", string(tier)),
	)

	return &CheckOutcome{
		Approved:         approved,
		Flags:            flags,
		Tier:             tier,
		RequiresEvidence: !approved,
		EvidenceDeadline: evidenceDeadline,
	}, nil
}

// resolveSensitivity resolves brand fraud sensitivity from the first ledger
// entry's source. Known limitation: a payout spanning campaign and boost
// sources uses only the first entry's brand setting.
func (s *Service) resolveSensitivity(ctx context.Context, entries []LedgerEntry) FraudSensitivity {
	if len(entries) == 0 {
		return SensitivityNormal
	}

	first := entries[0]
	sensitivity, err := s.repo.GetBrandSensitivity(ctx, first.SourceType, first.SourceID)
	if err != nil {
		logger.Warn("failed to resolve brand fraud sensitivity, defaulting to normal",
			zap.String("source_type", string(first.SourceType)),
			zap.String("source_id", first.SourceID.String()),
			zap.Error(err),
		)
		return SensitivityNormal
	}
	return sensitivity
}

// scoreBots invokes the external bot scorer. Failures are absorbed: the
// check proceeds with a zero score and no bot flags.
func (s *Service) scoreBots(ctx context.Context, payoutRequestID uuid.UUID) *BotScoringSummary {
	summary, err := s.scorer.Score(ctx, payoutRequestID)
	if err != nil {
		logger.Warn("bot scoring failed (non-blocking)",
			zap.String("payout_request_id", payoutRequestID.String()),
			zap.Error(err),
		)
		return &BotScoringSummary{Flags: []string{}}
	}

	logger.Info("Bot scoring completed",
		zap.String("payout_request_id", payoutRequestID.String()),
		zap.Float64("avg_score", summary.AvgScore),
		zap.Int("flag_count", len(summary.Flags)),
	)
	return summary
}

// notifyNotApproved fires the evidence request and, for high-priority
// cases, the fraud alert webhook. Both are best-effort.
func (s *Service) notifyNotApproved(ctx context.Context, payoutRequestID uuid.UUID, creator *CreatorProfile, amount float64, flags []FraudFlag, deadline *time.Time) {
	if err := s.notifier.SendEvidenceRequest(ctx, EvidenceRequest{
		PayoutRequestID: payoutRequestID,
		CreatorID:       creator.ID,
		Flags:           flags,
		Deadline:        deadline,
	}); err != nil {
		logger.Error("failed to send evidence request",
			zap.String("payout_request_id", payoutRequestID.String()),
			zap.Error(err),
		)
	}

	if amount > 500 || creator.FraudFlagPermanent {
		if err := s.notifier.SendFraudAlert(ctx, FraudAlert{
			PayoutRequestID: payoutRequestID,
			CreatorID:       creator.ID,
			Amount:          amount,
			Flags:           flags,
			Priority:        "high",
		}); err != nil {
			logger.Error("failed to send fraud alert",
				zap.String("payout_request_id", payoutRequestID.String()),
				zap.Error(err),
			)
		}
	}
}

// GetCheckResult returns the persisted verdict for a payout request
func (s *Service) GetCheckResult(ctx context.Context, payoutRequestID uuid.UUID) (*FraudCheckResult, error) {
	result, err := s.repo.GetCheckResult(ctx, payoutRequestID)
	if err != nil {
		if errors.Is(err, ErrPayoutNotFound) {
			return nil, common.NewNotFoundError("Payout request not found", err)
		}
		return nil, common.NewInternalServerError("failed to fetch fraud check result")
	}
	if result == nil {
		return nil, common.NewNotFoundError("fraud check result not found", nil)
	}
	return result, nil
}

// ListPendingFlags returns pending fraud flags for review, newest first
func (s *Service) ListPendingFlags(ctx context.Context, limit, offset int) ([]*FlagRecord, int64, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	records, total, err := s.repo.ListPendingFlags(ctx, limit, offset)
	if err != nil {
		return nil, 0, common.NewInternalServerError("failed to list pending fraud flags")
	}
	return records, total, nil
}

// ResolveFlag records a reviewer's decision on a pending flag
func (s *Service) ResolveFlag(ctx context.Context, flagID, reviewerID uuid.UUID, status FlagStatus, notes string) error {
	if status != FlagStatusConfirmed && status != FlagStatusDismissed {
		return common.NewBadRequestError("status must be confirmed or dismissed", nil)
	}

	if err := s.repo.ResolveFlag(ctx, flagID, reviewerID, status, notes); err != nil {
		if errors.Is(err, ErrFlagNotFound) {
			return common.NewNotFoundError("fraud flag not found or already resolved", err)
		}
		return common.NewInternalServerError("failed to resolve fraud flag")
	}

	logger.Info("Fraud flag resolved",
		zap.String("flag_id", flagID.String()),
		zap.String("reviewer_id", reviewerID.String()),
		zap.String("status", string(status)),
	)
	return nil
}

func float64Ptr(v float64) *float64 {
	return &v
}
