package payoutfraud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles payout fraud data operations
type Repository struct {
	db *pgxpool.Pool
}

// Ensure the concrete repository satisfies the service's requirements.
var _ PayoutRepository = (*Repository)(nil)

// NewRepository creates a new payout fraud repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetPayoutRequest retrieves a payout request joined with its creator profile
func (r *Repository) GetPayoutRequest(ctx context.Context, id uuid.UUID) (*PayoutRequest, error) {
	query := `
		SELECT pr.id, pr.user_id, pr.total_amount, pr.status,
		       p.id, p.created_at, COALESCE(p.trust_score, 0),
		       COALESCE(p.fraud_flag_permanent, false), COALESCE(p.fraud_flag_count, 0),
		       p.banned_at
		FROM submission_payout_requests pr
		JOIN profiles p ON p.id = pr.user_id
		WHERE pr.id = $1
	`

	var payout PayoutRequest
	var creator CreatorProfile

	err := r.db.QueryRow(ctx, query, id).Scan(
		&payout.ID,
		&payout.UserID,
		&payout.TotalAmount,
		&payout.Status,
		&creator.ID,
		&creator.CreatedAt,
		&creator.TrustScore,
		&creator.FraudFlagPermanent,
		&creator.FraudFlagCount,
		&creator.BannedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPayoutNotFound
		}
		return nil, err
	}

	payout.Creator = &creator
	return &payout, nil
}

// GetLedgerEntries retrieves the payout's line items joined to their videos
func (r *Repository) GetLedgerEntries(ctx context.Context, payoutRequestID uuid.UUID) ([]LedgerEntry, error) {
	query := `
		SELECT pl.id, pl.payout_request_id, pl.source_type, pl.source_id,
		       vs.id, vs.video_url, COALESCE(vs.views, 0)
		FROM payment_ledger pl
		JOIN video_submissions vs ON vs.id = pl.video_submission_id
		WHERE pl.payout_request_id = $1
		ORDER BY pl.created_at ASC
	`

	rows, err := r.db.Query(ctx, query, payoutRequestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]LedgerEntry, 0)
	for rows.Next() {
		var entry LedgerEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.PayoutRequestID,
			&entry.SourceType,
			&entry.SourceID,
			&entry.VideoSubmissionID,
			&entry.VideoURL,
			&entry.Views,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// GetVideoMetrics retrieves the cached engagement snapshot for a video URL.
// Returns (nil, nil) when no snapshot exists.
func (r *Repository) GetVideoMetrics(ctx context.Context, videoURL string) (*VideoMetrics, error) {
	query := `
		SELECT COALESCE(views, 0), COALESCE(previous_views, 0),
		       COALESCE(likes, 0), COALESCE(comments, 0), COALESCE(shares, 0)
		FROM cached_campaign_videos
		WHERE video_url = $1
	`

	var metrics VideoMetrics
	err := r.db.QueryRow(ctx, query, videoURL).Scan(
		&metrics.Views,
		&metrics.PreviousViews,
		&metrics.Likes,
		&metrics.Comments,
		&metrics.Shares,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &metrics, nil
}

// GetBrandSensitivity resolves the brand fraud sensitivity behind a campaign
// or boost source. Missing rows resolve to normal.
func (r *Repository) GetBrandSensitivity(ctx context.Context, sourceType SourceType, sourceID uuid.UUID) (FraudSensitivity, error) {
	var query string
	switch sourceType {
	case SourceTypeCampaign:
		query = `
			SELECT COALESCE(b.fraud_sensitivity, 'normal')
			FROM campaigns c
			JOIN brands b ON b.id = c.brand_id
			WHERE c.id = $1
		`
	case SourceTypeBoost:
		query = `
			SELECT COALESCE(b.fraud_sensitivity, 'normal')
			FROM bounty_campaigns bc
			JOIN brands b ON b.id = bc.brand_id
			WHERE bc.id = $1
		`
	default:
		return SensitivityNormal, nil
	}

	var sensitivity FraudSensitivity
	err := r.db.QueryRow(ctx, query, sourceID).Scan(&sensitivity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SensitivityNormal, nil
		}
		return SensitivityNormal, err
	}

	return sensitivity, nil
}

// CountCompletedPayouts counts a creator's completed payout requests, capped
// at limit to avoid unbounded counting.
func (r *Repository) CountCompletedPayouts(ctx context.Context, creatorID uuid.UUID, limit int) (int, error) {
	query := `
		SELECT COUNT(*) FROM (
			SELECT id FROM submission_payout_requests
			WHERE user_id = $1 AND status = 'completed'
			LIMIT $2
		) capped
	`

	var count int
	if err := r.db.QueryRow(ctx, query, creatorID, limit).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// SaveCheckResult writes the verdict, views snapshot and approval fields
// onto the payout request. Re-running a check overwrites the same fields.
func (r *Repository) SaveCheckResult(ctx context.Context, payoutRequestID uuid.UUID, result *FraudCheckResult, viewsSnapshot map[string]int64, approval ApprovalUpdate) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal fraud check result: %w", err)
	}

	snapshotJSON, err := json.Marshal(viewsSnapshot)
	if err != nil {
		return fmt.Errorf("marshal views snapshot: %w", err)
	}

	query := `
		UPDATE submission_payout_requests
		SET fraud_check_result = $2,
		    views_snapshot = $3,
		    auto_approval_status = $4,
		    evidence_requested_at = $5,
		    evidence_deadline = $6,
		    updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query,
		payoutRequestID,
		resultJSON,
		snapshotJSON,
		approval.Status,
		approval.EvidenceRequestedAt,
		approval.EvidenceDeadline,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPayoutNotFound
	}
	return nil
}

// InsertFraudFlags appends flag rows to the review ledger
func (r *Repository) InsertFraudFlags(ctx context.Context, records []FlagRecord) error {
	query := `
		INSERT INTO fraud_flags (
			id, creator_id, payout_request_id, flag_type, flag_reason,
			detected_value, threshold_value, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	for _, record := range records {
		_, err := r.db.Exec(ctx, query,
			record.ID,
			record.CreatorID,
			record.PayoutRequestID,
			record.FlagType,
			record.FlagReason,
			record.DetectedValue,
			record.ThresholdValue,
			record.Status,
			record.CreatedAt,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

// GetCheckResult returns the persisted verdict for a payout request.
// Returns (nil, nil) when the request exists but has never been checked.
func (r *Repository) GetCheckResult(ctx context.Context, payoutRequestID uuid.UUID) (*FraudCheckResult, error) {
	query := `
		SELECT fraud_check_result
		FROM submission_payout_requests
		WHERE id = $1
	`

	var resultJSON []byte
	err := r.db.QueryRow(ctx, query, payoutRequestID).Scan(&resultJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPayoutNotFound
		}
		return nil, err
	}

	if len(resultJSON) == 0 {
		return nil, nil
	}

	var result FraudCheckResult
	if err := json.Unmarshal(resultJSON, &result); err != nil {
		return nil, fmt.Errorf("unmarshal fraud check result: %w", err)
	}
	return &result, nil
}

// ListPendingFlags retrieves pending fraud flags with total count
func (r *Repository) ListPendingFlags(ctx context.Context, limit, offset int) ([]*FlagRecord, int64, error) {
	var total int64
	countQuery := `SELECT COUNT(*) FROM fraud_flags WHERE status = 'pending'`
	if err := r.db.QueryRow(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, creator_id, payout_request_id, flag_type, flag_reason,
		       detected_value, threshold_value, status, reviewed_by,
		       reviewed_at, COALESCE(review_notes, ''), created_at
		FROM fraud_flags
		WHERE status = 'pending'
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	records := make([]*FlagRecord, 0)
	for rows.Next() {
		var record FlagRecord
		if err := rows.Scan(
			&record.ID,
			&record.CreatorID,
			&record.PayoutRequestID,
			&record.FlagType,
			&record.FlagReason,
			&record.DetectedValue,
			&record.ThresholdValue,
			&record.Status,
			&record.ReviewedBy,
			&record.ReviewedAt,
			&record.ReviewNotes,
			&record.CreatedAt,
		); err != nil {
			return nil, 0, err
		}
		records = append(records, &record)
	}

	return records, total, rows.Err()
}

// ResolveFlag moves a pending flag to confirmed or dismissed
func (r *Repository) ResolveFlag(ctx context.Context, flagID, reviewerID uuid.UUID, status FlagStatus, notes string) error {
	query := `
		UPDATE fraud_flags
		SET status = $2,
		    reviewed_by = $3,
		    reviewed_at = NOW(),
		    review_notes = COALESCE(NULLIF($4, ''), review_notes)
		WHERE id = $1 AND status = 'pending'
	`

	tag, err := r.db.Exec(ctx, query, flagID, status, reviewerID, notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrFlagNotFound
	}
	return nil
}
