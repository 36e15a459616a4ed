package payoutfraud

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/creator-payouts/pkg/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPayoutRepository struct {
	mock.Mock
}

func (m *mockPayoutRepository) GetPayoutRequest(ctx context.Context, id uuid.UUID) (*PayoutRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PayoutRequest), args.Error(1)
}

func (m *mockPayoutRepository) GetLedgerEntries(ctx context.Context, payoutRequestID uuid.UUID) ([]LedgerEntry, error) {
	args := m.Called(ctx, payoutRequestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]LedgerEntry), args.Error(1)
}

func (m *mockPayoutRepository) GetVideoMetrics(ctx context.Context, videoURL string) (*VideoMetrics, error) {
	args := m.Called(ctx, videoURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*VideoMetrics), args.Error(1)
}

func (m *mockPayoutRepository) GetBrandSensitivity(ctx context.Context, sourceType SourceType, sourceID uuid.UUID) (FraudSensitivity, error) {
	args := m.Called(ctx, sourceType, sourceID)
	return args.Get(0).(FraudSensitivity), args.Error(1)
}

func (m *mockPayoutRepository) CountCompletedPayouts(ctx context.Context, creatorID uuid.UUID, limit int) (int, error) {
	args := m.Called(ctx, creatorID, limit)
	return args.Int(0), args.Error(1)
}

func (m *mockPayoutRepository) SaveCheckResult(ctx context.Context, payoutRequestID uuid.UUID, result *FraudCheckResult, viewsSnapshot map[string]int64, approval ApprovalUpdate) error {
	args := m.Called(ctx, payoutRequestID, result, viewsSnapshot, approval)
	return args.Error(0)
}

func (m *mockPayoutRepository) InsertFraudFlags(ctx context.Context, records []FlagRecord) error {
	args := m.Called(ctx, records)
	return args.Error(0)
}

func (m *mockPayoutRepository) GetCheckResult(ctx context.Context, payoutRequestID uuid.UUID) (*FraudCheckResult, error) {
	args := m.Called(ctx, payoutRequestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*FraudCheckResult), args.Error(1)
}

func (m *mockPayoutRepository) ListPendingFlags(ctx context.Context, limit, offset int) ([]*FlagRecord, int64, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*FlagRecord), args.Get(1).(int64), args.Error(2)
}

func (m *mockPayoutRepository) ResolveFlag(ctx context.Context, flagID, reviewerID uuid.UUID, status FlagStatus, notes string) error {
	args := m.Called(ctx, flagID, reviewerID, status, notes)
	return args.Error(0)
}

type mockRiskScorer struct {
	mock.Mock
}

func (m *mockRiskScorer) Score(ctx context.Context, payoutRequestID uuid.UUID) (*BotScoringSummary, error) {
	args := m.Called(ctx, payoutRequestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*BotScoringSummary), args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) SendEvidenceRequest(ctx context.Context, req EvidenceRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *mockNotifier) SendFraudAlert(ctx context.Context, alert FraudAlert) error {
	args := m.Called(ctx, alert)
	return args.Error(0)
}

func newTestService(repo *mockPayoutRepository, scorer *mockRiskScorer, notifier *mockNotifier) *Service {
	s := NewService(repo, scorer, notifier)
	return s
}

func cleanCreator(trustScore float64, ageDays int) *CreatorProfile {
	return &CreatorProfile{
		ID:         uuid.New(),
		CreatedAt:  time.Now().Add(-time.Duration(ageDays) * 24 * time.Hour),
		TrustScore: trustScore,
	}
}

func payoutFor(creator *CreatorProfile, amount float64) *PayoutRequest {
	return &PayoutRequest{
		ID:          uuid.New(),
		UserID:      creator.ID,
		TotalAmount: amount,
		Status:      "pending",
		Creator:     creator,
	}
}

func zeroBotScore() *BotScoringSummary {
	return &BotScoringSummary{AvgScore: 0, Flags: []string{}}
}

func TestCheckPayout_ApprovedCleanCreator(t *testing.T) {
	repo := new(mockPayoutRepository)
	scorer := new(mockRiskScorer)
	notifier := new(mockNotifier)
	service := newTestService(repo, scorer, notifier)

	creator := cleanCreator(65, 10)
	payout := payoutFor(creator, 45) // micro tier: trust >= 60, no age or payout minimums

	repo.On("GetPayoutRequest", mock.Anything, payout.ID).Return(payout, nil)
	repo.On("GetLedgerEntries", mock.Anything, payout.ID).Return([]LedgerEntry{}, nil)
	scorer.On("Score", mock.Anything, payout.ID).Return(zeroBotScore(), nil)
	repo.On("CountCompletedPayouts", mock.Anything, creator.ID, 1).Return(0, nil)
	repo.On("SaveCheckResult", mock.Anything, payout.ID, mock.MatchedBy(func(r *FraudCheckResult) bool {
		return r.Approved && r.Tier == TierMicro && len(r.Flags) == 0
	}), mock.Anything, mock.MatchedBy(func(a ApprovalUpdate) bool {
		return a.Status == ApprovalStatusApproved && a.EvidenceDeadline == nil
	})).Return(nil)

	outcome, err := service.CheckPayout(context.Background(), payout.ID)

	require.NoError(t, err)
	assert.True(t, outcome.Approved)
	assert.False(t, outcome.RequiresEvidence)
	assert.Nil(t, outcome.EvidenceDeadline)
	assert.Empty(t, outcome.Flags)
	assert.Equal(t, TierMicro, outcome.Tier)

	repo.AssertNotCalled(t, "InsertFraudFlags", mock.Anything, mock.Anything)
	notifier.AssertNotCalled(t, "SendEvidenceRequest", mock.Anything, mock.Anything)
	notifier.AssertNotCalled(t, "SendFraudAlert", mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestCheckPayout_BannedCreatorShortCircuits(t *testing.T) {
	repo := new(mockPayoutRepository)
	scorer := new(mockRiskScorer)
	notifier := new(mockNotifier)
	service := newTestService(repo, scorer, notifier)

	creator := cleanCreator(90, 365)
	bannedAt := time.Now().Add(-24 * time.Hour)
	creator.BannedAt = &bannedAt
	payout := payoutFor(creator, 20)

	repo.On("GetPayoutRequest", mock.Anything, payout.ID).Return(payout, nil)

	outcome, err := service.CheckPayout(context.Background(), payout.ID)

	require.Error(t, err)
	assert.Nil(t, outcome)

	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusForbidden, appErr.Code)
	assert.Equal(t, "Creator is banned", appErr.Message)

	// Nothing is evaluated or persisted for a banned creator
	repo.AssertNotCalled(t, "GetLedgerEntries", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "SaveCheckResult", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	scorer.AssertNotCalled(t, "Score", mock.Anything, mock.Anything)
}

func TestCheckPayout_NotFound(t *testing.T) {
	repo := new(mockPayoutRepository)
	scorer := new(mockRiskScorer)
	notifier := new(mockNotifier)
	service := newTestService(repo, scorer, notifier)

	id := uuid.New()
	repo.On("GetPayoutRequest", mock.Anything, id).Return(nil, ErrPayoutNotFound)

	outcome, err := service.CheckPayout(context.Background(), id)

	require.Error(t, err)
	assert.Nil(t, outcome)

	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusNotFound, appErr.Code)
}

func TestCheckPayout_NewCreatorFlag(t *testing.T) {
	repo := new(mockPayoutRepository)
	scorer := new(mockRiskScorer)
	notifier := new(mockNotifier)
	service := newTestService(repo, scorer, notifier)

	creator := cleanCreator(65, 5)
	payout := payoutFor(creator, 150)

	repo.On("GetPayoutRequest", mock.Anything, payout.ID).Return(payout, nil)
	repo.On("GetLedgerEntries", mock.Anything, payout.ID).Return([]LedgerEntry{}, nil)
	scorer.On("Score", mock.Anything, payout.ID).Return(zeroBotScore(), nil)
	repo.On("CountCompletedPayouts", mock.Anything, creator.ID, mock.Anything).Return(0, nil)
	repo.On("SaveCheckResult", mock.Anything, payout.ID, mock.Anything, mock.Anything, mock.MatchedBy(func(a ApprovalUpdate) bool {
		return a.Status == ApprovalStatusPendingEvidence && a.EvidenceDeadline != nil && a.EvidenceRequestedAt != nil
	})).Return(nil)
	repo.On("InsertFraudFlags", mock.Anything, mock.MatchedBy(func(records []FlagRecord) bool {
		return len(records) == 1 &&
			records[0].FlagType == FlagTypeNewCreator &&
			records[0].Status == FlagStatusPending &&
			records[0].CreatorID == creator.ID
	})).Return(nil)
	notifier.On("SendEvidenceRequest", mock.Anything, mock.MatchedBy(func(req EvidenceRequest) bool {
		return req.PayoutRequestID == payout.ID && len(req.Flags) == 1 && req.Deadline != nil
	})).Return(nil)

	outcome, err := service.CheckPayout(context.Background(), payout.ID)

	require.NoError(t, err)
	assert.False(t, outcome.Approved)
	assert.True(t, outcome.RequiresEvidence)
	require.Len(t, outcome.Flags, 1)

	flag := outcome.Flags[0]
	assert.Equal(t, FlagTypeNewCreator, flag.Type)
	assert.Equal(t, "Account is 5 days old with payout of $150.00", flag.Reason)
	require.NotNil(t, flag.DetectedValue)
	assert.Equal(t, float64(5), *flag.DetectedValue)
	require.NotNil(t, flag.ThresholdValue)
	assert.Equal(t, float64(30), *flag.ThresholdValue)

	require.NotNil(t, outcome.EvidenceDeadline)
	assert.WithinDuration(t, time.Now().Add(48*time.Hour), *outcome.EvidenceDeadline, 5*time.Second)

	// Amount under $500 and no permanent flag: no webhook alert
	notifier.AssertNotCalled(t, "SendFraudAlert", mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestCheckPayout_SmallOldPayoutFromNewCreatorNotFlagged(t *testing.T) {
	repo := new(mockPayoutRepository)
	scorer := new(mockRiskScorer)
	notifier := new(mockNotifier)
	service := newTestService(repo, scorer, notifier)

	// 5 days old but only $45: below the new-creator amount threshold,
	// and micro tier has no account age minimum
	creator := cleanCreator(65, 5)
	payout := payoutFor(creator, 45)

	repo.On("GetPayoutRequest", mock.Anything, payout.ID).Return(payout, nil)
	repo.On("GetLedgerEntries", mock.Anything, payout.ID).Return([]LedgerEntry{}, nil)
	scorer.On("Score", mock.Anything, payout.ID).Return(zeroBotScore(), nil)
	repo.On("CountCompletedPayouts", mock.Anything, creator.ID, mock.Anything).Return(0, nil)
	repo.On("SaveCheckResult", mock.Anything, payout.ID, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	outcome, err := service.CheckPayout(context.Background(), payout.ID)

	require.NoError(t, err)
	assert.True(t, outcome.Approved)
	assert.Empty(t, outcome.Flags)
}

func TestCheckPayout_PermanentFraudFlagAlwaysRaised(t *testing.T) {
	repo := new(mockPayoutRepository)
	scorer := new(mockRiskScorer)
	notifier := new(mockNotifier)
	service := newTestService(repo, scorer, notifier)

	creator := cleanCreator(95, 400)
	creator.FraudFlagPermanent = true
	creator.FraudFlagCount = 2
	payout := payoutFor(creator, 25)

	repo.On("GetPayoutRequest", mock.Anything, payout.ID).Return(payout, nil)
	repo.On("GetLedgerEntries", mock.Anything, payout.ID).Return([]LedgerEntry{}, nil)
	scorer.On("Score", mock.Anything, payout.ID).Return(zeroBotScore(), nil)
	repo.On("CountCompletedPayouts", mock.Anything, creator.ID, mock.Anything).Return(10, nil)
	repo.On("SaveCheckResult", mock.Anything, payout.ID, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	repo.On("InsertFraudFlags", mock.Anything, mock.Anything).Return(nil)
	notifier.On("SendEvidenceRequest", mock.Anything, mock.Anything).Return(nil)
	// Permanent flag triggers the alert regardless of amount
	notifier.On("SendFraudAlert", mock.Anything, mock.MatchedBy(func(alert FraudAlert) bool {
		return alert.Priority == "high" && alert.Amount == 25
	})).Return(nil)

	outcome, err := service.CheckPayout(context.Background(), payout.ID)

	require.NoError(t, err)
	assert.False(t, outcome.Approved)
	require.Len(t, outcome.Flags, 1)
	assert.Equal(t, FlagTypePreviousFraud, outcome.Flags[0].Type)
	assert.Equal(t, "Creator has 2 previous confirmed fraud(s)", outcome.Flags[0].Reason)

	notifier.AssertExpectations(t)
}

func TestCheckPayout_LowEngagementFlag(t *testing.T) {
	repo := new(mockPayoutRepository)
	scorer := new(mockRiskScorer)
	notifier := new(mockNotifier)
	service := newTestService(repo, scorer, notifier)

	creator := cleanCreator(65, 60)
	payout := payoutFor(creator, 45)
	entry := LedgerEntry{
		ID:              uuid.New(),
		PayoutRequestID: payout.ID,
		SourceType:      SourceTypeCampaign,
		SourceID:        uuid.New(),
		VideoURL:        "https://example.com/v/1",
		Views:           10000,
	}

	repo.On("GetPayoutRequest", mock.Anything, payout.ID).Return(payout, nil)
	repo.On("GetLedgerEntries", mock.Anything, payout.ID).Return([]LedgerEntry{entry}, nil)
	repo.On("GetBrandSensitivity", mock.Anything, SourceTypeCampaign, entry.SourceID).Return(SensitivityNormal, nil)
	// No comments, so the likes+shares fallback applies: 3/10000 = 0.0003
	repo.On("GetVideoMetrics", mock.Anything, entry.VideoURL).Return(&VideoMetrics{
		Views:    10000,
		Likes:    2,
		Shares:   1,
		Comments: 0,
	}, nil)
	scorer.On("Score", mock.Anything, payout.ID).Return(zeroBotScore(), nil)
	repo.On("CountCompletedPayouts", mock.Anything, creator.ID, mock.Anything).Return(0, nil)
	repo.On("SaveCheckResult", mock.Anything, payout.ID, mock.Anything, mock.MatchedBy(func(snapshot map[string]int64) bool {
		return snapshot[entry.ID.String()] == 10000
	}), mock.Anything).Return(nil)
	repo.On("InsertFraudFlags", mock.Anything, mock.Anything).Return(nil)
	notifier.On("SendEvidenceRequest", mock.Anything, mock.Anything).Return(nil)

	outcome, err := service.CheckPayout(context.Background(), payout.ID)

	require.NoError(t, err)
	assert.False(t, outcome.Approved)
	require.Len(t, outcome.Flags, 1)

	flag := outcome.Flags[0]
	assert.Equal(t, FlagTypeEngagement, flag.Type)
	assert.Equal(t, "Low engagement rate on video: 0.030%", flag.Reason)
	require.NotNil(t, flag.DetectedValue)
	assert.InDelta(t, 0.0003, *flag.DetectedValue, 1e-9)
	require.NotNil(t, flag.ThresholdValue)
	assert.Equal(t, 0.001, *flag.ThresholdValue)

	repo.AssertExpectations(t)
}

func TestCheckPayout_VelocityFlag(t *testing.T) {
	repo := new(mockPayoutRepository)
	scorer := new(mockRiskScorer)
	notifier := new(mockNotifier)
	service := newTestService(repo, scorer, notifier)

	creator := cleanCreator(65, 60)
	payout := payoutFor(creator, 45)
	entry := LedgerEntry{
		ID:         uuid.New(),
		SourceType: SourceTypeBoost,
		SourceID:   uuid.New(),
		VideoURL:   "https://example.com/v/2",
		Views:      1500,
	}

	repo.On("GetPayoutRequest", mock.Anything, payout.ID).Return(payout, nil)
	repo.On("GetLedgerEntries", mock.Anything, payout.ID).Return([]LedgerEntry{entry}, nil)
	repo.On("GetBrandSensitivity", mock.Anything, SourceTypeBoost, entry.SourceID).Return(SensitivityNormal, nil)
	// Healthy engagement, but views jumped 15x since the last snapshot
	repo.On("GetVideoMetrics", mock.Anything, entry.VideoURL).Return(&VideoMetrics{
		Views:         1500,
		PreviousViews: 100,
		Comments:      30,
	}, nil)
	scorer.On("Score", mock.Anything, payout.ID).Return(zeroBotScore(), nil)
	repo.On("CountCompletedPayouts", mock.Anything, creator.ID, mock.Anything).Return(0, nil)
	repo.On("SaveCheckResult", mock.Anything, payout.ID, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	repo.On("InsertFraudFlags", mock.Anything, mock.Anything).Return(nil)
	notifier.On("SendEvidenceRequest", mock.Anything, mock.Anything).Return(nil)

	outcome, err := service.CheckPayout(context.Background(), payout.ID)

	require.NoError(t, err)
	require.Len(t, outcome.Flags, 1)

	flag := outcome.Flags[0]
	assert.Equal(t, FlagTypeVelocity, flag.Type)
	assert.Equal(t, "Suspicious view spike: 15.0x increase", flag.Reason)
	require.NotNil(t, flag.DetectedValue)
	assert.Equal(t, 15.0, *flag.DetectedValue)
	require.NotNil(t, flag.ThresholdValue)
	assert.Equal(t, 10.0, *flag.ThresholdValue)
}

func TestCheckPayout_PerVideoFlagsNotDeduplicated(t *testing.T) {
	repo := new(mockPayoutRepository)
	scorer := new(mockRiskScorer)
	notifier := new(mockNotifier)
	service := newTestService(repo, scorer, notifier)

	creator := cleanCreator(65, 60)
	payout := payoutFor(creator, 45)
	sourceID := uuid.New()
	entries := []LedgerEntry{
		{ID: uuid.New(), SourceType: SourceTypeCampaign, SourceID: sourceID, VideoURL: "https://example.com/v/a", Views: 5000},
		{ID: uuid.New(), SourceType: SourceTypeCampaign, SourceID: sourceID, VideoURL: "https://example.com/v/b", Views: 8000},
	}

	repo.On("GetPayoutRequest", mock.Anything, payout.ID).Return(payout, nil)
	repo.On("GetLedgerEntries", mock.Anything, payout.ID).Return(entries, nil)
	repo.On("GetBrandSensitivity", mock.Anything, SourceTypeCampaign, sourceID).Return(SensitivityNormal, nil)
	repo.On("GetVideoMetrics", mock.Anything, "https://example.com/v/a").Return(&VideoMetrics{Views: 5000, Likes: 1}, nil)
	repo.On("GetVideoMetrics", mock.Anything, "https://example.com/v/b").Return(&VideoMetrics{Views: 8000, Likes: 1}, nil)
	scorer.On("Score", mock.Anything, payout.ID).Return(zeroBotScore(), nil)
	repo.On("CountCompletedPayouts", mock.Anything, creator.ID, mock.Anything).Return(0, nil)
	repo.On("SaveCheckResult", mock.Anything, payout.ID, mock.Anything, mock.MatchedBy(func(snapshot map[string]int64) bool {
		return len(snapshot) == 2
	}), mock.Anything).Return(nil)
	repo.On("InsertFraudFlags", mock.Anything, mock.MatchedBy(func(records []FlagRecord) bool {
		return len(records) == 2
	})).Return(nil)
	notifier.On("SendEvidenceRequest", mock.Anything, mock.Anything).Return(nil)

	outcome, err := service.CheckPayout(context.Background(), payout.ID)

	require.NoError(t, err)
	// One engagement flag per offending video
	require.Len(t, outcome.Flags, 2)
	assert.Equal(t, FlagTypeEngagement, outcome.Flags[0].Type)
	assert.Equal(t, FlagTypeEngagement, outcome.Flags[1].Type)
	repo.AssertExpectations(t)
}

func TestCheckPayout_MissingVideoMetricsSkipped(t *testing.T) {
	repo := new(mockPayoutRepository)
	scorer := new(mockRiskScorer)
	notifier := new(mockNotifier)
	service := newTestService(repo, scorer, notifier)

	creator := cleanCreator(65, 60)
	payout := payoutFor(creator, 45)
	entry := LedgerEntry{
		ID:         uuid.New(),
		SourceType: SourceTypeCampaign,
		SourceID:   uuid.New(),
		VideoURL:   "https://example.com/v/missing",
		Views:      777,
	}

	repo.On("GetPayoutRequest", mock.Anything, payout.ID).Return(payout, nil)
	repo.On("GetLedgerEntries", mock.Anything, payout.ID).Return([]LedgerEntry{entry}, nil)
	repo.On("GetBrandSensitivity", mock.Anything, SourceTypeCampaign, entry.SourceID).Return(SensitivityNormal, nil)
	repo.On("GetVideoMetrics", mock.Anything, entry.VideoURL).Return(nil, nil)
	scorer.On("Score", mock.Anything, payout.ID).Return(zeroBotScore(), nil)
	repo.On("CountCompletedPayouts", mock.Anything, creator.ID, mock.Anything).Return(0, nil)
	// The entry still lands in the views snapshot even without metrics
	repo.On("SaveCheckResult", mock.Anything, payout.ID, mock.Anything, mock.MatchedBy(func(snapshot map[string]int64) bool {
		return snapshot[entry.ID.String()] == 777
	}), mock.Anything).Return(nil)

	outcome, err := service.CheckPayout(context.Background(), payout.ID)

	require.NoError(t, err)
	assert.True(t, outcome.Approved)
	assert.Empty(t, outcome.Flags)
	repo.AssertExpectations(t)
}

func TestCheckPayout_StrictSensitivityRaisesFloor(t *testing.T) {
	repo := new(mockPayoutRepository)
	scorer := new(mockRiskScorer)
	notifier := new(mockNotifier)
	service := newTestService(repo, scorer, notifier)

	creator := cleanCreator(65, 60)
	payout := payoutFor(creator, 45)
	entry := LedgerEntry{
		ID:         uuid.New(),
		SourceType: SourceTypeCampaign,
		SourceID:   uuid.New(),
		VideoURL:   "https://example.com/v/3",
		Views:      10000,
	}

	repo.On("GetPayoutRequest", mock.Anything, payout.ID).Return(payout, nil)
	repo.On("GetLedgerEntries", mock.Anything, payout.ID).Return([]LedgerEntry{entry}, nil)
	repo.On("GetBrandSensitivity", mock.Anything, SourceTypeCampaign, entry.SourceID).Return(SensitivityStrict, nil)
	// 0.0012 passes the normal floor (0.001) but not strict (0.0015)
	repo.On("GetVideoMetrics", mock.Anything, entry.VideoURL).Return(&VideoMetrics{
		Views:    10000,
		Comments: 12,
	}, nil)
	scorer.On("Score", mock.Anything, payout.ID).Return(zeroBotScore(), nil)
	repo.On("CountCompletedPayouts", mock.Anything, creator.ID, mock.Anything).Return(0, nil)
	repo.On("SaveCheckResult", mock.Anything, payout.ID, mock.MatchedBy(func(r *FraudCheckResult) bool {
		return r.FraudSensitivity == SensitivityStrict
	}), mock.Anything, mock.Anything).Return(nil)
	repo.On("InsertFraudFlags", mock.Anything, mock.Anything).Return(nil)
	notifier.On("SendEvidenceRequest", mock.Anything, mock.Anything).Return(nil)

	outcome, err := service.CheckPayout(context.Background(), payout.ID)

	require.NoError(t, err)
	require.Len(t, outcome.Flags, 1)
	assert.Equal(t, FlagTypeEngagement, outcome.Flags[0].Type)
	assert.Equal(t, 0.0015, *outcome.Flags[0].ThresholdValue)
}

func TestCheckPayout_HighBotScoreFlag(t *testing.T) {
	repo := new(mockPayoutRepository)
	scorer := new(mockRiskScorer)
	notifier := new(mockNotifier)
	service := newTestService(repo, scorer, notifier)

	creator := cleanCreator(65, 60)
	payout := payoutFor(creator, 45)

	repo.On("GetPayoutRequest", mock.Anything, payout.ID).Return(payout, nil)
	repo.On("GetLedgerEntries", mock.Anything, payout.ID).Return([]LedgerEntry{}, nil)
	scorer.On("Score", mock.Anything, payout.ID).Return(&BotScoringSummary{
		AvgScore: 72.5,
		Flags:    []string{"low_watch_time"},
	}, nil)
	repo.On("CountCompletedPayouts", mock.Anything, creator.ID, mock.Anything).Return(0, nil)
	repo.On("SaveCheckResult", mock.Anything, payout.ID, mock.MatchedBy(func(r *FraudCheckResult) bool {
		return r.BotScoring.AvgScore == 72.5
	}), mock.Anything, mock.Anything).Return(nil)
	repo.On("InsertFraudFlags", mock.Anything, mock.Anything).Return(nil)
	notifier.On("SendEvidenceRequest", mock.Anything, mock.Anything).Return(nil)

	outcome, err := service.CheckPayout(context.Background(), payout.ID)

	require.NoError(t, err)
	assert.False(t, outcome.Approved)
	require.Len(t, outcome.Flags, 1)
	assert.Equal(t, FlagTypeEngagement, outcome.Flags[0].Type)
	assert.Equal(t, "High bot score detected: 72.5/100", outcome.Flags[0].Reason)
}

func TestCheckPayout_BotScoringFailureIsNonBlocking(t *testing.T) {
	repo := new(mockPayoutRepository)
	scorer := new(mockRiskScorer)
	notifier := new(mockNotifier)
	service := newTestService(repo, scorer, notifier)

	creator := cleanCreator(65, 60)
	payout := payoutFor(creator, 45)

	repo.On("GetPayoutRequest", mock.Anything, payout.ID).Return(payout, nil)
	repo.On("GetLedgerEntries", mock.Anything, payout.ID).Return([]LedgerEntry{}, nil)
	scorer.On("Score", mock.Anything, payout.ID).Return(nil, errors.New("scoring service unavailable"))
	repo.On("CountCompletedPayouts", mock.Anything, creator.ID, mock.Anything).Return(0, nil)
	repo.On("SaveCheckResult", mock.Anything, payout.ID, mock.MatchedBy(func(r *FraudCheckResult) bool {
		return r.BotScoring.AvgScore == 0 && len(r.BotScoring.Flags) == 0
	}), mock.Anything, mock.Anything).Return(nil)

	outcome, err := service.CheckPayout(context.Background(), payout.ID)

	require.NoError(t, err)
	assert.True(t, outcome.Approved)
}

func TestCheckPayout_HighAmountTriggersAlert(t *testing.T) {
	repo := new(mockPayoutRepository)
	scorer := new(mockRiskScorer)
	notifier := new(mockNotifier)
	service := newTestService(repo, scorer, notifier)

	// Clean history but insufficient trust score for medium tier
	creator := cleanCreator(65, 60)
	payout := payoutFor(creator, 750)

	repo.On("GetPayoutRequest", mock.Anything, payout.ID).Return(payout, nil)
	repo.On("GetLedgerEntries", mock.Anything, payout.ID).Return([]LedgerEntry{}, nil)
	scorer.On("Score", mock.Anything, payout.ID).Return(zeroBotScore(), nil)
	repo.On("CountCompletedPayouts", mock.Anything, creator.ID, 4).Return(3, nil)
	repo.On("SaveCheckResult", mock.Anything, payout.ID, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	notifier.On("SendEvidenceRequest", mock.Anything, mock.Anything).Return(nil)
	notifier.On("SendFraudAlert", mock.Anything, mock.MatchedBy(func(alert FraudAlert) bool {
		return alert.Amount == 750 && alert.Priority == "high"
	})).Return(nil)

	outcome, err := service.CheckPayout(context.Background(), payout.ID)

	require.NoError(t, err)
	assert.False(t, outcome.Approved)
	assert.Empty(t, outcome.Flags)
	assert.True(t, outcome.RequiresEvidence)

	// No flags were raised, so nothing goes into the review ledger
	repo.AssertNotCalled(t, "InsertFraudFlags", mock.Anything, mock.Anything)
	notifier.AssertExpectations(t)
}

func TestCheckPayout_NotifierFailureDoesNotFailCheck(t *testing.T) {
	repo := new(mockPayoutRepository)
	scorer := new(mockRiskScorer)
	notifier := new(mockNotifier)
	service := newTestService(repo, scorer, notifier)

	creator := cleanCreator(40, 60)
	payout := payoutFor(creator, 45)

	repo.On("GetPayoutRequest", mock.Anything, payout.ID).Return(payout, nil)
	repo.On("GetLedgerEntries", mock.Anything, payout.ID).Return([]LedgerEntry{}, nil)
	scorer.On("Score", mock.Anything, payout.ID).Return(zeroBotScore(), nil)
	repo.On("CountCompletedPayouts", mock.Anything, creator.ID, mock.Anything).Return(0, nil)
	repo.On("SaveCheckResult", mock.Anything, payout.ID, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	notifier.On("SendEvidenceRequest", mock.Anything, mock.Anything).Return(errors.New("notification service down"))

	outcome, err := service.CheckPayout(context.Background(), payout.ID)

	require.NoError(t, err)
	assert.False(t, outcome.Approved)
	assert.True(t, outcome.RequiresEvidence)
}

func TestCheckPayout_PersistenceFailureFailsCheck(t *testing.T) {
	repo := new(mockPayoutRepository)
	scorer := new(mockRiskScorer)
	notifier := new(mockNotifier)
	service := newTestService(repo, scorer, notifier)

	creator := cleanCreator(65, 60)
	payout := payoutFor(creator, 45)

	repo.On("GetPayoutRequest", mock.Anything, payout.ID).Return(payout, nil)
	repo.On("GetLedgerEntries", mock.Anything, payout.ID).Return([]LedgerEntry{}, nil)
	scorer.On("Score", mock.Anything, payout.ID).Return(zeroBotScore(), nil)
	repo.On("CountCompletedPayouts", mock.Anything, creator.ID, mock.Anything).Return(0, nil)
	repo.On("SaveCheckResult", mock.Anything, payout.ID, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("connection reset"))

	outcome, err := service.CheckPayout(context.Background(), payout.ID)

	require.Error(t, err)
	assert.Nil(t, outcome)

	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusInternalServerError, appErr.Code)
}

func TestGetCheckResult(t *testing.T) {
	repo := new(mockPayoutRepository)
	service := newTestService(repo, new(mockRiskScorer), new(mockNotifier))
	id := uuid.New()

	t.Run("found", func(t *testing.T) {
		stored := &FraudCheckResult{Approved: true, Tier: TierMicro}
		repo.On("GetCheckResult", mock.Anything, id).Return(stored, nil).Once()

		result, err := service.GetCheckResult(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, stored, result)
	})

	t.Run("never checked", func(t *testing.T) {
		repo.On("GetCheckResult", mock.Anything, id).Return(nil, nil).Once()

		result, err := service.GetCheckResult(context.Background(), id)
		require.Error(t, err)
		assert.Nil(t, result)

		var appErr *common.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, http.StatusNotFound, appErr.Code)
	})
}

func TestListPendingFlagsClampsLimit(t *testing.T) {
	repo := new(mockPayoutRepository)
	service := newTestService(repo, new(mockRiskScorer), new(mockNotifier))

	repo.On("ListPendingFlags", mock.Anything, 20, 0).Return([]*FlagRecord{}, int64(0), nil).Once()
	_, _, err := service.ListPendingFlags(context.Background(), 0, -5)
	require.NoError(t, err)

	repo.On("ListPendingFlags", mock.Anything, 100, 10).Return([]*FlagRecord{}, int64(0), nil).Once()
	_, _, err = service.ListPendingFlags(context.Background(), 500, 10)
	require.NoError(t, err)

	repo.AssertExpectations(t)
}

func TestResolveFlag(t *testing.T) {
	repo := new(mockPayoutRepository)
	service := newTestService(repo, new(mockRiskScorer), new(mockNotifier))
	flagID := uuid.New()
	reviewerID := uuid.New()

	t.Run("confirmed", func(t *testing.T) {
		repo.On("ResolveFlag", mock.Anything, flagID, reviewerID, FlagStatusConfirmed, "verified bot traffic").Return(nil).Once()

		err := service.ResolveFlag(context.Background(), flagID, reviewerID, FlagStatusConfirmed, "verified bot traffic")
		require.NoError(t, err)
	})

	t.Run("invalid status rejected", func(t *testing.T) {
		err := service.ResolveFlag(context.Background(), flagID, reviewerID, FlagStatusPending, "")
		require.Error(t, err)

		var appErr *common.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, http.StatusBadRequest, appErr.Code)
	})

	t.Run("already resolved", func(t *testing.T) {
		repo.On("ResolveFlag", mock.Anything, flagID, reviewerID, FlagStatusDismissed, "").Return(ErrFlagNotFound).Once()

		err := service.ResolveFlag(context.Background(), flagID, reviewerID, FlagStatusDismissed, "")
		require.Error(t, err)

		var appErr *common.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, http.StatusNotFound, appErr.Code)
	})
}
