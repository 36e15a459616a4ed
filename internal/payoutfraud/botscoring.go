package payoutfraud

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/creator-payouts/pkg/httpclient"
	"github.com/richxcame/creator-payouts/pkg/logger"
	"github.com/richxcame/creator-payouts/pkg/redis"
	"github.com/richxcame/creator-payouts/pkg/resilience"
	"go.uber.org/zap"
)

// botScoreResponse mirrors the bot-scoring service's wire format
type botScoreResponse struct {
	Summary struct {
		AvgScore float64 `json:"avg_score"`
	} `json:"summary"`
	Scores []struct {
		Flags []string `json:"flags"`
	} `json:"scores"`
}

// BotScoringClient calls the external bot-scoring service. Successful
// scores are cached in redis so immediate re-checks of the same payout
// request are deterministic and cheap.
type BotScoringClient struct {
	client   *httpclient.Client
	breaker  *resilience.Breaker
	cache    *redis.Client
	cacheTTL time.Duration
}

// Ensure the client satisfies the service's requirements.
var _ RiskScorer = (*BotScoringClient)(nil)

// NewBotScoringClient creates a bot-scoring client. The cache is optional;
// pass nil to disable score caching.
func NewBotScoringClient(baseURL string, timeout time.Duration, cache *redis.Client, cacheTTL time.Duration) *BotScoringClient {
	return &BotScoringClient{
		client: httpclient.NewClient(baseURL, timeout),
		breaker: resilience.NewBreaker(resilience.Settings{
			Name:             "bot-scoring",
			Interval:         time.Minute,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
			SuccessThreshold: 1,
		}, resilience.GracefulDegradation("bot-scoring")),
		cache:    cache,
		cacheTTL: cacheTTL,
	}
}

// Score scores the videos behind a payout request for bot activity
func (c *BotScoringClient) Score(ctx context.Context, payoutRequestID uuid.UUID) (*BotScoringSummary, error) {
	cacheKey := "bot_score:" + payoutRequestID.String()

	if c.cache != nil {
		if cached, err := c.cache.GetString(ctx, cacheKey); err == nil {
			var summary BotScoringSummary
			if err := json.Unmarshal([]byte(cached), &summary); err == nil {
				return &summary, nil
			}
		}
	}

	result, err := c.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		var resp botScoreResponse
		body := map[string]string{"payoutRequestId": payoutRequestID.String()}
		if err := c.client.PostJSON(ctx, "/calculate-bot-score", body, &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	})
	if err != nil {
		return nil, err
	}

	resp := result.(*botScoreResponse)
	summary := &BotScoringSummary{
		AvgScore: resp.Summary.AvgScore,
		Flags:    dedupeFlags(resp.Scores),
	}

	if c.cache != nil {
		if payload, err := json.Marshal(summary); err == nil {
			if err := c.cache.SetWithExpiration(ctx, cacheKey, payload, c.cacheTTL); err != nil {
				logger.Warn("failed to cache bot score",
					zap.String("payout_request_id", payoutRequestID.String()),
					zap.Error(err),
				)
			}
		}
	}

	return summary, nil
}

// dedupeFlags flattens per-video flag lists into a unique, order-preserving
// set
func dedupeFlags(scores []struct {
	Flags []string `json:"flags"`
}) []string {
	seen := make(map[string]bool)
	flags := make([]string, 0)
	for _, score := range scores {
		for _, flag := range score.Flags {
			if !seen[flag] {
				seen[flag] = true
				flags = append(flags, flag)
			}
		}
	}
	return flags
}
