package payoutfraud

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/richxcame/creator-payouts/pkg/common"
	"github.com/richxcame/creator-payouts/pkg/validation"
)

// FraudService is the service surface the handler depends on
type FraudService interface {
	CheckPayout(ctx context.Context, payoutRequestID uuid.UUID) (*CheckOutcome, error)
	GetCheckResult(ctx context.Context, payoutRequestID uuid.UUID) (*FraudCheckResult, error)
	ListPendingFlags(ctx context.Context, limit, offset int) ([]*FlagRecord, int64, error)
	ResolveFlag(ctx context.Context, flagID, reviewerID uuid.UUID, status FlagStatus, notes string) error
}

// Handler handles HTTP requests for payout fraud checks
type Handler struct {
	service FraudService
}

// NewHandler creates a new payout fraud handler
func NewHandler(service FraudService) *Handler {
	return &Handler{service: service}
}

// CheckPayout runs the fraud evaluation for a payout request
// POST /api/v1/fraud/check
func (h *Handler) CheckPayout(c *gin.Context) {
	var req CheckPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "payoutRequestId is required")
		return
	}

	// A malformed ID can never match a payout request
	payoutRequestID, err := uuid.Parse(req.PayoutRequestID)
	if err != nil {
		common.ErrorResponse(c, http.StatusNotFound, "Payout request not found")
		return
	}

	outcome, err := h.service.CheckPayout(c.Request.Context(), payoutRequestID)
	if err != nil {
		var appErr *common.AppError
		if errors.As(err, &appErr) {
			switch appErr.Code {
			case http.StatusForbidden:
				c.JSON(http.StatusForbidden, gin.H{
					"error":    appErr.Message,
					"approved": false,
				})
			case http.StatusNotFound:
				common.AppErrorResponse(c, appErr)
			default:
				c.JSON(appErr.Code, gin.H{
					"success": false,
					"error":   appErr.Message,
				})
			}
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"result":  outcome,
	})
}

// GetCheckResult returns the stored verdict for a payout request
// GET /api/v1/fraud/payouts/:id/result
func (h *Handler) GetCheckResult(c *gin.Context) {
	payoutRequestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid payout request ID")
		return
	}

	result, err := h.service.GetCheckResult(c.Request.Context(), payoutRequestID)
	if err != nil {
		var appErr *common.AppError
		if errors.As(err, &appErr) {
			common.AppErrorResponse(c, appErr)
			return
		}
		common.ErrorResponse(c, http.StatusInternalServerError, "failed to fetch fraud check result")
		return
	}

	common.SuccessResponse(c, result)
}

// ListPendingFlags returns pending fraud flags for review
// GET /api/v1/fraud/flags
func (h *Handler) ListPendingFlags(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	records, total, err := h.service.ListPendingFlags(c.Request.Context(), limit, offset)
	if err != nil {
		var appErr *common.AppError
		if errors.As(err, &appErr) {
			common.AppErrorResponse(c, appErr)
			return
		}
		common.ErrorResponse(c, http.StatusInternalServerError, "failed to list pending fraud flags")
		return
	}

	common.SuccessResponse(c, gin.H{
		"flags":  records,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// ResolveFlag records a reviewer decision on a pending flag
// POST /api/v1/fraud/flags/:id/resolve
func (h *Handler) ResolveFlag(c *gin.Context) {
	flagID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid flag ID")
		return
	}

	var req ResolveFlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var vErrs validator.ValidationErrors
		if errors.As(err, &vErrs) {
			common.ErrorResponse(c, http.StatusBadRequest, validation.NewValidationError(vErrs).Error())
			return
		}
		common.ErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.ResolveFlag(c.Request.Context(), flagID, req.ReviewerID, FlagStatus(req.Status), req.Notes); err != nil {
		var appErr *common.AppError
		if errors.As(err, &appErr) {
			common.AppErrorResponse(c, appErr)
			return
		}
		common.ErrorResponse(c, http.StatusInternalServerError, "failed to resolve fraud flag")
		return
	}

	common.SuccessResponse(c, gin.H{
		"message": "Flag resolved successfully",
	})
}
