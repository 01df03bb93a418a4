package handlers

import (
	"errors"
	"net/http"

	"github.com/experiencehub/booking-engine/internal/middleware"
	"github.com/experiencehub/booking-engine/internal/models"
	"github.com/experiencehub/booking-engine/internal/services"
	"github.com/experiencehub/booking-engine/internal/utils"
	"github.com/experiencehub/booking-engine/pkg/gateway"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// respondError maps a domain error to its HTTP status
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	var (
		validation   *models.ValidationError
		authz        *models.AuthorizationError
		notFound     *models.NotFoundError
		capacity     *models.CapacityExceededError
		transition   *models.IllegalTransitionError
		providerCfg  *models.ProviderConfigurationError
		providerComm *models.ProviderCommunicationError
		ambiguous    *models.ReconciliationAmbiguityError
	)

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: validation.Error()})
	case errors.As(err, &authz):
		if authz.Forbidden {
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden", Message: authz.Message})
			return
		}
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: authz.Message})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: notFound.Error()})
	case errors.As(err, &capacity):
		c.JSON(http.StatusConflict, gin.H{
			"error":     "capacity_exceeded",
			"message":   capacity.Error(),
			"requested": capacity.Requested,
			"available": capacity.Available,
		})
	case errors.As(err, &transition):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "illegal_transition", Message: transition.Error()})
	case errors.Is(err, gateway.ErrNotSupported):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "not_supported",
			Message: err.Error(),
			Code:    "NOT_SUPPORTED",
		})
	case errors.As(err, &providerCfg):
		logger.WithFields(logrus.Fields{
			"provider": providerCfg.Provider,
			"field":    providerCfg.Field,
		}).Error("Payment provider is not configured")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "provider_not_configured",
			Message: providerCfg.Error(),
			Code:    "PROVIDER_CONFIGURATION",
		})
	case errors.As(err, &providerComm):
		logger.WithError(err).WithField("provider", providerComm.Provider).Error("Payment provider request failed")
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "provider_unavailable",
			Message: providerComm.Error(),
			Code:    "PROVIDER_COMMUNICATION",
		})
	case errors.As(err, &ambiguous):
		c.JSON(http.StatusOK, gin.H{"received": true})
	default:
		logger.WithError(err).WithField("path", c.Request.URL.Path).Error("Request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An unexpected error occurred",
		})
	}
}

// actorFrom returns the authenticated caller as a service actor
func actorFrom(c *gin.Context) (services.Actor, bool) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "User context not found",
		})
		return services.Actor{}, false
	}
	return services.Actor{UserID: userCtx.UserID, Roles: userCtx.Roles}, true
}

// clientInfo captures the caller for the payment audit trail
func clientInfo(c *gin.Context) services.ClientInfo {
	return services.ClientInfo{
		IP:        utils.GetRealIP(c),
		UserAgent: c.Request.UserAgent(),
	}
}

func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_id",
			Message: "Invalid " + name + " format",
		})
		return uuid.Nil, false
	}
	return id, true
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return false
	}
	return true
}
