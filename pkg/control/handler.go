package control

import (
	stderrors "errors"
	"io"
	"net/http"

	"github.com/core-tools/hsu-orchestrator/pkg/domain"
	"github.com/core-tools/hsu-orchestrator/pkg/errors"
	"github.com/core-tools/hsu-orchestrator/pkg/fleet"
	"github.com/core-tools/hsu-orchestrator/pkg/logging"

	"github.com/gin-gonic/gin"
)

// RegisterHTTPServerHandler mounts the operator API of handler on router.
func RegisterHTTPServerHandler(router gin.IRouter, handler domain.Contract, logger logging.Logger) {
	h := &httpServerHandler{handler: handler, logger: logger}

	router.GET("/health", h.health)
	router.POST("/register", h.register)
	router.GET("/services", h.services)
	router.POST("/services/:service/reset", h.resetService)
	router.GET("/decisions", h.decisions)
	router.POST("/action/:service/:action", h.action)
	router.GET("/intelligence/:service", h.intelligence)
	router.POST("/analyze", h.analyze)
	router.POST("/ingest", h.ingest)
	router.POST("/sync/force", h.syncForce)
	router.GET("/sync/status", h.syncStatus)
	router.GET("/sync/health", h.syncHealth)
	router.POST("/sync/bridge-thought", h.bridgeThought)
}

type httpServerHandler struct {
	handler domain.Contract
	logger  logging.Logger
}

// ActionRequest is the optional body of POST /action/{service}/{action}.
type ActionRequest struct {
	Reason string `json:"reason"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string           `json:"error"`
	Type  errors.ErrorType `json:"type"`
}

type servicesResponse struct {
	Services []fleet.Service `json:"services"`
	Total    int             `json:"total"`
}

func (h *httpServerHandler) health(c *gin.Context) {
	status, err := h.handler.Health(c.Request.Context())
	if err != nil {
		h.fail(c, "Health", err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *httpServerHandler) register(c *gin.Context) {
	var registration fleet.Registration
	if !h.bind(c, &registration, false) {
		return
	}
	service, err := h.handler.Register(c.Request.Context(), registration)
	if err != nil {
		h.fail(c, "Register", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "registered", "service": service})
}

func (h *httpServerHandler) services(c *gin.Context) {
	services, err := h.handler.Services(c.Request.Context())
	if err != nil {
		h.fail(c, "Services", err)
		return
	}
	c.JSON(http.StatusOK, servicesResponse{Services: services, Total: len(services)})
}

func (h *httpServerHandler) resetService(c *gin.Context) {
	service, err := h.handler.ResetService(c.Request.Context(), c.Param("service"))
	if err != nil {
		h.fail(c, "ResetService", err)
		return
	}
	c.JSON(http.StatusOK, service)
}

func (h *httpServerHandler) decisions(c *gin.Context) {
	decisions, err := h.handler.Decisions(c.Request.Context())
	if err != nil {
		h.fail(c, "Decisions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": decisions, "total": len(decisions)})
}

func (h *httpServerHandler) action(c *gin.Context) {
	var request ActionRequest
	if !h.bind(c, &request, true) {
		return
	}
	result, err := h.handler.Action(c.Request.Context(), c.Param("service"), c.Param("action"), request.Reason)
	if err != nil {
		h.fail(c, "Action", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *httpServerHandler) intelligence(c *gin.Context) {
	intelligence, err := h.handler.Intelligence(c.Request.Context(), c.Param("service"))
	if err != nil {
		h.fail(c, "Intelligence", err)
		return
	}
	c.JSON(http.StatusOK, intelligence)
}

func (h *httpServerHandler) analyze(c *gin.Context) {
	report, err := h.handler.Analyze(c.Request.Context())
	if err != nil {
		h.fail(c, "Analyze", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *httpServerHandler) ingest(c *gin.Context) {
	var request domain.IngestRequest
	if !h.bind(c, &request, false) {
		return
	}
	thought, err := h.handler.Ingest(c.Request.Context(), request)
	if err != nil {
		h.fail(c, "Ingest", err)
		return
	}
	c.JSON(http.StatusAccepted, thought)
}

func (h *httpServerHandler) syncForce(c *gin.Context) {
	entry, err := h.handler.SyncForce(c.Request.Context())
	if err != nil {
		h.fail(c, "SyncForce", err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *httpServerHandler) syncStatus(c *gin.Context) {
	status, err := h.handler.SyncStatus(c.Request.Context())
	if err != nil {
		h.fail(c, "SyncStatus", err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *httpServerHandler) syncHealth(c *gin.Context) {
	health, err := h.handler.SyncHealth(c.Request.Context())
	if err != nil {
		h.fail(c, "SyncHealth", err)
		return
	}
	c.JSON(http.StatusOK, health)
}

func (h *httpServerHandler) bridgeThought(c *gin.Context) {
	var request domain.BridgeRequest
	if !h.bind(c, &request, false) {
		return
	}
	result, err := h.handler.BridgeThought(c.Request.Context(), request)
	if err != nil {
		h.fail(c, "BridgeThought", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// bind decodes the JSON body into out. An empty body is accepted only when
// optional is set.
func (h *httpServerHandler) bind(c *gin.Context, out interface{}, optional bool) bool {
	err := c.ShouldBindJSON(out)
	if err == nil || (optional && stderrors.Is(err, io.EOF)) {
		return true
	}
	writeError(c, errors.NewValidationError("invalid request body", err))
	return false
}

func (h *httpServerHandler) fail(c *gin.Context, operation string, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Errorf("%s server handler: %v", operation, err)
	} else {
		h.logger.Debugf("%s server handler rejected request: %v", operation, err)
	}
	writeError(c, err)
}

func writeError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(StatusFor(err), ErrorResponse{Error: err.Error(), Type: typeOf(err)})
}

// StatusFor maps an error onto the HTTP status the API answers with.
func StatusFor(err error) int {
	switch {
	case errors.IsValidationError(err), errors.IsCorrelationInputError(err):
		return http.StatusBadRequest
	case errors.IsNotFoundError(err):
		return http.StatusNotFound
	case errors.IsConflictError(err):
		return http.StatusConflict
	case errors.IsUnknownActionError(err):
		return http.StatusBadRequest
	case errors.IsStoreUnavailableError(err), errors.IsTransientServiceError(err):
		return http.StatusServiceUnavailable
	case errors.IsTimeoutError(err):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func typeOf(err error) errors.ErrorType {
	var domainErr *errors.DomainError
	if stderrors.As(err, &domainErr) {
		return domainErr.Type
	}
	return errors.ErrorTypeInternal
}
