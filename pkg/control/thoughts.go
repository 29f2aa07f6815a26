package control

import (
	"net/http"
	"strconv"

	"github.com/core-tools/hsu-orchestrator/pkg/errors"
	"github.com/core-tools/hsu-orchestrator/pkg/logging"
	"github.com/core-tools/hsu-orchestrator/pkg/thoughtstore"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterThoughtStoreHandler serves store over the /thoughts API that
// thoughtstore.HTTPStore speaks, so a peer orchestrator can use it as its
// remote store.
func RegisterThoughtStoreHandler(router gin.IRouter, store thoughtstore.Store, logger logging.Logger) {
	h := &thoughtStoreHandler{store: store, logger: logger}
	router.GET("/thoughts", h.list)
	router.POST("/thoughts", h.create)
	router.POST("/thoughts/link", h.link)
}

type thoughtStoreHandler struct {
	store  thoughtstore.Store
	logger logging.Logger
}

func (h *thoughtStoreHandler) list(c *gin.Context) {
	filter := thoughtstore.Filter{
		Source: c.Query("source"),
		Query:  c.Query("query"),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(c, errors.NewValidationError("limit must be a non-negative integer", err).WithContext("limit", raw))
			return
		}
		filter.Limit = limit
	}

	records, err := h.store.List(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, "List", err)
		return
	}
	if records == nil {
		records = []thoughtstore.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"thoughts": records})
}

func (h *thoughtStoreHandler) create(c *gin.Context) {
	var request thoughtstore.CreateRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		writeError(c, errors.NewValidationError("invalid request body", err))
		return
	}
	id, err := h.store.Create(c.Request.Context(), request)
	if err != nil {
		h.fail(c, "Create", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (h *thoughtStoreHandler) link(c *gin.Context) {
	var request thoughtstore.LinkRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		writeError(c, errors.NewValidationError("invalid request body", err))
		return
	}
	if err := h.store.Link(c.Request.Context(), request.FromID, request.ToID, request.Relationship); err != nil {
		h.fail(c, "Link", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "linked"})
}

func (h *thoughtStoreHandler) fail(c *gin.Context, operation string, err error) {
	if StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Errorf("Thought store %s handler: %v", operation, err)
	}
	writeError(c, err)
}

// RegisterMetricsHandler exposes gatherer at GET /metrics.
func RegisterMetricsHandler(router gin.IRouter, gatherer prometheus.Gatherer) {
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}
