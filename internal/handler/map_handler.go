package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/memorymap-backend-go/internal/mapview"
	"github.com/jengzang/memorymap-backend-go/internal/middleware"
	"github.com/jengzang/memorymap-backend-go/internal/models"
	"github.com/jengzang/memorymap-backend-go/internal/service"
	"github.com/jengzang/memorymap-backend-go/pkg/response"
)

// MapHandler handles HTTP requests for map views
type MapHandler struct {
	service *service.MapService
	tokens  *middleware.ViewTokens
}

// NewMapHandler creates a new map handler
func NewMapHandler(service *service.MapService, tokens *middleware.ViewTokens) *MapHandler {
	return &MapHandler{service: service, tokens: tokens}
}

// ZoomRequest carries the zoom a cluster was clicked at
type ZoomRequest struct {
	Zoom *int `json:"zoom" binding:"required,min=0,max=30"`
}

// fail maps service errors onto the response envelope
func fail(c *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, mapview.ErrViewNotFound):
		response.NotFound(c, "View not found")
	case errors.Is(err, service.ErrClusterNotFound):
		response.NotFound(c, "Cluster not found")
	case errors.Is(err, service.ErrNoteNotFound):
		response.NotFound(c, "Note not found")
	default:
		response.InternalError(c, message, err)
	}
}

func clusterParam(c *gin.Context) (models.ClusterID, bool) {
	id, err := models.ParseClusterID(c.Param("clusterId"))
	if err != nil {
		response.BadRequest(c, "Invalid cluster ID", err)
		return 0, false
	}
	return id, true
}

// CreateView handles POST /api/v1/views
func (h *MapHandler) CreateView(c *gin.Context) {
	v := h.service.CreateView()
	token, exp, err := h.tokens.Issue(v.ID())
	if err != nil {
		h.service.RemoveView(v.ID())
		response.InternalError(c, "Failed to issue view token", err)
		return
	}

	c.JSON(http.StatusCreated, response.Response{
		Code:    0,
		Message: "success",
		Data: gin.H{
			"view":      v.Current(),
			"token":     token,
			"expiresAt": exp,
		},
	})
}

// GetView handles GET /api/v1/views/:id
func (h *MapHandler) GetView(c *gin.Context) {
	v, err := h.service.View(c.Param("id"))
	if err != nil {
		fail(c, "Failed to get view", err)
		return
	}
	response.Success(c, v.Current())
}

// DeleteView handles DELETE /api/v1/views/:id
func (h *MapHandler) DeleteView(c *gin.Context) {
	if _, err := h.service.View(c.Param("id")); err != nil {
		fail(c, "Failed to delete view", err)
		return
	}
	h.service.RemoveView(c.Param("id"))
	response.Success(c, gin.H{"id": c.Param("id")})
}

// Settle handles POST /api/v1/views/:id/settle
func (h *MapHandler) Settle(c *gin.Context) {
	var filter models.ViewportFilter
	if err := c.ShouldBindJSON(&filter); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid viewport", err)
		return
	}
	if !filter.BBox().Valid() {
		response.BadRequest(c, "Invalid bounding box")
		return
	}

	rs, err := h.service.Settle(c.Param("id"), filter)
	if err != nil {
		fail(c, "Failed to settle viewport", err)
		return
	}
	response.Success(c, rs)
}

// ActivateCluster handles POST /api/v1/views/:id/clusters/:clusterId/activate
func (h *MapHandler) ActivateCluster(c *gin.Context) {
	id, ok := clusterParam(c)
	if !ok {
		return
	}
	var req ZoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	out, rs, err := h.service.ActivateCluster(c.Param("id"), id, *req.Zoom)
	if err != nil {
		fail(c, "Failed to activate cluster", err)
		return
	}
	response.Success(c, gin.H{"outcome": out, "view": rs})
}

// ActivatePoint handles POST /api/v1/views/:id/points/:noteId/activate
func (h *MapHandler) ActivatePoint(c *gin.Context) {
	out, rs, err := h.service.ActivatePoint(c.Param("id"), c.Param("noteId"))
	if err != nil {
		fail(c, "Failed to activate note", err)
		return
	}
	response.Success(c, gin.H{"outcome": out, "view": rs})
}

// ZoomStart handles POST /api/v1/views/:id/zoom-start
func (h *MapHandler) ZoomStart(c *gin.Context) {
	rs, err := h.service.ZoomStart(c.Param("id"))
	if err != nil {
		fail(c, "Failed to start zoom", err)
		return
	}
	response.Success(c, rs)
}

// BackgroundClick handles POST /api/v1/views/:id/background-click
func (h *MapHandler) BackgroundClick(c *gin.Context) {
	rs, err := h.service.BackgroundClick(c.Param("id"))
	if err != nil {
		fail(c, "Failed to handle background click", err)
		return
	}
	response.Success(c, rs)
}

// Focus handles POST /api/v1/views/:id/focus
func (h *MapHandler) Focus(c *gin.Context) {
	rs, err := h.service.RequestFocus(c.Param("id"))
	if err != nil {
		fail(c, "Failed to focus view", err)
		return
	}
	response.Success(c, rs)
}

// Events handles GET /api/v1/views/:id/events as a server-sent event stream
// of render sets. The stream ends when the client goes away or the view is
// dropped.
func (h *MapHandler) Events(c *gin.Context) {
	v, err := h.service.View(c.Param("id"))
	if err != nil {
		fail(c, "Failed to open event stream", err)
		return
	}
	ch, cancel := v.Subscribe()
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.SSEvent("render", v.Current())
	c.Writer.Flush()

	keepAlive := time.NewTicker(30 * time.Second)
	defer keepAlive.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case rs, ok := <-ch:
			if !ok {
				return
			}
			c.SSEvent("render", rs)
			c.Writer.Flush()
		case <-keepAlive.C:
			c.SSEvent("ping", time.Now().Unix())
			c.Writer.Flush()
		}
	}
}

// GlobeMarkers handles GET /api/v1/globe
func (h *MapHandler) GlobeMarkers(c *gin.Context) {
	markers := h.service.GlobeMarkers()
	response.Success(c, gin.H{
		"data":  markers,
		"count": len(markers),
	})
}

// GlobeActivateCluster handles POST /api/v1/views/:id/globe/clusters/:clusterId/activate
func (h *MapHandler) GlobeActivateCluster(c *gin.Context) {
	id, ok := clusterParam(c)
	if !ok {
		return
	}
	focus, rs, err := h.service.GlobeActivateCluster(c.Param("id"), id)
	if err != nil {
		fail(c, "Failed to activate globe cluster", err)
		return
	}
	response.Success(c, gin.H{"focus": focus, "view": rs})
}

// GlobeActivateNote handles POST /api/v1/views/:id/globe/notes/:noteId/activate
func (h *MapHandler) GlobeActivateNote(c *gin.Context) {
	focus, rs, err := h.service.GlobeActivateNote(c.Param("id"), c.Param("noteId"))
	if err != nil {
		fail(c, "Failed to activate globe note", err)
		return
	}
	response.Success(c, gin.H{"focus": focus, "view": rs})
}

// ClusterMembers handles GET /api/v1/clusters/:clusterId/members
func (h *MapHandler) ClusterMembers(c *gin.Context) {
	id, ok := clusterParam(c)
	if !ok {
		return
	}
	members, err := h.service.Members(id)
	if err != nil {
		fail(c, "Failed to get cluster members", err)
		return
	}
	response.Success(c, gin.H{
		"data":  members,
		"count": len(members),
	})
}

// ClusterChildren handles GET /api/v1/clusters/:clusterId/children
func (h *MapHandler) ClusterChildren(c *gin.Context) {
	id, ok := clusterParam(c)
	if !ok {
		return
	}
	children, err := h.service.Children(id)
	if err != nil {
		fail(c, "Failed to get cluster children", err)
		return
	}
	exp, _ := h.service.ExpansionZoom(id)
	response.Success(c, gin.H{
		"data":          children,
		"count":         len(children),
		"expansionZoom": exp,
	})
}

// GetNote handles GET /api/v1/notes/:noteId
func (h *MapHandler) GetNote(c *gin.Context) {
	n, err := h.service.Note(c.Request.Context(), c.Param("noteId"))
	if err != nil {
		fail(c, "Failed to get note", err)
		return
	}
	response.Success(c, n)
}

// Stats handles GET /api/v1/stats
func (h *MapHandler) Stats(c *gin.Context) {
	response.Success(c, h.service.Stats())
}
