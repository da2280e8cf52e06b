package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"steam-inventory/internal/auth"
	"steam-inventory/internal/services/inventory"
)

type APIHandler struct {
	inventory *inventory.Inventory
	backend   inventory.SteamID
	log       *logrus.Entry
}

// Dependencies are the pieces NewRouter mounts. Metrics and Hub may be nil.
// SteamID is the identity the inventory backend queries for; when set, only
// tokens for that identity may start new queries.
type Dependencies struct {
	Inventory *inventory.Inventory
	SteamID   inventory.SteamID
	Auth      *auth.Service
	Metrics   interface {
		HTTPRecorder
		Handler() http.Handler
	}
	WebSocket gin.HandlerFunc
	Log       *logrus.Entry
}

// NewRouter builds the gin engine: health, metrics and websocket at the root,
// the authenticated inventory API under /api/v1.
func NewRouter(deps Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), LoggerMiddleware(deps.Log), CORSMiddleware())
	if deps.Metrics != nil {
		r.Use(MetricsMiddleware(deps.Metrics))
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	if deps.WebSocket != nil {
		r.GET("/ws", deps.WebSocket)
	}
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	apiGroup := r.Group("/api/v1")
	apiGroup.Use(AuthMiddleware(deps.Auth))
	SetupRoutes(apiGroup, deps.Inventory, deps.SteamID, deps.Log)
	return r
}

func SetupRoutes(r *gin.RouterGroup, inv *inventory.Inventory, backend inventory.SteamID, log *logrus.Entry) {
	handler := &APIHandler{inventory: inv, backend: backend, log: log}

	inventoryRoutes := r.Group("/inventory")
	{
		inventoryRoutes.POST("/promo", handler.GrantPromoItems)
		inventoryRoutes.POST("/items", handler.GetAllItems)
		inventoryRoutes.GET("/results", handler.GetOutstanding)
		inventoryRoutes.GET("/results/:handle/items", handler.GetResultItems)
		inventoryRoutes.GET("/results/:handle/owner", handler.CheckOwner)
		inventoryRoutes.DELETE("/results/:handle", handler.DestroyResult)
	}

	definitions := r.Group("/definitions")
	{
		definitions.POST("/load", handler.LoadDefinitions)
		definitions.GET("", handler.GetDefinitions)
		definitions.GET("/:id/properties", handler.GetPropertyNames)
		definitions.GET("/:id/properties/:name", handler.GetProperty)
	}
}

// Inventory handlers
func (h *APIHandler) GrantPromoItems(c *gin.Context) {
	h.submitted(c, h.inventory.GrantPromoItems)
}

func (h *APIHandler) GetAllItems(c *gin.Context) {
	h.submitted(c, h.inventory.GetAllItems)
}

func (h *APIHandler) submitted(c *gin.Context, call func() (bool, inventory.ResultHandle)) {
	if caller := c.MustGet(ownerKey).(inventory.SteamID); h.backend != 0 && caller != h.backend {
		h.log.WithField("steam_id", caller.String()).Warn("inventory request for a foreign identity refused")
		c.JSON(http.StatusForbidden, gin.H{"accepted": false, "error": "token identity does not match the inventory account"})
		return
	}
	accepted, handle := call()
	if !accepted {
		c.JSON(http.StatusConflict, gin.H{"accepted": false, "error": "request rejected by inventory service"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": true, "handle": handle})
}

// GetOutstanding lists the caller's unreleased handles.
func (h *APIHandler) GetOutstanding(c *gin.Context) {
	caller := c.MustGet(ownerKey).(inventory.SteamID)
	results := make([]inventory.OutstandingResult, 0)
	for _, r := range h.inventory.Outstanding() {
		if h.inventory.CheckOwner(r.Handle, caller) {
			results = append(results, r)
		}
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h *APIHandler) GetResultItems(c *gin.Context) {
	handle, ok := h.ownedHandle(c)
	if !ok {
		return
	}

	items, err := h.inventory.GetResultItems(handle)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"handle": handle, "items": items})
}

func (h *APIHandler) CheckOwner(c *gin.Context) {
	handle, ok := resultHandle(c)
	if !ok {
		return
	}
	owner := c.MustGet(ownerKey).(inventory.SteamID)
	c.JSON(http.StatusOK, gin.H{
		"handle":   handle,
		"steam_id": owner.String(),
		"owner":    h.inventory.CheckOwner(handle, owner),
	})
}

func (h *APIHandler) DestroyResult(c *gin.Context) {
	handle, ok := h.ownedHandle(c)
	if !ok {
		return
	}
	h.inventory.DestroyResult(handle)
	c.Status(http.StatusNoContent)
}

// Definition handlers
func (h *APIHandler) LoadDefinitions(c *gin.Context) {
	h.inventory.LoadItemDefinitions()
	c.JSON(http.StatusAccepted, gin.H{"message": "item definition load requested"})
}

func (h *APIHandler) GetDefinitions(c *gin.Context) {
	ids, err := h.inventory.GetItemDefinitions()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"definitions": ids})
}

func (h *APIHandler) GetPropertyNames(c *gin.Context) {
	id, ok := definitionID(c)
	if !ok {
		return
	}

	names, err := h.inventory.GetItemDefinitionPropertyNames(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "properties": names})
}

func (h *APIHandler) GetProperty(c *gin.Context) {
	id, ok := definitionID(c)
	if !ok {
		return
	}

	name := c.Param("name")
	value, err := h.inventory.GetItemDefinitionProperty(id, name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "name": name, "value": value})
}

func resultHandle(c *gin.Context) (inventory.ResultHandle, bool) {
	handle, err := inventory.ParseResultHandle(c.Param("handle"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid result handle"})
		return inventory.InvalidResultHandle, false
	}
	return handle, true
}

// ownedHandle parses the handle and answers 404 unless it belongs to the
// token's identity. Invalid handles pass through so the inventory reports them.
func (h *APIHandler) ownedHandle(c *gin.Context) (inventory.ResultHandle, bool) {
	handle, ok := resultHandle(c)
	if !ok || !handle.Valid() {
		return handle, ok
	}
	caller := c.MustGet(ownerKey).(inventory.SteamID)
	if !h.inventory.CheckOwner(handle, caller) {
		h.log.WithFields(logrus.Fields{"handle": handle.Raw(), "steam_id": caller.String()}).Warn("result handle not owned by caller")
		c.JSON(http.StatusNotFound, gin.H{"error": "result not found", "kind": "result_not_found"})
		return handle, false
	}
	return handle, true
}

func definitionID(c *gin.Context) (inventory.ItemDefinitionID, bool) {
	id, err := inventory.ParseItemDefinitionID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item definition id"})
		return inventory.ItemDefinitionID{}, false
	}
	return id, true
}

// fail maps inventory error kinds to HTTP status codes.
func (h *APIHandler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, inventory.ErrInvalidHandle):
		status = http.StatusBadRequest
	case errors.Is(err, inventory.ErrDefinitionsNotLoaded):
		status = http.StatusConflict
	case errors.Is(err, inventory.ErrSizeQueryFailed):
		status = http.StatusNotFound
	case errors.Is(err, inventory.ErrFillFailed):
		status = http.StatusServiceUnavailable
	case errors.Is(err, inventory.ErrDecodeFailed):
		status = http.StatusBadGateway
	}

	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error(), "kind": string(inventory.KindOf(err))})
}
