package handler

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ridwanfathin/receipt-sync-service/internal/domain"
	"github.com/ridwanfathin/receipt-sync-service/internal/model"
	"github.com/ridwanfathin/receipt-sync-service/internal/service"
)

// SyncHandler serves the sync queue, connectivity and maintenance endpoints
type SyncHandler struct {
	receiptService service.ReceiptService
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(receiptService service.ReceiptService) *SyncHandler {
	return &SyncHandler{receiptService: receiptService}
}

// ProcessSyncQueue handles the POST /sync endpoint
// @Summary Drain the sync queue
// @Description Replay queued operations in order. Does nothing while offline.
// @Tags sync
// @Produce json
// @Success 200 {object} model.SyncResponse
// @Failure 500 {object} model.ErrorResponse "Internal server error"
// @Router /v1/sync [post]
func (h *SyncHandler) ProcessSyncQueue(c *gin.Context) {
	result, err := h.receiptService.ProcessSyncQueue(c.Request.Context())
	if err != nil {
		respondServiceError(c, "failed_to_process_sync_queue", err)
		return
	}

	respondOK(c, model.SyncResponse{
		Processed: result.Processed,
		Succeeded: result.Succeeded,
		Retried:   result.Retried,
		Failed:    result.Failed,
		Offline:   result.Offline,
	})
}

// GetSyncQueue handles the GET /sync/queue endpoint
// @Summary List queued operations
// @Tags sync
// @Produce json
// @Success 200 {object} model.SyncQueueResponse
// @Router /v1/sync/queue [get]
func (h *SyncHandler) GetSyncQueue(c *gin.Context) {
	ops, err := h.receiptService.SyncQueue(c.Request.Context())
	if err != nil {
		respondServiceError(c, "failed_to_list_sync_queue", err)
		return
	}
	if ops == nil {
		ops = []domain.PendingOperation{}
	}

	respondOK(c, model.SyncQueueResponse{Data: ops, Count: len(ops)})
}

// RetryOperation handles the POST /sync/queue/:opId/retry endpoint
// @Summary Retry a queued operation
// @Description Reset the attempt counter of an operation and drain when online
// @Tags sync
// @Produce json
// @Param opId path integer true "Operation ID"
// @Success 200 {object} domain.PendingOperation
// @Failure 404 {object} model.ErrorResponse "Operation not found"
// @Router /v1/sync/queue/{opId}/retry [post]
func (h *SyncHandler) RetryOperation(c *gin.Context) {
	opID, err := getPathInt64(c, "opId")
	if err != nil {
		respondBadRequest(c, ErrInvalidID, newErrorDetail("opId", err.Error()))
		return
	}

	op, err := h.receiptService.RetryOperation(c.Request.Context(), opID)
	if err != nil {
		respondServiceError(c, "failed_to_retry_operation", err)
		return
	}

	respondOK(c, op)
}

// DiscardOperation handles the DELETE /sync/queue/:opId endpoint
// @Summary Discard a queued operation
// @Description Drop an operation; its receipt stays local only
// @Tags sync
// @Param opId path integer true "Operation ID"
// @Success 204 "Operation discarded"
// @Failure 404 {object} model.ErrorResponse "Operation not found"
// @Router /v1/sync/queue/{opId} [delete]
func (h *SyncHandler) DiscardOperation(c *gin.Context) {
	opID, err := getPathInt64(c, "opId")
	if err != nil {
		respondBadRequest(c, ErrInvalidID, newErrorDetail("opId", err.Error()))
		return
	}

	if err := h.receiptService.DiscardOperation(c.Request.Context(), opID); err != nil {
		respondServiceError(c, "failed_to_discard_operation", err)
		return
	}

	respondNoContent(c)
}

// GetNetworkStatus handles the GET /network endpoint
// @Summary Get connectivity state
// @Tags network
// @Produce json
// @Success 200 {object} model.NetworkStatusResponse
// @Router /v1/network [get]
func (h *SyncHandler) GetNetworkStatus(c *gin.Context) {
	respondOK(c, model.NetworkStatusResponse{Online: h.receiptService.IsOnline()})
}

// SetNetworkStatus handles the PUT /network endpoint
// @Summary Override connectivity state
// @Description Going online drains the sync queue in the background
// @Tags network
// @Accept json
// @Produce json
// @Param status body model.NetworkStatusRequest true "Connectivity"
// @Success 200 {object} model.NetworkStatusResponse
// @Failure 400 {object} model.ErrorResponse "Invalid input"
// @Router /v1/network [put]
func (h *SyncHandler) SetNetworkStatus(c *gin.Context) {
	var req model.NetworkStatusRequest
	if err := bindJSON(c, &req); err != nil {
		respondBadRequest(c, ErrInvalidInput, newErrorDetail("online", "online is required"))
		return
	}

	h.receiptService.SetOnline(*req.Online)
	respondOK(c, model.NetworkStatusResponse{Online: h.receiptService.IsOnline()})
}

// GetStats handles the GET /stats endpoint
// @Summary Storage statistics
// @Tags maintenance
// @Produce json
// @Success 200 {object} domain.StorageStats
// @Router /v1/stats [get]
func (h *SyncHandler) GetStats(c *gin.Context) {
	stats, err := h.receiptService.Stats(c.Request.Context())
	if err != nil {
		respondServiceError(c, "failed_to_get_stats", err)
		return
	}

	respondOK(c, stats)
}

// Export handles the GET /export endpoint
// @Summary Export receipts
// @Description Download a JSON backup of every receipt
// @Tags maintenance
// @Produce json
// @Success 200 {object} domain.Export
// @Router /v1/export [get]
func (h *SyncHandler) Export(c *gin.Context) {
	export, err := h.receiptService.Export(c.Request.Context())
	if err != nil {
		respondServiceError(c, "failed_to_export", err)
		return
	}

	filename := fmt.Sprintf("receipts-backup-%s.json", time.Now().Format(domain.DateLayout))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	respondOK(c, export)
}

// ClearData handles the DELETE /data endpoint
// @Summary Clear all local data
// @Description Remove every receipt, image, queued operation and setting. Remote copies are left alone.
// @Tags maintenance
// @Success 204 "Data cleared"
// @Router /v1/data [delete]
func (h *SyncHandler) ClearData(c *gin.Context) {
	if err := h.receiptService.ClearAll(c.Request.Context()); err != nil {
		respondServiceError(c, "failed_to_clear_data", err)
		return
	}

	respondNoContent(c)
}

// GetSetting handles the GET /settings/:key endpoint
// @Summary Get a setting
// @Tags settings
// @Produce json
// @Param key path string true "Setting key"
// @Success 200 {object} domain.Setting
// @Failure 404 {object} model.ErrorResponse "Setting not found"
// @Router /v1/settings/{key} [get]
func (h *SyncHandler) GetSetting(c *gin.Context) {
	key, err := getPathParam(c, "key")
	if err != nil {
		respondBadRequest(c, ErrInvalidID)
		return
	}

	setting, err := h.receiptService.GetSetting(c.Request.Context(), key)
	if err != nil {
		respondServiceError(c, "failed_to_get_setting", err)
		return
	}

	respondOK(c, setting)
}

// PutSetting handles the PUT /settings/:key endpoint
// @Summary Set a setting
// @Tags settings
// @Accept json
// @Produce json
// @Param key path string true "Setting key"
// @Param setting body model.SettingRequest true "Value"
// @Success 200 {object} domain.Setting
// @Failure 400 {object} model.ErrorResponse "Invalid input"
// @Router /v1/settings/{key} [put]
func (h *SyncHandler) PutSetting(c *gin.Context) {
	key, err := getPathParam(c, "key")
	if err != nil {
		respondBadRequest(c, ErrInvalidID)
		return
	}

	var req model.SettingRequest
	if err := bindJSON(c, &req); err != nil {
		respondBadRequest(c, ErrInvalidInput, newErrorDetail("value", err.Error()))
		return
	}

	if err := h.receiptService.SetSetting(c.Request.Context(), key, req.Value); err != nil {
		respondServiceError(c, "failed_to_set_setting", err)
		return
	}

	setting, err := h.receiptService.GetSetting(c.Request.Context(), key)
	if err != nil {
		respondServiceError(c, "failed_to_get_setting", err)
		return
	}
	respondOK(c, setting)
}

// DeleteSetting handles the DELETE /settings/:key endpoint
// @Summary Delete a setting
// @Tags settings
// @Param key path string true "Setting key"
// @Success 204 "Setting deleted"
// @Router /v1/settings/{key} [delete]
func (h *SyncHandler) DeleteSetting(c *gin.Context) {
	key, err := getPathParam(c, "key")
	if err != nil {
		respondBadRequest(c, ErrInvalidID)
		return
	}

	if err := h.receiptService.DeleteSetting(c.Request.Context(), key); err != nil {
		respondServiceError(c, "failed_to_delete_setting", err)
		return
	}

	respondNoContent(c)
}

// RegisterRoutes registers the sync, network, maintenance and settings routes
func (h *SyncHandler) RegisterRoutes(api *gin.RouterGroup) {
	sync := api.Group("/sync")
	{
		sync.POST("", h.ProcessSyncQueue)
		sync.GET("/queue", h.GetSyncQueue)
		sync.POST("/queue/:opId/retry", h.RetryOperation)
		sync.DELETE("/queue/:opId", h.DiscardOperation)
	}

	api.GET("/network", h.GetNetworkStatus)
	api.PUT("/network", h.SetNetworkStatus)

	api.GET("/stats", h.GetStats)
	api.GET("/export", h.Export)
	api.DELETE("/data", h.ClearData)

	settings := api.Group("/settings")
	{
		settings.GET("/:key", h.GetSetting)
		settings.PUT("/:key", h.PutSetting)
		settings.DELETE("/:key", h.DeleteSetting)
	}
}
