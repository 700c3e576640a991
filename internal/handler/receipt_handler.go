package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ridwanfathin/receipt-sync-service/internal/domain"
	"github.com/ridwanfathin/receipt-sync-service/internal/imageutil"
	"github.com/ridwanfathin/receipt-sync-service/internal/model"
	"github.com/ridwanfathin/receipt-sync-service/internal/service"
)

// ReceiptHandler handles HTTP requests for receipt-related operations
type ReceiptHandler struct {
	receiptService service.ReceiptService
}

// NewReceiptHandler creates a new receipt handler
func NewReceiptHandler(receiptService service.ReceiptService) *ReceiptHandler {
	return &ReceiptHandler{
		receiptService: receiptService,
	}
}

// CreateReceipt handles the POST /receipts endpoint
// @Summary Create a new receipt
// @Description Store a receipt locally and queue its upload. When online the queue is drained before responding.
// @Tags receipts
// @Accept json
// @Produce json
// @Param receipt body domain.ReceiptInput true "Receipt data"
// @Success 201 {object} domain.Receipt "Receipt created successfully"
// @Failure 400 {object} model.ErrorResponse "Invalid input"
// @Failure 500 {object} model.ErrorResponse "Internal server error"
// @Router /v1/receipts [post]
func (h *ReceiptHandler) CreateReceipt(c *gin.Context) {
	var input domain.ReceiptInput
	if err := bindJSON(c, &input); err != nil {
		respondBadRequest(c, ErrInvalidInput, newErrorDetail("body", err.Error()))
		return
	}

	receipt, err := h.receiptService.SaveReceipt(c.Request.Context(), input)
	if err != nil {
		respondServiceError(c, "failed_to_create_receipt", err)
		return
	}

	respondCreated(c, receipt)
}

// GetReceipts handles the GET /receipts endpoint
// @Summary List receipts
// @Description List stored receipts, newest first
// @Tags receipts
// @Produce json
// @Param date query string false "Exact date (YYYY-MM-DD)"
// @Param status query string false "Sync status" Enums(offline, pending_sync, synced, sync_failed)
// @Param company query string false "Company substring"
// @Success 200 {object} model.ReceiptsListResponse
// @Failure 400 {object} model.ErrorResponse "Invalid query parameters"
// @Failure 500 {object} model.ErrorResponse "Internal server error"
// @Router /v1/receipts [get]
func (h *ReceiptHandler) GetReceipts(c *gin.Context) {
	filter := domain.ReceiptFilter{
		Date:    strings.TrimSpace(c.Query("date")),
		Status:  domain.SyncStatus(c.Query("status")),
		Company: strings.TrimSpace(c.Query("company")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		respondBadRequest(c, "Invalid query parameters", newErrorDetail("status", "Unknown sync status"))
		return
	}

	receipts, err := h.receiptService.GetReceipts(c.Request.Context(), filter)
	if err != nil {
		respondServiceError(c, "failed_to_list_receipts", err)
		return
	}
	if receipts == nil {
		receipts = []domain.Receipt{}
	}

	respondOK(c, model.ReceiptsListResponse{Data: receipts, Count: len(receipts)})
}

// GetReceiptByID handles the GET /receipts/:receiptId endpoint
// @Summary Get a receipt
// @Tags receipts
// @Produce json
// @Param receiptId path string true "Receipt ID"
// @Success 200 {object} domain.Receipt
// @Failure 404 {object} model.ErrorResponse "Receipt not found"
// @Router /v1/receipts/{receiptId} [get]
func (h *ReceiptHandler) GetReceiptByID(c *gin.Context) {
	receiptID, err := getPathParam(c, "receiptId")
	if err != nil {
		respondBadRequest(c, ErrInvalidID)
		return
	}

	receipt, err := h.receiptService.GetReceipt(c.Request.Context(), receiptID)
	if err != nil {
		respondServiceError(c, "failed_to_get_receipt", err)
		return
	}

	respondOK(c, receipt)
}

// UpdateReceipt handles the PUT /receipts/:receiptId endpoint
// @Summary Update a receipt
// @Description Merge the given fields into a receipt and queue the remote update
// @Tags receipts
// @Accept json
// @Produce json
// @Param receiptId path string true "Receipt ID"
// @Param receipt body domain.ReceiptUpdate true "Fields to change"
// @Success 200 {object} domain.Receipt
// @Failure 400 {object} model.ErrorResponse "Invalid input"
// @Failure 404 {object} model.ErrorResponse "Receipt not found"
// @Router /v1/receipts/{receiptId} [put]
func (h *ReceiptHandler) UpdateReceipt(c *gin.Context) {
	receiptID, err := getPathParam(c, "receiptId")
	if err != nil {
		respondBadRequest(c, ErrInvalidID)
		return
	}

	var update domain.ReceiptUpdate
	if err := bindJSON(c, &update); err != nil {
		respondBadRequest(c, ErrInvalidInput, newErrorDetail("body", err.Error()))
		return
	}

	receipt, err := h.receiptService.UpdateReceipt(c.Request.Context(), receiptID, update)
	if err != nil {
		respondServiceError(c, "failed_to_update_receipt", err)
		return
	}

	respondOK(c, receipt)
}

// DeleteReceipt handles the DELETE /receipts/:receiptId endpoint
// @Summary Delete a receipt
// @Description Delete a receipt and its image locally and queue the remote delete. Deleting a missing receipt succeeds.
// @Tags receipts
// @Param receiptId path string true "Receipt ID"
// @Success 204 "Receipt deleted"
// @Router /v1/receipts/{receiptId} [delete]
func (h *ReceiptHandler) DeleteReceipt(c *gin.Context) {
	receiptID, err := getPathParam(c, "receiptId")
	if err != nil {
		respondBadRequest(c, ErrInvalidID)
		return
	}

	if err := h.receiptService.DeleteReceipt(c.Request.Context(), receiptID); err != nil {
		respondServiceError(c, "failed_to_delete_receipt", err)
		return
	}

	respondNoContent(c)
}

// PutReceiptImage handles the PUT /receipts/:receiptId/image endpoint
// @Summary Attach an image to a receipt
// @Description Store the raw image as the receipt's image, replacing any previous one
// @Tags receipts
// @Accept multipart/form-data
// @Produce json
// @Param receiptId path string true "Receipt ID"
// @Param image formData file true "Receipt image"
// @Success 200 {object} domain.Image
// @Failure 400 {object} model.ErrorResponse "Bad request"
// @Failure 404 {object} model.ErrorResponse "Receipt not found"
// @Router /v1/receipts/{receiptId}/image [put]
func (h *ReceiptHandler) PutReceiptImage(c *gin.Context) {
	receiptID, err := getPathParam(c, "receiptId")
	if err != nil {
		respondBadRequest(c, ErrInvalidID)
		return
	}

	data, mimeType, err := readImage(c, "image")
	if err != nil {
		respondBadRequest(c, err.Error(), newErrorDetail("image", "Receipt image is required"))
		return
	}

	image, err := h.receiptService.SaveImage(c.Request.Context(), receiptID, data, mimeType)
	if err != nil {
		respondServiceError(c, "failed_to_save_image", err)
		return
	}

	respondOK(c, image)
}

// GetReceiptImage handles the GET /receipts/:receiptId/image endpoint
// @Summary Download a receipt image
// @Tags receipts
// @Produce image/jpeg,image/png,image/webp
// @Param receiptId path string true "Receipt ID"
// @Param thumbnail query integer false "Return a JPEG preview bounded by this many pixels"
// @Success 200 {file} binary
// @Failure 400 {object} model.ErrorResponse "Invalid thumbnail size"
// @Failure 404 {object} model.ErrorResponse "Image not found"
// @Router /v1/receipts/{receiptId}/image [get]
func (h *ReceiptHandler) GetReceiptImage(c *gin.Context) {
	receiptID, err := getPathParam(c, "receiptId")
	if err != nil {
		respondBadRequest(c, ErrInvalidID)
		return
	}

	image, err := h.receiptService.GetImage(c.Request.Context(), receiptID)
	if err != nil {
		respondServiceError(c, "failed_to_get_image", err)
		return
	}

	if raw := c.Query("thumbnail"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			respondBadRequest(c, ErrInvalidInput, newErrorDetail("thumbnail", "thumbnail must be a positive integer"))
			return
		}
		thumb, err := imageutil.Thumbnail(image.Data, size)
		if err != nil {
			respondServiceError(c, "failed_to_build_thumbnail", err)
			return
		}
		c.Data(StatusOK, thumb.MimeType, thumb.Data)
		return
	}

	c.Data(StatusOK, image.MimeType, image.Data)
}

// CaptureReceipt handles the POST /receipts/capture endpoint
// @Summary Capture a receipt from a photo
// @Description Resize and compress the photo, then store it with the given receipt fields
// @Tags receipts
// @Accept multipart/form-data
// @Produce json
// @Param image formData file true "Receipt photo"
// @Param date formData string true "Receipt date (YYYY-MM-DD)"
// @Param company formData string false "Company"
// @Param item formData string false "Item"
// @Param price formData integer false "Price"
// @Success 201 {object} domain.Receipt
// @Failure 400 {object} model.ErrorResponse "Bad request"
// @Failure 422 {object} model.ErrorResponse "Unsupported image"
// @Router /v1/receipts/capture [post]
func (h *ReceiptHandler) CaptureReceipt(c *gin.Context) {
	data, _, err := readImage(c, "image")
	if err != nil {
		respondBadRequest(c, err.Error(), newErrorDetail("image", "Receipt image is required"))
		return
	}

	price, err := parsePrice(c.PostForm("price"))
	if err != nil {
		respondBadRequest(c, ErrInvalidInput, newErrorDetail("price", err.Error()))
		return
	}

	input := domain.ReceiptInput{
		Date:    c.PostForm("date"),
		Company: c.PostForm("company"),
		Item:    c.PostForm("item"),
		Price:   price,
	}

	receipt, err := h.receiptService.CaptureReceipt(c.Request.Context(), input, data)
	if err != nil {
		respondServiceError(c, "failed_to_capture_receipt", err)
		return
	}

	respondCreated(c, receipt)
}

// ScanReceipt handles the POST /receipts/scan endpoint
// @Summary Scan a receipt image
// @Description Extract suggested receipt fields from a photo. Nothing is stored; when extraction fails the suggestion is blank and dated today.
// @Tags receipts
// @Accept multipart/form-data
// @Produce json
// @Param image formData file true "Receipt photo"
// @Success 200 {object} service.ScanResult
// @Failure 400 {object} model.ErrorResponse "Bad request"
// @Failure 422 {object} model.ErrorResponse "Unsupported image"
// @Router /v1/receipts/scan [post]
func (h *ReceiptHandler) ScanReceipt(c *gin.Context) {
	data, _, err := readImage(c, "image")
	if err != nil {
		respondBadRequest(c, err.Error(), newErrorDetail("image", "Receipt image is required"))
		return
	}

	result, err := h.receiptService.ScanReceipt(c.Request.Context(), data)
	if err != nil {
		respondServiceError(c, "failed_to_scan_receipt", err)
		return
	}

	respondOK(c, result)
}

// RegisterRoutes registers the receipt routes under the given group
func (h *ReceiptHandler) RegisterRoutes(api *gin.RouterGroup) {
	receipts := api.Group("/receipts")
	{
		receipts.POST("", h.CreateReceipt)
		receipts.GET("", h.GetReceipts)
		receipts.POST("/capture", h.CaptureReceipt)
		receipts.POST("/scan", h.ScanReceipt)
		receipts.GET("/:receiptId", h.GetReceiptByID)
		receipts.PUT("/:receiptId", h.UpdateReceipt)
		receipts.DELETE("/:receiptId", h.DeleteReceipt)
		receipts.PUT("/:receiptId/image", h.PutReceiptImage)
		receipts.GET("/:receiptId/image", h.GetReceiptImage)
	}
}
