package handler

import (
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ridwanfathin/receipt-sync-service/internal/domain"
	"github.com/ridwanfathin/receipt-sync-service/internal/imageutil"
	"github.com/ridwanfathin/receipt-sync-service/internal/model"
	"github.com/ridwanfathin/receipt-sync-service/internal/worker"
)

// maxImageBytes bounds uploaded receipt images
const maxImageBytes = 20 << 20

// getPathParam retrieves a path parameter and validates it's not empty
func getPathParam(c *gin.Context, paramName string) (string, error) {
	value := c.Param(paramName)
	if value == "" {
		return "", fmt.Errorf("%s is required", paramName)
	}
	return value, nil
}

// getPathInt64 retrieves a numeric path parameter
func getPathInt64(c *gin.Context, paramName string) (int64, error) {
	value, err := strconv.ParseInt(c.Param(paramName), 10, 64)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", paramName)
	}
	return value, nil
}

// getFormFile retrieves a file from multipart form data
func getFormFile(c *gin.Context, fieldName string) (multipart.File, *multipart.FileHeader, error) {
	file, header, err := c.Request.FormFile(fieldName)
	if err != nil {
		return nil, nil, fmt.Errorf("no %s provided", fieldName)
	}
	return file, header, nil
}

// readImage reads the multipart image field and its declared content type
func readImage(c *gin.Context, fieldName string) ([]byte, string, error) {
	file, header, err := getFormFile(c, fieldName)
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", fieldName, err)
	}
	if len(data) > maxImageBytes {
		return nil, "", fmt.Errorf("%s exceeds %d MB", fieldName, maxImageBytes>>20)
	}
	return data, header.Header.Get("Content-Type"), nil
}

// bindJSON binds JSON request body to a struct
func bindJSON(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindJSON(obj); err != nil {
		return fmt.Errorf("invalid JSON format: %v", err)
	}
	return nil
}

// parsePrice parses a whole-number price form value; blank means zero
func parsePrice(value string) (domain.Price, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	price, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("price must be a whole number")
	}
	return domain.Price(price), nil
}

// buildValidationErrors converts validation errors to ErrorDetail slice
func buildValidationErrors(verr *domain.ValidationError) []model.ErrorDetail {
	details := make([]model.ErrorDetail, 0, len(verr.Fields))
	for _, f := range verr.Fields {
		details = append(details, newErrorDetail(f.Field, f.Message))
	}
	return details
}

// logError logs a failed request with its context
func logError(c *gin.Context, event string, err error, fields map[string]interface{}) {
	log.Printf("%s %s %s: %v %v", c.Request.Method, c.Request.URL.Path, event, err, fields)
}

// respondServiceError maps a service error onto an HTTP response
func respondServiceError(c *gin.Context, event string, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		respondBadRequest(c, ErrValidation, buildValidationErrors(verr)...)
	case domain.IsNotFound(err):
		respondNotFound(c, ErrResourceNotFound)
	case errors.Is(err, imageutil.ErrUnsupportedImage):
		respondUnprocessableEntity(c, ErrFileProcessing, newErrorDetail("image", "Unsupported image format"))
	case errors.Is(err, worker.ErrStopped):
		respondWithError(c, StatusServiceUnavailable, "Service is shutting down")
	default:
		logError(c, event, err, nil)
		respondInternalServerError(c, ErrInternalServer)
	}
}
