package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ridwanfathin/receipt-sync-service/internal/model"
	"github.com/ridwanfathin/receipt-sync-service/internal/oauth"
)

// DriveAuthenticator runs the Google Drive authorization flow
type DriveAuthenticator interface {
	Configured() bool
	AuthURL(ctx context.Context) (string, error)
	Exchange(ctx context.Context, code, state string) error
	Connected(ctx context.Context) bool
	Disconnect(ctx context.Context) error
}

// DriveHandler handles linking the Google Drive account used as sync target
type DriveHandler struct {
	auth DriveAuthenticator
}

// NewDriveHandler creates a new drive handler
func NewDriveHandler(auth DriveAuthenticator) *DriveHandler {
	return &DriveHandler{auth: auth}
}

// Connect initiates the Google OAuth flow
// @Summary Link Google Drive
// @Description Redirects to the Google consent screen. Pass response_type=json to get the URL instead.
// @Tags auth
// @Produce json
// @Success 302 "Redirect to Google OAuth"
// @Failure 400 {object} model.ErrorResponse "OAuth client not configured"
// @Router /v1/auth/drive [get]
func (h *DriveHandler) Connect(c *gin.Context) {
	if !h.auth.Configured() {
		respondBadRequest(c, "Google Drive OAuth client is not configured")
		return
	}

	url, err := h.auth.AuthURL(c.Request.Context())
	if err != nil {
		logError(c, "drive_auth_url_failed", err, nil)
		respondInternalServerError(c, "Failed to start Google Drive authorization")
		return
	}

	if c.GetHeader("Accept") == "application/json" || c.Query("response_type") == "json" {
		respondOK(c, gin.H{"url": url})
		return
	}
	c.Redirect(http.StatusTemporaryRedirect, url)
}

// Callback handles the Google OAuth callback
// @Summary Handle Google OAuth callback
// @Description Exchanges the authorization code and stores the Drive token
// @Tags auth
// @Produce json
// @Param code query string true "OAuth authorization code"
// @Param state query string true "OAuth state parameter"
// @Success 200 {object} model.DriveStatusResponse
// @Failure 400 {object} model.ErrorResponse "Bad request"
// @Failure 500 {object} model.ErrorResponse "Internal server error"
// @Router /v1/auth/drive/callback [get]
func (h *DriveHandler) Callback(c *gin.Context) {
	if errParam := c.Query("error"); errParam != "" {
		respondBadRequest(c, "Authorization was denied", newErrorDetail("error", errParam))
		return
	}

	code := c.Query("code")
	if code == "" {
		respondBadRequest(c, "Authorization code is required")
		return
	}

	if err := h.auth.Exchange(c.Request.Context(), code, c.Query("state")); err != nil {
		if errors.Is(err, oauth.ErrStateMismatch) {
			respondBadRequest(c, "Invalid state parameter")
			return
		}
		logError(c, "drive_oauth_callback_failed", err, map[string]interface{}{
			"error_type": "oauth_error",
		})
		respondInternalServerError(c, "Failed to authenticate with Google")
		return
	}

	respondOK(c, model.DriveStatusResponse{Configured: true, Connected: true})
}

// Status reports whether a Drive account is linked
// @Summary Google Drive link status
// @Tags auth
// @Produce json
// @Success 200 {object} model.DriveStatusResponse
// @Router /v1/auth/drive/status [get]
func (h *DriveHandler) Status(c *gin.Context) {
	respondOK(c, model.DriveStatusResponse{
		Configured: h.auth.Configured(),
		Connected:  h.auth.Connected(c.Request.Context()),
	})
}

// Disconnect forgets the stored Drive token
// @Summary Unlink Google Drive
// @Tags auth
// @Success 204 "Disconnected"
// @Router /v1/auth/drive [delete]
func (h *DriveHandler) Disconnect(c *gin.Context) {
	if err := h.auth.Disconnect(c.Request.Context()); err != nil {
		respondServiceError(c, "drive_disconnect_failed", err)
		return
	}
	respondNoContent(c)
}

// RegisterRoutes registers the Drive auth routes. The callback stays public
// because Google redirects the browser there without the API token.
func (h *DriveHandler) RegisterRoutes(public, protected *gin.RouterGroup) {
	public.GET("/auth/drive/callback", h.Callback)

	drive := protected.Group("/auth/drive")
	{
		drive.GET("", h.Connect)
		drive.GET("/status", h.Status)
		drive.DELETE("", h.Disconnect)
	}
}
