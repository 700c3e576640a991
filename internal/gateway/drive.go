package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/ridwanfathin/receipt-sync-service/internal/domain"
)

// DriveConfig holds configuration for the Google Drive gateway
type DriveConfig struct {
	FolderID    string
	TokenSource oauth2.TokenSource
}

// DriveGateway stores receipts as files in a Google Drive folder
type DriveGateway struct {
	service  *drive.Service
	folderID string
}

// NewDriveGateway creates a Drive gateway. Extra client options override the token source (used in tests).
func NewDriveGateway(ctx context.Context, config *DriveConfig, opts ...option.ClientOption) (*DriveGateway, error) {
	clientOpts := opts
	if len(clientOpts) == 0 {
		if config.TokenSource == nil {
			return nil, &GatewayError{Backend: "drive", Op: "check_config", Err: fmt.Errorf("no OAuth token source configured")}
		}
		clientOpts = []option.ClientOption{option.WithTokenSource(config.TokenSource)}
	}

	service, err := drive.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, &GatewayError{Backend: "drive", Op: "create_service", Err: err}
	}

	return &DriveGateway{
		service:  service,
		folderID: config.FolderID,
	}, nil
}

// UploadReceipt creates a Drive file holding the receipt image and returns the file ID
func (g *DriveGateway) UploadReceipt(ctx context.Context, receipt *domain.Receipt, image *domain.Image) (string, error) {
	file := g.fileMetadata(receipt, image)
	if g.folderID != "" {
		file.Parents = []string{g.folderID}
	}

	media, contentType, err := mediaFor(receipt, image)
	if err != nil {
		return "", &GatewayError{Backend: "drive", Op: "build_media", Err: err}
	}

	created, err := g.service.Files.Create(file).
		Media(media, googleapi.ContentType(contentType)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", driveError("create_file", err)
	}

	return created.Id, nil
}

// UpdateReceipt renames the Drive file and replaces its content
func (g *DriveGateway) UpdateReceipt(ctx context.Context, receipt *domain.Receipt, image *domain.Image) error {
	if receipt.RemoteID == "" {
		return &GatewayError{Backend: "drive", Op: "update_file", Err: fmt.Errorf("receipt %s has no remote file", receipt.ID)}
	}

	media, contentType, err := mediaFor(receipt, image)
	if err != nil {
		return &GatewayError{Backend: "drive", Op: "build_media", Err: err}
	}

	_, err = g.service.Files.Update(receipt.RemoteID, g.fileMetadata(receipt, image)).
		Media(media, googleapi.ContentType(contentType)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return driveError("update_file", err)
	}
	return nil
}

// DeleteReceipt deletes the Drive file; a file that is already gone counts as deleted
func (g *DriveGateway) DeleteReceipt(ctx context.Context, receiptID, remoteID string) error {
	if remoteID == "" {
		return nil
	}

	err := g.service.Files.Delete(remoteID).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return nil
		}
		return driveError("delete_file", fmt.Errorf("receipt %s: %w", receiptID, err))
	}
	return nil
}

func (g *DriveGateway) fileMetadata(receipt *domain.Receipt, image *domain.Image) *drive.File {
	name := ReceiptFilename(receipt, imageContentType(image))
	if image == nil || len(image.Data) == 0 {
		name = ReceiptFilename(receipt, "application/json")
	}

	return &drive.File{
		Name:        name,
		Description: fmt.Sprintf("%s %s %s %d", receipt.Date, receipt.Company, receipt.Item, receipt.Price),
		AppProperties: map[string]string{
			"receiptId": receipt.ID,
			"date":      receipt.Date,
			"company":   receipt.Company,
			"item":      receipt.Item,
			"price":     strconv.FormatInt(int64(receipt.Price), 10),
		},
	}
}

// mediaFor returns the image bytes, or the receipt as JSON when there is no image
func mediaFor(receipt *domain.Receipt, image *domain.Image) (io.Reader, string, error) {
	if image != nil && len(image.Data) > 0 {
		return bytes.NewReader(image.Data), imageContentType(image), nil
	}

	data, err := json.Marshal(receipt)
	if err != nil {
		return nil, "", err
	}
	return bytes.NewReader(data), "application/json", nil
}

func driveError(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
		err = fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return &GatewayError{Backend: "drive", Op: op, Err: err}
}
