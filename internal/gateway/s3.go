package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/ridwanfathin/receipt-sync-service/internal/domain"
)

// S3Config holds configuration for the S3-compatible gateway
type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	Region          string
	Prefix          string
	// PathSuffix is appended to the endpoint; Supabase storage expects "/storage/v1/s3"
	PathSuffix string
}

// S3Gateway stores each receipt as an image object plus a JSON metadata object
type S3Gateway struct {
	s3Client *s3.S3
	bucket   string
	prefix   string
}

// NewS3Gateway creates a new S3 gateway
func NewS3Gateway(config *S3Config) (*S3Gateway, error) {
	if config.Endpoint == "" || config.AccessKeyID == "" || config.AccessKeySecret == "" {
		return nil, &GatewayError{Backend: "s3", Op: "check_config", Err: fmt.Errorf("S3 configuration is incomplete")}
	}

	if config.Bucket == "" {
		return nil, &GatewayError{Backend: "s3", Op: "check_config", Err: fmt.Errorf("S3 bucket is not configured")}
	}

	region := config.Region
	if region == "" {
		region = "us-east-1"
	}

	sess, err := session.NewSession(&aws.Config{
		Region:           aws.String(region),
		Endpoint:         aws.String(strings.TrimRight(config.Endpoint, "/") + config.PathSuffix),
		Credentials:      credentials.NewStaticCredentials(config.AccessKeyID, config.AccessKeySecret, ""),
		S3ForcePathStyle: aws.Bool(true),
	})
	if err != nil {
		return nil, &GatewayError{Backend: "s3", Op: "create_session", Err: err}
	}

	prefix := strings.Trim(config.Prefix, "/")
	if prefix == "" {
		prefix = "receipts"
	}

	return &S3Gateway{
		s3Client: s3.New(sess),
		bucket:   config.Bucket,
		prefix:   prefix,
	}, nil
}

// UploadReceipt writes the image and metadata objects and returns the object key prefix
func (g *S3Gateway) UploadReceipt(ctx context.Context, receipt *domain.Receipt, image *domain.Image) (string, error) {
	if err := g.putReceipt(ctx, receipt, image); err != nil {
		return "", err
	}
	return g.objectBase(receipt.ID), nil
}

// UpdateReceipt overwrites the image and metadata objects
func (g *S3Gateway) UpdateReceipt(ctx context.Context, receipt *domain.Receipt, image *domain.Image) error {
	return g.putReceipt(ctx, receipt, image)
}

// DeleteReceipt removes both objects of a receipt
func (g *S3Gateway) DeleteReceipt(ctx context.Context, receiptID, remoteID string) error {
	base := remoteID
	if base == "" {
		base = g.objectBase(receiptID)
	}

	for _, key := range []string{base + ".json", base + ".jpg", base + ".png", base + ".webp"} {
		_, err := g.s3Client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(g.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return &GatewayError{Backend: "s3", Op: "delete_object", Err: fmt.Errorf("%s: %w", key, err)}
		}
	}
	return nil
}

func (g *S3Gateway) putReceipt(ctx context.Context, receipt *domain.Receipt, image *domain.Image) error {
	base := g.objectBase(receipt.ID)

	if image != nil && len(image.Data) > 0 {
		contentType := imageContentType(image)
		_, err := g.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(g.bucket),
			Key:           aws.String(base + extensionFor(contentType)),
			Body:          bytes.NewReader(image.Data),
			ContentType:   aws.String(contentType),
			ContentLength: aws.Int64(int64(len(image.Data))),
			Metadata: aws.StringMap(map[string]string{
				"receipt-id": receipt.ID,
				"filename":   ReceiptFilename(receipt, contentType),
			}),
		})
		if err != nil {
			return &GatewayError{Backend: "s3", Op: "put_image", Err: err}
		}
	}

	metadata, err := json.Marshal(receipt)
	if err != nil {
		return &GatewayError{Backend: "s3", Op: "marshal_metadata", Err: err}
	}

	_, err = g.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(g.bucket),
		Key:           aws.String(base + ".json"),
		Body:          bytes.NewReader(metadata),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(metadata))),
	})
	if err != nil {
		return &GatewayError{Backend: "s3", Op: "put_metadata", Err: err}
	}
	return nil
}

func (g *S3Gateway) objectBase(receiptID string) string {
	return g.prefix + "/" + receiptID
}
