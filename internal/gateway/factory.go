package gateway

import (
	"context"
	"fmt"
	"log"

	"github.com/ridwanfathin/receipt-sync-service/internal/database"
)

// Backend names accepted by REMOTE_BACKEND
const (
	BackendNone     = "none"
	BackendDrive    = "drive"
	BackendS3       = "s3"
	BackendPostgres = "postgres"
)

// Options carries the per-backend configuration used by New
type Options struct {
	Backend  string
	Drive    *DriveConfig
	S3       *S3Config
	Postgres *database.PostgresDB
}

// New builds the gateway selected by opts.Backend
func New(ctx context.Context, opts Options) (RemoteGateway, error) {
	switch opts.Backend {
	case "", BackendNone:
		log.Println("Remote backend disabled, receipts stay local-only")
		return NopGateway{}, nil
	case BackendDrive:
		if opts.Drive == nil {
			return nil, &GatewayError{Backend: BackendDrive, Op: "check_config", Err: fmt.Errorf("missing drive configuration")}
		}
		return NewDriveGateway(ctx, opts.Drive)
	case BackendS3:
		if opts.S3 == nil {
			return nil, &GatewayError{Backend: BackendS3, Op: "check_config", Err: fmt.Errorf("missing s3 configuration")}
		}
		return NewS3Gateway(opts.S3)
	case BackendPostgres:
		if opts.Postgres == nil {
			return nil, &GatewayError{Backend: BackendPostgres, Op: "check_config", Err: fmt.Errorf("missing postgres connection")}
		}
		gw := NewPostgresGateway(opts.Postgres)
		if err := gw.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return gw, nil
	default:
		return nil, fmt.Errorf("unknown remote backend %q", opts.Backend)
	}
}
