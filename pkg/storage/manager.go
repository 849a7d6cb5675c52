package storage

import (
	"context"
	"fmt"
)

// Config selects and configures a driver.
type Config struct {
	Driver    string // "local" or "s3"
	LocalRoot string
	LocalURL  string
	S3        S3Config
}

// New builds the disk named by c.Driver.
func New(ctx context.Context, c Config) (Disk, error) {
	switch c.Driver {
	case "", "local":
		return NewLocalDisk(c.LocalRoot, c.LocalURL)
	case "s3":
		return NewS3Disk(ctx, c.S3)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q (supported: local, s3)", c.Driver)
	}
}
