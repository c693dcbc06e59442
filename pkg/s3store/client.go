// Package s3store copies block files to and from S3.
package s3store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/eunmann/typedblock/internal/logctx"
	"github.com/eunmann/typedblock/pkg/fileutil"
	"github.com/eunmann/typedblock/pkg/logging"
)

// ErrInvalidURI indicates a location that is not of the form s3://bucket/key.
var ErrInvalidURI = errors.New("invalid S3 URI")

// API is the subset of the S3 client used for transfers.
type API interface {
	manager.UploadAPIClient
	manager.DownloadAPIClient
}

// TransferConfig configures multipart transfers.
type TransferConfig struct {
	// PartSize is the size of each upload or download part in bytes
	// (default 16 MiB).
	PartSize int64
	// Concurrency is the number of parts in flight (default 8).
	Concurrency int
}

// DefaultTransferConfig returns the defaults applied to zero fields.
func DefaultTransferConfig() TransferConfig {
	return TransferConfig{
		PartSize:    16 * 1024 * 1024,
		Concurrency: 8,
	}
}

// Client uploads and downloads block files.
type Client struct {
	uploader   *manager.Uploader
	downloader *manager.Downloader
	config     TransferConfig
}

// NewClient creates a client using the default AWS configuration chain.
func NewClient(ctx context.Context, cfg TransferConfig) (*Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewClientWithAPI(s3.NewFromConfig(awsCfg), cfg), nil
}

// NewClientWithAPI creates a client over an existing S3 API.
func NewClientWithAPI(api API, cfg TransferConfig) *Client {
	def := DefaultTransferConfig()
	if cfg.PartSize <= 0 {
		cfg.PartSize = def.PartSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	return &Client{
		uploader: manager.NewUploader(api, func(u *manager.Uploader) {
			u.PartSize = cfg.PartSize
			u.Concurrency = cfg.Concurrency
		}),
		downloader: manager.NewDownloader(api, func(d *manager.Downloader) {
			d.PartSize = cfg.PartSize
			d.Concurrency = cfg.Concurrency
		}),
		config: cfg,
	}
}

// Config returns the transfer configuration with defaults applied.
func (c *Client) Config() TransferConfig {
	return c.config
}

// Location is a parsed s3://bucket/key URI.
type Location struct {
	Bucket string
	Key    string
}

func (l Location) String() string {
	return "s3://" + l.Bucket + "/" + l.Key
}

// IsPrefix reports whether the key names a directory-like prefix.
func (l Location) IsPrefix() bool {
	return l.Key == "" || strings.HasSuffix(l.Key, "/")
}

// ParseURI parses s3://bucket/key. The key may be empty or end in "/".
func ParseURI(uri string) (Location, error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return Location{}, fmt.Errorf("%w: %q must start with s3://", ErrInvalidURI, uri)
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Location{}, fmt.Errorf("%w: %q has no bucket", ErrInvalidURI, uri)
	}
	return Location{Bucket: bucket, Key: key}, nil
}

// Upload copies the file at localPath to loc. A prefix location gets the
// file's base name appended. Metadata is stored as user metadata on the
// object.
func (c *Client) Upload(ctx context.Context, localPath string, loc Location, metadata map[string]string) (Location, error) {
	if loc.IsPrefix() {
		loc.Key += filepath.Base(localPath)
	}
	log := logctx.FromContext(ctx).With().Str("uri", loc.String()).Logger()
	start := time.Now()

	f, err := os.Open(localPath)
	if err != nil {
		return loc, fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return loc, fmt.Errorf("stat %s: %w", localPath, err)
	}

	_, err = c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(loc.Bucket),
		Key:         aws.String(loc.Key),
		Body:        f,
		ContentType: aws.String("application/octet-stream"),
		Metadata:    metadata,
	})
	if err != nil {
		return loc, fmt.Errorf("upload %s: %w", loc, err)
	}

	logging.PhaseComplete(log, "push", time.Since(start)).
		Bytes("bytes", uint64(info.Size())).
		Throughput(uint64(info.Size())).
		Log("block file uploaded")
	return loc, nil
}

// Download copies loc to localPath. localPath never holds a partial
// download. A prefix location is rejected.
func (c *Client) Download(ctx context.Context, loc Location, localPath string) (int64, error) {
	if loc.IsPrefix() {
		return 0, fmt.Errorf("%w: %s names a prefix, not an object", ErrInvalidURI, loc)
	}
	log := logctx.FromContext(ctx).With().Str("uri", loc.String()).Logger()
	start := time.Now()

	tmp, err := fileutil.CreateTmp(localPath)
	if err != nil {
		return 0, err
	}
	n, err := c.downloader.Download(ctx, tmp, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		fileutil.Discard(tmp)
		return 0, fmt.Errorf("download %s: %w", loc, err)
	}
	if err := fileutil.Commit(tmp, localPath); err != nil {
		return 0, fmt.Errorf("download %s: %w", loc, err)
	}

	logging.PhaseComplete(log, "pull", time.Since(start)).
		Bytes("bytes", uint64(n)).
		Throughput(uint64(n)).
		Str("path", localPath).
		Log("block file downloaded")
	return n, nil
}
