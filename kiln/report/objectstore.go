package report

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStoreConfig points at an S3-compatible bucket the run directory
// is archived to after the job. The store is optional: with an empty
// endpoint nothing is uploaded.
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// ObjectStoreConfigFromEnv reads the KILN_S3_* variables. Returns an
// empty config (upload disabled) when no endpoint is set.
func ObjectStoreConfigFromEnv() ObjectStoreConfig {
	return ObjectStoreConfig{
		Endpoint:  os.Getenv("KILN_S3_ENDPOINT"),
		AccessKey: os.Getenv("KILN_S3_ACCESS_KEY"),
		SecretKey: os.Getenv("KILN_S3_SECRET_KEY"),
		Bucket:    os.Getenv("KILN_S3_BUCKET"),
		Prefix:    os.Getenv("KILN_S3_PREFIX"),
		UseSSL:    os.Getenv("KILN_S3_USE_SSL") == "true",
	}
}

func (c ObjectStoreConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c ObjectStoreConfig) validate() error {
	if c.AccessKey == "" || c.SecretKey == "" {
		return fmt.Errorf("object store credentials are required")
	}
	if c.Bucket == "" {
		return fmt.Errorf("object store bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("object store endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}

// Uploader archives run directories to the object store.
type Uploader struct {
	cfg    ObjectStoreConfig
	client *minio.Client
}

func NewUploader(cfg ObjectStoreConfig) (*Uploader, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	return &Uploader{cfg: cfg, client: client}, nil
}

// UploadRun pushes every file of the run directory under
// <prefix>/<runID>/. A failed upload is reported to the caller but is
// never fatal for the job itself.
func (u *Uploader) UploadRun(ctx context.Context, runID, dir string) error {
	return filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		key := filepath.ToSlash(filepath.Join(u.cfg.Prefix, runID, rel))
		contentType := "text/plain"
		if strings.HasSuffix(rel, ".json") {
			contentType = "application/json"
		}

		_, err = u.client.FPutObject(ctx, u.cfg.Bucket, key, path,
			minio.PutObjectOptions{ContentType: contentType})
		if err != nil {
			return fmt.Errorf("failed to upload %s: %w", rel, err)
		}
		return nil
	})
}
