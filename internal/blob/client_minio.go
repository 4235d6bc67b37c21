package blob

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient is the Client for MinIO and other self-hosted S3-compatible
// servers, addressed as http(s)://host:port/bucket[/prefix].
type MinioClient struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewMinioClient(cfg *Config) (*MinioClient, error) {
	host, secure, loc, err := parseEndpointURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	region := cfg.Region
	if region == "" {
		region = defaultS3Region
	}

	client, err := minio.New(host, &minio.Options{
		Creds: credentials.NewStaticV4(
			cfg.Credentials.AccessKey,
			cfg.Credentials.SecretKey,
			cfg.Credentials.SessionToken,
		),
		Secure: secure,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: minio client: %v", ErrInvalidConfig, err)
	}

	return &MinioClient{client: client, bucket: loc.Bucket, prefix: loc.Prefix}, nil
}

func (c *MinioClient) Provider() string {
	return ProviderMinio
}

func (c *MinioClient) Upload(ctx context.Context, localPath string, key string) (*BlobInfo, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if _, err := os.Stat(localPath); err != nil {
		return nil, localFileError(ProviderMinio, "upload", key, err)
	}

	info, err := c.client.FPutObject(ctx, c.bucket, objectKey(c.prefix, key), localPath, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return nil, translateMinioError("upload", key, err)
	}

	modTime := info.LastModified
	if modTime.IsZero() {
		modTime = time.Now()
	}
	return &BlobInfo{
		Key:          key,
		Size:         info.Size,
		ContentHash:  etagHash(info.ETag),
		LastModified: modTime.UTC(),
	}, nil
}

func (c *MinioClient) Download(ctx context.Context, key string, localPath string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("minio.download %s: %w", key, err)
	}
	// FGetObject stages into "<path>.part.minio" and renames on completion
	if err := c.client.FGetObject(ctx, c.bucket, objectKey(c.prefix, key), localPath, minio.GetObjectOptions{}); err != nil {
		return translateMinioError("download", key, err)
	}
	return nil
}

func (c *MinioClient) List(ctx context.Context, prefix string) ([]*BlobInfo, error) {
	objects := c.client.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{
		Prefix:    objectKey(c.prefix, prefix),
		Recursive: true,
	})

	var infos []*BlobInfo
	for obj := range objects {
		if obj.Err != nil {
			return nil, translateMinioError("list", prefix, obj.Err)
		}
		rel, ok := relativeKey(c.prefix, obj.Key)
		if !ok || strings.HasSuffix(rel, "/") {
			continue
		}
		infos = append(infos, &BlobInfo{
			Key:          rel,
			Size:         obj.Size,
			ContentHash:  etagHash(obj.ETag),
			LastModified: obj.LastModified.UTC(),
		})
	}
	return infos, nil
}

func (c *MinioClient) Exists(ctx context.Context, key string) (bool, error) {
	info, err := c.GetInfo(ctx, key)
	return info != nil, err
}

func (c *MinioClient) GetInfo(ctx context.Context, key string) (*BlobInfo, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	obj, err := c.client.StatObject(ctx, c.bucket, objectKey(c.prefix, key), minio.StatObjectOptions{})
	if err != nil {
		err = translateMinioError("stat", key, err)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &BlobInfo{
		Key:          key,
		Size:         obj.Size,
		ContentHash:  etagHash(obj.ETag),
		LastModified: obj.LastModified.UTC(),
	}, nil
}

func (c *MinioClient) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	err := c.client.RemoveObject(ctx, c.bucket, objectKey(c.prefix, key), minio.RemoveObjectOptions{})
	if err != nil {
		err = translateMinioError("delete", key, err)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	return nil
}

// translateMinioError maps minio-go failures onto the package error taxonomy.
func translateMinioError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey" || resp.Code == "NotFound":
		return newOpError(ProviderMinio, op, key, ErrNotFound, err)
	case resp.Code == "AccessDenied" || resp.Code == "InvalidAccessKeyId" || resp.Code == "SignatureDoesNotMatch" ||
		resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return newOpError(ProviderMinio, op, key, ErrAuthentication, err)
	case resp.Code != "" || resp.StatusCode != 0:
		return &ProviderError{
			Provider:  ProviderMinio,
			Op:        op,
			Key:       key,
			Code:      resp.Code,
			Status:    resp.StatusCode,
			Retryable: s3TransientCodes[resp.Code] || retryableStatus(resp.StatusCode),
			Err:       err,
		}
	case isNetworkError(err):
		return newOpError(ProviderMinio, op, key, ErrNetwork, err)
	}
	return err
}

var _ Client = (*MinioClient)(nil)
