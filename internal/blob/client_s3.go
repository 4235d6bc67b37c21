package blob

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/openmined/journalsync/internal/utils"
)

const defaultS3Region = "us-east-1"

// S3Client is the Client for AWS S3 and S3-compatible endpoints.
//
// The SDK retryer is disabled; retries belong to the caller's retry policy so
// attempts are counted in exactly one place.
type S3Client struct {
	s3     *s3.Client
	bucket string
	prefix string
}

func NewS3Client(cfg *Config) (*S3Client, error) {
	loc, err := parseS3URL(cfg.URL)
	if err != nil {
		return nil, err
	}

	// buildable so LoadDefaultConfig can still apply AWS_CA_BUNDLE
	httpClient := awshttp.NewBuildableClient().WithTransportOptions(func(tr *http.Transport) {
		tr.MaxIdleConns = 64
		tr.MaxIdleConnsPerHost = 16
		tr.IdleConnTimeout = 90 * time.Second
		tr.TLSHandshakeTimeout = 10 * time.Second
		tr.ExpectContinueTimeout = 1 * time.Second
		tr.ForceAttemptHTTP2 = true
	})

	region := cfg.Region
	if region == "" {
		region = defaultS3Region
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
		config.WithHTTPClient(httpClient),
		config.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	}
	if cfg.Credentials.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Credentials.AccessKey,
				cfg.Credentials.SecretKey,
				cfg.Credentials.SessionToken,
			),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %v", ErrInvalidConfig, err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	return &S3Client{s3: client, bucket: loc.Bucket, prefix: loc.Prefix}, nil
}

func (c *S3Client) Provider() string {
	return ProviderS3
}

func (c *S3Client) Upload(ctx context.Context, localPath string, key string) (*BlobInfo, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	file, err := os.Open(localPath)
	if err != nil {
		return nil, localFileError(ProviderS3, "upload", key, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, localFileError(ProviderS3, "upload", key, err)
	}

	resp, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(objectKey(c.prefix, key)),
		Body:          file,
		ContentLength: aws.Int64(stat.Size()),
	})
	if err != nil {
		return nil, translateS3Error("upload", key, err)
	}

	return &BlobInfo{
		Key:          key,
		Size:         stat.Size(),
		ContentHash:  etagHash(aws.ToString(resp.ETag)),
		LastModified: time.Now().UTC(),
	}, nil
}

func (c *S3Client) Download(ctx context.Context, key string, localPath string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	resp, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(objectKey(c.prefix, key)),
	})
	if err != nil {
		return translateS3Error("download", key, err)
	}
	defer resp.Body.Close()

	if err := utils.WriteFileAtomic(localPath, resp.Body, 0o644); err != nil {
		return translateS3Error("download", key, err)
	}
	return nil
}

func (c *S3Client) List(ctx context.Context, prefix string) ([]*BlobInfo, error) {
	paginator := s3.NewListObjectsV2Paginator(c.s3, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(objectKey(c.prefix, prefix)),
	})

	var infos []*BlobInfo
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, translateS3Error("list", prefix, err)
		}
		for _, obj := range page.Contents {
			rel, ok := relativeKey(c.prefix, aws.ToString(obj.Key))
			if !ok || strings.HasSuffix(rel, "/") {
				continue
			}
			infos = append(infos, &BlobInfo{
				Key:          rel,
				Size:         aws.ToInt64(obj.Size),
				ContentHash:  etagHash(aws.ToString(obj.ETag)),
				LastModified: aws.ToTime(obj.LastModified).UTC(),
			})
		}
	}
	return infos, nil
}

func (c *S3Client) Exists(ctx context.Context, key string) (bool, error) {
	info, err := c.GetInfo(ctx, key)
	return info != nil, err
}

func (c *S3Client) GetInfo(ctx context.Context, key string) (*BlobInfo, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	resp, err := c.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(objectKey(c.prefix, key)),
	})
	if err != nil {
		err = translateS3Error("head", key, err)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	size := int64(-1)
	if resp.ContentLength != nil {
		size = *resp.ContentLength
	}
	return &BlobInfo{
		Key:          key,
		Size:         size,
		ContentHash:  etagHash(aws.ToString(resp.ETag)),
		LastModified: aws.ToTime(resp.LastModified).UTC(),
	}, nil
}

func (c *S3Client) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(objectKey(c.prefix, key)),
	})
	if err != nil {
		err = translateS3Error("delete", key, err)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	return nil
}

var s3AuthCodes = map[string]bool{
	"AccessDenied":          true,
	"InvalidAccessKeyId":    true,
	"SignatureDoesNotMatch": true,
	"ExpiredToken":          true,
	"InvalidToken":          true,
	"TokenRefreshRequired":  true,
}

var s3TransientCodes = map[string]bool{
	"SlowDown":                 true,
	"ServiceUnavailable":       true,
	"InternalError":            true,
	"RequestTimeout":           true,
	"Throttling":               true,
	"ThrottlingException":      true,
	"RequestLimitExceeded":     true,
	"TooManyRequestsException": true,
}

// translateS3Error maps SDK failures onto the package error taxonomy.
func translateS3Error(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	status := 0
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) {
		status = respErr.HTTPStatusCode()
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch {
		case code == "NoSuchKey" || code == "NotFound":
			return newOpError(ProviderS3, op, key, ErrNotFound, err)
		case s3AuthCodes[code], status == http.StatusUnauthorized, status == http.StatusForbidden:
			// HEAD responses carry no body, so the code is just the status text
			return newOpError(ProviderS3, op, key, ErrAuthentication, err)
		}
		return &ProviderError{
			Provider:  ProviderS3,
			Op:        op,
			Key:       key,
			Code:      code,
			Status:    status,
			Retryable: s3TransientCodes[code] || retryableStatus(status),
			Err:       err,
		}
	}

	switch {
	case status == http.StatusNotFound:
		return newOpError(ProviderS3, op, key, ErrNotFound, err)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return newOpError(ProviderS3, op, key, ErrAuthentication, err)
	case status != 0:
		return &ProviderError{Provider: ProviderS3, Op: op, Key: key, Status: status, Retryable: retryableStatus(status), Err: err}
	case isNetworkError(err):
		return newOpError(ProviderS3, op, key, ErrNetwork, err)
	}
	return err
}

var _ Client = (*S3Client)(nil)
