package blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/imroc/req/v3"

	"github.com/openmined/journalsync/internal/utils"
	"github.com/openmined/journalsync/internal/version"
)

const (
	httpBlobsPath = "/blobs"
	httpTimeout   = 10 * time.Minute
)

// APIError is the JSON error body returned by the blob API.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s - %s", e.Code, e.Message)
}

// listResponse is one page of GET /blobs.
type listResponse struct {
	Blobs      []*BlobInfo `json:"blobs"`
	NextCursor string      `json:"nextCursor,omitempty"`
}

// HTTPClient talks to a plain REST blob API:
//
//	PUT    {base}/blobs/{key}        body = file bytes, returns BlobInfo
//	GET    {base}/blobs/{key}        returns file bytes
//	HEAD   {base}/blobs/{key}        ETag, Content-Length, Last-Modified
//	DELETE {base}/blobs/{key}
//	GET    {base}/blobs?prefix=&cursor=  returns {blobs, nextCursor}
type HTTPClient struct {
	client *req.Client
}

func NewHTTPClient(cfg *Config) (*HTTPClient, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: expected http(s):// url, got %q", ErrInvalidConfig, cfg.URL)
	}

	client := req.C().
		SetBaseURL(strings.TrimSuffix(cfg.URL, "/")).
		SetUserAgent(version.UserAgent()).
		SetTimeout(httpTimeout).
		SetCommonRetryCount(0)
	if cfg.Credentials.Token != "" {
		client.SetCommonBearerAuthToken(cfg.Credentials.Token)
	}

	return &HTTPClient{client: client}, nil
}

func (c *HTTPClient) Provider() string {
	return ProviderHTTP
}

func (c *HTTPClient) Upload(ctx context.Context, localPath string, key string) (*BlobInfo, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	file, err := os.Open(localPath)
	if err != nil {
		return nil, localFileError(ProviderHTTP, "upload", key, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, localFileError(ProviderHTTP, "upload", key, err)
	}

	var info BlobInfo
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(file).
		SetSuccessResult(&info).
		Put(blobPath(key))
	if err := translateHTTPError("upload", key, resp, err); err != nil {
		return nil, err
	}

	info.Key = key
	if info.Size <= 0 {
		info.Size = stat.Size()
	}
	if info.LastModified.IsZero() {
		info.LastModified = time.Now().UTC()
	}
	return &info, nil
}

func (c *HTTPClient) Download(ctx context.Context, key string, localPath string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	resp, err := c.client.R().
		SetContext(ctx).
		DisableAutoReadResponse().
		Get(blobPath(key))
	if err != nil {
		return translateHTTPError("download", key, resp, err)
	}
	defer resp.Body.Close()

	if resp.IsErrorState() {
		return statusError("download", key, resp.GetStatusCode(), decodeAPIError(resp.Body))
	}
	if err := utils.WriteFileAtomic(localPath, resp.Body, 0o644); err != nil {
		return translateHTTPError("download", key, nil, err)
	}
	return nil
}

func (c *HTTPClient) List(ctx context.Context, prefix string) ([]*BlobInfo, error) {
	var infos []*BlobInfo
	cursor := ""
	for {
		var page listResponse
		resp, err := c.client.R().
			SetContext(ctx).
			SetQueryParam("prefix", prefix).
			SetQueryParam("cursor", cursor).
			SetSuccessResult(&page).
			Get(httpBlobsPath)
		if err := translateHTTPError("list", prefix, resp, err); err != nil {
			return nil, err
		}

		for _, b := range page.Blobs {
			if b == nil || b.Key == "" {
				continue
			}
			b.ContentHash = etagHash(b.ContentHash)
			infos = append(infos, b)
		}

		if page.NextCursor == "" || page.NextCursor == cursor {
			return infos, nil
		}
		cursor = page.NextCursor
	}
}

func (c *HTTPClient) Exists(ctx context.Context, key string) (bool, error) {
	info, err := c.GetInfo(ctx, key)
	return info != nil, err
}

func (c *HTTPClient) GetInfo(ctx context.Context, key string) (*BlobInfo, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	resp, err := c.client.R().
		SetContext(ctx).
		Head(blobPath(key))
	if err := translateHTTPError("head", key, resp, err); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	info := &BlobInfo{
		Key:         key,
		Size:        -1,
		ContentHash: etagHash(resp.Header.Get("ETag")),
	}
	if resp.ContentLength >= 0 {
		info.Size = resp.ContentLength
	}
	if t, err := http.ParseTime(resp.Header.Get("Last-Modified")); err == nil {
		info.LastModified = t.UTC()
	}
	return info, nil
}

func (c *HTTPClient) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	resp, err := c.client.R().
		SetContext(ctx).
		Delete(blobPath(key))
	if err := translateHTTPError("delete", key, resp, err); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	return nil
}

// blobPath escapes each key segment but keeps the separators.
func blobPath(key string) string {
	segs := strings.Split(key, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return httpBlobsPath + "/" + strings.Join(segs, "/")
}

func decodeAPIError(body io.Reader) *APIError {
	data, _ := io.ReadAll(io.LimitReader(body, 64*1024))
	return parseAPIError(data)
}

func parseAPIError(data []byte) *APIError {
	apiErr := &APIError{}
	if err := json.Unmarshal(data, apiErr); err != nil || (apiErr.Code == "" && apiErr.Message == "") {
		return &APIError{Message: strings.TrimSpace(string(data))}
	}
	return apiErr
}

// translateHTTPError turns transport failures into network errors and
// classifies error states by status code.
func translateHTTPError(op, key string, resp *req.Response, requestErr error) error {
	if requestErr != nil {
		if errors.Is(requestErr, context.Canceled) || errors.Is(requestErr, context.DeadlineExceeded) {
			return requestErr
		}
		if isNetworkError(requestErr) {
			return newOpError(ProviderHTTP, op, key, ErrNetwork, requestErr)
		}
		return fmt.Errorf("http.%s %s: %w", op, key, requestErr)
	}
	if resp == nil || !resp.IsErrorState() {
		return nil
	}

	return statusError(op, key, resp.GetStatusCode(), parseAPIError(resp.Bytes()))
}

func statusError(op, key string, status int, apiErr *APIError) error {
	switch {
	case status == http.StatusNotFound:
		return newOpError(ProviderHTTP, op, key, ErrNotFound, apiErr)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return newOpError(ProviderHTTP, op, key, ErrAuthentication, apiErr)
	}
	return &ProviderError{
		Provider:  ProviderHTTP,
		Op:        op,
		Key:       key,
		Code:      apiErr.Code,
		Status:    status,
		Retryable: retryableStatus(status),
		Err:       apiErr,
	}
}

var _ Client = (*HTTPClient)(nil)
