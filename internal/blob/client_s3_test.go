package blob

import (
	"context"
	"crypto/md5"
	"encoding/pem"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 speaks just enough path-style S3 REST for the adapter.
type fakeS3 struct {
	mu       sync.Mutex
	bucket   string
	objects  map[string][]byte
	etags    map[string]string
	pageSize int
	status   int    // forced error status for every request
	code     string // forced error code
	requests int
}

func newFakeS3(t *testing.T, bucket string) (*fakeS3, *httptest.Server) {
	t.Helper()
	f := &fakeS3{
		bucket:   bucket,
		objects:  make(map[string][]byte),
		etags:    make(map[string]string),
		pageSize: 1000,
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeS3) put(key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	f.etags[key] = fmt.Sprintf("%x", md5.Sum(data))
}

type s3ListResult struct {
	XMLName               xml.Name      `xml:"http://s3.amazonaws.com/doc/2006-03-01/ ListBucketResult"`
	Name                  string        `xml:"Name"`
	Prefix                string        `xml:"Prefix"`
	KeyCount              int           `xml:"KeyCount"`
	MaxKeys               int           `xml:"MaxKeys"`
	IsTruncated           bool          `xml:"IsTruncated"`
	NextContinuationToken string        `xml:"NextContinuationToken,omitempty"`
	Contents              []s3ListEntry `xml:"Contents"`
}

type s3ListEntry struct {
	Key          string `xml:"Key"`
	LastModified string `xml:"LastModified"`
	ETag         string `xml:"ETag"`
	Size         int64  `xml:"Size"`
	StorageClass string `xml:"StorageClass"`
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++

	if f.status != 0 {
		f.writeError(w, r, f.status, f.code)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/")
	bucket, key, _ := strings.Cut(path, "/")
	if bucket != f.bucket {
		f.writeError(w, r, http.StatusNotFound, "NoSuchBucket")
		return
	}

	switch {
	case key == "" && r.Method == http.MethodGet:
		f.list(w, r)
	case r.Method == http.MethodPut:
		data, err := io.ReadAll(r.Body)
		if err == nil && strings.HasPrefix(r.Header.Get("X-Amz-Content-Sha256"), "STREAMING-") {
			data, err = decodeAWSChunked(data)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.objects[key] = data
		f.etags[key] = fmt.Sprintf("%x", md5.Sum(data))
		w.Header().Set("ETag", `"`+f.etags[key]+`"`)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodHead, r.Method == http.MethodGet:
		data, ok := f.objects[key]
		if !ok {
			f.writeError(w, r, http.StatusNotFound, "NoSuchKey")
			return
		}
		w.Header().Set("ETag", `"`+f.etags[key]+`"`)
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(data)
		}
	case r.Method == http.MethodDelete:
		delete(f.objects, key)
		delete(f.etags, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		f.writeError(w, r, http.StatusMethodNotAllowed, "MethodNotAllowed")
	}
}

// decodeAWSChunked strips the "<hex>;chunk-signature=...\r\n" framing that
// streaming SigV4 uploads wrap around the payload.
func decodeAWSChunked(body []byte) ([]byte, error) {
	var out []byte
	for {
		header, rest, ok := strings.Cut(string(body), "\r\n")
		if !ok {
			return nil, fmt.Errorf("chunk header missing")
		}
		sizeHex, _, _ := strings.Cut(header, ";")
		size, err := strconv.ParseInt(sizeHex, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("chunk size %q: %w", sizeHex, err)
		}
		if size == 0 {
			return out, nil
		}
		if int64(len(rest)) < size+2 {
			return nil, fmt.Errorf("chunk truncated")
		}
		out = append(out, rest[:size]...)
		body = []byte(rest[size+2:])
	}
}

func (f *fakeS3) list(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if token := r.URL.Query().Get("continuation-token"); token != "" {
		start, _ = strconv.Atoi(token)
	}
	end := min(start+f.pageSize, len(keys))

	result := s3ListResult{Name: f.bucket, Prefix: prefix, MaxKeys: f.pageSize}
	for _, k := range keys[start:end] {
		result.Contents = append(result.Contents, s3ListEntry{
			Key:          k,
			LastModified: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
			ETag:         `"` + f.etags[k] + `"`,
			Size:         int64(len(f.objects[k])),
			StorageClass: "STANDARD",
		})
	}
	result.KeyCount = len(result.Contents)
	if end < len(keys) {
		result.IsTruncated = true
		result.NextContinuationToken = strconv.Itoa(end)
	}

	w.Header().Set("Content-Type", "application/xml")
	_, _ = io.WriteString(w, xml.Header)
	_ = xml.NewEncoder(w).Encode(result)
}

func (f *fakeS3) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>%s</Code><Message>%s</Message><RequestId>test</RequestId></Error>`, code, code)
}

func newTestS3Client(t *testing.T, endpoint, url string) *S3Client {
	t.Helper()
	client, err := NewS3Client(&Config{
		Provider:    ProviderS3,
		URL:         url,
		Region:      "us-east-1",
		Endpoint:    endpoint,
		Credentials: Credentials{AccessKey: "AKIDTEST", SecretKey: "SECRETTEST"},
	})
	require.NoError(t, err)
	return client
}

func TestNewS3ClientWithCABundle(t *testing.T) {
	tlsSrv := httptest.NewTLSServer(http.NotFoundHandler())
	t.Cleanup(tlsSrv.Close)

	bundle := filepath.Join(t.TempDir(), "ca.pem")
	block := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: tlsSrv.Certificate().Raw})
	require.NoError(t, os.WriteFile(bundle, block, 0o600))
	t.Setenv("AWS_CA_BUNDLE", bundle)

	fake, srv := newFakeS3(t, "journal")
	client := newTestS3Client(t, srv.URL, "s3://journal")

	_, err := client.Upload(context.Background(), writeTemp(t, "a.txt", "x"), "a.txt")
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Contains(t, fake.objects, "a.txt")
}

func TestS3UploadAndList(t *testing.T) {
	ctx := context.Background()
	fake, srv := newFakeS3(t, "journal")
	client := newTestS3Client(t, srv.URL, "s3://journal/backups")

	info, err := client.Upload(ctx, writeTemp(t, "a.txt", "first"), "entries/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "entries/a.txt", info.Key)
	assert.EqualValues(t, 5, info.Size)
	assert.Equal(t, "8b04d5e3775d298e78455efc5ca404d5", info.ContentHash)

	fake.mu.Lock()
	assert.Equal(t, []byte("first"), fake.objects["backups/entries/a.txt"])
	fake.mu.Unlock()

	fake.put("backups/b.txt", []byte("bee"))
	fake.put("elsewhere/c.txt", []byte("sea"))

	list, err := client.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b.txt", list[0].Key)
	assert.EqualValues(t, 3, list[0].Size)
	assert.Equal(t, "entries/a.txt", list[1].Key)
	assert.Equal(t, "8b04d5e3775d298e78455efc5ca404d5", list[1].ContentHash)
}

func TestS3ListPaginates(t *testing.T) {
	fake, srv := newFakeS3(t, "journal")
	fake.pageSize = 2
	for i := range 5 {
		fake.put(fmt.Sprintf("f%d.txt", i), []byte{byte(i)})
	}

	client := newTestS3Client(t, srv.URL, "s3://journal")
	list, err := client.List(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, list, 5)
}

func TestS3MultipartETagHasNoHash(t *testing.T) {
	fake, srv := newFakeS3(t, "journal")
	fake.put("big.bin", []byte("x"))
	fake.mu.Lock()
	fake.etags["big.bin"] = "9b2cf535f27731c974343645a3985328-3"
	fake.mu.Unlock()

	client := newTestS3Client(t, srv.URL, "s3://journal")
	list, err := client.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].HasHash())
}

func TestS3GetInfoExistsDownloadDelete(t *testing.T) {
	ctx := context.Background()
	fake, srv := newFakeS3(t, "journal")
	fake.put("a.txt", []byte("hello"))
	client := newTestS3Client(t, srv.URL, "s3://journal")

	info, err := client.GetInfo(ctx, "a.txt")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.EqualValues(t, 5, info.Size)
	assert.Equal(t, fmt.Sprintf("%x", md5.Sum([]byte("hello"))), info.ContentHash)

	missing, err := client.GetInfo(ctx, "missing.txt")
	require.NoError(t, err)
	assert.Nil(t, missing)

	ok, err := client.Exists(ctx, "a.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	dest := filepath.Join(t.TempDir(), "nested", "a.txt")
	require.NoError(t, client.Download(ctx, "a.txt", dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	err = client.Download(ctx, "missing.txt", dest)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, client.Delete(ctx, "a.txt"))
	ok, err = client.Exists(ctx, "a.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestS3ErrorTranslation(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		code      string
		kind      ErrorKind
		retryable bool
	}{
		{"access denied", http.StatusForbidden, "AccessDenied", KindAuth, false},
		{"bad signature", http.StatusForbidden, "SignatureDoesNotMatch", KindAuth, false},
		{"slow down", http.StatusServiceUnavailable, "SlowDown", KindProvider, true},
		{"internal", http.StatusInternalServerError, "InternalError", KindProvider, true},
		{"no bucket", http.StatusNotFound, "NoSuchBucket", KindProvider, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake, srv := newFakeS3(t, "journal")
			fake.status = tt.status
			fake.code = tt.code
			client := newTestS3Client(t, srv.URL, "s3://journal")

			_, err := client.Upload(context.Background(), writeTemp(t, "a.txt", "x"), "a.txt")
			require.Error(t, err)
			assert.Equal(t, tt.kind, Classify(err))
			assert.Equal(t, tt.retryable, IsRetryable(err))

			fake.mu.Lock()
			assert.Equal(t, 1, fake.requests, "sdk retries must stay disabled")
			fake.mu.Unlock()
		})
	}
}

func TestS3HeadAuthFailure(t *testing.T) {
	for _, status := range []int{http.StatusForbidden, http.StatusUnauthorized} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			fake, srv := newFakeS3(t, "journal")
			fake.status = status
			fake.code = "AccessDenied"
			client := newTestS3Client(t, srv.URL, "s3://journal")

			_, err := client.GetInfo(context.Background(), "a.txt")
			require.Error(t, err)
			assert.Equal(t, KindAuth, Classify(err))
			assert.False(t, IsRetryable(err))

			_, err = client.Exists(context.Background(), "a.txt")
			require.Error(t, err)
			assert.Equal(t, KindAuth, Classify(err))

			_, err = client.List(context.Background(), "")
			require.Error(t, err)
			assert.Equal(t, KindAuth, Classify(err))
		})
	}
}

func TestS3NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	client := newTestS3Client(t, endpoint, "s3://journal")
	_, err := client.List(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, KindNetwork, Classify(err))
	assert.True(t, IsRetryable(err))
}

func TestS3UploadMissingLocalFile(t *testing.T) {
	_, srv := newFakeS3(t, "journal")
	client := newTestS3Client(t, srv.URL, "s3://journal")

	_, err := client.Upload(context.Background(), filepath.Join(t.TempDir(), "nope"), "a.txt")
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, KindNotFound, Classify(err))
	assert.False(t, IsRetryable(err))
}
