package blob

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	ProviderS3     = "s3"
	ProviderMinio  = "minio"
	ProviderHTTP   = "http"
	ProviderMemory = "memory"
)

// Credentials are always supplied out-of-band (environment) and never persisted.
type Credentials struct {
	AccessKey    string
	SecretKey    string
	SessionToken string
	Token        string
}

// Config selects and configures one adapter.
//
// URL forms:
//
//	s3:     s3://bucket[/prefix]
//	minio:  http(s)://host:port/bucket[/prefix]
//	http:   http(s)://host[:port][/base]
//	memory: ignored
type Config struct {
	Provider    string
	URL         string
	Region      string
	Endpoint    string
	Credentials Credentials
}

func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: missing remote configuration", ErrInvalidConfig)
	}
	if c.Provider == "" {
		return fmt.Errorf("%w: remote provider is required", ErrInvalidConfig)
	}
	if c.Provider != ProviderMemory && c.URL == "" {
		return fmt.Errorf("%w: remote url is required for provider %q", ErrInvalidConfig, c.Provider)
	}
	return nil
}

// bucketLocation is a parsed "<bucket>/<prefix>" pair.
type bucketLocation struct {
	Bucket string
	Prefix string
}

func parseS3URL(raw string) (*bucketLocation, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: parse url %q: %v", ErrInvalidConfig, raw, err)
	}
	if u.Scheme != "s3" {
		return nil, fmt.Errorf("%w: expected s3:// url, got %q", ErrInvalidConfig, raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing bucket in %q", ErrInvalidConfig, raw)
	}
	return &bucketLocation{Bucket: u.Host, Prefix: normPrefix(u.Path)}, nil
}

// parseEndpointURL splits "http(s)://host/bucket/prefix" into endpoint host,
// TLS flag and bucket location.
func parseEndpointURL(raw string) (host string, secure bool, loc *bucketLocation, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, nil, fmt.Errorf("%w: parse url %q: %v", ErrInvalidConfig, raw, err)
	}
	switch u.Scheme {
	case "http":
	case "https":
		secure = true
	default:
		return "", false, nil, fmt.Errorf("%w: expected http(s):// url, got %q", ErrInvalidConfig, raw)
	}
	if u.Host == "" {
		return "", false, nil, fmt.Errorf("%w: missing host in %q", ErrInvalidConfig, raw)
	}
	parts := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)
	if parts[0] == "" {
		return "", false, nil, fmt.Errorf("%w: missing bucket in %q", ErrInvalidConfig, raw)
	}
	loc = &bucketLocation{Bucket: parts[0]}
	if len(parts) == 2 {
		loc.Prefix = normPrefix(parts[1])
	}
	return u.Host, secure, loc, nil
}
