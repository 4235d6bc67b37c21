package blob

import (
	"fmt"
	"strings"
)

// ValidateKey checks that key follows the relative forward-slash convention.
func ValidateKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	case strings.HasPrefix(key, "/"):
		return fmt.Errorf("%w: %q is absolute", ErrInvalidKey, key)
	case strings.ContainsAny(key, "\\\x00"):
		return fmt.Errorf("%w: %q contains a backslash or NUL", ErrInvalidKey, key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("%w: %q has an empty or relative segment", ErrInvalidKey, key)
		}
	}
	return nil
}

// normPrefix turns "/a/b/" or "a/b" into "a/b/" and "" or "/" into "".
func normPrefix(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

// objectKey joins the adapter prefix and a relative key.
func objectKey(prefix, key string) string {
	return prefix + key
}

// relativeKey strips the adapter prefix from a remote object key. ok is false
// when the object lives outside the prefix.
func relativeKey(prefix, objKey string) (string, bool) {
	if !strings.HasPrefix(objKey, prefix) {
		return "", false
	}
	rel := strings.TrimPrefix(objKey, prefix)
	return rel, rel != ""
}

// etagHash turns a store ETag into a content hash. Quoted ETags are unquoted;
// multipart ETags ("<hex>-<parts>") are not content digests and yield "".
func etagHash(etag string) string {
	etag = strings.ReplaceAll(etag, "\"", "")
	if strings.Contains(etag, "-") {
		return ""
	}
	return strings.ToLower(etag)
}
