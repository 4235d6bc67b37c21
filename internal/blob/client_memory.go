package blob

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/openmined/journalsync/internal/utils"
)

type memObject struct {
	data    []byte
	etag    string
	modTime time.Time
}

type memFault struct {
	err       error
	remaining int // <0 fails forever
}

// MemoryClient is an in-process Client. Besides serving the "memory" provider
// it is the store used by tests: it counts calls, can hide content hashes the
// way some providers do, and can be told to fail uploads for chosen keys.
type MemoryClient struct {
	mu          sync.Mutex
	objects     map[string]*memObject
	faults      map[string]*memFault
	listFault   error
	hideHashes  bool
	uploadCalls int
	listCalls   int
	deleteCalls int
	now         func() time.Time
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		objects: make(map[string]*memObject),
		faults:  make(map[string]*memFault),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryClient) Provider() string {
	return ProviderMemory
}

// HideHashes makes List and GetInfo omit content hashes.
func (m *MemoryClient) HideHashes(hide bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hideHashes = hide
}

// FailUploads makes the next `times` uploads of key fail with err. A negative
// count fails every upload of key.
func (m *MemoryClient) FailUploads(key string, err error, times int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[key] = &memFault{err: err, remaining: times}
}

// FailList makes every List call fail with err until reset with nil.
func (m *MemoryClient) FailList(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listFault = err
}

// Put stores data under key directly, bypassing call counters and faults.
func (m *MemoryClient) Put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store(key, data)
}

// Get returns the stored bytes for key.
func (m *MemoryClient) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, false
	}
	return bytes.Clone(obj.data), true
}

// Keys returns all stored keys in sorted order.
func (m *MemoryClient) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *MemoryClient) UploadCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploadCalls
}

func (m *MemoryClient) ListCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}

func (m *MemoryClient) DeleteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteCalls
}

func (m *MemoryClient) Upload(ctx context.Context, localPath string, key string) (*BlobInfo, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.uploadCalls++
	if f, ok := m.faults[key]; ok && f.remaining != 0 {
		if f.remaining > 0 {
			f.remaining--
		}
		m.mu.Unlock()
		return nil, f.err
	}
	m.mu.Unlock()

	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, localFileError(ProviderMemory, "upload", key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	obj := m.store(key, data)
	return m.info(key, obj), nil
}

func (m *MemoryClient) Download(ctx context.Context, key string, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	obj, ok := m.objects[key]
	m.mu.Unlock()
	if !ok {
		return newOpError(ProviderMemory, "download", key, ErrNotFound, nil)
	}
	return utils.WriteFileAtomic(localPath, bytes.NewReader(obj.data), 0o644)
}

func (m *MemoryClient) List(ctx context.Context, prefix string) ([]*BlobInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listFault != nil {
		return nil, m.listFault
	}

	infos := make([]*BlobInfo, 0, len(m.objects))
	for key, obj := range m.objects {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, m.info(key, obj))
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (m *MemoryClient) Exists(ctx context.Context, key string) (bool, error) {
	info, err := m.GetInfo(ctx, key)
	return info != nil, err
}

func (m *MemoryClient) GetInfo(ctx context.Context, key string) (*BlobInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, nil
	}
	return m.info(key, obj), nil
}

func (m *MemoryClient) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	delete(m.objects, key)
	return nil
}

// store must be called with mu held.
func (m *MemoryClient) store(key string, data []byte) *memObject {
	sum := md5.Sum(data)
	obj := &memObject{
		data:    bytes.Clone(data),
		etag:    fmt.Sprintf("%x", sum),
		modTime: m.now(),
	}
	m.objects[key] = obj
	return obj
}

// info must be called with mu held.
func (m *MemoryClient) info(key string, obj *memObject) *BlobInfo {
	info := &BlobInfo{
		Key:          key,
		Size:         int64(len(obj.data)),
		LastModified: obj.modTime,
	}
	if !m.hideHashes {
		info.ContentHash = obj.etag
	}
	return info
}

var _ Client = (*MemoryClient)(nil)
