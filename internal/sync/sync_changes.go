package sync

import (
	"context"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/openmined/journalsync/internal/blob"
)

type ChangeKind int

const (
	ChangeAdded ChangeKind = iota
	ChangeModified
	ChangeDeleted
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeModified:
		return "modified"
	case ChangeDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Change is one ChangeSet entry. Local is nil for ChangeDeleted; Remote is
// nil for ChangeAdded.
type Change struct {
	Kind   ChangeKind
	Key    string
	Local  *LocalFileRecord
	Remote *blob.BlobInfo
}

// ChangeSet is the outcome of one detection pass. A key appears at most once.
// Deleted entries are remote-only keys; push reports them and never acts on them.
type ChangeSet struct {
	Changes   []*Change
	Unchanged int
}

// Uploads returns the records of Added and Modified entries.
func (cs *ChangeSet) Uploads() []*LocalFileRecord {
	var records []*LocalFileRecord
	for _, c := range cs.Changes {
		if c.Kind == ChangeAdded || c.Kind == ChangeModified {
			records = append(records, c.Local)
		}
	}
	return records
}

// Deleted returns the remote-only keys in sorted order.
func (cs *ChangeSet) Deleted() []string {
	var keys []string
	for _, c := range cs.Changes {
		if c.Kind == ChangeDeleted {
			keys = append(keys, c.Key)
		}
	}
	return keys
}

func (cs *ChangeSet) Count(kind ChangeKind) int {
	n := 0
	for _, c := range cs.Changes {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

// withoutDeleted drops Deleted entries whose key exists locally. Incremental
// pushes diff a narrowed record set, so keys outside it are not remote-only.
func (cs *ChangeSet) withoutDeleted(local mapset.Set[string]) {
	kept := cs.Changes[:0]
	for _, c := range cs.Changes {
		if c.Kind == ChangeDeleted && local.Contains(c.Key) {
			continue
		}
		kept = append(kept, c)
	}
	cs.Changes = kept
}

// ChangeDetector diffs local records against a remote store.
type ChangeDetector interface {
	Detect(ctx context.Context, records []*LocalFileRecord, store blob.Client) (*ChangeSet, error)
}

// ListingDetector lists the whole store once and compares hashes locally.
type ListingDetector struct{}

func (ListingDetector) Detect(ctx context.Context, records []*LocalFileRecord, store blob.Client) (*ChangeSet, error) {
	return DetectChanges(ctx, records, store)
}

// DetectChanges classifies each record as Added (absent remotely) or Modified
// (hash differs, or the store exposes no hash). Equal hashes are unchanged.
// Remote keys without a local record are Deleted. A listing failure is
// returned as ChangeDetectionFailed.
func DetectChanges(ctx context.Context, records []*LocalFileRecord, store blob.Client) (*ChangeSet, error) {
	remote, err := store.List(ctx, "")
	if err != nil {
		return nil, newSyncError(KindChangeDetectionFailed, "", err)
	}

	remoteByKey := make(map[string]*blob.BlobInfo, len(remote))
	for _, info := range remote {
		remoteByKey[info.Key] = info
	}

	local := mapset.NewThreadUnsafeSetWithSize[string](len(records))
	cs := &ChangeSet{}
	for _, rec := range records {
		if !local.Add(rec.Key) {
			continue
		}
		info, ok := remoteByKey[rec.Key]
		switch {
		case !ok:
			cs.Changes = append(cs.Changes, &Change{Kind: ChangeAdded, Key: rec.Key, Local: rec})
		case !info.HasHash() || info.ContentHash != rec.ContentHash:
			cs.Changes = append(cs.Changes, &Change{Kind: ChangeModified, Key: rec.Key, Local: rec, Remote: info})
		default:
			cs.Unchanged++
		}
	}

	var deleted []*Change
	for key, info := range remoteByKey {
		if !local.Contains(key) {
			deleted = append(deleted, &Change{Kind: ChangeDeleted, Key: key, Remote: info})
		}
	}
	sort.Slice(deleted, func(i, j int) bool { return deleted[i].Key < deleted[j].Key })
	cs.Changes = append(cs.Changes, deleted...)

	return cs, nil
}

var _ ChangeDetector = ListingDetector{}
