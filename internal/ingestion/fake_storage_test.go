package ingestion

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gobelinus/review-system-microservice-sub000/internal/storage"
)

// fakeObject is one stored object in the in-memory fake.
type fakeObject struct {
	content      string
	lastModified *time.Time
	downloadErr  error
	gate         chan struct{}
}

// fakeStorage is an in-memory ObjectStorage for tests. Fingerprints are
// content hashes, so re-uploading different bytes under the same key yields
// a new fingerprint like a real ETag would.
type fakeStorage struct {
	mu      sync.Mutex
	objects map[string]*fakeObject
	listErr error

	downloads int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string]*fakeObject)}
}

func (f *fakeStorage) put(key, content string, lastModified time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = &fakeObject{content: content, lastModified: &lastModified}
}

func (f *fakeStorage) failDownload(key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if obj, ok := f.objects[key]; ok {
		obj.downloadErr = err
	}
}

// gateDownload makes downloads of key block until the returned channel is
// closed or the caller's context ends.
func (f *fakeStorage) gateDownload(key string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	if obj, ok := f.objects[key]; ok {
		obj.gate = gate
	}
	return gate
}

func (f *fakeStorage) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}

	var infos []storage.ObjectInfo
	for key, obj := range f.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		sum := md5.Sum([]byte(obj.content))
		infos = append(infos, storage.ObjectInfo{
			Key:          key,
			Size:         int64(len(obj.content)),
			LastModified: obj.lastModified,
			Fingerprint:  hex.EncodeToString(sum[:]),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (f *fakeStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	obj, ok := f.objects[key]
	if !ok {
		f.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", storage.ErrObjectNotFound, key)
	}
	downloadErr := obj.downloadErr
	gate := obj.gate
	content := obj.content
	f.mu.Unlock()

	if downloadErr != nil {
		return nil, downloadErr
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	f.downloads++
	f.mu.Unlock()
	return io.NopCloser(strings.NewReader(content)), nil
}

func (f *fakeStorage) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok, nil
}
