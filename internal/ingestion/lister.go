package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gobelinus/review-system-microservice-sub000/internal/logger"
	"github.com/gobelinus/review-system-microservice-sub000/internal/storage"
)

// ErrListFailed marks a listing attempt that could not produce a consistent
// result set. Callers get either every matching key or this error, never a
// silently truncated view caused by a mid-listing failure.
var ErrListFailed = errors.New("object listing failed")

// recognizedExtensions is the allow-list of review file extensions.
var recognizedExtensions = []string{".jl", ".jsonl"}

// Lister enumerates candidate review files in the source bucket.
type Lister struct {
	storage storage.ObjectStorage
	logger  *logger.Logger
}

// NewLister creates a Lister over the given object storage.
// Parameters:
//   - store: object storage collaborator.
//   - log: logger instance; nil uses the default logger.
// Returns:
//   - *Lister: initialized lister.
func NewLister(store storage.ObjectStorage, log *logger.Logger) *Lister {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Lister{storage: store, logger: log}
}

// List returns candidate files under the prefix, oldest first. Directory
// markers, zero-byte objects, and unrecognized extensions are excluded.
// When since is non-nil, only objects modified strictly after it are kept;
// objects with unknown modification time are included (fail-open).
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - prefix: key prefix to enumerate.
//   - since: optional modification-time lower bound.
// Returns:
//   - []storage.ObjectInfo: filtered candidates sorted ascending by
//     modification time; objects with unknown time sort first.
//   - error: ErrListFailed wrapping the transport error.
func (l *Lister) List(ctx context.Context, prefix string, since *time.Time) ([]storage.ObjectInfo, error) {
	objects, err := l.storage.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrListFailed, err)
	}

	candidates := make([]storage.ObjectInfo, 0, len(objects))
	for _, obj := range objects {
		if strings.HasSuffix(obj.Key, "/") || obj.Size == 0 {
			continue
		}
		if !hasRecognizedExtension(obj.Key) {
			continue
		}
		if since != nil && obj.LastModified != nil && !obj.LastModified.After(*since) {
			continue
		}
		candidates = append(candidates, obj)
	}

	// Oldest first for deterministic processing order.
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i].LastModified, candidates[j].LastModified
		switch {
		case a == nil:
			return b != nil
		case b == nil:
			return false
		default:
			return a.Before(*b)
		}
	})

	l.logger.WithFields(logger.Fields{
		"prefix":     prefix,
		"discovered": len(objects),
		"candidates": len(candidates),
	}).Debug("Listed candidate files")

	return candidates, nil
}

// hasRecognizedExtension reports whether the key carries an allow-listed
// review file extension.
func hasRecognizedExtension(key string) bool {
	lower := strings.ToLower(key)
	for _, ext := range recognizedExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
