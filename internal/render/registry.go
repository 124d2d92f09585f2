package render

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GriffinCanCode/proxyview/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/proxyview/internal/shared/id"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

var (
	ErrRegistryClosed   = errors.New("document registry closed")
	ErrDocumentTooLarge = errors.New("document exceeds registry limit")
)

// Release reasons, used as metric labels
const (
	ReasonDelayed   = "delayed"
	ReasonImmediate = "immediate"
	ReasonCapacity  = "capacity"
	ReasonShutdown  = "shutdown"
)

// Document is a rendered page held in memory until released
type Document struct {
	ID        id.DocumentID
	HTML      []byte
	CreatedAt time.Time
}

// Registry holds rendered documents in a bounded LRU. The eviction callback
// is the only place a document is released, so a document leaves exactly
// once no matter which path removes it.
type Registry struct {
	mu       sync.Mutex
	cache    *lru.Cache[id.DocumentID, *Document]
	maxBytes int
	closed   bool
	// reason labels the eviction in progress; only read inside onEvict,
	// which runs synchronously while mu is held
	reason string

	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewRegistry creates a registry holding at most maxDocuments documents of
// at most maxBytes each. maxBytes <= 0 disables the size check.
func NewRegistry(maxDocuments, maxBytes int, logger *zap.Logger, metrics *monitoring.Metrics) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		maxBytes: maxBytes,
		reason:   ReasonCapacity,
		logger:   logger,
		metrics:  metrics,
	}

	cache, err := lru.NewWithEvict[id.DocumentID, *Document](maxDocuments, r.onEvict)
	if err != nil {
		return nil, fmt.Errorf("create document registry: %w", err)
	}
	r.cache = cache
	return r, nil
}

// Register stores html and returns its document ID
func (r *Registry) Register(html string) (id.DocumentID, error) {
	if r.maxBytes > 0 && len(html) > r.maxBytes {
		return "", fmt.Errorf("%w: %d > %d bytes", ErrDocumentTooLarge, len(html), r.maxBytes)
	}

	docID, err := id.NewDocumentID()
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return "", ErrRegistryClosed
	}

	r.reason = ReasonCapacity
	r.cache.Add(docID, &Document{
		ID:        docID,
		HTML:      []byte(html),
		CreatedAt: time.Now(),
	})
	r.metrics.DocumentRegistered()
	return docID, nil
}

// Get returns a live document
func (r *Registry) Get(docID id.DocumentID) (*Document, bool) {
	return r.cache.Get(docID)
}

// Release removes a document. It reports false if the document was
// already gone.
func (r *Registry) Release(docID id.DocumentID, reason string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reason = reason
	return r.cache.Remove(docID)
}

// Len returns the number of live documents
func (r *Registry) Len() int {
	return r.cache.Len()
}

// Close releases every live document and rejects further registrations
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	r.reason = ReasonShutdown
	r.cache.Purge()
}

func (r *Registry) onEvict(docID id.DocumentID, doc *Document) {
	r.metrics.DocumentReleased(r.reason)
	r.logger.Debug("Document released",
		zap.String("document_id", docID.String()),
		zap.String("reason", r.reason),
		zap.Duration("age", time.Since(doc.CreatedAt)))
}
