package render

import (
	"net/url"
	"sync"
	"time"

	"github.com/GriffinCanCode/proxyview/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/proxyview/internal/shared/id"
	"go.uber.org/zap"
)

// ViewPath is the route prefix documents are served under
const ViewPath = "/view/"

// InlinePrefix starts every inline fallback URL
const InlinePrefix = "data:text/html;charset=utf-8,"

// Handle points the rendering surface at a document
type Handle struct {
	ID        id.DocumentID `json:"id,omitempty"`
	URL       string        `json:"url"`
	Inline    bool          `json:"inline"`
	CreatedAt time.Time     `json:"created_at"`
}

// IsZero reports whether the handle points at nothing
func (h Handle) IsZero() bool {
	return h.URL == ""
}

// Host owns the handles shown by the rendering surface. Each Display
// replaces the current handle and releases the previous one after a delay,
// so the surface can finish loading the new document first.
type Host struct {
	registry *Registry
	delay    time.Duration

	mu      sync.Mutex
	current Handle
	timers  map[id.DocumentID]*time.Timer
	closed  bool

	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewHost creates a host over registry. A delay <= 0 releases immediately.
func NewHost(registry *Registry, delay time.Duration, logger *zap.Logger, metrics *monitoring.Metrics) *Host {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Host{
		registry: registry,
		delay:    delay,
		timers:   make(map[id.DocumentID]*time.Timer),
		logger:   logger,
		metrics:  metrics,
	}
}

// Display registers html, makes it current and schedules release of the
// previous handle. It never fails: if the registry refuses the document the
// handle carries the document inline.
func (h *Host) Display(html string) Handle {
	h.mu.Lock()
	defer h.mu.Unlock()

	handle := h.create(html)
	prev := h.current
	h.current = handle
	h.scheduleRelease(prev)
	return handle
}

// Current returns the handle the surface is showing
func (h *Host) Current() Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Lookup returns the HTML of a live document
func (h *Host) Lookup(docID id.DocumentID) ([]byte, bool) {
	doc, ok := h.registry.Get(docID)
	if !ok {
		return nil, false
	}
	return doc.HTML, true
}

// Pending returns the number of releases waiting on a timer
func (h *Host) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.timers)
}

// Close stops pending timers and releases every document
func (h *Host) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for docID, t := range h.timers {
		t.Stop()
		delete(h.timers, docID)
	}
	h.current = Handle{}
	h.mu.Unlock()

	h.registry.Close()
}

func (h *Host) create(html string) Handle {
	now := time.Now()

	docID, err := h.registry.Register(html)
	if err != nil {
		h.metrics.IncInlineFallbacks()
		h.logger.Warn("Falling back to inline document", zap.Error(err), zap.Int("bytes", len(html)))
		return Handle{URL: InlineURL(html), Inline: true, CreatedAt: now}
	}

	return Handle{
		ID:        docID,
		URL:       ViewPath + docID.String(),
		CreatedAt: now,
	}
}

func (h *Host) scheduleRelease(prev Handle) {
	if prev.Inline || prev.ID == "" {
		return
	}
	if h.delay <= 0 || h.closed {
		h.registry.Release(prev.ID, ReasonImmediate)
		return
	}

	docID := prev.ID
	h.timers[docID] = time.AfterFunc(h.delay, func() {
		h.mu.Lock()
		delete(h.timers, docID)
		h.mu.Unlock()

		h.registry.Release(docID, ReasonDelayed)
	})
}

// InlineURL encodes html as a data: URI
func InlineURL(html string) string {
	return InlinePrefix + url.PathEscape(html)
}
