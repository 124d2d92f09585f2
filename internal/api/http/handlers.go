package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/GriffinCanCode/proxyview/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/proxyview/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/proxyview/internal/navigation"
	"github.com/GriffinCanCode/proxyview/internal/providers/external"
	"github.com/GriffinCanCode/proxyview/internal/shared/id"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"
)

// DocumentCSP confines served documents to an opaque-origin sandbox even
// when opened outside the shell's iframe
const DocumentCSP = "sandbox allow-scripts allow-forms"

// Navigator is the control surface of the navigation controller
type Navigator interface {
	Navigate(ctx context.Context, raw string) error
	Back(ctx context.Context) error
	Forward(ctx context.Context) error
	Reload(ctx context.Context) error
	OpenExternal(ctx context.Context) error
	Snapshot() navigation.Snapshot
}

// Documents serves rendered documents by ID
type Documents interface {
	Lookup(docID id.DocumentID) ([]byte, bool)
	Pending() int
}

// Deps collects what the handlers need. Breakers and Metrics are optional.
type Deps struct {
	Navigator Navigator
	Documents Documents
	Breakers  *resilience.Group
	Metrics   *monitoring.Metrics
	Logger    *zap.Logger
	Version   string
}

// Handlers contains all HTTP handlers
type Handlers struct {
	nav      Navigator
	docs     Documents
	breakers *resilience.Group
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	version  string
	started  time.Time
	gzip     func(http.Handler) http.HandlerFunc

	guardMu  sync.RWMutex
	guardErr error
	guardSet bool
}

// NewHandlers creates a new handler set
func NewHandlers(deps Deps) (*Handlers, error) {
	wrap, err := gzhttp.NewWrapper(gzhttp.MinSize(gzhttp.DefaultMinSize))
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		nav:      deps.Navigator,
		docs:     deps.Documents,
		breakers: deps.Breakers,
		metrics:  deps.Metrics,
		logger:   logger,
		version:  deps.Version,
		started:  time.Now(),
		gzip:     wrap,
	}, nil
}

// SetGuardStatus records the outcome of the startup guard self-check
func (h *Handlers) SetGuardStatus(err error) {
	h.guardMu.Lock()
	defer h.guardMu.Unlock()
	h.guardErr = err
	h.guardSet = true
}

// Shell serves the viewer page
func (h *Handlers) Shell(c *gin.Context) {
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "text/html; charset=utf-8", shellPage)
}

// View serves a rendered document. Unknown and released IDs are 404.
func (h *Handlers) View(c *gin.Context) {
	raw := c.Param("id")
	if !id.HasPrefix(raw, id.DocumentPrefix) {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}

	doc, ok := h.docs.Lookup(id.DocumentID(raw))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}

	h.gzip(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		header := w.Header()
		header.Set("Content-Type", "text/html; charset=utf-8")
		header.Set("Cache-Control", "no-store")
		header.Set("Content-Security-Policy", DocumentCSP)
		header.Set("X-Content-Type-Options", "nosniff")
		header.Set("Referrer-Policy", "no-referrer")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(doc)
	})).ServeHTTP(c.Writer, c.Request)
}

// State returns the current snapshot
func (h *Handlers) State(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"state": h.nav.Snapshot()})
}

// NavigateRequest is the body of POST /api/navigate
type NavigateRequest struct {
	URL string `json:"url" binding:"required"`
}

// Navigate loads a URL
func (h *Handlers) Navigate(c *gin.Context) {
	var req NavigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	h.respond(c, h.nav.Navigate(detach(c), req.URL))
}

// Back goes one entry back
func (h *Handlers) Back(c *gin.Context) {
	h.respond(c, h.nav.Back(detach(c)))
}

// Forward goes one entry forward
func (h *Handlers) Forward(c *gin.Context) {
	h.respond(c, h.nav.Forward(detach(c)))
}

// Reload re-fetches the current entry
func (h *Handlers) Reload(c *gin.Context) {
	h.respond(c, h.nav.Reload(detach(c)))
}

// External opens the current page in the user's browser
func (h *Handlers) External(c *gin.Context) {
	err := h.nav.OpenExternal(detach(c))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true, "url": h.nav.Snapshot().URL})
	case errors.Is(err, navigation.ErrNoDocument):
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
	case errors.Is(err, external.ErrDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": err.Error()})
	case errors.Is(err, external.ErrInvalidURL), errors.Is(err, external.ErrUnsupportedScheme), errors.Is(err, external.ErrEmptyURL):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
	default:
		h.logger.Error("External open failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
	}
}

// Health reports liveness plus the guard self-check and breaker states
func (h *Handlers) Health(c *gin.Context) {
	status := "healthy"
	guard := gin.H{"verified": false}

	h.guardMu.RLock()
	if h.guardSet {
		guard["verified"] = h.guardErr == nil
		if h.guardErr != nil {
			guard["error"] = h.guardErr.Error()
			status = "degraded"
		}
	}
	h.guardMu.RUnlock()

	body := gin.H{
		"status":           status,
		"service":          "proxyview",
		"version":          h.version,
		"uptime":           time.Since(h.started).Round(time.Second).String(),
		"pending_releases": h.docs.Pending(),
		"guard":            guard,
	}
	if h.breakers != nil {
		states := make(map[string]string)
		for name, state := range h.breakers.States() {
			states[name] = state.String()
		}
		body["breakers"] = states
	}
	if h.metrics != nil {
		body["metrics"] = h.metrics.Snapshot()
	}

	c.JSON(http.StatusOK, body)
}

// respond maps a controller result to a status code. Failures that fell
// back to the external browser are reported as 502 with the new state.
func (h *Handlers) respond(c *gin.Context, err error) {
	snap := h.nav.Snapshot()
	var loadErr *navigation.LoadError

	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"state": snap})
	case errors.Is(err, navigation.ErrEmptyURL):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, navigation.ErrSuperseded):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "state": snap})
	case errors.As(err, &loadErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "state": snap})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "state": snap})
	default:
		h.logger.Error("Navigation command failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "state": snap})
	}
}

// detach keeps the request's trace values but not its cancellation: a
// client disconnect must not abort a navigation other observers are
// waiting on
func detach(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}
