package render

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/GriffinCanCode/proxyview/internal/infrastructure/monitoring"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHost(t *testing.T, delay time.Duration, maxBytes int) (*Host, *monitoring.Metrics) {
	t.Helper()
	metrics := monitoring.NewMetrics()
	reg, err := NewRegistry(16, maxBytes, nil, metrics)
	require.NoError(t, err)
	host := NewHost(reg, delay, nil, metrics)
	t.Cleanup(host.Close)
	return host, metrics
}

func TestDisplayServesDocument(t *testing.T) {
	host, _ := newTestHost(t, time.Minute, 0)

	handle := host.Display("<p>one</p>")
	assert.False(t, handle.Inline)
	assert.Equal(t, ViewPath+handle.ID.String(), handle.URL)
	assert.Equal(t, handle, host.Current())

	html, ok := host.Lookup(handle.ID)
	require.True(t, ok)
	assert.Equal(t, "<p>one</p>", string(html))
}

func TestDisplayDelaysPreviousRelease(t *testing.T) {
	host, metrics := newTestHost(t, 30*time.Millisecond, 0)

	first := host.Display("<p>one</p>")
	second := host.Display("<p>two</p>")

	_, ok := host.Lookup(first.ID)
	assert.True(t, ok, "previous document must outlive the swap")
	assert.Equal(t, 1, host.Pending())

	assert.Eventually(t, func() bool {
		_, ok := host.Lookup(first.ID)
		return !ok
	}, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return host.Pending() == 0 }, time.Second, 5*time.Millisecond)

	_, ok = host.Lookup(second.ID)
	assert.True(t, ok)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.DocumentsReleased.WithLabelValues(ReasonDelayed)))
}

func TestDisplayImmediateRelease(t *testing.T) {
	host, _ := newTestHost(t, 0, 0)

	first := host.Display("a")
	host.Display("b")

	_, ok := host.Lookup(first.ID)
	assert.False(t, ok)
	assert.Equal(t, 0, host.Pending())
}

func TestDisplayFallsBackInlineWhenTooLarge(t *testing.T) {
	host, metrics := newTestHost(t, time.Minute, 16)

	html := "<p>" + strings.Repeat("big ", 10) + "#frag?</p>"
	handle := host.Display(html)

	require.True(t, handle.Inline)
	assert.Empty(t, handle.ID)
	require.True(t, strings.HasPrefix(handle.URL, InlinePrefix))
	assert.NotContains(t, handle.URL, "#")

	decoded, err := url.PathUnescape(strings.TrimPrefix(handle.URL, InlinePrefix))
	require.NoError(t, err)
	assert.Equal(t, html, decoded)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.InlineFallbacks))
}

func TestInlineHandleIsNotReleased(t *testing.T) {
	host, metrics := newTestHost(t, 0, 4)

	host.Display("too large")
	host.Display("ok")

	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.DocumentsReleased.WithLabelValues(ReasonImmediate)))
}

func TestCloseFlushesPendingReleases(t *testing.T) {
	host, metrics := newTestHost(t, time.Hour, 0)

	first := host.Display("a")
	second := host.Display("b")
	require.Equal(t, 1, host.Pending())

	host.Close()

	assert.Equal(t, 0, host.Pending())
	_, ok := host.Lookup(first.ID)
	assert.False(t, ok)
	_, ok = host.Lookup(second.ID)
	assert.False(t, ok)
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.DocumentsReleased.WithLabelValues(ReasonShutdown)))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.DocumentsLive))

	after := host.Display("c")
	assert.True(t, after.Inline)
}
