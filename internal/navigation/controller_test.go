package navigation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/proxyview/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/proxyview/internal/providers/external"
	"github.com/GriffinCanCode/proxyview/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const (
	urlA = "https://a.test/"
	urlB = "https://b.test/"
	urlC = "https://c.test/"
)

type fixture struct {
	fetcher *testutil.MockFetcher
	opener  *testutil.MockOpener
	surface *testutil.Surface
	ctrl    *Controller
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		fetcher: new(testutil.MockFetcher),
		opener:  new(testutil.MockOpener),
		surface: &testutil.Surface{},
	}
	f.ctrl = NewController(f.fetcher, f.opener, f.surface, zap.NewNop(), opts...)
	t.Cleanup(f.ctrl.Close)
	return f
}

// serve answers every listed URL with a small HTML page
func (f *fixture) serve(urls ...string) {
	for _, u := range urls {
		f.fetcher.On("Fetch", mock.Anything, u).
			Return(testutil.Page(u, "<html><head><title>"+u+"</title></head><body><a href=\"/next\">next</a></body></html>"), nil)
	}
}

// fetched lists the URLs fetched so far, in order
func (f *fixture) fetched() []string {
	var urls []string
	for _, call := range f.fetcher.Calls {
		if call.Method == "Fetch" {
			urls = append(urls, call.Arguments.String(1))
		}
	}
	return urls
}

func TestNavigateBackThenNavigateTruncates(t *testing.T) {
	f := newFixture(t)
	f.serve(urlA, urlB, urlC)
	ctx := context.Background()

	require.NoError(t, f.ctrl.Navigate(ctx, urlA))
	require.NoError(t, f.ctrl.Navigate(ctx, urlB))
	require.NoError(t, f.ctrl.Back(ctx))
	require.NoError(t, f.ctrl.Navigate(ctx, urlC))

	snap := f.ctrl.Snapshot()
	assert.Equal(t, []string{urlA, urlC}, snap.Entries)
	assert.Equal(t, 1, snap.Index)
	assert.Equal(t, StateLoaded, snap.State)
	assert.Equal(t, urlC, snap.URL)
}

func TestNavigateCurrentURLAddsNoDuplicate(t *testing.T) {
	f := newFixture(t)
	f.serve(urlA)
	ctx := context.Background()

	require.NoError(t, f.ctrl.Navigate(ctx, urlA))
	require.NoError(t, f.ctrl.Navigate(ctx, urlA))

	snap := f.ctrl.Snapshot()
	assert.Equal(t, []string{urlA}, snap.Entries)
	assert.Equal(t, 0, snap.Index)
}

func TestBackForwardAtEdgesAreNoOps(t *testing.T) {
	f := newFixture(t)
	f.serve(urlA, urlB)
	ctx := context.Background()

	require.NoError(t, f.ctrl.Back(ctx))
	require.NoError(t, f.ctrl.Forward(ctx))
	assert.Empty(t, f.fetched())

	require.NoError(t, f.ctrl.Navigate(ctx, urlA))
	require.NoError(t, f.ctrl.Navigate(ctx, urlB))
	before := f.ctrl.Snapshot()

	require.NoError(t, f.ctrl.Forward(ctx))
	assert.Equal(t, before, f.ctrl.Snapshot())

	require.NoError(t, f.ctrl.Back(ctx))
	afterBack := f.ctrl.Snapshot()
	require.NoError(t, f.ctrl.Back(ctx))
	assert.Equal(t, afterBack, f.ctrl.Snapshot())

	assert.Equal(t, []string{urlA, urlB, urlA}, f.fetched())
}

func TestEnabledFlagsFollowIndex(t *testing.T) {
	f := newFixture(t)
	f.serve(urlA, urlB, urlC)
	ctx := context.Background()

	snap := f.ctrl.Snapshot()
	assert.False(t, snap.BackEnabled)
	assert.False(t, snap.ForwardEnabled)

	for _, u := range []string{urlA, urlB, urlC} {
		require.NoError(t, f.ctrl.Navigate(ctx, u))
	}

	steps := []func(context.Context) error{f.ctrl.Back, f.ctrl.Back, f.ctrl.Forward, f.ctrl.Forward}
	for i, step := range steps {
		require.NoError(t, step(ctx))
		snap := f.ctrl.Snapshot()
		assert.Equal(t, snap.Index > 0, snap.BackEnabled, "step %d", i)
		assert.Equal(t, snap.Index < len(snap.Entries)-1, snap.ForwardEnabled, "step %d", i)
	}
}

func TestBackBackForwardVisitsEntries(t *testing.T) {
	f := newFixture(t)
	f.serve(urlA, urlB, urlC)
	ctx := context.Background()

	for _, u := range []string{urlA, urlB, urlC} {
		require.NoError(t, f.ctrl.Navigate(ctx, u))
	}
	require.Equal(t, 2, f.ctrl.Snapshot().Index)

	require.NoError(t, f.ctrl.Back(ctx))
	require.NoError(t, f.ctrl.Back(ctx))
	require.NoError(t, f.ctrl.Forward(ctx))

	assert.Equal(t, []string{urlA, urlB, urlC, urlB, urlA, urlB}, f.fetched())

	snap := f.ctrl.Snapshot()
	assert.Equal(t, 1, snap.Index)
	assert.Equal(t, []string{urlA, urlB, urlC}, snap.Entries)
	assert.Equal(t, urlB, snap.URL)
}

func TestNotFoundOpensExternallyOnce(t *testing.T) {
	f := newFixture(t)
	f.serve(urlA)
	missing := "https://a.test/missing"
	f.fetcher.On("Fetch", mock.Anything, missing).Return(testutil.StatusPage(missing, 404), nil)
	f.opener.On("Open", mock.Anything, missing).Return(nil).Once()
	ctx := context.Background()

	require.NoError(t, f.ctrl.Navigate(ctx, urlA))
	before := f.ctrl.Snapshot()

	err := f.ctrl.Navigate(ctx, missing)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "HTTP 404", loadErr.Reason)

	f.opener.AssertNumberOfCalls(t, "Open", 1)
	f.opener.AssertCalled(t, "Open", mock.Anything, missing)

	snap := f.ctrl.Snapshot()
	assert.Equal(t, before.Entries, snap.Entries)
	assert.Equal(t, before.Index, snap.Index)
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, "Error: HTTP 404 - opening in external browser", snap.Status)
	assert.Equal(t, missing, snap.ExternalURL)
	assert.Len(t, f.surface.Documents(), 1)
}

func TestFailuresFallBackToExternal(t *testing.T) {
	tests := []struct {
		name   string
		result func(u string) (interface{}, error)
		reason string
	}{
		{
			name:   "transport error",
			result: func(string) (interface{}, error) { return nil, errors.New("dial tcp: no such host") },
			reason: "dial tcp: no such host",
		},
		{
			name: "server error",
			result: func(u string) (interface{}, error) {
				return testutil.StatusPage(u, 503), nil
			},
			reason: "HTTP 503",
		},
		{
			name: "binary content",
			result: func(u string) (interface{}, error) {
				r := testutil.Page(u, "%PDF-1.7")
				r.ContentType = "application/pdf"
				return r, nil
			},
			reason: "unsupported content type application/pdf",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			res, err := tt.result(urlA)
			f.fetcher.On("Fetch", mock.Anything, urlA).Return(res, err)
			f.opener.On("Open", mock.Anything, urlA).Return(nil)

			navErr := f.ctrl.Navigate(context.Background(), urlA)
			require.Error(t, navErr)

			f.opener.AssertNumberOfCalls(t, "Open", 1)
			snap := f.ctrl.Snapshot()
			assert.Equal(t, StateFailed, snap.State)
			assert.Equal(t, tt.reason, snap.Error)
			assert.Empty(t, snap.Entries)
			assert.Equal(t, -1, snap.Index)
			assert.Empty(t, f.surface.Documents())
		})
	}
}

func TestOpenerFailureIsLoggedNotReturned(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	f := &fixture{
		fetcher: new(testutil.MockFetcher),
		opener:  new(testutil.MockOpener),
		surface: &testutil.Surface{},
	}
	f.ctrl = NewController(f.fetcher, f.opener, f.surface, zap.New(core))

	openErr := errors.New("no browser")
	f.fetcher.On("Fetch", mock.Anything, urlA).Return(testutil.StatusPage(urlA, 500), nil)
	f.opener.On("Open", mock.Anything, urlA).Return(openErr)

	err := f.ctrl.Navigate(context.Background(), urlA)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.NotErrorIs(t, err, openErr)

	entries := logs.FilterMessage("External open failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "no browser", entries[0].ContextMap()["error"])
}

func TestEmptyInputIsRejected(t *testing.T) {
	f := newFixture(t)

	for _, raw := range []string{"", "   ", "\t\n"} {
		assert.ErrorIs(t, f.ctrl.Navigate(context.Background(), raw), ErrEmptyURL)
	}
	assert.Empty(t, f.fetched())
	assert.Equal(t, StateIdle, f.ctrl.Snapshot().State)
	assert.Zero(t, f.ctrl.Snapshot().Seq)
}

func TestNavigateNormalizesInput(t *testing.T) {
	f := newFixture(t)
	f.serve("https://example.test")

	require.NoError(t, f.ctrl.Navigate(context.Background(), " example.test "))
	assert.Equal(t, []string{"https://example.test"}, f.ctrl.Snapshot().Entries)
}

func TestRewriteUsesFinalURLAsBase(t *testing.T) {
	f := newFixture(t)
	res := testutil.Page(urlA, `<html><head><title> Moved  page </title></head><body><a href="x">x</a></body></html>`)
	res.FinalURL = "https://b.test/dir/page"
	f.fetcher.On("Fetch", mock.Anything, urlA).Return(res, nil)

	require.NoError(t, f.ctrl.Navigate(context.Background(), urlA))

	docs := f.surface.Documents()
	require.Len(t, docs, 1)
	assert.Contains(t, docs[0], `href="https://b.test/dir/x"`)
	assert.Contains(t, docs[0], `<base href="https://b.test/dir/page"/>`)

	snap := f.ctrl.Snapshot()
	assert.Equal(t, []string{urlA}, snap.Entries)
	assert.Equal(t, "Moved page", snap.Title)
	assert.Equal(t, "/view/doc_1", snap.DocumentURL)
	assert.Equal(t, StatusLoaded, snap.Status)
}

func TestPlainTextIsWrapped(t *testing.T) {
	f := newFixture(t)
	res := testutil.Page(urlA, "a < b\nc")
	res.ContentType = "text/plain; charset=utf-8"
	f.fetcher.On("Fetch", mock.Anything, urlA).Return(res, nil)

	require.NoError(t, f.ctrl.Navigate(context.Background(), urlA))

	docs := f.surface.Documents()
	require.Len(t, docs, 1)
	assert.Contains(t, docs[0], "<pre>a &lt; b\nc</pre>")
}

func TestReloadRefetchesCurrent(t *testing.T) {
	f := newFixture(t)
	f.serve(urlA)
	ctx := context.Background()

	require.NoError(t, f.ctrl.Reload(ctx))
	assert.Empty(t, f.fetched())

	require.NoError(t, f.ctrl.Navigate(ctx, urlA))
	require.NoError(t, f.ctrl.Reload(ctx))

	assert.Equal(t, []string{urlA, urlA}, f.fetched())
	assert.Len(t, f.surface.Documents(), 2)
	assert.Equal(t, []string{urlA}, f.ctrl.Snapshot().Entries)
}

func TestExternalPatternSkipsFetch(t *testing.T) {
	rules, err := NewRules(DefaultExternalPatterns)
	require.NoError(t, err)
	f := newFixture(t, WithRules(rules))

	pdf := "https://a.test/files/report.pdf"
	f.opener.On("Open", mock.Anything, pdf).Return(nil).Once()

	require.NoError(t, f.ctrl.Navigate(context.Background(), pdf))

	assert.Empty(t, f.fetched())
	f.opener.AssertExpectations(t)

	snap := f.ctrl.Snapshot()
	assert.Equal(t, pdf, snap.ExternalURL)
	assert.Empty(t, snap.Entries)
	assert.Equal(t, StateIdle, snap.State)
}

func TestOpenExternalCurrentPage(t *testing.T) {
	f := newFixture(t)
	f.serve(urlA)
	ctx := context.Background()

	assert.ErrorIs(t, f.ctrl.OpenExternal(ctx), ErrNoDocument)

	require.NoError(t, f.ctrl.Navigate(ctx, urlA))
	f.opener.On("Open", mock.Anything, urlA).Return(external.ErrDisabled).Once()

	assert.ErrorIs(t, f.ctrl.OpenExternal(ctx), external.ErrDisabled)
	f.opener.AssertExpectations(t)
}

func TestOpenExternalUsesLastLoadedPage(t *testing.T) {
	f := newFixture(t)
	f.serve(urlA)
	f.fetcher.On("Fetch", mock.Anything, urlB).Return(testutil.StatusPage(urlB, 404), nil)
	f.opener.On("Open", mock.Anything, urlB).Return(nil).Once()
	f.opener.On("Open", mock.Anything, urlA).Return(nil).Once()
	ctx := context.Background()

	require.NoError(t, f.ctrl.Navigate(ctx, urlA))
	require.Error(t, f.ctrl.Navigate(ctx, urlB))

	snap := f.ctrl.Snapshot()
	assert.Equal(t, urlB, snap.URL)
	assert.Equal(t, urlA, snap.LoadedURL)

	require.NoError(t, f.ctrl.OpenExternal(ctx))
	f.opener.AssertExpectations(t)
	assert.Equal(t, urlA, f.opener.Calls[len(f.opener.Calls)-1].Arguments.String(1))
}

func TestStartCommitsCursorInCallOrder(t *testing.T) {
	f := newFixture(t)
	f.serve(urlA, urlB, urlC)
	ctx := context.Background()

	for _, u := range []string{urlA, urlB, urlC} {
		require.NoError(t, f.ctrl.Navigate(ctx, u))
	}

	pending := []Pending{f.ctrl.StartBack(ctx), f.ctrl.StartBack(ctx), f.ctrl.StartForward(ctx)}
	snap := f.ctrl.Snapshot()
	assert.Equal(t, 1, snap.Index)
	assert.Equal(t, urlB, snap.URL)
	assert.Equal(t, StateLoading, snap.State)

	// Settle in reverse to show the outcome does not depend on fetch order
	require.NoError(t, pending[2]())
	assert.ErrorIs(t, pending[1](), ErrSuperseded)
	assert.ErrorIs(t, pending[0](), ErrSuperseded)

	snap = f.ctrl.Snapshot()
	assert.Equal(t, StateLoaded, snap.State)
	assert.Equal(t, urlB, snap.URL)
	assert.Equal(t, 1, snap.Index)
	assert.Equal(t, []string{urlA, urlB, urlC}, snap.Entries)
}

func TestBackDuringNavigationKeepsForwardBranch(t *testing.T) {
	f := newFixture(t)
	f.serve(urlA, urlB)
	slow := "https://slow.test/"
	started := make(chan struct{})
	release := make(chan struct{})

	f.fetcher.On("Fetch", mock.Anything, slow).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(testutil.Page(slow, "<title>slow</title>"), nil)

	ctx := context.Background()
	require.NoError(t, f.ctrl.Navigate(ctx, urlA))
	require.NoError(t, f.ctrl.Navigate(ctx, urlB))

	done := make(chan error, 1)
	go func() { done <- f.ctrl.Navigate(ctx, slow) }()
	<-started

	require.NoError(t, f.ctrl.Back(ctx))
	close(release)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(5 * time.Second):
		t.Fatal("navigation did not return")
	}

	snap := f.ctrl.Snapshot()
	assert.Equal(t, []string{urlA, urlB}, snap.Entries)
	assert.Equal(t, 0, snap.Index)
	assert.True(t, snap.ForwardEnabled)
	assert.Equal(t, urlA, snap.URL)
}

func TestNewerNavigationSupersedesOlder(t *testing.T) {
	f := newFixture(t)
	slow := "https://slow.test/"
	started := make(chan struct{})

	f.fetcher.On("Fetch", mock.Anything, slow).
		Run(func(args mock.Arguments) {
			close(started)
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.Canceled)
	f.serve(urlB)

	done := make(chan error, 1)
	go func() { done <- f.ctrl.Navigate(context.Background(), slow) }()
	<-started

	require.NoError(t, f.ctrl.Navigate(context.Background(), urlB))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(5 * time.Second):
		t.Fatal("superseded navigation did not return")
	}

	f.opener.AssertNotCalled(t, "Open", mock.Anything, mock.Anything)
	snap := f.ctrl.Snapshot()
	assert.Equal(t, []string{urlB}, snap.Entries)
	assert.Equal(t, StateLoaded, snap.State)
	assert.Equal(t, urlB, snap.URL)
	assert.Len(t, f.surface.Documents(), 1)
}

func TestStaleSuccessIsDiscarded(t *testing.T) {
	f := newFixture(t)
	slow := "https://slow.test/"
	started := make(chan struct{})
	release := make(chan struct{})

	// the slow fetch ignores cancellation and completes late
	f.fetcher.On("Fetch", mock.Anything, slow).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(testutil.Page(slow, "<p>late</p>"), nil)
	f.serve(urlB)

	done := make(chan error, 1)
	go func() { done <- f.ctrl.Navigate(context.Background(), slow) }()
	<-started

	require.NoError(t, f.ctrl.Navigate(context.Background(), urlB))
	close(release)

	assert.ErrorIs(t, <-done, ErrSuperseded)
	assert.Equal(t, []string{urlB}, f.ctrl.Snapshot().Entries)
	assert.Len(t, f.surface.Documents(), 1)
}

func TestCallerCancellationDoesNotOpenExternally(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	f.fetcher.On("Fetch", mock.Anything, urlA).
		Run(func(args mock.Arguments) {
			cancel()
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.Canceled)

	err := f.ctrl.Navigate(ctx, urlA)
	assert.ErrorIs(t, err, context.Canceled)

	f.opener.AssertNotCalled(t, "Open", mock.Anything, mock.Anything)
	snap := f.ctrl.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, StatusCanceled, snap.Status)
	assert.Empty(t, snap.ExternalURL)
}

func TestSubscribeReceivesTransitions(t *testing.T) {
	f := newFixture(t)
	f.serve(urlA, urlB)

	var (
		mu    sync.Mutex
		snaps []Snapshot
	)
	unsubscribe := f.ctrl.Subscribe(func(s Snapshot) {
		mu.Lock()
		snaps = append(snaps, s)
		mu.Unlock()
	})

	require.NoError(t, f.ctrl.Navigate(context.Background(), urlA))

	mu.Lock()
	require.Len(t, snaps, 2)
	assert.Equal(t, StateLoading, snaps[0].State)
	assert.Equal(t, StatusLoading, snaps[0].Status)
	assert.Equal(t, StateLoaded, snaps[1].State)
	assert.Less(t, snaps[0].Seq, snaps[1].Seq)
	mu.Unlock()

	unsubscribe()
	unsubscribe()
	require.NoError(t, f.ctrl.Navigate(context.Background(), urlB))

	mu.Lock()
	assert.Len(t, snaps, 2)
	mu.Unlock()
}

func TestNavigationMetrics(t *testing.T) {
	metrics := monitoring.NewMetrics()
	f := newFixture(t, WithMetrics(metrics))
	f.serve(urlA)
	f.fetcher.On("Fetch", mock.Anything, urlB).Return(testutil.StatusPage(urlB, 404), nil)
	f.opener.On("Open", mock.Anything, urlB).Return(nil)

	require.NoError(t, f.ctrl.Navigate(context.Background(), urlA))
	require.Error(t, f.ctrl.Navigate(context.Background(), urlB))

	snap := metrics.Snapshot()
	assert.Equal(t, int64(2), snap.Navigations)
	assert.Equal(t, int64(1), snap.FailedNavigation)
}
