// Package testutil provides test doubles for the viewer's collaborators.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/proxyview/internal/providers/fetch"
	"github.com/GriffinCanCode/proxyview/internal/render"
	"github.com/GriffinCanCode/proxyview/internal/shared/id"
	"github.com/stretchr/testify/mock"
)

// MockFetcher is a mock implementation of fetch.Fetcher for testing.
type MockFetcher struct {
	mock.Mock
}

// Fetch mocks the Fetch method.
func (m *MockFetcher) Fetch(ctx context.Context, target string) (*fetch.Result, error) {
	args := m.Called(ctx, target)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fetch.Result), args.Error(1)
}

// MockOpener is a mock implementation of external.Opener for testing.
type MockOpener struct {
	mock.Mock
}

// Open mocks the Open method.
func (m *MockOpener) Open(ctx context.Context, target string) error {
	args := m.Called(ctx, target)
	return args.Error(0)
}

// NewMockOpener creates an opener that accepts every URL.
func NewMockOpener(t *testing.T) *MockOpener {
	t.Helper()
	m := new(MockOpener)
	m.On("Open", mock.Anything, mock.Anything).Return(nil).Maybe()
	return m
}

// Page builds a successful HTML fetch result for target.
func Page(target, body string) *fetch.Result {
	return &fetch.Result{
		Status:      200,
		Content:     body,
		FinalURL:    target,
		ContentType: "text/html; charset=utf-8",
		Charset:     "utf-8",
	}
}

// StatusPage builds a fetch result with the given status.
func StatusPage(target string, status int) *fetch.Result {
	r := Page(target, fmt.Sprintf("<html><body>%d</body></html>", status))
	r.Status = status
	return r
}

// Surface records every displayed document.
type Surface struct {
	mu   sync.Mutex
	docs []string
}

// Display implements navigation.Surface.
func (s *Surface) Display(html string) render.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, html)
	docID := id.DocumentID(fmt.Sprintf("%s_%d", id.DocumentPrefix, len(s.docs)))
	return render.Handle{
		ID:        docID,
		URL:       render.ViewPath + docID.String(),
		CreatedAt: time.Now(),
	}
}

// Documents returns the displayed documents in order.
func (s *Surface) Documents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.docs...)
}
