package external

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
	"strings"

	"go.uber.org/zap"
)

var (
	ErrEmptyURL          = errors.New("url cannot be empty")
	ErrInvalidURL        = errors.New("invalid url")
	ErrUnsupportedScheme = errors.New("url must start with http:// or https://")
	ErrDisabled          = errors.New("external opening disabled")
)

// Opener hands a URL to the user's default browser
type Opener interface {
	Open(ctx context.Context, target string) error
}

// Runner starts a command. Tests replace it to avoid spawning a browser.
type Runner func(ctx context.Context, name string, args ...string) error

// Launcher opens URLs with the platform's URL handler
type Launcher struct {
	goos    string
	run     Runner
	enabled bool
	logger  *zap.Logger
}

// Option configures a Launcher
type Option func(*Launcher)

// WithRunner overrides how the launch command is executed
func WithRunner(run Runner) Option {
	return func(l *Launcher) { l.run = run }
}

// WithGOOS overrides the platform used to pick the launch command
func WithGOOS(goos string) Option {
	return func(l *Launcher) { l.goos = goos }
}

// WithEnabled turns launching on or off. A disabled launcher still validates.
func WithEnabled(enabled bool) Option {
	return func(l *Launcher) { l.enabled = enabled }
}

// New creates a launcher for the current platform
func New(logger *zap.Logger, opts ...Option) *Launcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Launcher{
		goos:    runtime.GOOS,
		run:     startCommand,
		enabled: true,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Validate checks that target is a non-empty, parseable http(s) URL
func Validate(target string) error {
	if target == "" {
		return ErrEmptyURL
	}
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		return fmt.Errorf("%w: %q", ErrUnsupportedScheme, target)
	}
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return nil
}

// Command returns the launch command for target on goos
func Command(goos, target string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{target}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", target}
	default:
		return "xdg-open", []string{target}
	}
}

// Open validates target and starts the platform handler. It does not wait
// for the browser to exit.
func (l *Launcher) Open(ctx context.Context, target string) error {
	if err := Validate(target); err != nil {
		return err
	}
	if !l.enabled {
		l.logger.Info("External open skipped", zap.String("url", target))
		return ErrDisabled
	}

	name, args := Command(l.goos, target)
	if err := l.run(ctx, name, args...); err != nil {
		return fmt.Errorf("open %s with %s: %w", target, name, err)
	}

	l.logger.Info("Opened in external browser", zap.String("url", target), zap.String("command", name))
	return nil
}

func startCommand(ctx context.Context, name string, args ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	// Reap the handler process; browsers detach on their own
	go func() { _ = cmd.Wait() }()
	return nil
}
