package guard

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// Harness runs the guard in a goja VM against a stub DOM. Messages the
// shim posts to its parent are captured instead of delivered.
type Harness struct {
	vm     *goja.Runtime
	config Config
	mu     sync.Mutex

	messages []Message
	console  []LogEntry
	recMu    sync.Mutex
}

// NewHarness creates a VM with the stub DOM loaded and the guard installed
func NewHarness(config Config) (*Harness, error) {
	if config.BaseURL == "" {
		config.BaseURL = DefaultConfig().BaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}

	dom, guard, err := programs()
	if err != nil {
		return nil, fmt.Errorf("compile guard: %w", err)
	}

	h := &Harness{
		vm:     goja.New(),
		config: config,
	}
	h.setupGlobals()

	if _, err := h.vm.RunProgram(dom); err != nil {
		return nil, fmt.Errorf("load stub dom: %w", err)
	}
	if err := h.setLocation(config.BaseURL); err != nil {
		return nil, err
	}
	if _, err := h.vm.RunProgram(guard); err != nil {
		return nil, fmt.Errorf("install guard: %w", err)
	}
	return h, nil
}

// Run executes script and returns its exported completion value. Pending
// promise jobs run before Run returns.
func (h *Harness) Run(ctx context.Context, script string) (interface{}, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	timer := time.NewTimer(h.config.Timeout)
	defer timer.Stop()

	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-timer.C:
			h.vm.Interrupt("execution timeout exceeded")
		case <-ctx.Done():
			h.vm.Interrupt("context cancelled")
		case <-done:
		}
	}()

	val, err := h.vm.RunString(script)
	h.vm.ClearInterrupt()
	if err != nil {
		return nil, err
	}
	return exportValue(val), nil
}

// Reinstall runs the guard a second time, as a document that was rewritten
// twice would
func (h *Harness) Reinstall() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, guard, err := programs()
	if err != nil {
		return err
	}
	_, err = h.vm.RunProgram(guard)
	return err
}

// Messages returns the messages posted to the parent so far
func (h *Harness) Messages() []Message {
	h.recMu.Lock()
	defer h.recMu.Unlock()
	return append([]Message(nil), h.messages...)
}

// ResetMessages forgets captured messages
func (h *Harness) ResetMessages() {
	h.recMu.Lock()
	defer h.recMu.Unlock()
	h.messages = nil
}

// Console returns captured console output
func (h *Harness) Console() []LogEntry {
	h.recMu.Lock()
	defer h.recMu.Unlock()
	return append([]LogEntry(nil), h.console...)
}

func (h *Harness) setupGlobals() {
	h.vm.Set("require", goja.Undefined())
	h.vm.Set("process", goja.Undefined())
	h.vm.Set("module", goja.Undefined())
	h.vm.Set("exports", goja.Undefined())

	console := h.vm.NewObject()
	for _, level := range []string{"log", "debug", "info", "warn", "error"} {
		_ = console.Set(level, h.makeConsoleFunc(level))
	}
	h.vm.Set("console", console)

	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	h.vm.Set("setTimeout", noop)
	h.vm.Set("setInterval", noop)

	h.vm.Set("__hostPost", h.hostPost)
	h.vm.Set("URL", h.newURL)
}

func (h *Harness) setLocation(base string) error {
	document := h.vm.Get("document")
	if document == nil || goja.IsUndefined(document) {
		return fmt.Errorf("stub dom did not define document")
	}
	if err := document.ToObject(h.vm).Set("baseURI", base); err != nil {
		return err
	}
	location := h.vm.NewObject()
	_ = location.Set("href", base)
	h.vm.Set("location", location)
	return nil
}

func (h *Harness) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}

		h.recMu.Lock()
		h.console = append(h.console, LogEntry{
			Level:   level,
			Message: strings.Join(parts, " "),
			Time:    time.Now(),
		})
		h.recMu.Unlock()

		return goja.Undefined()
	}
}

func (h *Harness) hostPost(call goja.FunctionCall) goja.Value {
	msg := Message{Origin: call.Argument(1).String()}
	if data, ok := call.Argument(0).Export().(map[string]interface{}); ok {
		msg.Type, _ = data["type"].(string)
		msg.URL, _ = data["url"].(string)
	}

	h.recMu.Lock()
	h.messages = append(h.messages, msg)
	h.recMu.Unlock()
	return goja.Undefined()
}

// newURL implements the URL constructor on net/url
func (h *Harness) newURL(call goja.ConstructorCall) *goja.Object {
	raw := call.Argument(0).String()

	ref, err := url.Parse(raw)
	if err != nil {
		panic(h.vm.NewTypeError("Invalid URL: %s", raw))
	}

	u := ref
	if b := call.Argument(1); !goja.IsUndefined(b) && !goja.IsNull(b) {
		base, err := url.Parse(b.String())
		if err != nil || !base.IsAbs() {
			panic(h.vm.NewTypeError("Invalid base URL: %s", b.String()))
		}
		u = base.ResolveReference(ref)
	}
	if !u.IsAbs() {
		panic(h.vm.NewTypeError("Invalid URL: %s", raw))
	}

	origin := "null"
	if u.Scheme == "http" || u.Scheme == "https" {
		origin = u.Scheme + "://" + u.Host
	}
	pathname := u.EscapedPath()
	if pathname == "" && origin != "null" {
		pathname = "/"
	}
	search := ""
	if u.RawQuery != "" {
		search = "?" + u.RawQuery
	}
	hash := ""
	if u.Fragment != "" {
		hash = "#" + u.EscapedFragment()
	}
	href := u.String()

	obj := call.This
	_ = obj.Set("href", href)
	_ = obj.Set("origin", origin)
	_ = obj.Set("protocol", u.Scheme+":")
	_ = obj.Set("host", u.Host)
	_ = obj.Set("hostname", u.Hostname())
	_ = obj.Set("port", u.Port())
	_ = obj.Set("pathname", pathname)
	_ = obj.Set("search", search)
	_ = obj.Set("hash", hash)
	_ = obj.Set("toString", func() string { return href })
	return nil
}

func exportValue(val goja.Value) interface{} {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil
	}
	return val.Export()
}
