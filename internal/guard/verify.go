package guard

import (
	"context"
	"errors"
	"fmt"
)

// ErrDeviation is returned by Verify when the shim misbehaves
var ErrDeviation = errors.New("guard shim deviation")

type check struct {
	name string
	run  func(ctx context.Context, h *Harness) error
}

// Verify installs the guard in a fresh harness and exercises its network,
// history, form and link behavior. It returns every deviation found.
func Verify(ctx context.Context) error {
	var errs []error
	for _, c := range checks {
		h, err := NewHarness(DefaultConfig())
		if err != nil {
			return err
		}
		if err := c.run(ctx, h); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	return errors.Join(errs...)
}

var checks = []check{
	{"fetch", checkFetch},
	{"xhr", checkXHR},
	{"history", checkHistory},
	{"form relay", checkFormRelay},
	{"link relay", checkLinkRelay},
	{"noise suppression", checkNoise},
}

func expect(ctx context.Context, h *Harness, script string, want string) error {
	got, err := h.Run(ctx, script)
	if err != nil {
		return err
	}
	if fmt.Sprint(got) != want {
		return fmt.Errorf("%w: got %v, want %s", ErrDeviation, got, want)
	}
	return nil
}

func expectRelay(h *Harness, want string) error {
	msgs := h.Messages()
	if len(msgs) != 1 {
		return fmt.Errorf("%w: %d messages relayed, want 1", ErrDeviation, len(msgs))
	}
	if msgs[0].Type != "navigate" || msgs[0].URL != want || msgs[0].Origin != "*" {
		return fmt.Errorf("%w: relayed %+v, want navigate to %s", ErrDeviation, msgs[0], want)
	}
	return nil
}

func checkFetch(ctx context.Context, h *Harness) error {
	script := `
		var __r = {};
		fetch('/api/items').then(null, function (e) { __r.api = e.message; });
		fetch('/static/app.js.map').then(null, function (e) { __r.map = e.message; });
		__fetchCalls.length;`
	if err := expect(ctx, h, script, "0"); err != nil {
		return err
	}
	return expect(ctx, h, `__r.api + '|' + __r.map`,
		"Fetch blocked for CORS prevention|Source map fetch blocked")
}

func checkXHR(ctx context.Context, h *Harness) error {
	script := `
		var x = new XMLHttpRequest();
		x.open('GET', '/data');
		x.send();
		x.open('GET', '/app.js.map');
		__xhrLog.join(',');`
	return expect(ctx, h, script, "open:/data")
}

func checkHistory(ctx context.Context, h *Harness) error {
	script := `
		history.pushState({}, '', '/a');
		history.replaceState({}, '', '/b');
		__historyCalls.length;`
	return expect(ctx, h, script, "0")
}

func checkFormRelay(ctx context.Context, h *Harness) error {
	script := `(function () {
		var f = document.createElement('form');
		f.setAttribute('data-original-action', 'https://example.test/search');
		f.setAttribute('action', 'javascript:void(0)');
		var q = document.createElement('input');
		q.setAttribute('name', 'q');
		q.setAttribute('value', 'go fast');
		f.appendChild(q);
		document.body.appendChild(f);
		return f.dispatchEvent(new Event('submit'));
	})()`
	if err := expect(ctx, h, script, "false"); err != nil {
		return err
	}
	return expectRelay(h, "https://example.test/search?q=go+fast")
}

func checkLinkRelay(ctx context.Context, h *Harness) error {
	script := `(function () {
		var a = document.createElement('a');
		a.setAttribute('href', '/next');
		var span = document.createElement('span');
		a.appendChild(span);
		document.body.appendChild(a);
		return span.dispatchEvent(new Event('click'));
	})()`
	if err := expect(ctx, h, script, "false"); err != nil {
		return err
	}
	return expectRelay(h, "https://example.test/next")
}

func checkNoise(ctx context.Context, h *Harness) error {
	if err := expect(ctx, h, `window.dispatchEvent(new Event('error', { message: 'Blocked by CORS policy' }))`, "false"); err != nil {
		return err
	}
	if err := expect(ctx, h, `window.dispatchEvent(new Event('unhandledrejection', { reason: new Error('Fetch blocked for CORS prevention') }))`, "false"); err != nil {
		return err
	}
	return expect(ctx, h, `window.dispatchEvent(new Event('error', { message: 'x is not a function' }))`, "true")
}
