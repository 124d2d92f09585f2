package navigation

// History is an ordered list of visited URLs with a cursor. Index is -1
// while empty. History is not safe for concurrent use; the Controller
// guards it.
type History struct {
	entries []string
	index   int
}

// NewHistory returns an empty history
func NewHistory() *History {
	return &History{index: -1}
}

// Record makes url the current entry. Recording the current entry again is
// a no-op; otherwise everything after the cursor is dropped first.
func (h *History) Record(url string) bool {
	if cur, ok := h.Current(); ok && cur == url {
		return false
	}
	h.entries = append(h.entries[:h.index+1], url)
	h.index = len(h.entries) - 1
	return true
}

// Current returns the entry under the cursor
func (h *History) Current() (string, bool) {
	if h.index < 0 {
		return "", false
	}
	return h.entries[h.index], true
}

// CanBack reports whether there is an entry before the cursor
func (h *History) CanBack() bool { return h.index > 0 }

// CanForward reports whether there is an entry after the cursor
func (h *History) CanForward() bool { return h.index < len(h.entries)-1 }

// Back moves the cursor one entry back and returns the new current entry
func (h *History) Back() (string, bool) {
	if !h.CanBack() {
		return "", false
	}
	h.index--
	return h.entries[h.index], true
}

// Forward moves the cursor one entry forward and returns the new current entry
func (h *History) Forward() (string, bool) {
	if !h.CanForward() {
		return "", false
	}
	h.index++
	return h.entries[h.index], true
}

// Entries returns a copy of the recorded URLs
func (h *History) Entries() []string {
	return append([]string{}, h.entries...)
}

// Index returns the cursor position, -1 when empty
func (h *History) Index() int { return h.index }

// Len returns the number of entries
func (h *History) Len() int { return len(h.entries) }
