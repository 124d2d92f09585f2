package navigation

import "fmt"

// State is the controller's lifecycle state
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateLoaded  State = "loaded"
	StateFailed  State = "failed"
)

// Kind labels what started a navigation
type Kind string

const (
	KindNavigate Kind = "navigate"
	KindBack     Kind = "back"
	KindForward  Kind = "forward"
	KindReload   Kind = "reload"
	KindExternal Kind = "external"
)

// Outcomes recorded per navigation
const (
	OutcomeLoaded     = "loaded"
	OutcomeFailed     = "failed"
	OutcomeSuperseded = "superseded"
	OutcomeCanceled   = "canceled"
	OutcomeHandedOff  = "handed_off"
)

// Status lines shown by the shell
const (
	StatusLoading  = "Loading page…"
	StatusLoaded   = "Page loaded"
	StatusCanceled = "Navigation canceled"
)

func statusError(reason string) string {
	return fmt.Sprintf("Error: %s - opening in external browser", reason)
}

func statusHandedOff(url string) string {
	return fmt.Sprintf("Opening %s in external browser", url)
}

// Snapshot is the read-only view of the controller
type Snapshot struct {
	State          State    `json:"state"`
	URL            string   `json:"url"`
	Title          string   `json:"title"`
	DocumentURL    string   `json:"document_url"`
	LoadedURL      string   `json:"loaded_url,omitempty"`
	Entries        []string `json:"entries"`
	Index          int      `json:"index"`
	BackEnabled    bool     `json:"back_enabled"`
	ForwardEnabled bool     `json:"forward_enabled"`
	Status         string   `json:"status"`
	Error          string   `json:"error,omitempty"`
	ExternalURL    string   `json:"external_url,omitempty"`
	Seq            uint64   `json:"seq"`
}
