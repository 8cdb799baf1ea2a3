// Package agentsim is an in-process stand-in for WebDriverAgent. It serves
// the endpoints used by the wda client from memory, records every call and
// lets tests inject session expiry, failures and latency.
package agentsim

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/tansive/wdaclient/pkg/wda/actions"
)

const (
	DefaultBuildVersion = "7.1.0"
	DefaultBundleID     = "com.apple.springboard"
	RunnerBundleID      = "com.facebook.WebDriverAgentRunner"
)

// Options configures an Agent.
type Options struct {
	BuildVersion string // reported in /status, DefaultBuildVersion if empty
	HandleCORS   bool   // answer browser preflights, for web based inspectors
	Width        int
	Height       int
	Scale        float64
}

// Call is one request received by the Agent.
type Call struct {
	Method string
	Path   string
	Body   []byte
}

type injected struct {
	status int
	body   string
}

type alertState struct {
	text    string
	buttons []string
}

// Agent is the simulated agent. It is safe for concurrent use.
type Agent struct {
	opts   Options
	router *chi.Mux

	mu            sync.Mutex
	sessionID     string
	statusSession *string
	sessionCount  int
	calls         []Call
	failures      []injected
	latency       time.Duration
	locked        bool
	clipboard     string
	apps          map[string]int
	foreground    string
	settings      map[string]any
	alert         *alertState
	typed         []string
	performed     []actions.Request
	gestures      []actions.TouchRequest
	taps          [][2]float64
	lastBundleID  string
}

// New creates an Agent with no session.
func New(opts Options) *Agent {
	if opts.BuildVersion == "" {
		opts.BuildVersion = DefaultBuildVersion
	}
	if opts.Width == 0 {
		opts.Width = 390
	}
	if opts.Height == 0 {
		opts.Height = 844
	}
	if opts.Scale == 0 {
		opts.Scale = 3
	}
	a := &Agent{
		opts:       opts,
		apps:       map[string]int{DefaultBundleID: 4},
		foreground: DefaultBundleID,
		settings:   map[string]any{"snapshotMaxDepth": float64(50)},
	}
	a.router = chi.NewRouter()
	a.mountHandlers()
	return a
}

// Handler returns the HTTP handler serving the agent API.
func (a *Agent) Handler() http.Handler {
	return a.router
}

func (a *Agent) mountHandlers() {
	a.router.Use(RequestLogger)
	a.router.Use(PanicHandler)
	if a.opts.HandleCORS {
		a.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "Content-Length"},
			ExposedHeaders: []string{RequestIDHeader},
			MaxAge:         300,
		}))
	}
	a.router.Use(a.record)
	a.router.Use(a.inject)
	a.mountRoutes(a.router)
}

// SessionID returns the active session id, "" if none.
func (a *Agent) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionID
}

// SessionsCreated returns how many times POST /session succeeded.
func (a *Agent) SessionsCreated() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionCount
}

// LastBundleID returns the bundle id requested by the last session creation.
func (a *Agent) LastBundleID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastBundleID
}

// ExpireSessions drops the active session. Calls scoped to it are answered
// with the session-missing error.
func (a *Agent) ExpireSessions() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessionID = ""
}

// ReportStatusSession makes /status report id as the active session whether
// or not it exists. Passing "" reports no session.
func (a *Agent) ReportStatusSession(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.statusSession = &id
}

// FailNext queues a canned response for the next request, whatever its path.
func (a *Agent) FailNext(status int, body string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures = append(a.failures, injected{status: status, body: body})
}

// SetLatency delays every response by d.
func (a *Agent) SetLatency(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.latency = d
}

// ShowAlert displays an alert with the given text and buttons.
func (a *Agent) ShowAlert(text string, buttons ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alert = &alertState{text: text, buttons: buttons}
}

// HasAlert reports whether an alert is displayed.
func (a *Agent) HasAlert() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.alert != nil
}

// Calls returns a copy of the recorded calls.
func (a *Agent) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Call, len(a.calls))
	copy(out, a.calls)
	return out
}

// CallCount counts recorded calls with the given method whose path ends
// with suffix.
func (a *Agent) CallCount(method, suffix string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.calls {
		if c.Method == method && strings.HasSuffix(c.Path, suffix) {
			n++
		}
	}
	return n
}

// ResetCalls clears the call log.
func (a *Agent) ResetCalls() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = nil
}

// Typed returns the keys received by /wda/keys, in order.
func (a *Agent) Typed() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.typed...)
}

// Performed returns the action requests received by /actions.
func (a *Agent) Performed() []actions.Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]actions.Request(nil), a.performed...)
}

// Gestures returns the gesture lists received by /wda/touch/perform.
func (a *Agent) Gestures() []actions.TouchRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]actions.TouchRequest(nil), a.gestures...)
}

// Taps returns the coordinates received by the tap endpoints.
func (a *Agent) Taps() [][2]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([][2]float64(nil), a.taps...)
}

// AppState returns the simulated state of bundleID.
func (a *Agent) AppState(bundleID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.apps[bundleID]
}

// Locked reports whether the simulated screen is locked.
func (a *Agent) Locked() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.locked
}
