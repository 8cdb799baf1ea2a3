package wda

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// sessionManager owns the cached session id. Every read-modify-write of the
// id happens under mu, including the network calls that produce it, so
// concurrent callers never create more than one session per invalidation.
type sessionManager struct {
	client *Client

	mu   sync.Mutex
	id   string
	opts SessionOptions
}

func newSessionManager(c *Client, opts SessionOptions) *sessionManager {
	return &sessionManager{
		client: c,
		opts:   opts,
	}
}

// get returns the cached id, the session reported by /status, or a new
// session, in that order.
func (s *sessionManager) get(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.id != "" {
		return s.id, nil
	}
	st, err := s.client.Status(ctx)
	if err != nil {
		return "", err
	}
	if st.SessionID != "" {
		log.Ctx(ctx).Debug().Str("session_id", st.SessionID).Msg("reusing session reported by status")
		s.id = st.SessionID
		return s.id, nil
	}
	id, err := s.create(ctx, s.opts)
	if err != nil {
		return "", err
	}
	s.id = id
	return id, nil
}

// regenerate replaces stale with a new session. If another caller already
// replaced it, the current id is returned without a network call.
func (s *sessionManager) regenerate(ctx context.Context, stale string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.id != "" && s.id != stale {
		return s.id, nil
	}
	s.id = ""
	id, err := s.create(ctx, s.opts)
	if err != nil {
		return "", err
	}
	s.id = id
	return id, nil
}

func (s *sessionManager) createAndCache(ctx context.Context, opts SessionOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.create(ctx, opts)
	if err != nil {
		return "", err
	}
	s.id = id
	s.opts = opts
	return id, nil
}

func (s *sessionManager) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = ""
}

func (s *sessionManager) current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

type alwaysMatch struct {
	BundleID                string            `json:"bundleId"`
	Arguments               []string          `json:"arguments"`
	Environment             map[string]string `json:"environment"`
	ShouldWaitForQuiescence bool              `json:"shouldWaitForQuiescence"`
}

type capabilities struct {
	AlwaysMatch *alwaysMatch `json:"alwaysMatch,omitempty"`
}

type createSessionRequest struct {
	Capabilities        capabilities `json:"capabilities"`
	DesiredCapabilities any          `json:"desiredCapabilities"`
}

func newCreateSessionRequest(opts SessionOptions) createSessionRequest {
	req := createSessionRequest{DesiredCapabilities: map[string]any{}}
	if opts.BundleID == "" {
		return req
	}
	am := &alwaysMatch{
		BundleID:    opts.BundleID,
		Arguments:   opts.Arguments,
		Environment: opts.Environment,
	}
	if am.Arguments == nil {
		am.Arguments = []string{}
	}
	if am.Environment == nil {
		am.Environment = map[string]string{}
	}
	req.Capabilities.AlwaysMatch = am
	req.DesiredCapabilities = am
	return req
}

// create issues POST /session. The caller holds mu.
func (s *sessionManager) create(ctx context.Context, opts SessionOptions) (string, error) {
	resp, err := s.client.Request(ctx, MethodPost, "/session", newCreateSessionRequest(opts))
	if err != nil {
		return "", err
	}
	id := resp.SessionID()
	if id == "" {
		return "", ErrRequest.Msg("agent did not return a session id")
	}
	log.Ctx(ctx).Info().Str("session_id", id).Str("bundle_id", opts.BundleID).Msg("session created")
	return id, nil
}

// SessionID returns a usable session id, creating a session if needed. A
// second call without an intervening invalidation makes no network call.
func (c *Client) SessionID(ctx context.Context) (string, error) {
	ctx = c.requestContext(ctx)
	return c.sessions.get(ctx)
}

// CreateSession creates a new session scoped by opts and makes it current.
// Later regenerations reuse opts.
func (c *Client) CreateSession(ctx context.Context, opts SessionOptions) (string, error) {
	ctx = c.requestContext(ctx)
	return c.sessions.createAndCache(ctx, opts)
}

// InvalidateSession forgets the cached session id. The next session-scoped
// call resolves a new one.
func (c *Client) InvalidateSession() {
	c.sessions.invalidate()
}

// CurrentSessionID returns the cached session id without any network call,
// or "" if none is cached.
func (c *Client) CurrentSessionID() string {
	return c.sessions.current()
}
