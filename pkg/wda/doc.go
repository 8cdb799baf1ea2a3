// Package wda is a session-aware client for WebDriverAgent.
//
// Every endpoint method goes through Request or SessionRequest. Request
// performs one logical exchange: an unreachable agent is handed to the
// configured Recoverer and, if it reports success, the exchange is tried
// exactly once more. SessionRequest additionally resolves the session id,
// and when the agent reports the session as gone it regenerates the session
// once and retries.
//
// Callers only see errors matching ErrRequest, ErrSessionDoesNotExist,
// ErrAPI (an *APIError) or ErrFatal.
package wda
