package agentsim

import (
	"net/http"

	jsonitor "github.com/json-iterator/go"
)

var json = jsonitor.ConfigCompatibleWithStandardLibrary

// envelope is the body of every agent response.
type envelope struct {
	Value     any     `json:"value"`
	SessionID *string `json:"sessionId"`
}

func sendValue(w http.ResponseWriter, status int, value any, sessionID string) {
	env := envelope{Value: value}
	if sessionID != "" {
		env.SessionID = &sessionID
	}
	data, err := json.Marshal(env)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("unable to encode response"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func sendError(w http.ResponseWriter, status int, code, message string) {
	sendValue(w, status, map[string]any{
		"error":   code,
		"message": message,
	}, "")
}

func decodeBody(r *http.Request, out any) bool {
	if r.Body == nil {
		return false
	}
	return json.NewDecoder(r.Body).Decode(out) == nil
}
