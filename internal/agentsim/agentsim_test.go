package agentsim

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func do(t *testing.T, h http.Handler, method, path, body string) (int, string) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr.Code, rr.Body.String()
}

func TestSessionLifecycle(t *testing.T) {
	a := New(Options{})
	h := a.Handler()

	code, body := do(t, h, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, gjson.Null, gjson.Get(body, "sessionId").Type)
	assert.Equal(t, DefaultBuildVersion, gjson.Get(body, "value.build.version").String())
	assert.Equal(t, "127.0.0.1", gjson.Get(body, "value.ios.ip").String())

	code, body = do(t, h, http.MethodPost, "/session", `{"capabilities":{"alwaysMatch":{"bundleId":"com.example.app"}},"desiredCapabilities":{}}`)
	require.Equal(t, http.StatusOK, code)
	id := gjson.Get(body, "sessionId").String()
	require.NotEmpty(t, id)
	assert.Equal(t, id, a.SessionID())
	assert.Equal(t, 1, a.SessionsCreated())
	assert.Equal(t, "com.example.app", a.LastBundleID())
	assert.Equal(t, 4, a.AppState("com.example.app"))

	code, body = do(t, h, http.MethodGet, "/session/"+id+"/window/size", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(390), gjson.Get(body, "value.width").Int())

	a.ExpireSessions()
	code, body = do(t, h, http.MethodGet, "/session/"+id+"/window/size", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, body, SessionMissingMessage)
	assert.Equal(t, "invalid session id", gjson.Get(body, "value.error").String())
}

func TestFailNextAndUnknownRoute(t *testing.T) {
	a := New(Options{})
	h := a.Handler()

	a.FailNext(http.StatusInternalServerError, "boom")
	code, body := do(t, h, http.MethodGet, "/status", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "boom", body)

	code, _ = do(t, h, http.MethodGet, "/status", "")
	assert.Equal(t, http.StatusOK, code)

	code, body = do(t, h, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "unknown command", gjson.Get(body, "value.error").String())

	assert.Equal(t, 2, a.CallCount(http.MethodGet, "/status"))
	assert.Len(t, a.Calls(), 3)
	a.ResetCalls()
	assert.Empty(t, a.Calls())
}

func TestActionsValidation(t *testing.T) {
	a := New(Options{})
	h := a.Handler()
	_, body := do(t, h, http.MethodPost, "/session", `{"capabilities":{},"desiredCapabilities":{}}`)
	id := gjson.Get(body, "sessionId").String()

	code, _ := do(t, h, http.MethodPost, "/session/"+id+"/actions",
		`{"actions":[{"type":"pointer","id":"finger1","parameters":{"pointerType":"touch"},"actions":[{"type":"pointerDown","button":0},{"type":"pointerUp","button":0}]}]}`)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, a.Performed(), 1)
	assert.Equal(t, "finger1", a.Performed()[0].Actions[0].ID)

	code, body = do(t, h, http.MethodPost, "/session/"+id+"/actions",
		`{"actions":[{"type":"pointer","id":"finger1","actions":[{"type":"pointerMove"}]}]}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid argument", gjson.Get(body, "value.error").String())
}

func TestAlert(t *testing.T) {
	a := New(Options{})
	h := a.Handler()
	_, body := do(t, h, http.MethodPost, "/session", `{"capabilities":{},"desiredCapabilities":{}}`)
	id := gjson.Get(body, "sessionId").String()

	code, _ := do(t, h, http.MethodGet, "/session/"+id+"/alert/text", "")
	assert.Equal(t, http.StatusNotFound, code)

	a.ShowAlert("Allow?", "Allow", "Deny")
	code, body = do(t, h, http.MethodGet, "/session/"+id+"/wda/alert/buttons", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, `["Allow","Deny"]`, gjson.Get(body, "value").Raw)

	code, _ = do(t, h, http.MethodPost, "/session/"+id+"/alert/accept", `{"name":"Deny"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.False(t, a.HasAlert())
}

func TestCORS(t *testing.T) {
	a := New(Options{HandleCORS: true})
	req := httptest.NewRequest(http.MethodOptions, "/status", nil)
	req.Header.Set("Origin", "http://inspector.local")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rr := httptest.NewRecorder()
	a.Handler().ServeHTTP(rr, req)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestPanicHandler(t *testing.T) {
	h := RequestLogger(PanicHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))
	code, body := do(t, h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "unknown error", gjson.Get(body, "value.error").String())
}
