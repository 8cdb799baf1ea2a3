package agentsim

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/tansive/wdaclient/internal/common/uuid"
	"github.com/tansive/wdaclient/pkg/wda/actions"
)

// SessionMissingMessage is the message of the error returned for calls
// scoped to an unknown session.
const SessionMissingMessage = "Session does not exist"

const sourceTree = `<?xml version="1.0" encoding="UTF-8"?>
<XCUIElementTypeApplication type="XCUIElementTypeApplication" name="Simulator" label="Simulator" enabled="true" visible="true" x="0" y="0" width="390" height="844"/>`

var screenshotPNG = func() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}()

func (a *Agent) mountRoutes(r chi.Router) {
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		sendError(w, http.StatusNotFound, "unknown command", "Unhandled endpoint: "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		sendError(w, http.StatusMethodNotAllowed, "unknown method", "Unhandled method "+r.Method+" for "+r.URL.Path)
	})

	r.Get("/status", a.getStatus)
	r.Post("/session", a.createSession)
	r.Get("/source", a.getSource)
	r.Get("/screenshot", a.getScreenshot)
	r.Get("/wda/locked", a.getLocked)
	r.Post("/wda/lock", a.setLocked(true))
	r.Post("/wda/unlock", a.setLocked(false))
	r.Post("/wda/homescreen", a.homescreen)
	r.Get("/wda/shutdown", a.ok("Shutting down"))
	r.Get("/wda/activeAppInfo", a.activeAppInfo)
	r.Post("/wda/tap", a.tap)
	r.Post("/wda/swipe", a.ok(nil))

	r.Route("/session/{sessionID}", func(r chi.Router) {
		r.Use(a.requireSession)
		r.Post("/wda/apps/launch", a.launchApp)
		r.Post("/wda/apps/terminate", a.terminateApp)
		r.Post("/wda/apps/state", a.appState)
		r.Get("/wda/apps/list", a.appList)
		r.Post("/wda/deactivateApp", a.ok(nil))
		r.Post("/url", a.ok(nil))
		r.Post("/wda/setPasteboard", a.setPasteboard)
		r.Post("/wda/getPasteboard", a.getPasteboard)
		r.Get("/appium/settings", a.getSettings)
		r.Post("/appium/settings", a.updateSettings)
		r.Get("/orientation", a.ok("PORTRAIT"))
		r.Get("/window/size", a.windowSize)
		r.Post("/wda/keys", a.keys)
		r.Post("/wda/tap", a.tap)
		r.Post("/wda/tap/{element}", a.tap)
		r.Post("/wda/touchAndHold", a.ok(nil))
		r.Post("/wda/dragfromtoforduration", a.ok(nil))
		r.Post("/wda/pressButton", a.pressButton)
		r.Post("/wda/performIoHidEvent", a.ok(nil))
		r.Post("/wda/touch/perform", a.touchPerform)
		r.Post("/actions", a.performActions)
		r.Get("/wda/screen", a.screen)
		r.Get("/wda/batteryInfo", a.ok(map[string]any{"level": 0.85, "state": 2}))
		r.Get("/wda/device/info", a.deviceInfo)
		r.Post("/wda/keyboard/dismiss", a.ok(nil))
		r.Get("/alert/text", a.alertText)
		r.Get("/wda/alert/buttons", a.alertButtons)
		r.Post("/alert/accept", a.closeAlert)
		r.Post("/alert/dismiss", a.closeAlert)
	})
}

func (a *Agent) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")
		a.mu.Lock()
		valid := id != "" && id == a.sessionID
		a.mu.Unlock()
		if !valid {
			sendError(w, http.StatusNotFound, "invalid session id", SessionMissingMessage)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Agent) currentSession() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionID
}

func (a *Agent) ok(value any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sendValue(w, http.StatusOK, value, a.currentSession())
	}
}

func (a *Agent) getStatus(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	sid := a.sessionID
	if a.statusSession != nil {
		sid = *a.statusSession
	}
	a.mu.Unlock()

	sendValue(w, http.StatusOK, map[string]any{
		"message": "WebDriverAgent is ready to accept commands",
		"state":   "success",
		"ready":   true,
		"ios":     map[string]any{"ip": "127.0.0.1"},
		"os":      map[string]any{"name": "iOS", "version": "17.5"},
		"build": map[string]any{
			"version":                 a.opts.BuildVersion,
			"time":                    "Jan 1 2025 00:00:00",
			"productBundleIdentifier": RunnerBundleID,
		},
	}, sid)
}

type createSessionBody struct {
	Capabilities struct {
		AlwaysMatch struct {
			BundleID string `json:"bundleId"`
		} `json:"alwaysMatch"`
	} `json:"capabilities"`
}

func (a *Agent) createSession(w http.ResponseWriter, r *http.Request) {
	var body createSessionBody
	if !decodeBody(r, &body) {
		sendError(w, http.StatusBadRequest, "invalid argument", "unable to parse capabilities")
		return
	}
	id := strings.ToUpper(uuid.New().String())
	bundleID := body.Capabilities.AlwaysMatch.BundleID

	a.mu.Lock()
	a.sessionID = id
	a.statusSession = nil
	a.sessionCount++
	a.lastBundleID = bundleID
	if bundleID != "" {
		a.launchLocked(bundleID)
	}
	a.mu.Unlock()

	sendValue(w, http.StatusOK, map[string]any{
		"sessionId": id,
		"capabilities": map[string]any{
			"device":             "iphone",
			"sdkVersion":         "17.5",
			"CFBundleIdentifier": bundleID,
		},
	}, id)
}

func (a *Agent) getSource(w http.ResponseWriter, r *http.Request) {
	sendValue(w, http.StatusOK, sourceTree, a.currentSession())
}

func (a *Agent) getScreenshot(w http.ResponseWriter, r *http.Request) {
	sendValue(w, http.StatusOK, base64.StdEncoding.EncodeToString(screenshotPNG), a.currentSession())
}

func (a *Agent) getLocked(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	locked := a.locked
	a.mu.Unlock()
	sendValue(w, http.StatusOK, locked, a.currentSession())
}

func (a *Agent) setLocked(locked bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		a.locked = locked
		a.mu.Unlock()
		sendValue(w, http.StatusOK, nil, a.currentSession())
	}
}

func (a *Agent) homescreen(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	if a.foreground != DefaultBundleID {
		a.apps[a.foreground] = 3
	}
	a.foreground = DefaultBundleID
	a.mu.Unlock()
	sendValue(w, http.StatusOK, nil, a.currentSession())
}

func (a *Agent) activeAppInfo(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	fg := a.foreground
	a.mu.Unlock()
	sendValue(w, http.StatusOK, map[string]any{
		"name":     "",
		"pid":      4242,
		"bundleId": fg,
		"processArguments": map[string]any{
			"args": []string{},
			"env":  map[string]any{},
		},
	}, a.currentSession())
}

type point struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

func (a *Agent) tap(w http.ResponseWriter, r *http.Request) {
	var p point
	if !decodeBody(r, &p) || p.X == nil || p.Y == nil {
		sendError(w, http.StatusBadRequest, "invalid argument", "x and y are required")
		return
	}
	a.mu.Lock()
	a.taps = append(a.taps, [2]float64{*p.X, *p.Y})
	a.mu.Unlock()
	sendValue(w, http.StatusOK, nil, a.currentSession())
}

type bundleBody struct {
	BundleID string `json:"bundleId"`
}

// launchLocked brings bundleID to the foreground. The caller holds mu.
func (a *Agent) launchLocked(bundleID string) {
	if a.foreground != bundleID {
		a.apps[a.foreground] = 3
	}
	a.apps[bundleID] = 4
	a.foreground = bundleID
}

func (a *Agent) launchApp(w http.ResponseWriter, r *http.Request) {
	var body bundleBody
	if !decodeBody(r, &body) || body.BundleID == "" {
		sendError(w, http.StatusBadRequest, "invalid argument", "bundleId is required")
		return
	}
	a.mu.Lock()
	a.launchLocked(body.BundleID)
	a.mu.Unlock()
	sendValue(w, http.StatusOK, nil, a.currentSession())
}

func (a *Agent) terminateApp(w http.ResponseWriter, r *http.Request) {
	var body bundleBody
	if !decodeBody(r, &body) || body.BundleID == "" {
		sendError(w, http.StatusBadRequest, "invalid argument", "bundleId is required")
		return
	}
	a.mu.Lock()
	running := a.apps[body.BundleID] > 1
	a.apps[body.BundleID] = 1
	if a.foreground == body.BundleID {
		a.foreground = DefaultBundleID
		a.apps[DefaultBundleID] = 4
	}
	a.mu.Unlock()
	sendValue(w, http.StatusOK, running, a.currentSession())
}

func (a *Agent) appState(w http.ResponseWriter, r *http.Request) {
	var body bundleBody
	if !decodeBody(r, &body) || body.BundleID == "" {
		sendError(w, http.StatusBadRequest, "invalid argument", "bundleId is required")
		return
	}
	a.mu.Lock()
	state, ok := a.apps[body.BundleID]
	a.mu.Unlock()
	if !ok {
		state = 1
	}
	sendValue(w, http.StatusOK, state, a.currentSession())
}

func (a *Agent) appList(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	var list []map[string]any
	pid := 1000
	bundles := make([]string, 0, len(a.apps))
	for b := range a.apps {
		bundles = append(bundles, b)
	}
	slices.Sort(bundles)
	for _, b := range bundles {
		if a.apps[b] > 1 {
			pid++
			list = append(list, map[string]any{"pid": pid, "bundleId": b})
		}
	}
	a.mu.Unlock()
	sendValue(w, http.StatusOK, list, a.currentSession())
}

func (a *Agent) setPasteboard(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
	}
	if !decodeBody(r, &body) {
		sendError(w, http.StatusBadRequest, "invalid argument", "content is required")
		return
	}
	data, err := base64.StdEncoding.DecodeString(body.Content)
	if err != nil {
		sendError(w, http.StatusBadRequest, "invalid argument", "content must be base64")
		return
	}
	a.mu.Lock()
	a.clipboard = string(data)
	a.mu.Unlock()
	sendValue(w, http.StatusOK, nil, a.currentSession())
}

func (a *Agent) getPasteboard(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	content := a.clipboard
	a.mu.Unlock()
	sendValue(w, http.StatusOK, base64.StdEncoding.EncodeToString([]byte(content)), a.currentSession())
}

func (a *Agent) getSettings(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	settings := make(map[string]any, len(a.settings))
	for k, v := range a.settings {
		settings[k] = v
	}
	a.mu.Unlock()
	sendValue(w, http.StatusOK, settings, a.currentSession())
}

func (a *Agent) updateSettings(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Settings map[string]any `json:"settings"`
	}
	if !decodeBody(r, &body) {
		sendError(w, http.StatusBadRequest, "invalid argument", "settings are required")
		return
	}
	a.mu.Lock()
	for k, v := range body.Settings {
		a.settings[k] = v
	}
	a.mu.Unlock()
	a.getSettings(w, r)
}

func (a *Agent) windowSize(w http.ResponseWriter, r *http.Request) {
	sendValue(w, http.StatusOK, map[string]any{
		"width":  a.opts.Width,
		"height": a.opts.Height,
	}, a.currentSession())
}

func (a *Agent) keys(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Value []string `json:"value"`
	}
	if !decodeBody(r, &body) {
		sendError(w, http.StatusBadRequest, "invalid argument", "value is required")
		return
	}
	a.mu.Lock()
	a.typed = append(a.typed, body.Value...)
	a.mu.Unlock()
	sendValue(w, http.StatusOK, nil, a.currentSession())
}

func (a *Agent) pressButton(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	decodeBody(r, &body)
	switch body.Name {
	case "home", "volumeUp", "volumeDown":
		sendValue(w, http.StatusOK, nil, a.currentSession())
	default:
		sendError(w, http.StatusBadRequest, "invalid argument", "The button '"+body.Name+"' is unknown")
	}
}

func (a *Agent) touchPerform(w http.ResponseWriter, r *http.Request) {
	var body actions.TouchRequest
	if !decodeBody(r, &body) {
		sendError(w, http.StatusBadRequest, "invalid argument", "unable to parse actions")
		return
	}
	if err := actions.ValidateGestures(body.Actions...); err != nil {
		sendError(w, http.StatusBadRequest, "invalid argument", err.Error())
		return
	}
	a.mu.Lock()
	a.gestures = append(a.gestures, body)
	a.mu.Unlock()
	sendValue(w, http.StatusOK, nil, a.currentSession())
}

func (a *Agent) performActions(w http.ResponseWriter, r *http.Request) {
	var body actions.Request
	if !decodeBody(r, &body) {
		sendError(w, http.StatusBadRequest, "invalid argument", "unable to parse actions")
		return
	}
	if err := actions.Validate(body.Actions...); err != nil {
		sendError(w, http.StatusBadRequest, "invalid argument", err.Error())
		return
	}
	a.mu.Lock()
	a.performed = append(a.performed, body)
	a.mu.Unlock()
	sendValue(w, http.StatusOK, nil, a.currentSession())
}

func (a *Agent) screen(w http.ResponseWriter, r *http.Request) {
	sendValue(w, http.StatusOK, map[string]any{
		"statusBarSize": map[string]any{"width": a.opts.Width, "height": 47},
		"scale":         a.opts.Scale,
	}, a.currentSession())
}

func (a *Agent) deviceInfo(w http.ResponseWriter, r *http.Request) {
	sendValue(w, http.StatusOK, map[string]any{
		"timeZone":           "UTC",
		"currentLocale":      "en_US",
		"model":              "iPhone",
		"uuid":               "00000000-0000-0000-0000-000000000000",
		"userInterfaceIdiom": 0,
		"userInterfaceStyle": "light",
		"name":               "Simulated iPhone",
		"isSimulator":        true,
	}, a.currentSession())
}

func (a *Agent) noAlert(w http.ResponseWriter) {
	sendError(w, http.StatusNotFound, "no such alert",
		"An attempt was made to operate on a modal dialog when one was not open")
}

func (a *Agent) alertText(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	alert := a.alert
	a.mu.Unlock()
	if alert == nil {
		a.noAlert(w)
		return
	}
	sendValue(w, http.StatusOK, alert.text, a.currentSession())
}

func (a *Agent) alertButtons(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	alert := a.alert
	a.mu.Unlock()
	if alert == nil {
		a.noAlert(w)
		return
	}
	sendValue(w, http.StatusOK, alert.buttons, a.currentSession())
}

func (a *Agent) closeAlert(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	decodeBody(r, &body)

	a.mu.Lock()
	alert := a.alert
	if alert != nil && (body.Name == "" || slices.Contains(alert.buttons, body.Name)) {
		a.alert = nil
	}
	a.mu.Unlock()

	if alert == nil {
		a.noAlert(w)
		return
	}
	if body.Name != "" && !slices.Contains(alert.buttons, body.Name) {
		sendError(w, http.StatusBadRequest, "invalid argument", "no button named "+body.Name)
		return
	}
	sendValue(w, http.StatusOK, nil, a.currentSession())
}
