package wda

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/rs/zerolog/log"
	"github.com/tansive/wdaclient/pkg/wda/actions"
	"golang.org/x/text/unicode/norm"
)

// DefaultDismissKeys are the key labels tried by KeyboardDismiss.
var DefaultDismissKeys = []string{"前往", "发送", "Send", "Done", "Return"}

// hidUsages maps button names to consumer page (0x0C) usages for
// /wda/performIoHidEvent.
var hidUsages = map[string]int{
	"home":            0x40,
	"volumeup":        0xE9,
	"volumedown":      0xEA,
	"power":           0x30,
	"snapshot":        0x65,
	"power_plus_home": 0x65,
}

const hidConsumerPage = 0x0C

func seconds(d time.Duration) float64 {
	return d.Seconds()
}

// Status returns the agent status. It never touches the session.
func (c *Client) Status(ctx context.Context) (*StatusInfo, error) {
	resp, err := c.Request(ctx, MethodGet, "/status", nil)
	if err != nil {
		return nil, err
	}
	var st StatusInfo
	if err := resp.DecodeValue(&st); err != nil {
		return nil, err
	}
	st.IP = resp.Value().Get("ios.ip").String()
	st.SessionID = resp.SessionID()
	return &st, nil
}

// Source returns the UI hierarchy of the foreground application.
func (c *Client) Source(ctx context.Context) (*SourceTree, error) {
	resp, err := c.Request(ctx, MethodGet, "/source", nil)
	if err != nil {
		return nil, err
	}
	return &SourceTree{
		Value:     resp.Value().String(),
		SessionID: resp.SessionID(),
	}, nil
}

func (c *Client) Locked(ctx context.Context) (bool, error) {
	resp, err := c.Request(ctx, MethodGet, "/wda/locked", nil)
	if err != nil {
		return false, err
	}
	return resp.Value().Bool(), nil
}

func (c *Client) Lock(ctx context.Context) error {
	_, err := c.Request(ctx, MethodPost, "/wda/lock", nil)
	return err
}

func (c *Client) Unlock(ctx context.Context) error {
	_, err := c.Request(ctx, MethodPost, "/wda/unlock", nil)
	return err
}

func (c *Client) Homescreen(ctx context.Context) error {
	_, err := c.Request(ctx, MethodPost, "/wda/homescreen", nil)
	return err
}

// Shutdown stops the agent.
func (c *Client) Shutdown(ctx context.Context) error {
	_, err := c.Request(ctx, MethodGet, "/wda/shutdown", nil)
	return err
}

// Screenshot returns the raw screenshot bytes and their detected format.
// The image is not decoded.
func (c *Client) Screenshot(ctx context.Context) (*Screenshot, error) {
	resp, err := c.Request(ctx, MethodGet, "/screenshot", nil)
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(resp.Value().String())
	if err != nil {
		return nil, ErrRequest.MsgErr("screenshot is not base64", err)
	}
	shot := &Screenshot{Data: data, Extension: "bin", MIME: "application/octet-stream"}
	kind, err := filetype.Match(data)
	if err == nil && kind != filetype.Unknown {
		shot.Extension = kind.Extension
		shot.MIME = kind.MIME.Value
	}
	return shot, nil
}

// AppCurrent returns the foreground application. The screen is unlocked
// and a session is ensured first, as the agent needs both.
func (c *Client) AppCurrent(ctx context.Context) (*AppInfo, error) {
	ctx = c.requestContext(ctx)
	if err := c.Unlock(ctx); err != nil {
		return nil, err
	}
	if _, err := c.SessionID(ctx); err != nil {
		return nil, err
	}
	resp, err := c.Request(ctx, MethodGet, "/wda/activeAppInfo", nil)
	if err != nil {
		return nil, err
	}
	var info AppInfo
	if err := resp.DecodeValue(&info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) AppLaunch(ctx context.Context, bundleID string, arguments []string, environment map[string]string) error {
	if arguments == nil {
		arguments = []string{}
	}
	if environment == nil {
		environment = map[string]string{}
	}
	_, err := c.SessionRequest(ctx, MethodPost, "/wda/apps/launch", map[string]any{
		"bundleId":    bundleID,
		"arguments":   arguments,
		"environment": environment,
	})
	return err
}

func (c *Client) AppTerminate(ctx context.Context, bundleID string) error {
	_, err := c.SessionRequest(ctx, MethodPost, "/wda/apps/terminate", map[string]any{
		"bundleId": bundleID,
	})
	return err
}

func (c *Client) AppState(ctx context.Context, bundleID string) (AppState, error) {
	resp, err := c.SessionRequest(ctx, MethodPost, "/wda/apps/state", map[string]any{
		"bundleId": bundleID,
	})
	if err != nil {
		return AppStateUnknown, err
	}
	return AppState(resp.Value().Int()), nil
}

// AppList returns the running applications known to the agent.
func (c *Client) AppList(ctx context.Context) ([]AppListItem, error) {
	resp, err := c.SessionRequest(ctx, MethodGet, "/wda/apps/list", nil)
	if err != nil {
		return nil, err
	}
	var apps []AppListItem
	if err := resp.DecodeValue(&apps); err != nil {
		return nil, err
	}
	return apps, nil
}

// Deactivate sends the foreground application to the background for d.
func (c *Client) Deactivate(ctx context.Context, d time.Duration) error {
	_, err := c.SessionRequest(ctx, MethodPost, "/wda/deactivateApp", map[string]any{
		"duration": seconds(d),
	})
	return err
}

func (c *Client) OpenURL(ctx context.Context, url string) error {
	_, err := c.SessionRequest(ctx, MethodPost, "/url", map[string]any{
		"url": url,
	})
	return err
}

// SetClipboard sets the plain text pasteboard. The agent only honours it
// while its own app is in the foreground.
func (c *Client) SetClipboard(ctx context.Context, content string) error {
	_, err := c.SessionRequest(ctx, MethodPost, "/wda/setPasteboard", map[string]any{
		"content":     base64.StdEncoding.EncodeToString([]byte(content)),
		"contentType": "plaintext",
	})
	return err
}

func (c *Client) GetClipboard(ctx context.Context) (string, error) {
	resp, err := c.SessionRequest(ctx, MethodPost, "/wda/getPasteboard", map[string]any{
		"contentType": "plaintext",
	})
	if err != nil {
		return "", err
	}
	data, err := base64.StdEncoding.DecodeString(resp.Value().String())
	if err != nil {
		return "", ErrRequest.MsgErr("pasteboard is not base64", err)
	}
	return string(data), nil
}

func (c *Client) AppiumSettings(ctx context.Context) (map[string]any, error) {
	resp, err := c.SessionRequest(ctx, MethodGet, "/appium/settings", nil)
	if err != nil {
		return nil, err
	}
	settings, _ := resp.Body["value"].(map[string]any)
	return settings, nil
}

// SetAppiumSettings updates settings and returns the resulting set.
func (c *Client) SetAppiumSettings(ctx context.Context, settings map[string]any) (map[string]any, error) {
	resp, err := c.SessionRequest(ctx, MethodPost, "/appium/settings", map[string]any{
		"settings": settings,
	})
	if err != nil {
		return nil, err
	}
	out, _ := resp.Body["value"].(map[string]any)
	return out, nil
}

func (c *Client) Orientation(ctx context.Context) (Orientation, error) {
	resp, err := c.SessionRequest(ctx, MethodGet, "/orientation", nil)
	if err != nil {
		return "", err
	}
	return Orientation(resp.Value().String()), nil
}

// WindowSize returns the screen size in points.
func (c *Client) WindowSize(ctx context.Context) (Size, error) {
	resp, err := c.SessionRequest(ctx, MethodGet, "/window/size", nil)
	if err != nil {
		return Size{}, err
	}
	var size Size
	if err := resp.DecodeValue(&size); err != nil {
		return Size{}, err
	}
	return size, nil
}

// SendKeys types text into the focused element. Text is normalised to NFC
// so a precomposed character is sent as one key.
func (c *Client) SendKeys(ctx context.Context, text string) error {
	text = norm.NFC.String(text)
	keys := make([]string, 0, len(text))
	for _, r := range text {
		keys = append(keys, string(r))
	}
	_, err := c.SessionRequest(ctx, MethodPost, "/wda/keys", map[string]any{
		"value": keys,
	})
	return err
}

// Tap taps at (x, y). Agents without /wda/tap get /wda/tap/0.
func (c *Client) Tap(ctx context.Context, x, y int) error {
	ctx = c.requestContext(ctx)
	payload := map[string]any{"x": x, "y": y}
	_, err := c.SessionRequest(ctx, MethodPost, "/wda/tap", payload)
	if err == nil || !errors.Is(err, ErrRequest) {
		return err
	}
	log.Ctx(ctx).Debug().Err(err).Msg("tap failed, falling back to /wda/tap/0")
	_, err = c.SessionRequest(ctx, MethodPost, "/wda/tap/0", payload)
	return err
}

func (c *Client) TouchAndHold(ctx context.Context, x, y int, d time.Duration) error {
	_, err := c.SessionRequest(ctx, MethodPost, "/wda/touchAndHold", map[string]any{
		"x":        x,
		"y":        y,
		"duration": seconds(d),
	})
	return err
}

// Swipe drags from one point to another over d.
func (c *Client) Swipe(ctx context.Context, fromX, fromY, toX, toY int, d time.Duration) error {
	_, err := c.SessionRequest(ctx, MethodPost, "/wda/dragfromtoforduration", map[string]any{
		"fromX":    fromX,
		"fromY":    fromY,
		"toX":      toX,
		"toY":      toY,
		"duration": seconds(d),
	})
	return err
}

func (c *Client) Press(ctx context.Context, key Keycode) error {
	_, err := c.SessionRequest(ctx, MethodPost, "/wda/pressButton", map[string]any{
		"name": key,
	})
	return err
}

// PressDuration holds a hardware button for d. Known names are home,
// volumeup, volumedown, power, snapshot and power_plus_home.
func (c *Client) PressDuration(ctx context.Context, name string, d time.Duration) error {
	usage, ok := hidUsages[strings.ToLower(name)]
	if !ok {
		return ErrInvalidArgument.Msg("invalid button name: " + name)
	}
	_, err := c.SessionRequest(ctx, MethodPost, "/wda/performIoHidEvent", map[string]any{
		"page":     hidConsumerPage,
		"usage":    usage,
		"duration": seconds(d),
	})
	return err
}

func (c *Client) VolumeUp(ctx context.Context) error {
	return c.Press(ctx, KeyVolumeUp)
}

func (c *Client) VolumeDown(ctx context.Context) error {
	return c.Press(ctx, KeyVolumeDown)
}

// PerformActions submits input sources for concurrent playback.
func (c *Client) PerformActions(ctx context.Context, seqs ...actions.Sequence) error {
	req, err := actions.NewRequest(seqs...)
	if err != nil {
		return err
	}
	_, err = c.SessionRequest(ctx, MethodPost, "/actions", req)
	return err
}

// TouchPerform submits a gesture list to the older touch/perform endpoint.
func (c *Client) TouchPerform(ctx context.Context, gestures ...actions.Gesture) error {
	req, err := actions.NewTouchRequest(gestures...)
	if err != nil {
		return err
	}
	_, err = c.SessionRequest(ctx, MethodPost, "/wda/touch/perform", req)
	return err
}

// Scale returns the screen scale factor. The first successful answer is
// cached for the life of the client.
func (c *Client) Scale(ctx context.Context) (float64, error) {
	c.scaleMu.Lock()
	defer c.scaleMu.Unlock()
	if c.scale > 0 {
		return c.scale, nil
	}
	resp, err := c.SessionRequest(ctx, MethodGet, "/wda/screen", nil)
	if err != nil {
		return 0, err
	}
	c.scale = resp.Value().Get("scale").Float()
	return c.scale, nil
}

func (c *Client) StatusBarSize(ctx context.Context) (StatusBarSize, error) {
	resp, err := c.SessionRequest(ctx, MethodGet, "/wda/screen", nil)
	if err != nil {
		return StatusBarSize{}, err
	}
	var size StatusBarSize
	value, _ := resp.Body["value"].(map[string]any)
	if err := decodeRecord(value["statusBarSize"], &size); err != nil {
		return StatusBarSize{}, err
	}
	return size, nil
}

func (c *Client) BatteryInfo(ctx context.Context) (BatteryInfo, error) {
	resp, err := c.SessionRequest(ctx, MethodGet, "/wda/batteryInfo", nil)
	if err != nil {
		return BatteryInfo{}, err
	}
	var info BatteryInfo
	if err := resp.DecodeValue(&info); err != nil {
		return BatteryInfo{}, err
	}
	return info, nil
}

func (c *Client) DeviceInfo(ctx context.Context) (DeviceInfo, error) {
	resp, err := c.SessionRequest(ctx, MethodGet, "/wda/device/info", nil)
	if err != nil {
		return DeviceInfo{}, err
	}
	var info DeviceInfo
	if err := resp.DecodeValue(&info); err != nil {
		return DeviceInfo{}, err
	}
	return info, nil
}

// KeyboardDismiss hides the keyboard by tapping the first key whose label
// is in keyNames, DefaultDismissKeys if none are given.
func (c *Client) KeyboardDismiss(ctx context.Context, keyNames ...string) error {
	if len(keyNames) == 0 {
		keyNames = DefaultDismissKeys
	}
	_, err := c.SessionRequest(ctx, MethodPost, "/wda/keyboard/dismiss", map[string]any{
		"keyNames": keyNames,
	})
	return err
}

// FastTap taps without a session. Only agents built with the nano
// extensions implement it.
func (c *Client) FastTap(ctx context.Context, x, y int) error {
	_, err := c.Request(ctx, MethodPost, "/wda/tap", map[string]any{
		"x": x,
		"y": y,
	})
	return err
}

// FastSwipe swipes without a session on agents built with the nano
// extensions. It cannot emulate the edge swipe used for back navigation.
func (c *Client) FastSwipe(ctx context.Context, fromX, fromY, toX, toY int, d time.Duration) error {
	_, err := c.Request(ctx, MethodPost, "/wda/swipe", map[string]any{
		"x1":    fromX,
		"y1":    fromY,
		"x2":    toX,
		"y2":    toY,
		"delay": seconds(d),
	})
	return err
}
