package wda

import (
	"github.com/mitchellh/mapstructure"
	"github.com/tidwall/gjson"
)

// Response is a decoded agent response envelope:
//
//	{"value": ..., "sessionId": "..."}
type Response struct {
	StatusCode int
	Raw        []byte
	Body       map[string]any
}

// Value returns the "value" member of the envelope.
func (r *Response) Value() gjson.Result {
	return gjson.GetBytes(r.Raw, "value")
}

// SessionID returns the top level "sessionId", falling back to
// "value.sessionId" which some agent builds use.
func (r *Response) SessionID() string {
	if id := gjson.GetBytes(r.Raw, "sessionId"); id.Type == gjson.String && id.String() != "" {
		return id.String()
	}
	if id := gjson.GetBytes(r.Raw, "value.sessionId"); id.Type == gjson.String {
		return id.String()
	}
	return ""
}

// DecodeValue maps the "value" member onto out. See decodeRecord.
func (r *Response) DecodeValue(out any) error {
	return decodeRecord(r.Body["value"], out)
}

// decodeRecord copies the fields of in named by out's mapstructure tags.
// Keys without a matching field are ignored; a present key whose value
// cannot be converted to the field type is an error.
func decodeRecord(in any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: false,
		ZeroFields:       false,
	})
	if err != nil {
		return ErrRequest.MsgErr("unable to create decoder", err)
	}
	if err := dec.Decode(in); err != nil {
		return ErrRequest.MsgErr("unexpected response shape", err)
	}
	return nil
}

// BuildInfo describes the agent build reported by /status.
type BuildInfo struct {
	Version                 string `mapstructure:"version"`
	Time                    string `mapstructure:"time"`
	ProductBundleIdentifier string `mapstructure:"productBundleIdentifier"`
}

// StatusInfo is the result of GET /status.
type StatusInfo struct {
	IP        string    `mapstructure:"-"`
	SessionID string    `mapstructure:"-"`
	Message   string    `mapstructure:"message"`
	State     string    `mapstructure:"state"`
	Ready     bool      `mapstructure:"ready"`
	Build     BuildInfo `mapstructure:"build"`
}

// AppInfo describes the foreground application.
type AppInfo struct {
	Name             string         `mapstructure:"name"`
	ProcessArguments map[string]any `mapstructure:"processArguments"`
	PID              int            `mapstructure:"pid"`
	BundleID         string         `mapstructure:"bundleId"`
}

// AppListItem is one entry of /wda/apps/list.
type AppListItem struct {
	PID      int    `mapstructure:"pid"`
	BundleID string `mapstructure:"bundleId"`
}

type DeviceInfo struct {
	TimeZone           string `mapstructure:"timeZone"`
	CurrentLocale      string `mapstructure:"currentLocale"`
	Model              string `mapstructure:"model"`
	UUID               string `mapstructure:"uuid"`
	UserInterfaceIdiom int    `mapstructure:"userInterfaceIdiom"`
	UserInterfaceStyle string `mapstructure:"userInterfaceStyle"`
	Name               string `mapstructure:"name"`
	IsSimulator        bool   `mapstructure:"isSimulator"`
}

// BatteryState is the charging state reported by /wda/batteryInfo.
type BatteryState int

const (
	BatteryUnknown   BatteryState = 0
	BatteryUnplugged BatteryState = 1
	BatteryCharging  BatteryState = 2
	BatteryFull      BatteryState = 3
)

func (s BatteryState) String() string {
	switch s {
	case BatteryUnplugged:
		return "Unplugged"
	case BatteryCharging:
		return "Charging"
	case BatteryFull:
		return "Full"
	default:
		return "Unknown"
	}
}

type BatteryInfo struct {
	Level float64      `mapstructure:"level"`
	State BatteryState `mapstructure:"state"`
}

type StatusBarSize struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

// SourceTree is the UI hierarchy returned by /source.
type SourceTree struct {
	Value     string
	SessionID string
}

// AppState is the run state of an application.
type AppState int

const (
	AppStateUnknown              AppState = 0
	AppStateNotRunning           AppState = 1
	AppStateRunningBackgroundSus AppState = 2
	AppStateRunningBackground    AppState = 3
	AppStateRunningForeground    AppState = 4
)

func (s AppState) String() string {
	switch s {
	case AppStateNotRunning:
		return "not running"
	case AppStateRunningBackgroundSus:
		return "suspended in background"
	case AppStateRunningBackground:
		return "running in background"
	case AppStateRunningForeground:
		return "running in foreground"
	default:
		return "unknown"
	}
}

// Orientation is the interface orientation as named on the wire.
type Orientation string

const (
	OrientationPortrait           Orientation = "PORTRAIT"
	OrientationLandscape          Orientation = "LANDSCAPE"
	OrientationLandscapeRight     Orientation = "UIA_DEVICE_ORIENTATION_LANDSCAPERIGHT"
	OrientationPortraitUpsideDown Orientation = "UIA_DEVICE_ORIENTATION_PORTRAIT_UPSIDEDOWN"
)

// Keycode names a hardware button for /wda/pressButton.
type Keycode string

const (
	KeyHome       Keycode = "home"
	KeyVolumeUp   Keycode = "volumeUp"
	KeyVolumeDown Keycode = "volumeDown"
)

// Size is a width and height in points.
type Size struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

// Screenshot is an undecoded screenshot payload.
type Screenshot struct {
	Data      []byte
	Extension string // e.g. "png"
	MIME      string // e.g. "image/png"
}
