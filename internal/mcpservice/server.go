// Package mcpservice exposes a device to MCP clients, so a model can drive
// it through tools such as tap, swipe and screenshot. The service speaks
// MCP over stdio.
package mcpservice

import (
	"context"
	"encoding/base64"
	"io"
	"time"

	jsonitor "github.com/json-iterator/go"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"
	"github.com/tansive/wdaclient/internal/common/apperrors"
	"github.com/tansive/wdaclient/pkg/wda"
	"github.com/tansive/wdaclient/pkg/wda/actions"
)

var json = jsonitor.ConfigCompatibleWithStandardLibrary

const (
	serverName     = "wdactl"
	defaultSwipeMs = 500
)

// Device is the part of *wda.Client exposed as tools.
type Device interface {
	Status(ctx context.Context) (*wda.StatusInfo, error)
	Tap(ctx context.Context, x, y int) error
	Swipe(ctx context.Context, fromX, fromY, toX, toY int, d time.Duration) error
	Press(ctx context.Context, key wda.Keycode) error
	SendKeys(ctx context.Context, text string) error
	WindowSize(ctx context.Context) (wda.Size, error)
	Screenshot(ctx context.Context) (*wda.Screenshot, error)
	Source(ctx context.Context) (*wda.SourceTree, error)
	PerformActions(ctx context.Context, seqs ...actions.Sequence) error
	TouchPerform(ctx context.Context, gestures ...actions.Gesture) error
	AppLaunch(ctx context.Context, bundleID string, arguments []string, environment map[string]string) error
	AppTerminate(ctx context.Context, bundleID string) error
}

var _ Device = (*wda.Client)(nil)

// Service is an MCP server bound to one device.
type Service struct {
	device Device
	server *server.MCPServer
}

type toolDef struct {
	tool    mcp.Tool
	handler server.ToolHandlerFunc
}

// New creates the service and registers its tools.
func New(ctx context.Context, device Device, version string) (*Service, apperrors.Error) {
	if device == nil {
		return nil, ErrNoDevice
	}
	s := &Service{device: device}
	s.server = server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(false),
		server.WithInstructions("Tools operate the screen of one iOS device through WebDriverAgent. "+
			"Coordinates are in points; call window_size to learn the screen bounds."),
	)
	tools := s.tools()
	for _, def := range tools {
		s.server.AddTool(def.tool, s.logged(def.handler))
	}
	log.Ctx(ctx).Info().Int("numTools", len(tools)).Msg("loaded tools")
	return s, nil
}

// ServeStdio serves MCP on in and out until ctx is done or in is closed.
func (s *Service) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	err := server.NewStdioServer(s.server).Listen(ctx, in, out)
	if err != nil && ctx.Err() == nil {
		return ErrServe.Err(err)
	}
	return nil
}

// HandleMessage processes one JSON-RPC message.
func (s *Service) HandleMessage(ctx context.Context, raw []byte) mcp.JSONRPCMessage {
	return s.server.HandleMessage(ctx, raw)
}

func (s *Service) logged(h server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		input, _ := json.Marshal(req.Params.Arguments)
		log.Ctx(ctx).Info().Str("toolName", req.Params.Name).RawJSON("input", input).Msg("tool call")
		res, err := h(ctx, req)
		if res != nil && res.IsError {
			log.Ctx(ctx).Warn().Str("toolName", req.Params.Name).Msg("tool call failed")
		}
		return res, err
	}
}

func (s *Service) tools() []toolDef {
	return []toolDef{
		{
			tool:    mcp.NewTool("status", mcp.WithDescription("Report agent readiness and build information.")),
			handler: s.status,
		},
		{
			tool: mcp.NewTool("tap",
				mcp.WithDescription("Tap the screen at a point."),
				mcp.WithNumber("x", mcp.Required(), mcp.Description("X coordinate in points")),
				mcp.WithNumber("y", mcp.Required(), mcp.Description("Y coordinate in points")),
			),
			handler: s.tap,
		},
		{
			tool: mcp.NewTool("swipe",
				mcp.WithDescription("Drag from one point to another."),
				mcp.WithNumber("from_x", mcp.Required()),
				mcp.WithNumber("from_y", mcp.Required()),
				mcp.WithNumber("to_x", mcp.Required()),
				mcp.WithNumber("to_y", mcp.Required()),
				mcp.WithNumber("duration_ms", mcp.DefaultNumber(defaultSwipeMs), mcp.Description("Drag duration in milliseconds")),
			),
			handler: s.swipe,
		},
		{
			tool: mcp.NewTool("press_button",
				mcp.WithDescription("Press a hardware button."),
				mcp.WithString("name", mcp.Required(), mcp.Enum(string(wda.KeyHome), string(wda.KeyVolumeUp), string(wda.KeyVolumeDown))),
			),
			handler: s.pressButton,
		},
		{
			tool: mcp.NewTool("send_keys",
				mcp.WithDescription("Type text into the focused element."),
				mcp.WithString("text", mcp.Required()),
			),
			handler: s.sendKeys,
		},
		{
			tool:    mcp.NewTool("window_size", mcp.WithDescription("Return the screen size in points.")),
			handler: s.windowSize,
		},
		{
			tool:    mcp.NewTool("screenshot", mcp.WithDescription("Capture the screen.")),
			handler: s.screenshot,
		},
		{
			tool:    mcp.NewTool("source", mcp.WithDescription("Return the UI hierarchy of the foreground app as XML.")),
			handler: s.source,
		},
		{
			tool: mcp.NewTool("perform_actions",
				mcp.WithDescription("Replay an action document. The document is JSON or YAML with either an "+
					"\"actions\" list of W3C input sources or a \"gestures\" list of touch steps."),
				mcp.WithString("document", mcp.Required()),
			),
			handler: s.performActions,
		},
		{
			tool: mcp.NewTool("app_launch",
				mcp.WithDescription("Launch an app and bring it to the foreground."),
				mcp.WithString("bundle_id", mcp.Required()),
			),
			handler: s.appLaunch,
		},
		{
			tool: mcp.NewTool("app_terminate",
				mcp.WithDescription("Terminate an app."),
				mcp.WithString("bundle_id", mcp.Required()),
			),
			handler: s.appTerminate,
		},
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("unable to encode result", err), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func done(err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return mcp.NewToolResultErrorFromErr("device call failed", err), nil
	}
	return mcp.NewToolResultText("ok"), nil
}

func (s *Service) status(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.device.Status(ctx)
	if err != nil {
		return done(err)
	}
	return jsonResult(map[string]any{
		"ready":      st.Ready,
		"state":      st.State,
		"message":    st.Message,
		"ip":         st.IP,
		"session_id": st.SessionID,
		"version":    st.Build.Version,
	})
}

func (s *Service) tap(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	x, err := req.RequireInt("x")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	y, err := req.RequireInt("y")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return done(s.device.Tap(ctx, x, y))
}

func (s *Service) swipe(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p [4]int
	for i, key := range []string{"from_x", "from_y", "to_x", "to_y"} {
		v, err := req.RequireInt(key)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		p[i] = v
	}
	d := time.Duration(req.GetInt("duration_ms", defaultSwipeMs)) * time.Millisecond
	return done(s.device.Swipe(ctx, p[0], p[1], p[2], p[3], d))
}

func (s *Service) pressButton(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return done(s.device.Press(ctx, wda.Keycode(name)))
}

func (s *Service) sendKeys(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return done(s.device.SendKeys(ctx, text))
}

func (s *Service) windowSize(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	size, err := s.device.WindowSize(ctx)
	if err != nil {
		return done(err)
	}
	return jsonResult(map[string]int{"width": size.Width, "height": size.Height})
}

func (s *Service) screenshot(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	shot, err := s.device.Screenshot(ctx)
	if err != nil {
		return done(err)
	}
	return mcp.NewToolResultImage("screenshot."+shot.Extension, base64.StdEncoding.EncodeToString(shot.Data), shot.MIME), nil
}

func (s *Service) source(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tree, err := s.device.Source(ctx)
	if err != nil {
		return done(err)
	}
	return mcp.NewToolResultText(tree.Value), nil
}

func (s *Service) performActions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, err := req.RequireString("document")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	file, err := actions.ParseFile([]byte(doc))
	if err != nil {
		return mcp.NewToolResultErrorFromErr("invalid action document", err), nil
	}
	if len(file.Actions) > 0 {
		return done(s.device.PerformActions(ctx, file.Actions...))
	}
	return done(s.device.TouchPerform(ctx, file.Gestures...))
}

func (s *Service) appLaunch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bundleID, err := req.RequireString("bundle_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return done(s.device.AppLaunch(ctx, bundleID, nil, nil))
}

func (s *Service) appTerminate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bundleID, err := req.RequireString("bundle_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return done(s.device.AppTerminate(ctx, bundleID))
}
