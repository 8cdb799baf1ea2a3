package wda

import (
	"context"
	"errors"
	"slices"

	"github.com/rs/zerolog/log"
)

// Alert operates on the system alert currently shown, if any.
type Alert struct {
	client *Client
}

func (c *Client) Alert() *Alert {
	return &Alert{client: c}
}

// Exists reports whether an alert is shown. Any error other than ErrRequest
// or ErrAPI is returned.
func (a *Alert) Exists(ctx context.Context) (bool, error) {
	_, err := a.Text(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrRequest) || errors.Is(err, ErrAPI) {
		return false, nil
	}
	return false, err
}

func (a *Alert) Text(ctx context.Context) (string, error) {
	resp, err := a.client.SessionRequest(ctx, MethodGet, "/alert/text", nil)
	if err != nil {
		return "", err
	}
	return resp.Value().String(), nil
}

// Buttons returns the button labels of the alert.
func (a *Alert) Buttons(ctx context.Context) ([]string, error) {
	resp, err := a.client.SessionRequest(ctx, MethodGet, "/wda/alert/buttons", nil)
	if err != nil {
		return nil, err
	}
	var buttons []string
	for _, b := range resp.Value().Array() {
		buttons = append(buttons, b.String())
	}
	return buttons, nil
}

func (a *Alert) Accept(ctx context.Context) error {
	_, err := a.client.SessionRequest(ctx, MethodPost, "/alert/accept", nil)
	return err
}

func (a *Alert) Dismiss(ctx context.Context) error {
	_, err := a.client.SessionRequest(ctx, MethodPost, "/alert/dismiss", nil)
	return err
}

// Click taps the button labelled name.
func (a *Alert) Click(ctx context.Context, name string) error {
	_, err := a.client.SessionRequest(ctx, MethodPost, "/alert/accept", map[string]any{
		"name": name,
	})
	return err
}

// ClickFirst taps the first of names present on the alert. It returns
// the label tapped, or "" when none of names is present.
func (a *Alert) ClickFirst(ctx context.Context, names ...string) (string, error) {
	ctx = a.client.requestContext(ctx)
	buttons, err := a.Buttons(ctx)
	if err != nil {
		return "", err
	}
	for _, name := range names {
		if slices.Contains(buttons, name) {
			return name, a.Click(ctx, name)
		}
	}
	log.Ctx(ctx).Debug().Strs("buttons", buttons).Strs("expected", names).Msg("alert not clicked")
	return "", nil
}
