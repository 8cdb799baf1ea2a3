package wda

import (
	"context"

	"github.com/Masterminds/semver/v3"
)

// Version is the version of this client.
const Version = "0.1.0"

// AgentVersion returns the agent build version reported by /status.
func (c *Client) AgentVersion(ctx context.Context) (*semver.Version, error) {
	st, err := c.Status(ctx)
	if err != nil {
		return nil, err
	}
	if st.Build.Version == "" {
		return nil, ErrIncompatibleAgent.Msg("agent does not report a build version")
	}
	v, err := semver.NewVersion(st.Build.Version)
	if err != nil {
		return nil, ErrIncompatibleAgent.MsgErr("invalid agent version "+st.Build.Version, err)
	}
	return v, nil
}

// CheckAgentVersion verifies that the agent version satisfies constraint,
// e.g. ">= 4.0".
func (c *Client) CheckAgentVersion(ctx context.Context, constraint string) error {
	cons, err := semver.NewConstraint(constraint)
	if err != nil {
		return ErrInvalidArgument.MsgErr("invalid version constraint "+constraint, err)
	}
	v, err := c.AgentVersion(ctx)
	if err != nil {
		return err
	}
	if !cons.Check(v) {
		return ErrIncompatibleAgent.Msg("agent version " + v.String() + " does not satisfy " + constraint)
	}
	return nil
}
