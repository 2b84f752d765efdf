// Package configurator turns an endpoint configuration into a connected
// engine socket.
//
// Configure performs a strictly ordered sequence of engine calls and stops at
// the first failure:
//
//  1. resolve the network spec
//  2. allocate a socket for the resolved address family
//  3. router alert off, then the directional flag (SEND_ONLY or RECV_ONLY)
//  4. the plan's options, in plan order
//  5. bind, then register the send group (send) or join every receive
//     group (receive)
//  6. connect
//
// When any step after allocation fails the socket is closed exactly once
// before Configure returns, and no handle is returned. Every failure is an
// *errors.ConfigurationError carrying the step and the engine's own message.
package configurator

import (
	"context"
	"fmt"

	"github.com/joshuafuller/pgmflow/internal/errors"
	"github.com/joshuafuller/pgmflow/internal/network"
	"github.com/joshuafuller/pgmflow/internal/transport"
)

func configError(stage errors.Stage, option string, err error) *errors.ConfigurationError {
	return &errors.ConfigurationError{
		Stage:         stage,
		Option:        option,
		EngineMessage: err.Error(),
		Err:           err,
	}
}

// Configure builds and connects a socket according to plan.
//
// ctx is checked between steps; engine calls themselves are not interrupted.
func Configure(ctx context.Context, engine transport.Engine, plan Plan) (*Handle, error) {
	if plan.Direction != SendOnly && plan.Direction != ReceiveOnly {
		return nil, configError(errors.StageValidate, "", fmt.Errorf("invalid direction %d", int(plan.Direction)))
	}
	if err := plan.Descriptor.Validate(); err != nil {
		return nil, configError(errors.StageValidate, "", err)
	}

	route, err := network.Resolve(plan.Descriptor.Network)
	if err != nil {
		return nil, configError(errors.StageResolve, "", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, configError(errors.StageResolve, "", err)
	}

	sock, err := engine.Socket(route.Family, transport.EncapUDP)
	if err != nil {
		return nil, configError(errors.StageAllocate, "", err)
	}

	h := newHandle(sock, route, plan.Direction)
	if err := configure(ctx, h, plan); err != nil {
		// The configuration error is what the caller needs; a close failure
		// on an unusable socket adds nothing.
		_ = h.Close()
		return nil, err
	}
	return h, nil
}

func configure(ctx context.Context, h *Handle, plan Plan) error {
	sock, route := h.sock, h.route

	modeOpt := transport.OptSendOnly
	if plan.Direction == ReceiveOnly {
		modeOpt = transport.OptRecvOnly
	}
	for _, o := range []OptionSetting{{transport.OptRouterAlert, false}, {modeOpt, true}} {
		if err := sock.SetOption(o.Option, o.Value); err != nil {
			return configError(errors.StageMode, o.Option.String(), err)
		}
	}

	for _, o := range plan.Options {
		if err := ctx.Err(); err != nil {
			return configError(errors.StageOption, o.Option.String(), err)
		}
		if err := sock.SetOption(o.Option, o.Value); err != nil {
			return configError(errors.StageOption, o.Option.String(), err)
		}
	}
	h.advance(Configured)

	if err := ctx.Err(); err != nil {
		return configError(errors.StageBind, "", err)
	}
	bind := transport.BindRequest{
		Session:    plan.Session,
		Port:       plan.Descriptor.Port,
		SourcePort: transport.DefaultSourcePort,
		Interface:  route.Interface,
		ScopeID:    route.ScopeID,
	}
	if err := sock.Bind(bind); err != nil {
		return configError(errors.StageBind, "", err)
	}
	h.advance(Bound)

	if plan.Direction == SendOnly {
		req := transport.GroupRequest{Interface: route.Interface, Group: route.SendGroup}
		if err := sock.SendGroup(req); err != nil {
			return configError(errors.StageJoin, "", err)
		}
	} else {
		for _, g := range route.ReceiveGroups {
			req := transport.GroupRequest{Interface: route.Interface, Group: g}
			if err := sock.JoinGroup(req); err != nil {
				return configError(errors.StageJoin, "", err)
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return configError(errors.StageConnect, "", err)
	}
	if err := sock.Connect(); err != nil {
		return configError(errors.StageConnect, "", err)
	}
	h.advance(Connected)
	return nil
}
