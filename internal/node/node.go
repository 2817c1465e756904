// Package node defines the uniform node contract the graph scheduler drives
// — (state) → state_delta — and a wrapper that adds enter/exit telemetry,
// latency measurement, and panic containment around every node invocation,
// the way the reference implementation's node_wrapper.py does.
package node

import (
	"context"
	"fmt"
	"time"

	"github.com/holidai/agentcore/internal/agentstate"
	"github.com/holidai/agentcore/internal/telemetry"
	"github.com/holidai/agentcore/internal/toolerrors"
)

// Func is a single node: it reads state and returns the delta to merge.
// Nodes must not mutate state in place.
type Func func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error)

// Options configures how Wrap recovers a failed node. Both fields are
// optional; the zero value ends the turn with a synthesized reply rather
// than routing anywhere (see envelopeDelta).
type Options struct {
	// ResultField names the Delta key the node owns (e.g.
	// agentstate.FieldFlightResult for a worker's feedback-retry node). A
	// failure writes the error envelope there instead of the node's normal
	// result, exactly where a successful call would have written it.
	ResultField string
	// OnErrorRoute, if set, is the route a failed node falls through to —
	// normally the same route the node would have set on success, so the
	// turn continues through the feedback/responder chain instead of
	// stalling with a cleared route.
	OnErrorRoute string
}

// Wrap adds enter/exit logging, latency metrics, and panic recovery around
// fn. The exit log is always emitted, even when fn panics, mirroring
// node_wrapper.py's behavior of logging exit on the exception path.
//
// A panic or returned error never crosses back out of Wrap as a Go error
// (spec §7: "errors are never exceptions across the scheduler boundary;
// they are typed envelopes in result slots"). Instead Wrap converts the
// failure to an ErrorEnvelope via AsErrorEnvelope and folds it into the
// returned delta per opts, so the turn still reaches a reply instead of
// aborting the whole traversal.
func Wrap(name string, logger telemetry.Logger, metrics telemetry.Metrics, opts Options, fn Func) Func {
	return func(ctx context.Context, state *agentstate.AgentState) (delta agentstate.Delta, err error) {
		start := time.Now()
		logger.Info(ctx, "node enter",
			"node", name, "session_id", state.SessionID, "user_email", state.UserEmail)

		var nodeErr error
		defer func() {
			duration := time.Since(start)
			if r := recover(); r != nil {
				nodeErr = toolerrors.Errorf("node %s panicked: %v", name, r)
				logger.Error(ctx, "node exit",
					"node", name, "session_id", state.SessionID,
					"duration_ms", duration.Milliseconds(), "panic", true, "error", nodeErr.Error())
				metrics.IncCounter("node.panic", 1, "node", name)
			} else if err != nil {
				nodeErr = err
				logger.Error(ctx, "node exit",
					"node", name, "session_id", state.SessionID,
					"duration_ms", duration.Milliseconds(), "error", err.Error())
			} else {
				logger.Info(ctx, "node exit",
					"node", name, "session_id", state.SessionID,
					"duration_ms", duration.Milliseconds())
			}
			metrics.RecordTimer("node.duration", duration, "node", name)

			if nodeErr != nil {
				delta = envelopeDelta(opts, state, name, nodeErr)
				err = nil
			}
		}()

		delta, err = fn(ctx, state)
		return delta, err
	}
}

// envelopeDelta builds the delta a failed node surfaces instead of a fatal
// Go error. When opts.ResultField names a slot the node owns, the envelope
// lands there so the feedback validator and responder downstream read it
// like any other outcome, and opts.OnErrorRoute keeps the turn moving
// through that same chain. Without a ResultField the failure ends the turn
// with a synthesized reply, matching the scheduler's deadline/budget-
// exhausted fallback (§4.1).
func envelopeDelta(opts Options, state *agentstate.AgentState, name string, nodeErr error) agentstate.Delta {
	envelope := AsErrorEnvelope(agentstate.ErrCodeUpstream, nodeErr)
	if opts.ResultField != "" {
		delta := agentstate.Delta{opts.ResultField: envelope}
		if opts.OnErrorRoute != "" {
			delta[agentstate.FieldRoute] = []string{opts.OnErrorRoute}
		}
		return delta
	}
	delta := agentstate.Delta{}
	if state.LastResponse == "" {
		delta[agentstate.FieldLastResponse] = fmt.Sprintf("Something went wrong while handling that request (%s). Please try again.", name)
	}
	return delta
}

// AsErrorEnvelope converts a node-boundary error into the shared result
// envelope (spec §7: errors never cross the scheduler boundary as
// exceptions — they become typed envelopes in result slots). When err
// carries a toolerrors.ToolError with a classified Code (e.g. a toolclient
// call that knows it was a permission denial rather than an upstream
// failure), that code wins over the caller-supplied default.
func AsErrorEnvelope(code string, err error) *agentstate.ErrorEnvelope {
	if err == nil {
		return nil
	}
	if classified := toolerrors.CodeOf(err); classified != "" {
		code = classified
	}
	return agentstate.NewErrorEnvelope(code, fmt.Sprintf("%v", err))
}
