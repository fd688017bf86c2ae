package discovery

import (
	"context"

	"github.com/magictunnel/magictunnel/pkg/mterrors"
	"github.com/magictunnel/magictunnel/pkg/vmcp"
	"github.com/magictunnel/magictunnel/pkg/vmcp/session"
)

// Dispatcher invokes a tool once discovery has picked it, matching
// router.Router.Dispatch's shape. A discovery-local interface (rather
// than importing pkg/vmcp/router directly) keeps this package usable
// without pulling in every routing-variant adapter just to rank and map
// arguments.
type Dispatcher interface {
	Dispatch(ctx context.Context, toolName string, args map[string]any, origin session.Origin) (vmcp.ToolCallResult, error)
}

// Invoke implements the smart_tool_discovery tool end to end (SPEC_FULL.md
// §C.4): rank candidates for request, map request onto the best match's
// arguments, and dispatch it. Returns a ToolNotFound error if no
// candidate clears the confidence threshold.
func (e *Engine) Invoke(ctx context.Context, request string, mapper *ArgumentMapper, dispatcher Dispatcher, origin session.Origin) (vmcp.ToolCallResult, error) {
	candidates, err := e.Rank(ctx, request, 1)
	if err != nil {
		return vmcp.ToolCallResult{}, err
	}
	if len(candidates) == 0 {
		return vmcp.ToolCallResult{}, mterrors.New(mterrors.KindToolNotFound, "no tool matched request %q", request)
	}
	best := candidates[0].Tool

	args, err := mapper.Map(ctx, request, best)
	if err != nil {
		return vmcp.ToolCallResult{}, err
	}
	return dispatcher.Dispatch(ctx, best.Name, args, origin)
}
