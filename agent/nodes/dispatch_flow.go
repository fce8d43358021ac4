package orchestratornode

import (
	"context"

	"github.com/tanpawarit/chative-toolflow/agent/contract"
	"github.com/tanpawarit/chative-toolflow/agent/tool"
)

// DispatchFlow runs the requests one after another. Calls in one batch
// usually target the same session, whose steps must not interleave.
func DispatchFlow(ctx context.Context, in *GraphState, execute tool.Executor) (*GraphState, error) {
	if in == nil {
		return nil, contract.ErrValidation
	}

	in.Results = make([]contract.ToolResult, len(in.Requests))
	for i, req := range in.Requests {
		if reason, ok := in.Rejected[i]; ok {
			in.Results[i] = contract.ToolResult{ID: req.ID, Tool: req.Tool, Error: reason}
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		out, err := execute(ctx, req.Tool, req.Args)
		if err != nil {
			out = contract.ToolResult{Error: err.Error()}
		}
		out.ID = req.ID
		if out.Tool == "" {
			out.Tool = req.Tool
		}
		in.Results[i] = out
	}
	return in, nil
}
