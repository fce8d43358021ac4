// Package orchestrator runs batches of tool calls from the chat layer
// through the flow executors.
package orchestrator

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/chative-toolflow/agent/contract"
	nodex "github.com/tanpawarit/chative-toolflow/agent/nodes"
	"github.com/tanpawarit/chative-toolflow/agent/tool"
)

var (
	ErrNoRequests      = nodex.ErrNoRequests
	ErrTooManyRequests = nodex.ErrTooManyRequests
)

type Orchestrator struct {
	tools tool.Executor

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	newID  func() string
	logger zerolog.Logger
}

var _ contract.ToolGateway = (*Orchestrator)(nil)

func New(tools tool.Executor) (*Orchestrator, error) {
	if tools == nil {
		return nil, errors.New("tool executor is required")
	}

	o := &Orchestrator{
		tools:  tools,
		newID:  uuid.NewString,
		logger: log.Logger.With().Str("component", "orchestrator").Logger(),
	}

	graphRunner, err := o.compileExecuteGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// Execute returns one result per request, in request order. Failures of a
// single tool are reported in its result; the error is reserved for a batch
// that could not run at all.
func (o *Orchestrator) Execute(ctx context.Context, reqs []contract.ToolRequest) ([]contract.ToolResult, error) {
	out, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{Requests: reqs})
	if err != nil {
		return nil, err
	}
	for _, res := range out.Results {
		o.logger.Debug().
			Str("tool_call_id", res.ID).
			Str("tool", res.Tool).
			Str("tool_error", res.Error).
			Msg("tool executed")
	}
	return out.Results, nil
}
