package orchestratornode

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tanpawarit/chative-toolflow/agent/contract"
)

// MaxRequestsPerCall bounds how many tool calls one model turn may batch.
const MaxRequestsPerCall = 8

var (
	ErrNoRequests      = errors.New("no tool requests")
	ErrTooManyRequests = errors.New("too many tool requests")
)

type GraphInput struct {
	Requests []contract.ToolRequest
}

type GraphOutput struct {
	Results []contract.ToolResult
}

type GraphState struct {
	Requests []contract.ToolRequest
	// Rejected holds the reason for requests that are not dispatched, by index.
	Rejected map[int]string
	Results  []contract.ToolResult
}

func ValidateRequest(in GraphInput, newID func() string) (*GraphState, error) {
	if len(in.Requests) == 0 {
		return nil, fmt.Errorf("%w: %w", contract.ErrValidation, ErrNoRequests)
	}
	if len(in.Requests) > MaxRequestsPerCall {
		return nil, fmt.Errorf("%w: %w: got %d, max %d", contract.ErrValidation, ErrTooManyRequests, len(in.Requests), MaxRequestsPerCall)
	}

	st := &GraphState{
		Requests: make([]contract.ToolRequest, len(in.Requests)),
		Rejected: make(map[int]string),
	}
	for i, req := range in.Requests {
		req.Tool = strings.TrimSpace(req.Tool)
		if strings.TrimSpace(req.ID) == "" {
			req.ID = newID()
		}
		if req.Args == nil {
			req.Args = map[string]any{}
		}
		if req.Tool == "" {
			st.Rejected[i] = "tool name is empty"
		}
		st.Requests[i] = req
	}
	return st, nil
}
