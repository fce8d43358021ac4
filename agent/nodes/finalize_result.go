package orchestratornode

import (
	"fmt"

	"github.com/tanpawarit/chative-toolflow/agent/contract"
)

func FinalizeResult(in *GraphState) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contract.ErrValidation)
	}
	if len(in.Results) != len(in.Requests) {
		return GraphOutput{}, fmt.Errorf("%w: %d results for %d requests", contract.ErrValidation, len(in.Results), len(in.Requests))
	}
	return GraphOutput{Results: in.Results}, nil
}
