package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/castnode/internal/graph"
)

// mapError turns a pipeline error into an HTTP error. Domain codes decide
// the status; anything else is a 500.
func mapError(err error) error {
	var ge *graph.Error
	if !errors.As(err, &ge) {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return huma.Error503ServiceUnavailable("request cancelled", err)
		}
		return huma.Error500InternalServerError("internal server error", err)
	}
	msg := ge.Error()
	switch ge.Code {
	case graph.CodeUnknownStage, graph.CodeUnknownOutput:
		return huma.Error404NotFound(msg, err)
	case graph.CodePipelineClosed, graph.CodeInvalidState:
		return huma.Error409Conflict(msg, err)
	case graph.CodeSwapTimeout, graph.CodeSwapCancelled:
		return huma.Error503ServiceUnavailable(msg, err)
	case graph.CodeEngine, graph.CodeElementInit, graph.CodeAddingElement:
		return huma.Error500InternalServerError(msg, err)
	default:
		return huma.Error400BadRequest(msg, err)
	}
}

func badRequest(err error) error {
	return huma.Error400BadRequest(err.Error(), err)
}
