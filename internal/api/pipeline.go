package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/castnode/internal/api/models"
	"github.com/smazurov/castnode/internal/graph"
)

// registerPipelineRoutes registers lifecycle, status and topology endpoints.
func (s *Server) registerPipelineRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "enter-preview",
		Method:      http.MethodPost,
		Path:        "/api/pipeline/preview",
		Summary:     "Preview",
		Description: "Let the graph flow without output branches, creating a default source if needed. Rejected while playing or paused",
		Tags:        []string{"pipeline"},
		Errors:      []int{400, 401, 409, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.PreviewRequest) (*models.StateResponse, error) {
		name := input.Body.Category
		if name == "" {
			name = string(graph.CategoryVideo)
		}
		cat, err := graph.ParseCategory(name)
		if err != nil {
			return nil, badRequest(err)
		}
		if err := s.pipeline.EnterPreview(ctx, cat); err != nil {
			return nil, mapError(err)
		}
		return s.stateResponse(), nil
	})

	for _, op := range []struct {
		id, path, summary, desc string
		fn                      func(context.Context) error
	}{
		{"play", "/api/pipeline/play", "Play", "Attach every pending output branch and play", s.pipeline.Play},
		{"pause", "/api/pipeline/pause", "Pause", "Hold the graph without detaching branches", s.pipeline.Pause},
		{"stop", "/api/pipeline/stop", "Stop", "Detach every output branch and fall back to preview", s.pipeline.Stop},
	} {
		huma.Register(s.api, huma.Operation{
			OperationID: op.id,
			Method:      http.MethodPost,
			Path:        op.path,
			Summary:     op.summary,
			Description: op.desc,
			Tags:        []string{"pipeline"},
			Errors:      []int{401, 409, 500},
			Security:    withAuth(),
		}, func(ctx context.Context, _ *struct{}) (*models.StateResponse, error) {
			if err := op.fn(ctx); err != nil {
				return nil, mapError(err)
			}
			return s.stateResponse(), nil
		})
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/pipeline/status",
		Summary:     "Status",
		Description: "Lifecycle state, sources, outputs, junctions and the last source swap",
		Tags:        []string{"pipeline"},
		Errors:      []int{401, 409},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*models.StatusResponse, error) {
		st, err := s.pipeline.Status(ctx)
		if err != nil {
			return nil, mapError(err)
		}
		return &models.StatusResponse{Body: st}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-topology",
		Method:      http.MethodGet,
		Path:        "/api/pipeline/topology",
		Summary:     "Topology",
		Description: "Every stage in the container and every link between them",
		Tags:        []string{"pipeline"},
		Errors:      []int{401, 409},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*models.TopologyResponse, error) {
		t, err := s.pipeline.Topology(ctx)
		if err != nil {
			return nil, mapError(err)
		}
		return &models.TopologyResponse{
			Body: models.TopologyData{Nodes: t.Nodes, Edges: t.Edges, Text: t.String()},
		}, nil
	})
}

func (s *Server) stateResponse() *models.StateResponse {
	return &models.StateResponse{Body: models.StateData{State: string(s.pipeline.State())}}
}
