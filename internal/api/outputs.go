package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/castnode/internal/api/models"
	"github.com/smazurov/castnode/internal/graph"
	"github.com/smazurov/castnode/internal/outputs"
	"github.com/smazurov/castnode/internal/pipeline"
)

// registerOutputRoutes registers stream and store branch endpoints.
func (s *Server) registerOutputRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-outputs",
		Method:      http.MethodGet,
		Path:        "/api/outputs",
		Summary:     "List Outputs",
		Description: "Every output branch with its attach state",
		Tags:        []string{"outputs"},
		Errors:      []int{401, 409},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*models.OutputListResponse, error) {
		list, err := s.pipeline.Outputs(ctx)
		if err != nil {
			return nil, mapError(err)
		}
		return &models.OutputListResponse{Body: models.OutputListData{Outputs: list, Count: len(list)}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "create-stream-output",
		Method:        http.MethodPost,
		Path:          "/api/outputs/stream",
		Summary:       "Create Stream Output",
		Description:   "Add an Icecast branch. It is attached right away while playing, otherwise on the next play.",
		Tags:          []string{"outputs"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{400, 401, 409, 500},
		Security:      withAuth(),
	}, func(ctx context.Context, input *models.StreamOutputRequest) (*models.OutputResponse, error) {
		cat, err := graph.ParseCategory(input.Body.Category)
		if err != nil {
			return nil, badRequest(err)
		}
		info, err := s.pipeline.CreateStreamBranch(ctx, cat, input.Body.Name, outputs.StreamParams{
			IP:       input.Body.IP,
			Port:     input.Body.Port,
			Mount:    input.Body.Mount,
			Password: input.Body.Password,
		})
		if err != nil {
			return nil, mapError(err)
		}
		if input.Body.Watch && s.watcher != nil {
			s.watcher.Add(input.Body.IP, input.Body.Port)
		}
		return &models.OutputResponse{Body: info}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "create-store-output",
		Method:        http.MethodPost,
		Path:          "/api/outputs/store",
		Summary:       "Create Store Output",
		Description:   "Add a file branch. It is attached right away while playing, otherwise on the next play.",
		Tags:          []string{"outputs"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{400, 401, 409, 500},
		Security:      withAuth(),
	}, func(ctx context.Context, input *models.StoreOutputRequest) (*models.OutputResponse, error) {
		cat, err := graph.ParseCategory(input.Body.Category)
		if err != nil {
			return nil, badRequest(err)
		}
		info, err := s.pipeline.CreateStoreBranch(ctx, cat, input.Body.Name, input.Body.Path)
		if err != nil {
			return nil, mapError(err)
		}
		return &models.OutputResponse{Body: info}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "remove-output",
		Method:      http.MethodDelete,
		Path:        "/api/outputs/{id}",
		Summary:     "Remove Output",
		Description: "Delete an output branch, detaching it live when playing",
		Tags:        []string{"outputs"},
		Errors:      []int{401, 404, 409, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.OutputIDInput) (*struct{}, error) {
		props, err := s.pipeline.Properties(ctx, pipeline.OutputUnit(input.ID))
		if err != nil {
			return nil, mapError(err)
		}
		if err := s.pipeline.RemoveOutput(ctx, input.ID); err != nil {
			return nil, mapError(err)
		}
		if s.watcher != nil && props["kind"] == string(outputs.KindStream) {
			if port, ok := props["port"].(int); ok {
				s.unwatch(ctx, props["ip"], port)
			}
		}
		return nil, nil
	})
}

// unwatch stops watching a server once no stream branch targets it.
func (s *Server) unwatch(ctx context.Context, ip any, port int) {
	list, err := s.pipeline.Outputs(ctx)
	if err != nil {
		return
	}
	for _, o := range list {
		if o.Props["ip"] == ip && o.Props["port"] == port {
			return
		}
	}
	host, _ := ip.(string)
	s.watcher.Remove(host, port)
}
