package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/castnode/internal/api/models"
	"github.com/smazurov/castnode/internal/graph"
)

// registerSourceRoutes registers input source endpoints.
func (s *Server) registerSourceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "set-video-source",
		Method:      http.MethodPut,
		Path:        "/api/sources/video",
		Summary:     "Set Video Source",
		Description: "Select the camera. A source already in the graph is hot-swapped while playing.",
		Tags:        []string{"sources"},
		Errors:      []int{400, 401, 409, 500, 503},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.VideoSourceRequest) (*models.StatusResponse, error) {
		role := graph.VideoSource{
			Transport: graph.VideoTransport(input.Body.Transport),
			Location:  input.Body.Location,
			Default:   input.Body.Transport == string(graph.VideoTest),
		}
		return s.setSource(ctx, role)
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-audio-source",
		Method:      http.MethodPut,
		Path:        "/api/sources/audio",
		Summary:     "Set Audio Source",
		Description: "Select the microphone, or the silent default source",
		Tags:        []string{"sources"},
		Errors:      []int{400, 401, 409, 500, 503},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.AudioSourceRequest) (*models.StatusResponse, error) {
		return s.setSource(ctx, graph.AudioSource{Device: input.Body.Device, Default: input.Body.Default})
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "remove-sources",
		Method:      http.MethodDelete,
		Path:        "/api/sources",
		Summary:     "Remove Sources",
		Description: "Unlink and drop every input source",
		Tags:        []string{"sources"},
		Errors:      []int{401, 409, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*struct{}, error) {
		if err := s.pipeline.RemoveInputSources(ctx); err != nil {
			return nil, mapError(err)
		}
		return nil, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "mute-input",
		Method:      http.MethodPut,
		Path:        "/api/sources/audio/mute",
		Summary:     "Mute Input",
		Description: "Mute or unmute the audio input for every output",
		Tags:        []string{"sources"},
		Errors:      []int{401, 409, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.MuteRequest) (*struct{}, error) {
		if err := s.pipeline.MuteInput(ctx, input.Body.Muted); err != nil {
			return nil, mapError(err)
		}
		return nil, nil
	})
}

func (s *Server) setSource(ctx context.Context, role graph.Role) (*models.StatusResponse, error) {
	if err := s.pipeline.SetInputSource(ctx, role); err != nil {
		return nil, mapError(err)
	}
	st, err := s.pipeline.Status(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return &models.StatusResponse{Body: st}, nil
}
