package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/castnode/internal/api/models"
	"github.com/smazurov/castnode/internal/pipeline"
)

// registerOverlayRoutes registers overlay and speaker endpoints.
func (s *Server) registerOverlayRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-overlay",
		Method:      http.MethodGet,
		Path:        "/api/overlay",
		Summary:     "Get Overlay",
		Tags:        []string{"overlay"},
		Errors:      []int{401, 409},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*models.OverlayResponse, error) {
		return s.overlayResponse(ctx)
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-text-overlay",
		Method:      http.MethodPut,
		Path:        "/api/overlay/text",
		Summary:     "Set Text Overlay",
		Tags:        []string{"overlay"},
		Errors:      []int{400, 401, 409, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.TextOverlayRequest) (*models.OverlayResponse, error) {
		h, v := input.Body.HAlignment, input.Body.VAlignment
		if h == "" {
			h = "left"
		}
		if v == "" {
			v = "top"
		}
		if err := s.pipeline.SetTextOverlay(ctx, input.Body.Text, h, v); err != nil {
			return nil, mapError(err)
		}
		return s.overlayResponse(ctx)
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-image-overlay",
		Method:      http.MethodPut,
		Path:        "/api/overlay/image",
		Summary:     "Set Image Overlay",
		Description: "Zero fields keep their current value",
		Tags:        []string{"overlay"},
		Errors:      []int{400, 401, 409, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.ImageOverlayRequest) (*models.OverlayResponse, error) {
		err := s.pipeline.SetImageOverlay(ctx, pipeline.ImageOverlay{
			Location: input.Body.Location,
			OffsetX:  input.Body.OffsetX,
			OffsetY:  input.Body.OffsetY,
			Alpha:    input.Body.Alpha,
		})
		if err != nil {
			return nil, mapError(err)
		}
		return s.overlayResponse(ctx)
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-speaker",
		Method:      http.MethodPut,
		Path:        "/api/speaker",
		Summary:     "Set Speaker",
		Description: "Select the monitor device and mute state. The monitor starts muted.",
		Tags:        []string{"overlay"},
		Errors:      []int{400, 401, 409, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.SpeakerRequest) (*models.UnitPropertiesResponse, error) {
		if input.Body.Device != "" {
			if err := s.pipeline.SetSpeakerDevice(ctx, input.Body.Device); err != nil {
				return nil, mapError(err)
			}
		}
		if input.Body.Muted != nil {
			if err := s.pipeline.MuteSpeaker(ctx, *input.Body.Muted); err != nil {
				return nil, mapError(err)
			}
		}
		props, err := s.pipeline.Properties(ctx, pipeline.UnitSpeaker)
		if err != nil {
			return nil, mapError(err)
		}
		return &models.UnitPropertiesResponse{Body: props}, nil
	})
}

func (s *Server) overlayResponse(ctx context.Context) (*models.OverlayResponse, error) {
	o, err := s.pipeline.Overlay(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return &models.OverlayResponse{Body: o}, nil
}
