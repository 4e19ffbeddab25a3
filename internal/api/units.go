package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/castnode/internal/api/models"
)

// registerUnitRoutes exposes the flat property maps used for persistence.
func (s *Server) registerUnitRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-units",
		Method:      http.MethodGet,
		Path:        "/api/units",
		Summary:     "List Units",
		Description: "Names of every configurable unit",
		Tags:        []string{"units"},
		Errors:      []int{401, 409},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*models.UnitListResponse, error) {
		units, err := s.pipeline.Units(ctx)
		if err != nil {
			return nil, mapError(err)
		}
		resp := &models.UnitListResponse{}
		resp.Body.Units = units
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-unit-properties",
		Method:      http.MethodGet,
		Path:        "/api/units/{unit}",
		Summary:     "Get Unit Properties",
		Tags:        []string{"units"},
		Errors:      []int{401, 404, 409},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.UnitInput) (*models.UnitPropertiesResponse, error) {
		props, err := s.pipeline.Properties(ctx, input.Unit)
		if err != nil {
			return nil, mapError(err)
		}
		return &models.UnitPropertiesResponse{Body: props}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-unit-properties",
		Method:      http.MethodPut,
		Path:        "/api/units/{unit}",
		Summary:     "Set Unit Properties",
		Description: "Apply a property map. Keys left out keep their value.",
		Tags:        []string{"units"},
		Errors:      []int{400, 401, 404, 409, 500, 503},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.UnitPropertiesRequest) (*models.UnitPropertiesResponse, error) {
		if err := s.pipeline.SetProperties(ctx, input.Unit, input.Body); err != nil {
			return nil, mapError(err)
		}
		props, err := s.pipeline.Properties(ctx, input.Unit)
		if err != nil {
			return nil, mapError(err)
		}
		return &models.UnitPropertiesResponse{Body: props}, nil
	})
}
