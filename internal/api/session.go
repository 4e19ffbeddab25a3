package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/castnode/internal/api/models"
	"github.com/smazurov/castnode/internal/session"
)

// registerSessionRoutes registers the session save endpoint when a store
// is configured.
func (s *Server) registerSessionRoutes() {
	if s.session == nil {
		s.logger.Debug("Session store not configured, skipping session routes")
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "save-session",
		Method:      http.MethodPost,
		Path:        "/api/session/save",
		Summary:     "Save Session",
		Description: "Write sources, overlay, speaker and outputs to the session file",
		Tags:        []string{"session"},
		Errors:      []int{401, 409, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*models.SessionSaveResponse, error) {
		f, err := session.Snapshot(ctx, s.pipeline)
		if err != nil {
			return nil, mapError(err)
		}
		if err := s.session.Save(f); err != nil {
			return nil, huma.Error500InternalServerError("saving session", err)
		}
		resp := &models.SessionSaveResponse{}
		resp.Body.Path = s.session.Path()
		resp.Body.Outputs = len(f.Outputs)
		return resp, nil
	})
}
