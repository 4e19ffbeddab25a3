package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/castnode/internal/api/models"
	"github.com/smazurov/castnode/internal/watch"
)

// registerRemoteRoutes registers the remote watcher endpoint. Without a
// watcher the list is empty.
func (s *Server) registerRemoteRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-remotes",
		Method:      http.MethodGet,
		Path:        "/api/remotes",
		Summary:     "List Remotes",
		Description: "Availability of the watched streaming servers",
		Tags:        []string{"remotes"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.RemoteListResponse, error) {
		resp := &models.RemoteListResponse{}
		resp.Body.Remotes = []watch.State{}
		if s.watcher != nil {
			resp.Body.Running = s.watcher.Running()
			resp.Body.Remotes = s.watcher.Remotes()
		}
		return resp, nil
	})
}
