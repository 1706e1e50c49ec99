package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-poi/internal/service"
	"github.com/joeblew999/plat-poi/internal/session"
)

type InfoHandler struct {
	version  string
	dataset  *service.DatasetService
	sessions *session.Manager
}

func NewInfoHandler(version string, dataset *service.DatasetService, sessions *session.Manager) *InfoHandler {
	return &InfoHandler{version: version, dataset: dataset, sessions: sessions}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name     string              `json:"name" doc:"Service name"`
	Version  string              `json:"version" doc:"Service version"`
	DataDir  string              `json:"data_dir" doc:"Data directory path"`
	Dataset  service.DatasetInfo `json:"dataset" doc:"Loaded dataset summary"`
	Sessions int                 `json:"sessions" doc:"Live viewer sessions"`
	Features []string            `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	body := InfoBody{
		Name:     "plat-poi",
		Version:  h.version,
		Features: []string{"hover", "details", "filters", "sse"},
	}
	if h.dataset != nil {
		body.DataDir = h.dataset.Config().DataDir
		body.Dataset = h.dataset.Info()
	}
	if h.sessions != nil {
		body.Sessions = h.sessions.Len()
	}
	return &struct{ Body InfoBody }{Body: body}, nil
}

// RegisterRoutes registers every REST route on api.
func RegisterRoutes(api huma.API, svc *Services, version string) {
	huma.AutoRegister(api, NewAPIHandler(svc))
	NewInfoHandler(version, svc.Dataset, svc.Sessions).RegisterRoutes(api)
}
