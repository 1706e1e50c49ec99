// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-poi/internal/feature"
	"github.com/joeblew999/plat-poi/internal/filter"
	"github.com/joeblew999/plat-poi/internal/humastar"
	"github.com/joeblew999/plat-poi/internal/metadata"
	"github.com/joeblew999/plat-poi/internal/metrics"
	"github.com/joeblew999/plat-poi/internal/service"
	"github.com/joeblew999/plat-poi/internal/session"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	Dataset  *service.DatasetService
	Sessions *session.Manager
	Metrics  *metrics.Provider
}

// Types

type IDInput struct {
	ID string `path:"id" doc:"Feature ID" example:"M042"`
}

type FeaturesInput struct {
	Offset  int    `query:"offset" minimum:"0" default:"0" doc:"Items to skip"`
	Limit   int    `query:"limit" minimum:"1" maximum:"1000" default:"100" doc:"Page size"`
	Session string `query:"session" doc:"Viewer session whose filter selections apply"`
}

type FeatureBody struct {
	ID         string             `json:"id" doc:"Feature ID"`
	Attributes feature.Attributes `json:"attributes" doc:"Detail attributes in dataset order"`
}

type CategoriesBody struct {
	Title      string              `json:"title,omitempty" doc:"Dataset title"`
	Categories []metadata.Category `json:"categories" doc:"Filter categories"`
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type ReloadBody struct {
	Message string              `json:"message" doc:"Result message"`
	Dataset service.DatasetInfo `json:"dataset" doc:"Loaded dataset summary"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterFeatures registers feature listing routes.
func (h *APIHandler) RegisterFeatures(api huma.API) {
	huma.Get(api, "/api/v1/features", h.GetFeatures, huma.OperationTags("features"))
	huma.Get(api, "/api/v1/features/{id}", h.GetFeature, huma.OperationTags("features"))
}

// RegisterCategories registers filter metadata routes.
func (h *APIHandler) RegisterCategories(api huma.API) {
	huma.Get(api, "/api/v1/categories", h.GetCategories, huma.OperationTags("filters"))
}

// RegisterDataset registers dataset maintenance routes.
func (h *APIHandler) RegisterDataset(api huma.API) {
	huma.Post(api, "/api/v1/dataset/reload", h.ReloadDataset, huma.OperationTags("dataset"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: "1.0.0"}}, nil
}

func (h *APIHandler) GetFeatures(ctx context.Context, input *FeaturesInput) (*struct {
	Body humastar.PageBody[service.FeatureSummary]
}, error) {
	out := &struct {
		Body humastar.PageBody[service.FeatureSummary]
	}{}
	out.Body.Offset, out.Body.Limit = input.Offset, input.Limit
	out.Body.Data = []service.FeatureSummary{}
	if h.svc == nil || h.svc.Dataset == nil {
		return out, nil
	}

	var p filter.Predicate
	if input.Session != "" {
		if h.svc.Sessions == nil {
			return nil, huma.Error404NotFound("unknown session")
		}
		s, err := h.svc.Sessions.Get(input.Session)
		if errors.Is(err, session.ErrClosed) {
			return nil, huma.Error410Gone(err.Error())
		}
		if err != nil {
			return nil, huma.Error404NotFound(err.Error())
		}
		p = s.Predicate()
	}

	total, page := h.svc.Dataset.Features(p, input.Offset, input.Limit)
	out.Body.Total = total
	if page != nil {
		out.Body.Data = page
	}
	return out, nil
}

func (h *APIHandler) GetFeature(ctx context.Context, input *IDInput) (*struct{ Body FeatureBody }, error) {
	if h.svc == nil || h.svc.Dataset == nil {
		return nil, huma.Error404NotFound("service not available")
	}
	rec, err := h.svc.Dataset.Store().Get(input.ID)
	if errors.Is(err, feature.ErrNotFound) {
		return nil, huma.Error404NotFound("feature not found")
	}
	if err != nil {
		return nil, huma.Error500InternalServerError(err.Error())
	}
	return &struct{ Body FeatureBody }{Body: FeatureBody{ID: rec.ID, Attributes: rec.Attributes}}, nil
}

func (h *APIHandler) GetCategories(ctx context.Context, input *struct{}) (*struct{ Body CategoriesBody }, error) {
	body := CategoriesBody{Categories: []metadata.Category{}}
	if h.svc != nil && h.svc.Dataset != nil {
		doc := h.svc.Dataset.Metadata()
		body.Title = doc.Title
		if len(doc.Categories) > 0 {
			body.Categories = doc.Categories
		}
	}
	return &struct{ Body CategoriesBody }{Body: body}, nil
}

func (h *APIHandler) ReloadDataset(ctx context.Context, input *struct{}) (*struct{ Body ReloadBody }, error) {
	if h.svc == nil || h.svc.Dataset == nil {
		return nil, huma.Error400BadRequest("service not available")
	}
	if err := h.svc.Dataset.Load(); err != nil {
		return nil, huma.Error422UnprocessableEntity("dataset reload failed", err)
	}
	return &struct{ Body ReloadBody }{Body: ReloadBody{
		Message: "Dataset reloaded",
		Dataset: h.svc.Dataset.Info(),
	}}, nil
}
