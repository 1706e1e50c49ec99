// Package viewer contains the Datastar SSE handlers that drive the map
// viewer: one long-lived session stream per page plus POST endpoints for
// pointer and filter events.
package viewer

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-poi/internal/filter"
	"github.com/joeblew999/plat-poi/internal/hover"
	"github.com/joeblew999/plat-poi/internal/humastar"
	"github.com/joeblew999/plat-poi/internal/metrics"
	"github.com/joeblew999/plat-poi/internal/service"
	"github.com/joeblew999/plat-poi/internal/session"
	"github.com/joeblew999/plat-poi/internal/templates"
)

// Tag groups the viewer operations in the OpenAPI document.
const Tag = "viewer"

// Signal names. Lowercase because data-bind lowercases them.
const (
	SignalSession  = "sessionid"
	SignalFeature  = "featureid"
	SignalSource   = "sourceid"
	SignalLng      = "lng"
	SignalLat      = "lat"
	SignalCategory = "category"
	SignalValue    = "value"
	SignalPointer  = "pointer"
	SignalTab      = "tab"
	SignalError    = humastar.ErrorSignal
)

// Browser events dispatched to the map bridge.
const (
	EventEmphasis      = "feature-emphasis"
	EventDetails       = "details-data"
	EventFilterChanged = "filter-changed"
)

// Element ids patched by the handlers.
const (
	FilterPanelSelector  = "#filters"
	DetailsPanelSelector = "#details"
)

// Handler serves the viewer SSE endpoints.
type Handler struct {
	humastar.Handler
	sessions *session.Manager
	dataset  *service.DatasetService
	metrics  *metrics.Provider
	log      zerolog.Logger
}

// NewHandler creates a viewer handler. m may be nil.
func NewHandler(sessions *session.Manager, dataset *service.DatasetService, renderer *templates.Renderer, m *metrics.Provider, log zerolog.Logger) *Handler {
	h := &Handler{
		Handler:  humastar.Handler{Renderer: renderer},
		sessions: sessions,
		dataset:  dataset,
		metrics:  m,
		log:      log,
	}
	h.RenderFailed = func(tmpl string, err error) {
		h.log.Error().Err(err).Str("template", tmpl).Msg("fragment render failed")
	}
	return h
}

// InitialSignals are the signal values the viewer page starts with.
func InitialSignals() map[string]any {
	return map[string]any{
		SignalSession:  "",
		SignalFeature:  "",
		SignalSource:   "",
		SignalLng:      0,
		SignalLat:      0,
		SignalCategory: "",
		SignalValue:    "",
		SignalPointer:  false,
		SignalTab:      "filters",
		SignalError:    "",
	}
}

// RegisterRoutes registers the viewer operations under Tag.
func (h *Handler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/viewer/session", h.Session, huma.OperationTags(Tag))
	huma.Post(api, "/api/v1/viewer/hover", h.Hover, huma.OperationTags(Tag))
	huma.Post(api, "/api/v1/viewer/leave", h.Leave, huma.OperationTags(Tag))
	huma.Post(api, "/api/v1/viewer/click", h.Click, huma.OperationTags(Tag))
	huma.Post(api, "/api/v1/viewer/toggle", h.Toggle, huma.OperationTags(Tag))
	huma.Post(api, "/api/v1/viewer/clear", h.Clear, huma.OperationTags(Tag))
}

// Session opens a viewer session and keeps the stream open. Every effect
// the session produces is written here, in emission order; the POST
// endpoints only change state. The stream ends when the client goes away or
// the session is closed.
func (h *Handler) Session(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	return h.Stream(func(sse humastar.SSE) {
		s, _ := h.sessions.Create()
		defer h.sessions.Remove(s.ID)
		if h.metrics != nil {
			h.metrics.SessionsOpen.Inc()
		}
		log := h.log.With().Str("session", s.ID).Logger()
		log.Debug().Msg("session opened")

		events, cancel := h.dataset.Bus().Subscribe()
		defer cancel()

		ready, err := s.Attach()
		if err != nil {
			log.Error().Err(err).Msg("attaching stream")
			return
		}
		defer s.Detach()

		sse.Signals(map[string]any{SignalSession: s.ID, SignalPointer: false})
		h.apply(sse, s, s.Pending())

		for {
			select {
			case <-ctx.Done():
				log.Debug().Msg("session closed")
				return
			case <-s.Done():
				h.apply(sse, s, s.Pending())
				sse.Error("session expired, reload the page")
				log.Debug().Msg("session evicted")
				return
			case <-ready:
				h.apply(sse, s, s.Pending())
			case ev, ok := <-events:
				if !ok {
					return
				}
				if ev.Resource != "dataset" {
					continue
				}
				switch ev.Action {
				case "reloaded":
					// The new filter panel arrives through the session queue.
					sse.Signals(map[string]any{SignalError: ""})
				case "reload-failed":
					sse.Error("dataset reload failed: " + ev.Err)
				}
			}
		}
	}), nil
}

// Hover handles the pointer entering a rendered feature.
func (h *Handler) Hover(ctx context.Context, input *humastar.SignalsInput) (*struct{}, error) {
	s, signals, err := h.session(input)
	if err != nil {
		return nil, err
	}
	key := hover.Key{FeatureID: signals.String(SignalFeature), SourceID: signals.String(SignalSource)}
	if key.FeatureID == "" {
		return nil, huma.Error400BadRequest("featureid is required")
	}
	effects, err := s.Hover(key)
	return h.respond(effects, err)
}

// Leave handles the pointer leaving the rendered features.
func (h *Handler) Leave(ctx context.Context, input *humastar.SignalsInput) (*struct{}, error) {
	s, _, err := h.session(input)
	if err != nil {
		return nil, err
	}
	effects, err := s.Leave()
	return h.respond(effects, err)
}

// Click handles a click on a rendered feature.
func (h *Handler) Click(ctx context.Context, input *humastar.SignalsInput) (*struct{}, error) {
	s, signals, err := h.session(input)
	if err != nil {
		return nil, err
	}
	at := orb.Point{signals.Float(SignalLng), signals.Float(SignalLat)}
	effects, err := s.Click(signals.String(SignalFeature), at)
	if err == nil && h.metrics != nil {
		outcome := "dropped"
		for _, e := range effects {
			if _, ok := e.(session.DetailsReady); ok {
				outcome = "details"
			}
		}
		h.metrics.Clicks.WithLabelValues(outcome).Inc()
	}
	return h.respond(effects, err)
}

// Toggle flips one filter value. Unknown categories are rejected.
func (h *Handler) Toggle(ctx context.Context, input *humastar.SignalsInput) (*struct{}, error) {
	s, signals, err := h.session(input)
	if err != nil {
		return nil, err
	}
	if !signals.Has(SignalCategory) || !signals.Has(SignalValue) {
		return nil, huma.Error400BadRequest("category and value are required")
	}
	category, value := signals.String(SignalCategory), signals.String(SignalValue)
	effects, err := s.Toggle(category, value)
	if errors.Is(err, filter.ErrInvalidCategory) {
		h.log.Error().Err(err).Str("session", s.ID).Str("category", category).Msg("toggle rejected")
		if h.metrics != nil {
			h.metrics.Toggles.WithLabelValues("invalid").Inc()
		}
		return nil, huma.Error400BadRequest(err.Error())
	}
	return h.respond(effects, err)
}

// Clear deselects every filter value.
func (h *Handler) Clear(ctx context.Context, input *humastar.SignalsInput) (*struct{}, error) {
	s, _, err := h.session(input)
	if err != nil {
		return nil, err
	}
	effects, err := s.ClearFilters()
	return h.respond(effects, err)
}

func (h *Handler) session(input *humastar.SignalsInput) (*session.Session, humastar.Signals, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, nil, err
	}
	id := signals.String(SignalSession)
	if id == "" {
		return nil, nil, huma.Error400BadRequest("sessionid is required")
	}
	s, err := h.sessions.Get(id)
	if errors.Is(err, session.ErrClosed) {
		return nil, nil, huma.Error410Gone(err.Error())
	}
	if err != nil {
		return nil, nil, huma.Error404NotFound(err.Error())
	}
	return s, signals, nil
}

// respond acknowledges an event. Its effects reach the browser through the
// session stream; here they are only counted.
func (h *Handler) respond(effects []session.Effect, err error) (*struct{}, error) {
	if errors.Is(err, session.ErrClosed) {
		return nil, huma.Error410Gone(err.Error())
	}
	if err != nil {
		return nil, huma.Error500InternalServerError(err.Error())
	}
	h.count(effects)
	return &struct{}{}, nil
}

func (h *Handler) count(effects []session.Effect) {
	if h.metrics == nil {
		return
	}
	for _, e := range effects {
		switch e := e.(type) {
		case session.Emphasis:
			kind := "unset"
			if e.On {
				kind = "set"
			}
			h.metrics.Emphasis.WithLabelValues(kind).Inc()
		case session.Selection:
			result := "deselected"
			if e.Selected {
				result = "selected"
			}
			h.metrics.Toggles.WithLabelValues(result).Inc()
		}
	}
}

// apply writes effects to the stream in the order they were produced.
func (h *Handler) apply(sse humastar.SSE, s *session.Session, effects []session.Effect) {
	for _, e := range effects {
		switch e := e.(type) {
		case session.Emphasis:
			sse.Event(EventEmphasis, map[string]any{
				"id":     e.Key.FeatureID,
				"source": e.Key.SourceID,
				"hover":  e.On,
			})
		case session.Cursor:
			sse.Signals(map[string]any{SignalPointer: e.Pointer})
		case session.DetailsReady:
			sse.Event(EventDetails, detailsData(e.Details.Record))
			h.PatchTemplate(sse, "details-panel", detailsPanel(e.Details), DetailsPanelSelector)
		case session.ShowDetails:
			sse.Signals(map[string]any{SignalTab: "details"})
		case session.Visibility:
			h.PatchTemplate(sse, "filter-panel", filterPanel(h.dataset.Metadata(), s), FilterPanelSelector)
			sse.Event(EventFilterChanged, filterChanged(e.Predicate))
		}
	}
}
