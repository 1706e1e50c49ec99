// Package humastar bridges Huma (REST/OpenAPI) with Datastar (SSE/hypermedia).
//
// A page holds one long-lived stream, a [huma.StreamResponse] whose body
// writes Datastar events through [SSE]. Other actions post the browser's
// signals through [SignalsInput] and are acknowledged with an empty
// response; what they change reaches the page on the stream:
//
//	func (h *ViewerHandler) Session(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
//	    return h.Stream(func(sse humastar.SSE) {
//	        ...
//	        sse.Event("feature-emphasis", detail)
//	    }), nil
//	}
package humastar

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/joeblew999/plat-poi/internal/templates"
)

// ErrorSignal is the signal that carries user-facing error text.
const ErrorSignal = "error"

// Handler is an embeddable base for Huma handlers that produce Datastar SSE
// responses.
type Handler struct {
	Renderer *templates.Renderer

	// RenderFailed, when set, is told about fragments that failed to render.
	RenderFailed func(tmpl string, err error)
}

// Stream returns a Huma StreamResponse that calls fn with a ready SSE helper.
func (h *Handler) Stream(fn func(sse SSE)) *huma.StreamResponse {
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			fn(NewSSE(humaCtx))
		},
	}
}

// Render renders a named fragment. A failed render yields "" and is
// reported to RenderFailed.
func (h *Handler) Render(tmpl string, data any) string {
	var buf bytes.Buffer
	if err := h.Renderer.RenderToBuffer(&buf, tmpl, data); err != nil {
		if h.RenderFailed != nil {
			h.RenderFailed(tmpl, err)
		}
		return ""
	}
	return buf.String()
}

// PatchTemplate renders tmpl and patches it into selector. Nothing is sent
// when the fragment fails to render, so the page keeps its last good state.
func (h *Handler) PatchTemplate(sse SSE, tmpl string, data any, selector string) {
	if html := h.Render(tmpl, data); html != "" {
		sse.Patch(html, selector)
	}
}

// SSE wraps a Datastar SSE generator.
type SSE struct {
	*datastar.ServerSentEventGenerator
}

// NewSSE creates a Datastar SSE helper from a Huma streaming context.
func NewSSE(ctx huma.Context) SSE {
	r, w := humago.Unwrap(ctx)
	return SSE{datastar.NewSSE(w, r)}
}

// Patch replaces the inner content at a CSS selector.
func (s SSE) Patch(html, selector string) {
	s.PatchElements(html,
		datastar.WithSelector(selector),
		datastar.WithModeInner(),
		datastar.WithViewTransitions(),
	)
}

// Error sets the error signal.
func (s SSE) Error(msg string) {
	s.MarshalAndPatchSignals(map[string]any{ErrorSignal: msg})
}

// Signals patches arbitrary signals.
func (s SSE) Signals(signals map[string]any) {
	s.MarshalAndPatchSignals(signals)
}

// Event dispatches a browser CustomEvent carrying detail.
func (s SSE) Event(name string, detail any) {
	s.DispatchCustomEvent(name, detail)
}

// Signals is the flat JSON object of signal values Datastar posts with
// every action. Local signals (leading underscore) are never sent.
type Signals map[string]any

// ParseSignals parses Datastar signals from a raw request body.
func ParseSignals(body []byte) (Signals, error) {
	var signals Signals
	if err := json.Unmarshal(body, &signals); err != nil {
		return nil, err
	}
	return signals, nil
}

// String returns a string signal value. Numbers are formatted so ids bound
// from numeric feature properties still read as strings.
func (s Signals) String(key string) string {
	switch v := s[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

// Float returns a numeric signal value, or 0. Numeric strings are parsed.
func (s Signals) Float(key string) float64 {
	switch v := s[key].(type) {
	case float64:
		return v
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return 0
}

// Has reports whether the signal was sent, even if zero-valued.
func (s Signals) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// EmptyInput is a shared input struct for handlers with no parameters.
type EmptyInput struct{}

// SignalsInput is an input struct for handlers that receive Datastar signals.
type SignalsInput struct {
	RawBody []byte
}

// MustParse parses signals or returns a Huma 400 error.
func (i *SignalsInput) MustParse() (Signals, error) {
	signals, err := ParseSignals(i.RawBody)
	if err != nil {
		return nil, huma.Error400BadRequest("Invalid request data: " + err.Error())
	}
	return signals, nil
}
