// pagedata.go: Reverse mapping: OpenAPI document to page template data.
//
// BuildPageData extracts what a page template needs from the OpenAPI document:
//   - Signals JSON (data-signals init)
//   - Routes (operation paths for one tag, keyed by their last path segment)
//   - SSE inits (GET operations of the tag, opened on page load)
//
// Templates use {{.Signals}} and {{.DataInit}} so the HTML never hardcodes
// URLs.
package humastar

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// RoutesSignal is the local signal carrying PageData.Routes.
const RoutesSignal = "_routes"

// PageData holds everything a page template needs from the OpenAPI document.
type PageData struct {
	// Signals is the JSON string for data-signals initialization.
	Signals string

	// Routes maps the last path segment of each operation to its path.
	// e.g. Routes["toggle"] = "/api/v1/viewer/toggle"
	Routes map[string]string

	// SSEInits holds the GET endpoints opened when the page loads.
	SSEInits []string
}

// DataInit returns a Datastar data-init attribute value joining all SSE init URLs.
// e.g. "@get('/api/v1/viewer/session')"
func (pd PageData) DataInit() string {
	var parts []string
	for _, url := range pd.SSEInits {
		parts = append(parts, fmt.Sprintf("@get('%s')", url))
	}
	return strings.Join(parts, " ")
}

// BuildPageData builds template data from operations tagged with tag. The
// routes are also exposed to the page as the local signal $_routes, so
// actions can be written as @post($_routes.toggle).
func BuildPageData(api huma.API, tag string, signals map[string]any) PageData {
	pd := PageData{Routes: map[string]string{}}

	for p, item := range api.OpenAPI().Paths {
		if item.Get != nil && hasTag(item.Get.Tags, tag) {
			pd.Routes[path.Base(p)] = p
			pd.SSEInits = append(pd.SSEInits, p)
		}
		if item.Post != nil && hasTag(item.Post.Tags, tag) {
			pd.Routes[path.Base(p)] = p
		}
	}
	sort.Strings(pd.SSEInits)

	all := map[string]any{RoutesSignal: pd.Routes}
	for k, v := range signals {
		all[k] = v
	}
	signalsJSON, _ := json.Marshal(all)
	pd.Signals = string(signalsJSON)
	return pd
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
