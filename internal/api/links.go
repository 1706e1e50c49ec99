package api

import (
	"fmt"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-poi/internal/humastar"
)

// links maps operation paths to their RFC 8288 Link header values.
// Enables restish hypermedia navigation via `restish links <url>`.
var links = map[string][]string{
	"/health": {
		`</api/v1/info>; rel="info"`,
		`</api/v1/features>; rel="features"`,
		`</api/v1/categories>; rel="categories"`,
		`</openapi.json>; rel="service-desc"`,
	},
	"/api/v1/info": {
		`</health>; rel="health"`,
		`</api/v1/features>; rel="features"`,
	},
	"/api/v1/features": {
		`</api/v1/features/{id}>; rel="item"`,
		`</api/v1/categories>; rel="categories"`,
		`</health>; rel="up"`,
	},
	"/api/v1/features/{id}": {
		`</api/v1/features>; rel="collection"`,
	},
	"/api/v1/categories": {
		`</api/v1/features>; rel="features"`,
		`</health>; rel="up"`,
	},
	"/api/v1/dataset/reload": {
		`</api/v1/info>; rel="info"`,
	},
}

// LinkTransformer returns a Huma Transformer that injects RFC 8288 Link headers.
func LinkTransformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}

		for _, link := range links[op.Path] {
			ctx.AppendHeader("Link", link)
		}

		// Item endpoints get a self link
		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}

		// Pagination links from the response body.
		if p, ok := v.(humastar.Pager); ok {
			for _, link := range p.PaginationLinks(ctx.URL()) {
				ctx.AppendHeader("Link", link)
			}
		}

		return v, nil
	}
}
