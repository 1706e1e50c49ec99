// Package dataset converts the upstream POPS (Privately Owned Public
// Spaces) table into the viewer's static documents: the rendered GeoJSON,
// the detail dataset and the filter metadata.
package dataset

import (
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/joeblew999/plat-poi/internal/feature"
	"github.com/joeblew999/plat-poi/internal/filter"
	"github.com/joeblew999/plat-poi/internal/metadata"
)

// Row is one upstream record. List columns are ';'-separated.
type Row struct {
	Number          string
	BuildingName    string
	AddressNumber   string
	StreetName      string
	Amenities       string
	PublicSpaceType string
	Lon             float64
	Lat             float64
}

// FilterAmenities are the amenities offered as filter buttons.
var FilterAmenities = []string{"Climate Control", "Seating", "Restrooms", "Tables"}

var amenityEmoji = map[string]string{
	"Climate Control": "🌡️",
	"Seating":         "🪑",
	"Restrooms":       "🚻",
}

// Category ids written to the metadata document.
const (
	CategoryAmenities = "amenities"
	CategorySpaceType = "space_type"
)

// Output holds the three built documents.
type Output struct {
	Rendered *geojson.FeatureCollection
	Details  []feature.Record
	Metadata metadata.Document
}

// Build converts rows. Rows without a number are skipped.
func Build(rows []Row) Output {
	out := Output{Rendered: geojson.NewFeatureCollection()}
	title := cases.Title(language.English)
	spaceTypes := map[string]bool{}

	for _, row := range rows {
		id := strings.TrimSpace(row.Number)
		if id == "" {
			continue
		}
		amenities := splitList(row.Amenities)
		spaces := splitList(row.PublicSpaceType)
		for _, s := range spaces {
			spaceTypes[s] = true
		}

		f := geojson.NewFeature(orb.Point{row.Lon, row.Lat})
		f.Properties["id"] = id
		f.Properties[feature.AttrAmenities] = filterable(amenities)
		f.Properties[feature.AttrPublicSpaceType] = spaces
		out.Rendered.Append(f)

		labelled := make([]string, len(amenities))
		for i, a := range amenities {
			labelled[i] = amenityEmoji[a] + a
		}
		address := strings.TrimSpace(row.AddressNumber + " " + title.String(strings.TrimSpace(row.StreetName)))

		out.Details = append(out.Details, feature.Record{
			ID: id,
			Attributes: feature.NewAttributes(
				feature.Attribute{Name: feature.AttrName, Value: feature.String(row.BuildingName)},
				feature.Attribute{Name: feature.AttrAddress, Value: feature.String(address)},
				feature.Attribute{Name: feature.AttrAmenities, Value: feature.List(labelled...)},
				feature.Attribute{Name: feature.AttrPublicSpaceType, Value: feature.List(spaces...)},
			),
		})
	}

	out.Metadata = buildMetadata(spaceTypes)
	return out
}

func buildMetadata(spaceTypes map[string]bool) metadata.Document {
	amenities := metadata.Category{
		ID:        CategoryAmenities,
		Label:     "Amenities",
		Attribute: feature.AttrAmenities,
		Policy:    filter.All,
	}
	for _, a := range FilterAmenities {
		amenities.Values = append(amenities.Values, metadata.Value{Value: a, Label: amenityEmoji[a] + a})
	}

	spaces := metadata.Category{
		ID:        CategorySpaceType,
		Label:     "Public space type",
		Attribute: feature.AttrPublicSpaceType,
		Policy:    filter.Any,
	}
	names := make([]string, 0, len(spaceTypes))
	for s := range spaceTypes {
		names = append(names, s)
	}
	sort.Strings(names)
	for _, s := range names {
		spaces.Values = append(spaces.Values, metadata.Value{Value: s, Label: s})
	}

	return metadata.Document{
		Title:      "Privately Owned Public Spaces",
		Categories: []metadata.Category{amenities, spaces},
	}
}

// filterable keeps the amenities that have a filter button, in button order.
func filterable(amenities []string) []string {
	have := make(map[string]bool, len(amenities))
	for _, a := range amenities {
		have[a] = true
	}
	out := []string{}
	for _, a := range FilterAmenities {
		if have[a] {
			out = append(out, a)
		}
	}
	return out
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
