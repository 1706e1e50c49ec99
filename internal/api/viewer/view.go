package viewer

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-poi/internal/feature"
	"github.com/joeblew999/plat-poi/internal/filter"
	"github.com/joeblew999/plat-poi/internal/interact"
	"github.com/joeblew999/plat-poi/internal/metadata"
	"github.com/joeblew999/plat-poi/internal/session"
)

// FilterPanelData feeds the "filter-panel" template.
type FilterPanelData struct {
	Title      string
	Active     bool
	Categories []FilterCategoryData
}

type FilterCategoryData struct {
	ID     string
	Label  string
	Policy filter.Policy
	Values []FilterButtonData
}

type FilterButtonData struct {
	Category string
	Value    string
	Label    string
	Selected bool
}

func filterPanel(doc metadata.Document, s *session.Session) FilterPanelData {
	data := FilterPanelData{
		Title:  doc.Title,
		Active: !s.Predicate().MatchesAll(),
	}
	for _, c := range doc.Categories {
		cat := FilterCategoryData{ID: c.ID, Label: c.Label, Policy: c.Policy}
		for _, v := range c.Values {
			cat.Values = append(cat.Values, FilterButtonData{
				Category: c.ID,
				Value:    v.Value,
				Label:    v.Label,
				Selected: s.IsSelected(c.ID, v.Value),
			})
		}
		data.Categories = append(data.Categories, cat)
	}
	return data
}

// DetailsPanelData feeds the "details-panel" template.
type DetailsPanelData struct {
	ID         string
	Name       string
	Address    string
	Location   string
	Attributes []AttributeData
}

type AttributeData struct {
	Label string
	Terms []string
}

var panelSkip = map[string]bool{feature.AttrName: true, feature.AttrAddress: true}

func detailsPanel(d interact.Details) DetailsPanelData {
	data := DetailsPanelData{
		ID:      d.Record.ID,
		Name:    d.Record.Name(),
		Address: d.Record.Address(),
	}
	if d.Location != (orb.Point{}) {
		data.Location = fmt.Sprintf("%.5f, %.5f", d.Location.Lat(), d.Location.Lon())
	}
	if data.Name == "" {
		data.Name = d.Record.ID
	}
	d.Record.Attributes.Each(func(name string, v feature.Value) {
		if panelSkip[name] {
			return
		}
		data.Attributes = append(data.Attributes, AttributeData{
			Label: attributeLabel(name),
			Terms: v.Terms(),
		})
	})
	return data
}

// detailsData is the detail of the "details-data" event: the flattened
// attributes plus the record id, unless the record carries its own "id".
func detailsData(r feature.Record) map[string]any {
	detail := r.Attributes.Flatten()
	if _, ok := detail["id"]; !ok {
		detail["id"] = r.ID
	}
	return detail
}

// attributeLabel turns "public_space_type" into "Public space type".
func attributeLabel(name string) string {
	s := strings.ReplaceAll(name, "_", " ")
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// filterChanged is the detail of the "filter-changed" event. Version is the
// predicate fingerprint in hex; it is "0" when everything is visible.
func filterChanged(p filter.Predicate) map[string]any {
	return map[string]any{
		"filter":  p.Expression(),
		"version": strconv.FormatUint(p.Fingerprint(), 16),
	}
}
