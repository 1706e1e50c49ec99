package service

import (
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-poi/internal/feature"
	"github.com/joeblew999/plat-poi/internal/filter"
)

// NormalizeFeatures rewrites every filterable attribute of the features into
// its list of terms: lists stay lists, comma-joined strings are split and
// trimmed, numbers and booleans become their canonical string. The map then
// tests membership with exact array lookups, matching filter.Predicate.Match.
// Absent attributes stay absent.
func NormalizeFeatures(features []*geojson.Feature, defs []filter.Definition) {
	for _, f := range features {
		if f == nil || f.Properties == nil {
			continue
		}
		for _, d := range defs {
			attr := d.Attribute
			if attr == "" {
				attr = d.ID
			}
			v, ok := f.Properties[attr]
			if !ok {
				continue
			}
			terms := feature.FromAny(v).Terms()
			if terms == nil {
				terms = []string{}
			}
			f.Properties[attr] = terms
		}
	}
}

// ReadCollection parses a rendered dataset and normalizes it against the
// loaded filter definitions.
func (s *DatasetService) ReadCollection(data []byte) (*geojson.FeatureCollection, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, err
	}
	NormalizeFeatures(fc.Features, s.Definitions())
	return fc, nil
}
