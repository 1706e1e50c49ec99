// Package service loads and serves the viewer's static documents.
package service

import "time"

// Config names the documents inside the data directory.
type Config struct {
	DataDir      string
	DetailsFile  string // detail dataset, id -> attributes
	MetadataFile string // filter categories
	GeoJSONFile  string // rendered point features
}

// Default document names, as written by the dataset builder.
const (
	DefaultDetailsFile  = "pops.json"
	DefaultMetadataFile = "metadata.yaml"
	DefaultGeoJSONFile  = "pops.geojson"
)

func (c Config) withDefaults() Config {
	if c.DetailsFile == "" {
		c.DetailsFile = DefaultDetailsFile
	}
	if c.MetadataFile == "" {
		c.MetadataFile = DefaultMetadataFile
	}
	if c.GeoJSONFile == "" {
		c.GeoJSONFile = DefaultGeoJSONFile
	}
	return c
}

// FeatureSummary is one rendered feature as listed by the API.
type FeatureSummary struct {
	ID         string         `json:"id" doc:"Feature identifier" example:"M090001"`
	Lon        float64        `json:"lon" doc:"Longitude" example:"-73.98"`
	Lat        float64        `json:"lat" doc:"Latitude" example:"40.75"`
	Properties map[string]any `json:"properties" doc:"Rendered feature properties"`
}

// DatasetInfo summarizes what is currently loaded.
type DatasetInfo struct {
	Details    int       `json:"details" doc:"Number of detail records" example:"550"`
	Rendered   int       `json:"rendered" doc:"Number of rendered features" example:"550"`
	Categories int       `json:"categories" doc:"Number of filter categories" example:"2"`
	Title      string    `json:"title,omitempty" doc:"Dataset title from metadata"`
	LoadedAt   time.Time `json:"loadedAt" doc:"Time of the last successful load"`
}
