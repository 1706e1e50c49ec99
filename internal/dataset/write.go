package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joeblew999/plat-poi/internal/metadata"
	"github.com/joeblew999/plat-poi/internal/service"
)

// Write stores the documents in dir under the names the server reads.
func Write(dir string, out Output) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	rendered, err := json.Marshal(out.Rendered)
	if err != nil {
		return fmt.Errorf("encoding geojson: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, service.DefaultGeoJSONFile), rendered, 0644); err != nil {
		return err
	}

	details, err := encodeDetails(out)
	if err != nil {
		return fmt.Errorf("encoding details: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, service.DefaultDetailsFile), details, 0644); err != nil {
		return err
	}

	var meta bytes.Buffer
	if err := metadata.Write(&meta, out.Metadata); err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, service.DefaultMetadataFile), meta.Bytes(), 0644)
}

// encodeDetails writes the detail records as one JSON object in row order.
func encodeDetails(out Output) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, rec := range out.Details {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(rec.ID)
		if err != nil {
			return nil, err
		}
		attrs, err := json.Marshal(rec.Attributes)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(attrs)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
