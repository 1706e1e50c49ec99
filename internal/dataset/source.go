package dataset

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/joeblew999/plat-poi/internal/db"
)

// Source yields upstream rows.
type Source interface {
	Rows(ctx context.Context) ([]Row, error)
}

// DefaultSourceURL is the NYC Open Data export of the POPS table.
const DefaultSourceURL = "https://data.cityofnewyork.us/resource/rvih-nhyn.csv"

// CSVSource reads the POPS CSV through DuckDB. Location is a local path or
// an http(s) URL (the latter needs the httpfs extension).
type CSVSource struct {
	DB       *sql.DB
	Location string
}

// Rows implements Source.
func (s CSVSource) Rows(ctx context.Context) ([]Row, error) {
	query := fmt.Sprintf(`
		SELECT
			COALESCE(pops_number, ''),
			COALESCE(building_name, ''),
			COALESCE(address_number, ''),
			COALESCE(street_name, ''),
			COALESCE(amenities_required, ''),
			COALESCE(public_space_type, ''),
			TRY_CAST(longitude AS DOUBLE),
			TRY_CAST(latitude AS DOUBLE)
		FROM read_csv_auto(%s, all_varchar = true, header = true)`, db.Quote(s.Location))

	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.Location, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			r        Row
			lon, lat sql.NullFloat64
		)
		if err := rows.Scan(&r.Number, &r.BuildingName, &r.AddressNumber, &r.StreetName,
			&r.Amenities, &r.PublicSpaceType, &lon, &lat); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", s.Location, err)
		}
		if !lon.Valid || !lat.Valid {
			continue
		}
		r.Lon, r.Lat = lon.Float64, lat.Float64
		out = append(out, r)
	}
	return out, rows.Err()
}
