// Package interact turns raw pointer events from the map surface into hover
// transitions and details notifications.
package interact

import (
	"errors"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-poi/internal/feature"
	"github.com/joeblew999/plat-poi/internal/hover"
)

// Lookup resolves a feature id to its detail record.
type Lookup interface {
	Get(id string) (feature.Record, error)
}

// Details is the payload handed to the details panel after a click.
type Details struct {
	Record   feature.Record
	Location orb.Point
}

// Observer receives the outward notifications of a click.
type Observer interface {
	// DetailsAvailable is called exactly once per resolved click.
	DetailsAvailable(d Details)
	// ShowDetails asks the UI to bring the details panel forward.
	ShowDetails()
}

// Dispatcher routes events to the feature lookup, the hover tracker and the
// observer.
type Dispatcher struct {
	lookup   Lookup
	tracker  *hover.Tracker
	observer Observer
	log      zerolog.Logger

	lastClick orb.Point
	clicked   bool
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(lookup Lookup, tracker *hover.Tracker, observer Observer, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		lookup:   lookup,
		tracker:  tracker,
		observer: observer,
		log:      log,
	}
}

// Click records the pointer location and, if the feature has a detail
// record, publishes it. Unknown ids are dropped; the detail dataset may lag
// behind the rendered one. Reports whether details were published.
func (d *Dispatcher) Click(featureID string, at orb.Point) bool {
	d.lastClick = at
	d.clicked = true

	rec, err := d.lookup.Get(featureID)
	if err != nil {
		if !errors.Is(err, feature.ErrNotFound) {
			d.log.Warn().Err(err).Str("feature", featureID).Msg("feature lookup failed")
		} else {
			d.log.Debug().Str("feature", featureID).Msg("click on feature without details, dropped")
		}
		return false
	}

	d.observer.DetailsAvailable(Details{Record: rec, Location: at})
	d.observer.ShowDetails()
	return true
}

// LastClick returns the location of the most recent click.
func (d *Dispatcher) LastClick() (orb.Point, bool) {
	return d.lastClick, d.clicked
}

// HoverMove forwards a pointer move over a feature to the tracker.
func (d *Dispatcher) HoverMove(key hover.Key) {
	d.tracker.Enter(key)
}

// HoverLeave forwards a pointer leaving the layer to the tracker.
func (d *Dispatcher) HoverLeave() {
	d.tracker.Leave()
}
