package viewer

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-poi/internal/feature"
	"github.com/joeblew999/plat-poi/internal/metadata"
	"github.com/joeblew999/plat-poi/internal/metrics"
	"github.com/joeblew999/plat-poi/internal/service"
	"github.com/joeblew999/plat-poi/internal/session"
	"github.com/joeblew999/plat-poi/internal/templates"
)

const (
	fixtureDetails = `{
  "42": {"name": "Park A", "address": "1 Main Street", "amenities": ["Seating", "Restrooms"]}
}`
	fixtureMetadata = `categories:
  - id: amenities
    policy: all
    values:
      - value: Seating
      - value: Restrooms
`
)

type fixture struct {
	srv      *httptest.Server
	sessions *session.Manager
	dataset  *service.DatasetService
	metrics  *metrics.Provider
	dir      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, service.DefaultDetailsFile), []byte(fixtureDetails), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, service.DefaultMetadataFile), []byte(fixtureMetadata), 0o644))

	store := feature.NewStore()
	ds := service.NewDatasetService(service.Config{DataDir: dir}, store, nil, zerolog.Nop())
	sessions, err := session.NewManager(store, 16, zerolog.Nop())
	require.NoError(t, err)
	ds.OnLoad(func(doc metadata.Document) { sessions.SetCategories(doc.Definitions()) })
	require.NoError(t, ds.Load())

	renderer, err := templates.New("")
	require.NoError(t, err)
	m := metrics.Init(metrics.BuildInfo{Version: "test"})

	mux := http.NewServeMux()
	api := humago.New(mux, huma.DefaultConfig("viewer test", "1.0.0"))
	NewHandler(sessions, ds, renderer, m, zerolog.Nop()).RegisterRoutes(api)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, sessions: sessions, dataset: ds, metrics: m, dir: dir}
}

func (f *fixture) post(t *testing.T, path, signals string) int {
	t.Helper()
	resp, err := http.Post(f.srv.URL+path, "application/json", strings.NewReader(signals))
	require.NoError(t, err)
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode
}

// stream is an open session stream, read line by line.
type stream struct {
	id    string
	lines chan string
}

var sessionSignal = regexp.MustCompile(`"sessionid":"([^"]+)"`)

// open starts a session stream and reads until the session id and the
// initial filter state have arrived.
func (f *fixture) open(t *testing.T) *stream {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.srv.URL+"/api/v1/viewer/session", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)

	st := &stream{lines: make(chan string, 1024)}
	go func() {
		defer close(st.lines)
		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			st.lines <- sc.Text()
		}
	}()

	st.waitFor(t, func(line string) {
		if m := sessionSignal.FindStringSubmatch(line); m != nil {
			st.id = m[1]
		}
	}, EventFilterChanged)
	require.NotEmpty(t, st.id)
	return st
}

// waitFor reads lines until one contains want, passing each line read to
// seen first. It returns the matching line.
func (st *stream) waitFor(t *testing.T, seen func(string), want string) string {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case line, ok := <-st.lines:
			require.True(t, ok, "stream ended before %q", want)
			if seen != nil {
				seen(line)
			}
			if strings.Contains(line, want) {
				return line
			}
		case <-deadline:
			t.Fatalf("no %q on the stream", want)
		}
	}
}

func (st *stream) signals(extra string) string {
	if extra == "" {
		return `{"sessionid":"` + st.id + `"}`
	}
	return `{"sessionid":"` + st.id + `",` + extra + `}`
}

func TestEventsAreAcknowledged(t *testing.T) {
	f := newFixture(t)
	s, _ := f.sessions.Create()

	code := f.post(t, "/api/v1/viewer/hover", `{"sessionid":"`+s.ID+`","featureid":"42","sourceid":"pops"}`)
	require.Equal(t, http.StatusNoContent, code)

	key, ok := s.Hovered()
	require.True(t, ok)
	assert.Equal(t, "42", key.FeatureID)
	assert.Equal(t, "pops", key.SourceID)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Emphasis.WithLabelValues("set")))

	code = f.post(t, "/api/v1/viewer/leave", `{"sessionid":"`+s.ID+`"}`)
	require.Equal(t, http.StatusNoContent, code)
	_, ok = s.Hovered()
	assert.False(t, ok)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Emphasis.WithLabelValues("unset")))
}

func TestHoverEmitsCursorThenEmphasis(t *testing.T) {
	f := newFixture(t)
	st := f.open(t)

	code := f.post(t, "/api/v1/viewer/hover", st.signals(`"featureid":"42","sourceid":"pops"`))
	require.Equal(t, http.StatusNoContent, code)

	sawEmphasis := false
	st.waitFor(t, func(line string) {
		sawEmphasis = sawEmphasis || strings.Contains(line, `"hover":true`)
	}, `"pointer":true`)
	assert.False(t, sawEmphasis, "emphasis arrived before the cursor change")
	st.waitFor(t, nil, `"hover":true,"id":"42","source":"pops"`)

	require.Equal(t, http.StatusNoContent, f.post(t, "/api/v1/viewer/leave", st.signals("")))
	st.waitFor(t, nil, `"pointer":false`)
	st.waitFor(t, nil, `"hover":false,"id":"42","source":"pops"`)
}

var emphasisDetail = regexp.MustCompile(`"hover":(true|false),"id":"([^"]*)"`)

func TestConcurrentHoversKeepStreamOrder(t *testing.T) {
	f := newFixture(t)
	st := f.open(t)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 5 {
				id := fmt.Sprintf("f%d-%d", i, j)
				resp, err := http.Post(f.srv.URL+"/api/v1/viewer/hover", "application/json",
					strings.NewReader(st.signals(`"featureid":"`+id+`","sourceid":"pops"`)))
				if assert.NoError(t, err) {
					assert.Equal(t, http.StatusNoContent, resp.StatusCode)
					resp.Body.Close()
				}
			}
		}()
	}
	wg.Wait()
	require.Equal(t, http.StatusNoContent, f.post(t, "/api/v1/viewer/leave", st.signals("")))

	// Replaying the emphasis commands in stream order must never light up
	// two features at once and must end with nothing lit.
	lit := map[string]bool{}
	replay := func(line string) {
		m := emphasisDetail.FindStringSubmatch(line)
		if m == nil {
			return
		}
		if m[1] == "true" {
			assert.Empty(t, lit, "%s emphasised while another feature is lit", m[2])
			lit[m[2]] = true
		} else {
			assert.True(t, lit[m[2]], "%s cleared without being lit", m[2])
			delete(lit, m[2])
		}
	}
	st.waitFor(t, replay, `"pointer":false`)
	replay(st.waitFor(t, nil, `"hover":false`))
	assert.Empty(t, lit)
}

func TestHoverRequiresFeature(t *testing.T) {
	f := newFixture(t)
	s, _ := f.sessions.Create()

	code := f.post(t, "/api/v1/viewer/hover", `{"sessionid":"`+s.ID+`"}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestClickPublishesDetails(t *testing.T) {
	f := newFixture(t)
	st := f.open(t)

	code := f.post(t, "/api/v1/viewer/click", st.signals(`"featureid":"42","lng":-73.98,"lat":40.75`))
	require.Equal(t, http.StatusNoContent, code)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Clicks.WithLabelValues("details")))

	st.waitFor(t, nil, `"id":"42"`)
	st.waitFor(t, nil, `id="details-panel"`)
	st.waitFor(t, nil, `"tab":"details"`)
}

func TestClickKeepsRecordIDAttribute(t *testing.T) {
	f := newFixture(t)
	st := f.open(t)

	require.Equal(t, http.StatusNoContent, f.post(t, "/api/v1/viewer/click", st.signals(`"featureid":"7"`)))

	var details []string
	st.waitFor(t, func(line string) {
		if strings.Contains(line, "Corner Plaza") {
			details = append(details, line)
		}
	}, `"tab":"details"`)
	require.NotEmpty(t, details)
	assert.Contains(t, details[0], `"id":"plaza-7"`)
	assert.NotContains(t, details[0], `"id":"7"`)
}

func TestDetailsData(t *testing.T) {
	r := feature.Record{ID: "7", Attributes: feature.NewAttributes(
		feature.Attribute{Name: "name", Value: feature.String("Corner Plaza")},
	)}
	assert.Equal(t, map[string]any{"id": "7", "name": "Corner Plaza"}, detailsData(r))

	r.Attributes = feature.NewAttributes(feature.Attribute{Name: "id", Value: feature.String("plaza-7")})
	assert.Equal(t, map[string]any{"id": "plaza-7"}, detailsData(r))
}

func TestAttributeLabel(t *testing.T) {
	assert.Equal(t, "Public space type", attributeLabel("public_space_type"))
	assert.Equal(t, "Étage", attributeLabel("étage"))
	assert.Equal(t, "Öffnungszeiten", attributeLabel("öffnungszeiten"))
	assert.Equal(t, "", attributeLabel(""))
}

func TestClickUnknownFeatureIsDropped(t *testing.T) {
	f := newFixture(t)
	s, _ := f.sessions.Create()

	code := f.post(t, "/api/v1/viewer/click", `{"sessionid":"`+s.ID+`","featureid":"nope"}`)
	require.Equal(t, http.StatusNoContent, code)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Clicks.WithLabelValues("dropped")))
}

func TestToggleUpdatesFilter(t *testing.T) {
	f := newFixture(t)
	st := f.open(t)
	s, err := f.sessions.Get(st.id)
	require.NoError(t, err)

	code := f.post(t, "/api/v1/viewer/toggle", st.signals(`"category":"amenities","value":"Seating"`))
	require.Equal(t, http.StatusNoContent, code)
	st.waitFor(t, nil, "filter-button selected")
	st.waitFor(t, nil, EventFilterChanged)
	assert.True(t, s.IsSelected("amenities", "Seating"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Toggles.WithLabelValues("selected")))

	code = f.post(t, "/api/v1/viewer/clear", st.signals(""))
	require.Equal(t, http.StatusNoContent, code)
	st.waitFor(t, nil, EventFilterChanged)
	assert.False(t, s.IsSelected("amenities", "Seating"))
	assert.True(t, s.Predicate().MatchesAll())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Toggles.WithLabelValues("deselected")))
}

func TestToggleInvalidCategory(t *testing.T) {
	f := newFixture(t)
	s, _ := f.sessions.Create()

	code := f.post(t, "/api/v1/viewer/toggle", `{"sessionid":"`+s.ID+`","category":"colour","value":"red"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.True(t, s.Predicate().MatchesAll())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Toggles.WithLabelValues("invalid")))

	code = f.post(t, "/api/v1/viewer/toggle", `{"sessionid":"`+s.ID+`","category":"amenities"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Toggles.WithLabelValues("invalid")))
}

func TestUnknownAndClosedSessions(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusNotFound, f.post(t, "/api/v1/viewer/leave", `{"sessionid":"missing"}`))
	assert.Equal(t, http.StatusBadRequest, f.post(t, "/api/v1/viewer/leave", `{}`))
	assert.Equal(t, http.StatusBadRequest, f.post(t, "/api/v1/viewer/leave", `not json`))

	closed, _ := f.sessions.Create()
	closed.Close()
	assert.Equal(t, http.StatusGone, f.post(t, "/api/v1/viewer/leave", `{"sessionid":"`+closed.ID+`"}`))

	evicted, _ := f.sessions.Create()
	f.sessions.Remove(evicted.ID)
	assert.Equal(t, http.StatusGone, f.post(t, "/api/v1/viewer/leave", `{"sessionid":"`+evicted.ID+`"}`))
}

func TestSessionStream(t *testing.T) {
	f := newFixture(t)
	st := f.open(t)
	assert.Equal(t, 1, f.sessions.Len())

	s, err := f.sessions.Get(st.id)
	require.NoError(t, err)
	_, err = s.Toggle("amenities", "Seating")
	require.NoError(t, err)
	st.waitFor(t, nil, EventFilterChanged)

	// A reload discards selections and re-sends the panel on the stream.
	require.NoError(t, f.dataset.Load())
	assert.False(t, s.IsSelected("amenities", "Seating"))
	st.waitFor(t, nil, `id="filter-panel"`)
	st.waitFor(t, nil, EventFilterChanged)

	// Closing the session ends the stream.
	f.sessions.Remove(st.id)
	st.waitFor(t, nil, "session expired")
	deadline := time.After(3 * time.Second)
	for open := true; open; {
		select {
		case _, open = <-st.lines:
		case <-deadline:
			t.Fatal("stream still open after the session closed")
		}
	}
	assert.Zero(t, f.sessions.Len())
	assert.Equal(t, http.StatusGone, f.post(t, "/api/v1/viewer/leave", st.signals("")))
}
