package hover

import (
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	key Key
	on  bool
}

// recorder keeps the emitted calls and the resulting emphasized set.
type recorder struct {
	calls []call
	on    map[Key]bool
}

func newRecorder() *recorder { return &recorder{on: map[Key]bool{}} }

func (r *recorder) SetEmphasis(key Key, on bool) {
	r.calls = append(r.calls, call{key, on})
	if on {
		r.on[key] = true
	} else {
		delete(r.on, key)
	}
}

func TestEnterIsIdempotent(t *testing.T) {
	rec := newRecorder()
	tr := NewTracker(rec)

	k := Key{FeatureID: "7", SourceID: "pops"}
	tr.Enter(k)
	tr.Enter(k)

	assert.Equal(t, []call{{k, true}}, rec.calls)
}

func TestEnterUnsetsPreviousFirst(t *testing.T) {
	rec := newRecorder()
	tr := NewTracker(rec)

	a := Key{FeatureID: "1", SourceID: "pops"}
	b := Key{FeatureID: "2", SourceID: "pops"}
	tr.Enter(a)
	tr.Enter(b)

	assert.Equal(t, []call{{a, true}, {a, false}, {b, true}}, rec.calls)
	cur, ok := tr.Current()
	require.True(t, ok)
	assert.Equal(t, b, cur)
}

func TestSameFeatureDifferentSource(t *testing.T) {
	rec := newRecorder()
	tr := NewTracker(rec)

	a := Key{FeatureID: "1", SourceID: "pops"}
	b := Key{FeatureID: "1", SourceID: "other"}
	tr.Enter(a)
	tr.Enter(b)

	assert.Equal(t, []call{{a, true}, {a, false}, {b, true}}, rec.calls)
}

func TestLeave(t *testing.T) {
	rec := newRecorder()
	tr := NewTracker(rec)

	tr.Leave()
	assert.Empty(t, rec.calls)

	k := Key{FeatureID: "1", SourceID: "pops"}
	tr.Enter(k)
	tr.Leave()
	tr.Leave()

	assert.Equal(t, []call{{k, true}, {k, false}}, rec.calls)
	_, ok := tr.Current()
	assert.False(t, ok)
	assert.Empty(t, rec.on)
}

func TestAtMostOneEmphasized(t *testing.T) {
	rec := newRecorder()
	tr := NewTracker(rec)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		if rng.Intn(4) == 0 {
			tr.Leave()
		} else {
			tr.Enter(Key{FeatureID: strconv.Itoa(rng.Intn(5)), SourceID: "pops"})
		}
		require.LessOrEqual(t, len(rec.on), 1, "step %d", i)

		if cur, ok := tr.Current(); ok {
			assert.True(t, rec.on[cur])
		} else {
			assert.Empty(t, rec.on)
		}
	}
}

func TestEmphasizerFunc(t *testing.T) {
	var got []call
	tr := NewTracker(EmphasizerFunc(func(k Key, on bool) { got = append(got, call{k, on}) }))
	tr.Enter(Key{FeatureID: "x"})
	assert.Len(t, got, 1)
}
