package hashring

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRing(t *testing.T, servers []string, vnodes int) *Ring {
	t.Helper()
	r, err := New("test", servers, vnodes, rand.New(rand.NewSource(42)))
	require.NoError(t, err)
	return r
}

func TestNew_RejectsEmpty(t *testing.T) {
	_, err := New("test", nil, 10, nil)
	assert.ErrorIs(t, err, ErrEmptyRing)

	_, err = New("test", []string{"a"}, 0, nil)
	assert.ErrorIs(t, err, ErrEmptyRing)
}

func TestHashKey_RejectsEmpty(t *testing.T) {
	_, err := HashKey("")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestHashKey_Deterministic(t *testing.T) {
	h1, err := HashKey("foo")
	require.NoError(t, err)
	h2, err := HashKey("foo")
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestGetServer_EmptyRingErrors(t *testing.T) {
	r := &Ring{}
	_, err := r.GetServer("a")
	assert.ErrorIs(t, err, ErrEmptyRing)
}

func TestGetServer_StableForUnaffectedKeys(t *testing.T) {
	r := newTestRing(t, []string{"s1", "s2", "s3"}, 50)

	keys := make([]string, 200)
	before := make([]string, 200)
	for i := range keys {
		keys[i] = randKey(i)
		s, err := r.GetServer(keys[i])
		require.NoError(t, err)
		before[i] = s
	}

	require.NoError(t, r.InsertServer("s4", 50))

	changed := 0
	for i, k := range keys {
		s, err := r.GetServer(k)
		require.NoError(t, err)
		if s != before[i] {
			changed++
		}
	}
	// Adding a 4th server of equal weight should move roughly 1/4 of keys,
	// never all of them.
	assert.Less(t, changed, len(keys))
}

func TestCapacityConservation(t *testing.T) {
	r := newTestRing(t, []string{"s1", "s2", "s3"}, 100)

	var total uint64
	for _, s := range r.Servers() {
		c, err := r.GetServerCapacity(s)
		require.NoError(t, err)
		total += c
	}
	assert.Equal(t, ringSpace, total)
}

func TestDeleteServer_TransfersCapacity(t *testing.T) {
	r := newTestRing(t, []string{"s1", "s2", "s3"}, 20)

	require.NoError(t, r.DeleteServer("s2"))
	assert.ElementsMatch(t, []string{"s1", "s3"}, r.Servers())

	var total uint64
	for _, s := range r.Servers() {
		c, err := r.GetServerCapacity(s)
		require.NoError(t, err)
		total += c
	}
	assert.Equal(t, ringSpace, total)
}

func TestDeleteServer_UnknownErrors(t *testing.T) {
	r := newTestRing(t, []string{"s1"}, 10)
	err := r.DeleteServer("nope")
	assert.ErrorIs(t, err, ErrUnknownServer)
}

func TestDeleteServer_LastServerRejected(t *testing.T) {
	r := newTestRing(t, []string{"s1"}, 5)
	err := r.DeleteServer("s1")
	assert.Error(t, err)
}

func TestInsertVnode_AtLargestGapMidpoint(t *testing.T) {
	r := newTestRing(t, []string{"s1", "s2"}, 2)
	before := len(r.nodes)
	pos, err := r.InsertVnode("s1")
	require.NoError(t, err)
	assert.Len(t, r.nodes, before+1)
	assert.Contains(t, r.owned["s1"], pos)
}

func randKey(i int) string {
	return "key-" + string(rune('a'+i%26)) + string(rune('0'+i%10))
}
