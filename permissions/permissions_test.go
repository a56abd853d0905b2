package permissions

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flags returns the flag vector without the identifier, for comparisons
// that should ignore set names.
func flags(s *Set) [6]bool {
	return [6]bool{
		s.CanConnect,
		s.CanAdjustLocks,
		s.CanRez,
		s.CanRezTmp,
		s.CanWriteToAssetServer,
		s.CanConnectPastMaxUsers,
	}
}

func TestMerge_CombinesFlags(t *testing.T) {
	a := Named("group-a")
	a.CanConnect = true
	a.CanRez = false

	b := Named("group-b")
	b.CanConnect = false
	b.CanRez = true

	a.Merge(b)

	assert.True(t, a.CanConnect)
	assert.True(t, a.CanRez)
	assert.Equal(t, "group-a", a.ID(), "merge must never alter the identifier")
}

func TestMerge_DoesNotModifySource(t *testing.T) {
	a := Named("a")
	a.SetAll(true)

	b := Named("b")
	b.SetAll(false)

	a.Merge(b)

	assert.Equal(t, [6]bool{}, flags(b))
}

func TestMerge_Idempotent(t *testing.T) {
	s := Named("editors")
	s.CanAdjustLocks = true
	before := flags(s)

	s.Merge(s)

	assert.Equal(t, before, flags(s))
	assert.Equal(t, "editors", s.ID())
}

func TestMerge_CommutativeOnFlags(t *testing.T) {
	build := func() (*Set, *Set) {
		a := Named("a")
		a.CanConnect = true
		a.CanWriteToAssetServer = true

		b := Named("b")
		b.CanConnect = false
		b.CanRezTmp = true
		b.CanConnectPastMaxUsers = true

		return a, b
	}

	a1, b1 := build()
	a1.Merge(b1)

	a2, b2 := build()
	b2.Merge(a2)

	assert.Equal(t, flags(a1), flags(b2))
}

func TestMerge_AllFalseIsIdentity(t *testing.T) {
	s := Named("builders")
	s.CanRez = true
	before := flags(s)

	s.Merge(&Set{})

	assert.Equal(t, before, flags(s))
}

func TestMerge_NilIsNoOp(t *testing.T) {
	s := Named("s")
	before := flags(s)

	s.Merge(nil)

	assert.Equal(t, before, flags(s))
}

func TestNew_GeneratesUniqueIDs(t *testing.T) {
	a := New()
	b := New()

	assert.NotEmpty(t, a.ID())
	assert.NotEmpty(t, b.ID())
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestNamed_DefaultsToConnectOnly(t *testing.T) {
	s := Named("logged-in")

	assert.Equal(t, "logged-in", s.ID())
	assert.Equal(t, [6]bool{true, false, false, false, false, false}, flags(s))
}

func TestSetAll(t *testing.T) {
	s := Named("all")
	s.SetAll(true)
	assert.Equal(t, [6]bool{true, true, true, true, true, true}, flags(s))

	s.SetAll(false)
	assert.Equal(t, [6]bool{}, flags(s))
	assert.Equal(t, "all", s.ID())
}

func TestRecordRoundTrip(t *testing.T) {
	s := Named("admins")
	s.CanAdjustLocks = true
	s.CanWriteToAssetServer = true

	got := FromRecord(s.ToRecord())

	assert.Equal(t, s.ID(), got.ID())
	assert.Equal(t, flags(s), flags(got))
}

func TestToRecord_UsesWireFieldNames(t *testing.T) {
	record := Named("x").ToRecord()

	for _, key := range []string{
		"permissions_id",
		"id_can_connect",
		"id_can_adjust_locks",
		"id_can_rez",
		"id_can_rez_tmp",
		"id_can_write_to_asset_server",
		"id_can_connect_past_max_capacity",
	} {
		assert.Contains(t, record, key)
	}
}

func TestFromRecord_MissingKeysDefaultToFalse(t *testing.T) {
	s := FromRecord(map[string]any{"permissions_id": "partial"})

	assert.Equal(t, "partial", s.ID())
	assert.Equal(t, [6]bool{}, flags(s))
}

func TestJSONRoundTrip(t *testing.T) {
	s := Named("wire")
	s.CanRezTmp = true
	s.CanConnectPastMaxUsers = true

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"permissions_id":"wire"`)
	assert.Contains(t, string(data), `"id_can_rez_tmp":true`)

	var got Set
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, s.ID(), got.ID())
	assert.Equal(t, flags(s), flags(&got))
}

func TestStandardNames(t *testing.T) {
	assert.Equal(t, []string{"localhost", "logged-in", "anonymous"}, StandardNames)
}

func TestDefault_ConnectOnly(t *testing.T) {
	s := Default()

	assert.Empty(t, s.ID())
	assert.True(t, s.CanConnect)
	assert.False(t, s.CanRez)
}
