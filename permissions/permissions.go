// Package permissions models the capability flags a connecting entity is
// granted on a domain. A Set is identified by a name (or a generated
// unique id) and carries independent boolean flags that can be merged
// together, e.g. to union the grants of every group a user belongs to.
package permissions

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Wire and storage field names. These are an external contract shared
// with the account server and the settings file; do not rename.
const (
	FieldID                     = "permissions_id"
	FieldCanConnect             = "id_can_connect"
	FieldCanAdjustLocks         = "id_can_adjust_locks"
	FieldCanRez                 = "id_can_rez"
	FieldCanRezTmp              = "id_can_rez_tmp"
	FieldCanWriteToAssetServer  = "id_can_write_to_asset_server"
	FieldCanConnectPastMaxUsers = "id_can_connect_past_max_capacity"
)

// Standard set names with special meaning to the domain.
const (
	StandardNameLocalhost = "localhost"
	StandardNameLoggedIn  = "logged-in"
	StandardNameAnonymous = "anonymous"
)

// StandardNames lists the set names the domain always defines.
var StandardNames = []string{
	StandardNameLocalhost,
	StandardNameLoggedIn,
	StandardNameAnonymous,
}

// Set is a named bundle of capability flags. The identifier is fixed at
// construction; the flags are mutable and mergeable.
type Set struct {
	id string

	CanConnect             bool
	CanAdjustLocks         bool
	CanRez                 bool
	CanRezTmp              bool
	CanWriteToAssetServer  bool
	CanConnectPastMaxUsers bool
}

// New returns a Set with a generated unique identifier. Connect defaults
// to true, matching the default agent grant; all other flags are false.
func New() *Set {
	return Named(uuid.NewString())
}

// Named returns a Set identified by name. Connect defaults to true; all
// other flags are false.
func Named(name string) *Set {
	return &Set{id: name, CanConnect: true}
}

// Default returns the permissions granted to an agent with no matching
// entry: connect only.
func Default() *Set {
	return Named("")
}

// ID returns the identifier the set was constructed with.
func (s *Set) ID() string { return s.id }

// SetAll sets every flag to value. The identifier is unchanged.
func (s *Set) SetAll(value bool) {
	s.CanConnect = value
	s.CanAdjustLocks = value
	s.CanRez = value
	s.CanRezTmp = value
	s.CanWriteToAssetServer = value
	s.CanConnectPastMaxUsers = value
}

// Merge ORs every flag of other into s. The identifier of s is
// preserved; other is never modified. A nil other is a no-op.
func (s *Set) Merge(other *Set) {
	if other == nil {
		return
	}

	s.CanConnect = s.CanConnect || other.CanConnect
	s.CanAdjustLocks = s.CanAdjustLocks || other.CanAdjustLocks
	s.CanRez = s.CanRez || other.CanRez
	s.CanRezTmp = s.CanRezTmp || other.CanRezTmp
	s.CanWriteToAssetServer = s.CanWriteToAssetServer || other.CanWriteToAssetServer
	s.CanConnectPastMaxUsers = s.CanConnectPastMaxUsers || other.CanConnectPastMaxUsers
}

// ToRecord converts the set to the generic key-value representation used
// for storage and network transmission.
func (s *Set) ToRecord() map[string]any {
	return map[string]any{
		FieldID:                     s.id,
		FieldCanConnect:             s.CanConnect,
		FieldCanAdjustLocks:         s.CanAdjustLocks,
		FieldCanRez:                 s.CanRez,
		FieldCanRezTmp:              s.CanRezTmp,
		FieldCanWriteToAssetServer:  s.CanWriteToAssetServer,
		FieldCanConnectPastMaxUsers: s.CanConnectPastMaxUsers,
	}
}

// FromRecord builds a Set from the generic key-value representation.
// Missing keys default to the zero value; the id key is required only in
// the sense that an absent id yields an empty identifier.
func FromRecord(record map[string]any) *Set {
	s := &Set{}
	s.id, _ = record[FieldID].(string)
	s.CanConnect = boolField(record, FieldCanConnect)
	s.CanAdjustLocks = boolField(record, FieldCanAdjustLocks)
	s.CanRez = boolField(record, FieldCanRez)
	s.CanRezTmp = boolField(record, FieldCanRezTmp)
	s.CanWriteToAssetServer = boolField(record, FieldCanWriteToAssetServer)
	s.CanConnectPastMaxUsers = boolField(record, FieldCanConnectPastMaxUsers)

	return s
}

func boolField(record map[string]any, key string) bool {
	v, _ := record[key].(bool)
	return v
}

// MarshalJSON encodes the set with the fixed wire field names.
func (s *Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.ToRecord())
}

// UnmarshalJSON decodes the fixed wire representation, replacing the
// receiver's identifier and flags.
func (s *Set) UnmarshalJSON(data []byte) error {
	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		return fmt.Errorf("decoding permission set: %w", err)
	}

	*s = *FromRecord(record)

	return nil
}

// String renders the set for logs.
func (s *Set) String() string {
	return fmt.Sprintf("[%s connect=%t locks=%t rez=%t rez-tmp=%t asset-write=%t past-max=%t]",
		s.id, s.CanConnect, s.CanAdjustLocks, s.CanRez, s.CanRezTmp,
		s.CanWriteToAssetServer, s.CanConnectPastMaxUsers)
}
