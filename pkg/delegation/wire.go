package delegation

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrDelegationIDMismatch is returned on ingest when a wire record's
// delegation_id does not match the id recomputed from its content.
var ErrDelegationIDMismatch = errors.New("delegation: delegation_id does not match content")

// ToJSON emits the delegation's wire encoding, including its derived
// delegation_id.
func (d *Delegation) ToJSON() ([]byte, error) {
	out := *d
	out.DelegationID = d.ID()
	return json.Marshal(&out)
}

// FromJSON decodes a wire delegation, recomputing and checking the
// delegation_id if the record carries one. Chain and signature validity
// are checked at Registry.Add time, not here.
func FromJSON(data []byte) (*Delegation, error) {
	var d Delegation
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("delegation: decode: %w", err)
	}
	if d.DelegationID != "" && d.DelegationID != d.ID() {
		return nil, ErrDelegationIDMismatch
	}
	d.DelegationID = d.ID()
	return &d, nil
}
