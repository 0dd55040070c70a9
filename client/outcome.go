package client

import "github.com/luma/beacon/protocol"

// Outcome is the non-throwing result of Run. Err carries the same
// typed error Execute would raise, never a generic failure.
type Outcome struct {
	Records []*protocol.Record

	// Status is the raw wire status, or 0 when no response arrived.
	Status int

	Err error
}

// OK reports whether the command succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil
}
