package devserver

import (
	"fmt"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Store is the dev server's in-memory event log: one JSON document
// mapping stream names to arrays of raw events.
type Store struct {
	mu     sync.Mutex
	values []byte
}

func NewStore() *Store {
	return &Store{
		values: []byte("{}"),
	}
}

// Append adds one raw JSON event to the end of a stream, creating the
// stream on first use.
func (s *Store) Append(stream string, event []byte) error {
	if !gjson.ValidBytes(event) {
		return fmt.Errorf("event is not valid JSON: %q", string(event))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := sjson.SetRawBytes(s.values, stream+".-1", event)
	if err != nil {
		return err
	}

	s.values = values
	return nil
}

// Scan returns every event of a stream in append order, as raw JSON.
// An unknown stream yields nil.
func (s *Store) Scan(stream string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := gjson.GetBytes(s.values, stream).Array()

	events := make([]string, 0, len(entries))
	for _, entry := range entries {
		events = append(events, entry.Raw)
	}

	return events
}

// Len returns the number of events in a stream.
func (s *Store) Len(stream string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return int(gjson.GetBytes(s.values, stream+".#").Int())
}
