package entry

import "bytes"

// Clock is a Lamport logical clock: Time orders causally, ID breaks
// ties deterministically using the creator's public-key bytes.
type Clock struct {
	ID   []byte
	Time uint64
}

// Compare orders clocks by Time then by lexicographic ID, matching the
// Log's default sort order (§4.2).
func (c Clock) Compare(o Clock) int {
	if c.Time != o.Time {
		if c.Time < o.Time {
			return -1
		}
		return 1
	}
	return bytes.Compare(c.ID, o.ID)
}

// Tick returns a clock advanced past the maximum of the given parent
// clocks, with the same identity.
func Tick(id []byte, parents []Clock) Clock {
	var max uint64
	for _, p := range parents {
		if p.Time > max {
			max = p.Time
		}
	}
	return Clock{ID: id, Time: max + 1}
}
