package transport

import (
	"github.com/beamapp/beam/internal/media"
	"github.com/beamapp/beam/internal/packet"
)

// DefaultGCWindow is the reassembly eviction cutoff: one second of the
// 90 kHz media clock.
const DefaultGCWindow = 90_000

// record accumulates the fragments of one NAL, keyed by its timestamp.
type record struct {
	expected int
	flags    uint8
	parts    map[uint16][]byte
}

// Reassembler rebuilds NAL units from headered fragments. It is owned by a
// single receive goroutine and needs no locking. Incomplete records are
// evicted once the incoming timestamp has moved more than gcWindow past
// them; records ahead of the incoming timestamp are never evicted, which
// tolerates out-of-order arrival across the window.
type Reassembler struct {
	records  map[uint32]*record
	gcWindow uint32
}

// NewReassembler creates a reassembler with the given eviction window in
// 90 kHz ticks. Zero means DefaultGCWindow.
func NewReassembler(gcWindow uint32) *Reassembler {
	if gcWindow == 0 {
		gcWindow = DefaultGCWindow
	}
	return &Reassembler{
		records:  make(map[uint32]*record),
		gcWindow: gcWindow,
	}
}

// Ingest folds one fragment into its record. When the record completes, the
// reassembled NAL is returned with ok=true and the record is dropped.
// Duplicate fragments are idempotent; the expected count is last-write-wins.
// Every call also garbage-collects records stale relative to h.Timestamp.
func (r *Reassembler) Ingest(h packet.Header, payload []byte) (media.NAL, bool) {
	rec := r.records[h.Timestamp]
	if rec == nil {
		rec = &record{parts: make(map[uint16][]byte)}
		r.records[h.Timestamp] = rec
	}
	rec.expected = int(h.FragmentCount)
	if h.Start() {
		rec.flags = h.Flags
	}
	if _, dup := rec.parts[h.FragmentIndex]; !dup {
		data := make([]byte, len(payload))
		copy(data, payload)
		rec.parts[h.FragmentIndex] = data
	}

	var out media.NAL
	done := rec.expected >= 1 && len(rec.parts) == rec.expected
	if done {
		size := 0
		for _, p := range rec.parts {
			size += len(p)
		}
		data := make([]byte, 0, size)
		for i := 0; i < rec.expected; i++ {
			data = append(data, rec.parts[uint16(i)]...)
		}
		out = media.NAL{
			Data:      data,
			Keyframe:  rec.flags&packet.FlagKeyframe != 0,
			Timestamp: h.Timestamp,
		}
		delete(r.records, h.Timestamp)
	}

	r.gc(h.Timestamp)
	return out, done
}

// gc drops records older than arrived-gcWindow. The age comparison is done
// in wrapping uint32 arithmetic: a record whose timestamp is "ahead" of
// arrived (difference in the upper half of the ring) is considered future
// and kept.
func (r *Reassembler) gc(arrived uint32) {
	for ts := range r.records {
		age := arrived - ts
		if age > r.gcWindow && age < 1<<31 {
			delete(r.records, ts)
		}
	}
}

// Pending returns the number of incomplete records, for stats and tests.
func (r *Reassembler) Pending() int {
	return len(r.records)
}
