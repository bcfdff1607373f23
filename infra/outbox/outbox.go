package outbox

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"time"

	"lobcast/infra/sequence"

	"github.com/cockroachdb/pebble"
)

type State uint8

const (
	StateNew State = iota
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Entry is one message waiting to be published. Acknowledged entries
// are deleted, so the outbox only ever holds undelivered messages.
type Entry struct {
	Seq         uint64
	Instrument  string
	Payload     []byte
	State       State
	Retries     uint32
	LastAttempt int64
}

const keyPrefix = "outbox/"

var errShortEntry = errors.New("outbox entry too short")

// value layout: [state:1][retries:4][lastAttempt:8][instLen:2][instrument][payload]
func encodeEntry(e Entry) []byte {
	buf := make([]byte, 15+len(e.Instrument)+len(e.Payload))
	buf[0] = byte(e.State)
	binary.BigEndian.PutUint32(buf[1:5], e.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(e.LastAttempt))
	binary.BigEndian.PutUint16(buf[13:15], uint16(len(e.Instrument)))
	n := copy(buf[15:], e.Instrument)
	copy(buf[15+n:], e.Payload)
	return buf
}

func decodeEntry(seq uint64, b []byte) (Entry, error) {
	if len(b) < 15 {
		return Entry{}, errShortEntry
	}
	instLen := int(binary.BigEndian.Uint16(b[13:15]))
	if len(b) < 15+instLen {
		return Entry{}, errShortEntry
	}
	payload := make([]byte, len(b)-15-instLen)
	copy(payload, b[15+instLen:])
	return Entry{
		Seq:         seq,
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Instrument:  string(b[15 : 15+instLen]),
		Payload:     payload,
	}, nil
}

// Outbox is a pebble-backed FIFO of messages bound for Kafka. Keys are a
// zero-padded sequence so iteration order is append order.
type Outbox struct {
	db  *pebble.DB
	seq *sequence.Sequencer
}

func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open outbox %s: %w", dir, err)
	}
	o := &Outbox{db: db, seq: sequence.New(0)}
	last, err := o.lastSeq()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	o.seq.Resume(last)
	return o, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

func (o *Outbox) Append(instrument string, payload []byte) (uint64, error) {
	seq := o.seq.Next()
	e := Entry{Seq: seq, Instrument: instrument, Payload: payload, State: StateNew}
	if err := o.db.Set(keyFor(seq), encodeEntry(e), pebble.Sync); err != nil {
		return 0, fmt.Errorf("outbox append: %w", err)
	}
	return seq, nil
}

// MarkFailed records a failed publish attempt.
func (o *Outbox) MarkFailed(e Entry) error {
	e.State = StateFailed
	e.Retries++
	e.LastAttempt = time.Now().UnixNano()
	return o.db.Set(keyFor(e.Seq), encodeEntry(e), pebble.Sync)
}

// Ack removes a delivered entry.
func (o *Outbox) Ack(seq uint64) error {
	return o.db.Delete(keyFor(seq), pebble.Sync)
}

func (o *Outbox) Get(seq uint64) (Entry, error) {
	val, closer, err := o.db.Get(keyFor(seq))
	if err != nil {
		return Entry{}, err
	}
	defer closer.Close()
	return decodeEntry(seq, val)
}

// ScanPending visits up to limit entries (0 for all) in append order.
// Returning an error from fn stops the scan and is returned as is.
func (o *Outbox) ScanPending(limit int, fn func(Entry) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		e, err := decodeEntry(seq, iter.Value())
		if err != nil {
			return fmt.Errorf("outbox entry %d: %w", seq, err)
		}
		if err := fn(e); err != nil {
			return err
		}
		n++
		if limit > 0 && n >= limit {
			break
		}
	}
	return iter.Error()
}

// Pending counts undelivered entries.
func (o *Outbox) Pending() (int, error) {
	n := 0
	err := o.ScanPending(0, func(Entry) error {
		n++
		return nil
	})
	return n, err
}

func (o *Outbox) lastSeq() (uint64, error) {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	if !iter.Last() {
		return 0, iter.Error()
	}
	return parseKey(iter.Key())
}

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", keyPrefix, seq))
}

func parseKey(b []byte) (uint64, error) {
	return strconv.ParseUint(string(bytes.TrimPrefix(b, []byte(keyPrefix))), 10, 64)
}
