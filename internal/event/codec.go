package event

import (
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
)

// Record encoding: varint headerLen | header | payload | crc32c(header|payload)
//
// The header carries the fields the store needs without touching the payload:
// 8-byte big-endian TsMs, 1 byte priority, then a JSON meta blob with the
// remaining envelope fields. The payload is the event's opaque payload bytes.

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

type recordMeta struct {
	ProducerApp    string              `json:"producer_app,omitempty"`
	SessionID      string              `json:"session_id,omitempty"`
	Kind           string              `json:"kind,omitempty"`
	Summary        string              `json:"summary,omitempty"`
	Transcript     json.RawMessage     `json:"transcript,omitempty"`
	Classification *ClassificationMeta `json:"classification,omitempty"`
}

// EncodeRecord serializes an event into the framed record format. The event's
// ID is not part of the record; it lives in the key.
func EncodeRecord(ev Event) ([]byte, error) {
	meta, err := json.Marshal(recordMeta{
		ProducerApp:    ev.ProducerApp,
		SessionID:      ev.SessionID,
		Kind:           ev.Kind,
		Summary:        ev.Summary,
		Transcript:     ev.Transcript,
		Classification: ev.Classification,
	})
	if err != nil {
		return nil, err
	}

	header := make([]byte, 9, 9+len(meta))
	binary.BigEndian.PutUint64(header[:8], uint64(ev.TsMs))
	header[8] = byte(ev.Priority)
	header = append(header, meta...)

	out := make([]byte, 0, 10+len(header)+len(ev.Payload)+4)
	var tmp [10]byte
	n := binary.PutUvarint(tmp[:], uint64(len(header)))
	out = append(out, tmp[:n]...)
	out = append(out, header...)
	out = append(out, ev.Payload...)

	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, ev.Payload)
	var crcb [4]byte
	binary.BigEndian.PutUint32(crcb[:], crc)
	out = append(out, crcb[:]...)
	return out, nil
}

// DecodeRecord parses a framed record back into an Event with the given ID.
// Returns false on framing or checksum failure.
func DecodeRecord(id uint64, b []byte) (Event, bool) {
	if len(b) < 1+9+4 {
		return Event{}, false
	}
	hlen, n := binary.Uvarint(b)
	if n <= 0 || hlen < 9 {
		return Event{}, false
	}
	if n+int(hlen)+4 > len(b) {
		return Event{}, false
	}
	header := b[n : n+int(hlen)]
	payload := b[n+int(hlen) : len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	if crc != expect {
		return Event{}, false
	}

	var meta recordMeta
	if len(header) > 9 {
		if err := json.Unmarshal(header[9:], &meta); err != nil {
			return Event{}, false
		}
	}
	ev := Event{
		ID:             id,
		ProducerApp:    meta.ProducerApp,
		SessionID:      meta.SessionID,
		Kind:           meta.Kind,
		Summary:        meta.Summary,
		Transcript:     meta.Transcript,
		Classification: meta.Classification,
		TsMs:           int64(binary.BigEndian.Uint64(header[:8])),
		Priority:       int(header[8]),
	}
	if len(payload) > 0 {
		ev.Payload = append(json.RawMessage(nil), payload...)
	}
	return ev, true
}

// RecordTimestamp extracts the write timestamp from a framed record without
// decoding the whole event. Used by retention purging.
func RecordTimestamp(b []byte) (int64, bool) {
	hlen, n := binary.Uvarint(b)
	if n <= 0 || hlen < 9 || n+8 > len(b) {
		return 0, false
	}
	return int64(binary.BigEndian.Uint64(b[n : n+8])), true
}
