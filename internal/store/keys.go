package store

import "encoding/binary"

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
// - ev/m                           meta: lastID + bucket counters
// - ev/e/{id_be8}                  primary event record
// - ev/b/{bucket}/{ts_be8}{id_be8} bucket index (0 regular, 1 priority); value = session id
// - ev/s/{session}/{ts_be8}{id_be8} session index; value empty
//
// The fixed-width big-endian suffixes make timestamp ranges plain key ranges,
// and let scans recover (ts, id) from the key tail without decoding records.

const (
	// BucketRegular indexes tier-0 events; BucketPriority indexes tiers 1-3.
	BucketRegular byte = 0
	BucketPriority byte = 1
)

var (
	sep           = byte('/')
	metaKeyBytes  = []byte("ev/m")
	eventPrefix   = []byte("ev/e/")
	bucketPrefix  = []byte("ev/b/")
	sessionPrefix = []byte("ev/s/")
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// keyMeta returns the store metadata key.
func keyMeta() []byte { return metaKeyBytes }

// keyEvent builds the primary record key for an event id.
func keyEvent(id uint64) []byte {
	k := make([]byte, 0, len(eventPrefix)+8)
	k = append(k, eventPrefix...)
	return appendBE8(k, id)
}

// keyBucket builds the bucket index key for (bucket, ts, id).
func keyBucket(bucket byte, tsMs int64, id uint64) []byte {
	k := keyBucketTsPrefix(bucket, tsMs)
	return appendBE8(k, id)
}

// keyBucketTsPrefix builds the bucket index key prefix up to and including the
// timestamp; useful as a scan bound.
func keyBucketTsPrefix(bucket byte, tsMs int64) []byte {
	k := make([]byte, 0, len(bucketPrefix)+2+16)
	k = append(k, bucketPrefix...)
	k = append(k, bucket, sep)
	return appendBE8(k, uint64(tsMs))
}

// keyBucketScanPrefix returns the prefix covering a whole bucket.
func keyBucketScanPrefix(bucket byte) []byte {
	k := make([]byte, 0, len(bucketPrefix)+2)
	k = append(k, bucketPrefix...)
	return append(k, bucket, sep)
}

// keySession builds the session index key for (session, ts, id).
func keySession(sessionID string, tsMs int64, id uint64) []byte {
	k := keySessionScanPrefix(sessionID)
	k = appendBE8(k, uint64(tsMs))
	return appendBE8(k, id)
}

// keySessionScanPrefix returns the prefix covering a whole session.
func keySessionScanPrefix(sessionID string) []byte {
	k := make([]byte, 0, len(sessionPrefix)+len(sessionID)+1+16)
	k = append(k, sessionPrefix...)
	k = append(k, sessionID...)
	return append(k, sep)
}

// indexKeyTail recovers (ts, id) from the fixed-width tail of an index key.
func indexKeyTail(key []byte) (tsMs int64, id uint64, ok bool) {
	if len(key) < 16 {
		return 0, 0, false
	}
	tail := key[len(key)-16:]
	return int64(binary.BigEndian.Uint64(tail[:8])), binary.BigEndian.Uint64(tail[8:]), true
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix.
func prefixUpperBound(prefix []byte) []byte {
	ub := append([]byte(nil), prefix...)
	for i := len(ub) - 1; i >= 0; i-- {
		if ub[i] != 0xff {
			ub[i]++
			return ub[:i+1]
		}
	}
	return nil
}

// bucketFor maps a priority tier onto its index bucket.
func bucketFor(priority int) byte {
	if priority > 0 {
		return BucketPriority
	}
	return BucketRegular
}
