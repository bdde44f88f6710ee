package storagefile

import "github.com/mrshabel/flashq"

// recordOverheadBytes is the fixed per-record allowance for the 12-byte
// frame prefix, the serialised offset and timestamp, and the JSON
// braces, field names and quotes of a record with no key and no
// headers.
const recordOverheadBytes = 16 + 32 + 64

// estimateRecordSize estimates the serialised size of record, used to
// chunk append_batch writes under a byte budget. A key and each header
// add only their own lengths: the JSON field names and quotes around
// them, and characters that JSON escapes, are not counted, so the
// estimate can fall below the encoded size.
func estimateRecordSize(record flashq.Record) int {
	size := recordOverheadBytes + len(record.Value)
	if record.Key != nil {
		size += len(*record.Key)
	}
	for k, v := range record.Headers {
		size += len(k) + len(v)
	}
	return size
}
