package storagefile

import "time"

// nowTimestamp returns the current instant formatted as the RFC-3339
// UTC string the core assigns to every record at append time.
func nowTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func timestampToMillis(ts string) (int64, error) {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}

func millisToTimestamp(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339Nano)
}
