package common

import "time"

// UTCNow is the clock for every stored timestamp. SQLite keeps times as
// text, so comparisons and ordering only hold when all values share UTC.
func UTCNow() time.Time {
	return time.Now().UTC()
}

// UTCPtr returns t converted to UTC, or nil.
func UTCPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
