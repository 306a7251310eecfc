package model

import "time"

// RawMessage is a single message as returned by a mailbox, before decoding.
type RawMessage struct {
	ID         string
	Hash       string
	From       string
	Subject    string
	ReceivedAt time.Time
	Size       int64
	Raw        []byte
}

// Criteria selects candidate messages in a mailbox. Since is a calendar-day
// lower bound; only the date part is significant.
type Criteria struct {
	From    string
	Subject string
	Since   time.Time
}
