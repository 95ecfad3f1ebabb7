package models

import "time"

const (
	ReferralEventStart    = "start"
	ReferralEventComplete = "complete"
	ReferralEventClaim    = "claim"
)

// ReferralEvent is pushed to the redis outbox whenever a user's
// active-mining status changes; the worker re-rates that user's referrer.
type ReferralEvent struct {
	UserID int64     `msgpack:"user_id" json:"user_id"`
	Reason string    `msgpack:"reason" json:"reason"`
	At     time.Time `msgpack:"at" json:"at"`
}
