package domain

import "time"

// RoutingEntry records one hand-off in the case's append-only routing history.
// Department is the destination of the hand-off. Entries are created exactly
// once per successful hand-off, in call order, and never edited or removed.
type RoutingEntry struct {
	Department Department
	SentByName string
	SentAt     time.Time
	Notes      string
}
