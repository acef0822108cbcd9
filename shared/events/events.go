package events

import "time"

// Event types
const (
	AccountRegistered = "account.registered"
	SentenceStored    = "sentence.stored"
	SentenceRetrieved = "sentence.retrieved"
)

// Stream names
const (
	AccountEventsStream = "account.events"
)

// Event is the envelope written to a stream. ID is unique per publish and lets
// consumers drop redeliveries.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Account events. None of them carries the sentence itself.
type AccountRegisteredEvent struct {
	Username string `json:"username"`
	Tokens   int    `json:"tokens"`
}

type SentenceStoredEvent struct {
	Username   string `json:"username"`
	TokensLeft int    `json:"tokensLeft"`
}

type SentenceRetrievedEvent struct {
	Username   string `json:"username"`
	TokensLeft int    `json:"tokensLeft"`
}
