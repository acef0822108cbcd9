package models

import "time"

// AccountView is the read-optimised projection of an account kept in Redis.
// It carries the password hash for credential checks and deliberately omits the
// sentence, which is only ever read back from the write store after a token spend.
type AccountView struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"passwordHash"`
	Tokens       int       `json:"tokens"`
	UpdatedAt    time.Time `json:"updatedTimestamp"`
}

// UsageView is the aggregate usage projection built from account events.
type UsageView struct {
	Registrations      int64 `json:"registrations"`
	SentencesStored    int64 `json:"sentencesStored"`
	SentencesRetrieved int64 `json:"sentencesRetrieved"`
	TokensSpent        int64 `json:"tokensSpent"`
}
