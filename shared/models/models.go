package models

import "time"

// StartingTokens is the quota granted to every new account.
const StartingTokens = 6

// Account is the write model of a registered user. PasswordHash is a bcrypt
// digest and is never serialised.
type Account struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Tokens       int       `json:"tokens"`
	Sentence     string    `json:"sentence"`
	CreatedAt    time.Time `json:"createdTimestamp"`
	UpdatedAt    time.Time `json:"updatedTimestamp"`
}

// AccountPatch lists the fields an update may touch. Nil fields are left as they are.
type AccountPatch struct {
	Sentence *string
	Tokens   *int
}

// IsEmpty reports whether the patch sets no field.
func (p AccountPatch) IsEmpty() bool {
	return p.Sentence == nil && p.Tokens == nil
}
