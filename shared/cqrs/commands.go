package cqrs

type RegisterCommand struct {
	Username string
	Password string
}

type StoreSentenceCommand struct {
	Username string
	Password string
	Sentence string
}

type RetrieveSentenceCommand struct {
	Username string
	Password string
}
