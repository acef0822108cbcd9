package command

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sentencevault/sentence-service/internal/repository"
	"github.com/sentencevault/sentence-service/shared/cqrs"
	"github.com/sentencevault/sentence-service/shared/events"
	"github.com/sentencevault/sentence-service/shared/models"
	"github.com/sentencevault/sentence-service/shared/utils"
)

// AccountWriter is the write store: the source of truth for balances and sentences.
type AccountWriter interface {
	Create(ctx context.Context, account *models.Account) error
	SpendToken(ctx context.Context, username string, sentence *string) (*models.Account, error)
}

// AccountReader serves the views used for credential and balance pre-checks.
type AccountReader interface {
	GetByUsername(ctx context.Context, username string) (*models.AccountView, error)
	CacheAccount(ctx context.Context, account *models.Account)
	InvalidateAccount(ctx context.Context, username string)
}

type EventPublisher interface {
	Publish(ctx context.Context, stream, eventType string, data any) error
}

// AccountCommandService registers accounts and spends tokens on store and
// retrieve. Refusals come back as a cqrs.Result outcome; the error return is
// kept for duplicate usernames and storage failures.
type AccountCommandService struct {
	writeRepo AccountWriter
	readRepo  AccountReader
	publisher EventPublisher
	hashCost  int
	dummyHash string
}

func NewAccountCommandService(
	writeRepo AccountWriter,
	readRepo AccountReader,
	publisher EventPublisher,
	hashCost int,
) *AccountCommandService {
	// Unknown usernames are still compared against a hash so they take as
	// long to refuse as a wrong password.
	dummyHash, err := utils.HashPassword("sentence-vault", hashCost)
	if err != nil {
		log.Printf("Failed to prepare dummy password hash: %v", err)
	}
	return &AccountCommandService{
		writeRepo: writeRepo,
		readRepo:  readRepo,
		publisher: publisher,
		hashCost:  hashCost,
		dummyHash: dummyHash,
	}
}

func (s *AccountCommandService) Register(ctx context.Context, cmd cqrs.RegisterCommand) (cqrs.Result, error) {
	hash, err := utils.HashPassword(cmd.Password, s.hashCost)
	if err != nil {
		return cqrs.Result{}, err
	}
	now := time.Now().UTC()
	account := &models.Account{
		Username:     cmd.Username,
		PasswordHash: hash,
		Tokens:       models.StartingTokens,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.writeRepo.Create(ctx, account); err != nil {
		return cqrs.Result{}, err
	}

	s.readRepo.CacheAccount(ctx, account)
	s.publish(ctx, events.AccountRegistered, events.AccountRegisteredEvent{
		Username: account.Username,
		Tokens:   account.Tokens,
	})
	return cqrs.Result{Outcome: cqrs.OutcomeOK}, nil
}

// Store replaces the account's sentence and spends one token.
func (s *AccountCommandService) Store(ctx context.Context, cmd cqrs.StoreSentenceCommand) (cqrs.Result, error) {
	sentence := cmd.Sentence
	account, outcome, err := s.spend(ctx, cmd.Username, cmd.Password, &sentence)
	if err != nil || outcome != cqrs.OutcomeOK {
		return cqrs.Result{Outcome: outcome}, err
	}

	s.publish(ctx, events.SentenceStored, events.SentenceStoredEvent{
		Username:   account.Username,
		TokensLeft: account.Tokens,
	})
	return cqrs.Result{Outcome: cqrs.OutcomeOK}, nil
}

// Retrieve spends one token and returns the last stored sentence, which is
// empty if nothing was stored yet.
func (s *AccountCommandService) Retrieve(ctx context.Context, cmd cqrs.RetrieveSentenceCommand) (cqrs.Result, error) {
	account, outcome, err := s.spend(ctx, cmd.Username, cmd.Password, nil)
	if err != nil || outcome != cqrs.OutcomeOK {
		return cqrs.Result{Outcome: outcome}, err
	}

	s.publish(ctx, events.SentenceRetrieved, events.SentenceRetrievedEvent{
		Username:   account.Username,
		TokensLeft: account.Tokens,
	})
	return cqrs.Result{Outcome: cqrs.OutcomeOK, Sentence: account.Sentence}, nil
}

// spend checks credentials, then the balance, then takes a token. Nothing is
// written unless both checks pass.
func (s *AccountCommandService) spend(ctx context.Context, username, password string, sentence *string) (*models.Account, cqrs.Outcome, error) {
	outcome, err := s.authorize(ctx, username, password)
	if err != nil || outcome != cqrs.OutcomeOK {
		return nil, outcome, err
	}

	account, err := s.writeRepo.SpendToken(ctx, username, sentence)
	switch {
	case errors.Is(err, repository.ErrNoTokens):
		// The cached balance was stale; a concurrent request took the last token.
		s.readRepo.InvalidateAccount(ctx, username)
		return nil, cqrs.OutcomeOutOfTokens, nil
	case errors.Is(err, repository.ErrNotFound):
		s.readRepo.InvalidateAccount(ctx, username)
		return nil, cqrs.OutcomeInvalidCredentials, nil
	case err != nil:
		return nil, cqrs.OutcomeOK, err
	}

	s.readRepo.CacheAccount(ctx, account)
	return account, cqrs.OutcomeOK, nil
}

func (s *AccountCommandService) authorize(ctx context.Context, username, password string) (cqrs.Outcome, error) {
	view, err := s.readRepo.GetByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		utils.CheckPassword(password, s.dummyHash)
		return cqrs.OutcomeInvalidCredentials, nil
	}
	if err != nil {
		return cqrs.OutcomeOK, err
	}
	if !utils.CheckPassword(password, view.PasswordHash) {
		return cqrs.OutcomeInvalidCredentials, nil
	}
	if view.Tokens <= 0 {
		return cqrs.OutcomeOutOfTokens, nil
	}
	return cqrs.OutcomeOK, nil
}

func (s *AccountCommandService) publish(ctx context.Context, eventType string, data any) {
	if err := s.publisher.Publish(ctx, events.AccountEventsStream, eventType, data); err != nil {
		log.Printf("Failed to publish %s event: %v", eventType, err)
	}
}
