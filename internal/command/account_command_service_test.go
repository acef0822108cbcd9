package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/sentencevault/sentence-service/internal/repository"
	"github.com/sentencevault/sentence-service/shared/cqrs"
	"github.com/sentencevault/sentence-service/shared/events"
	"github.com/sentencevault/sentence-service/shared/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// memStore stands in for both the write store and the read model.
type memStore struct {
	mu          sync.Mutex
	accounts    map[string]models.Account
	staleTokens map[string]int
	spendErr    error
	getErr      error
	invalidated []string
}

func newMemStore() *memStore {
	return &memStore{accounts: map[string]models.Account{}, staleTokens: map[string]int{}}
}

func (m *memStore) Create(_ context.Context, account *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[account.Username]; ok {
		return repository.ErrDuplicateUser
	}
	m.accounts[account.Username] = *account
	return nil
}

func (m *memStore) SpendToken(_ context.Context, username string, sentence *string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.spendErr != nil {
		return nil, m.spendErr
	}
	account, ok := m.accounts[username]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if account.Tokens <= 0 {
		return nil, repository.ErrNoTokens
	}
	account.Tokens--
	if sentence != nil {
		account.Sentence = *sentence
	}
	m.accounts[username] = account
	return &account, nil
}

func (m *memStore) GetByUsername(_ context.Context, username string) (*models.AccountView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	account, ok := m.accounts[username]
	if !ok {
		return nil, repository.ErrNotFound
	}
	view := repository.AccountToView(&account)
	if tokens, ok := m.staleTokens[username]; ok {
		view.Tokens = tokens
	}
	return view, nil
}

func (m *memStore) CacheAccount(context.Context, *models.Account) {}

func (m *memStore) InvalidateAccount(_ context.Context, username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, username)
	delete(m.staleTokens, username)
}

func (m *memStore) account(t *testing.T, username string) models.Account {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[username]
	require.True(t, ok, "account %s should exist", username)
	return account
}

type recordingPublisher struct {
	mu     sync.Mutex
	err    error
	events []string
}

func (p *recordingPublisher) Publish(_ context.Context, stream, eventType string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, stream+"/"+eventType)
	return nil
}

func newTestService(t *testing.T) (*AccountCommandService, *memStore, *recordingPublisher) {
	t.Helper()
	store := newMemStore()
	publisher := &recordingPublisher{}
	return NewAccountCommandService(store, store, publisher, bcrypt.MinCost), store, publisher
}

func register(t *testing.T, svc *AccountCommandService, username, password string) {
	t.Helper()
	result, err := svc.Register(context.Background(), cqrs.RegisterCommand{Username: username, Password: password})
	require.NoError(t, err)
	require.Equal(t, cqrs.OutcomeOK, result.Outcome)
}

func store(t *testing.T, svc *AccountCommandService, username, password, sentence string) cqrs.Outcome {
	t.Helper()
	result, err := svc.Store(context.Background(), cqrs.StoreSentenceCommand{
		Username: username, Password: password, Sentence: sentence,
	})
	require.NoError(t, err)
	return result.Outcome
}

func retrieve(t *testing.T, svc *AccountCommandService, username, password string) cqrs.Result {
	t.Helper()
	result, err := svc.Retrieve(context.Background(), cqrs.RetrieveSentenceCommand{Username: username, Password: password})
	require.NoError(t, err)
	return result
}

func TestRegister_GrantsStartingTokens(t *testing.T) {
	svc, mem, publisher := newTestService(t)

	register(t, svc, "alice", "pw")

	account := mem.account(t, "alice")
	assert.Equal(t, models.StartingTokens, account.Tokens)
	assert.Empty(t, account.Sentence)
	assert.NotEqual(t, "pw", account.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte("pw")))
	assert.Equal(t, []string{"account.events/account.registered"}, publisher.events)
}

func TestRegister_DuplicateUsername(t *testing.T) {
	svc, mem, _ := newTestService(t)
	register(t, svc, "alice", "pw")
	store(t, svc, "alice", "pw", "keep me")

	_, err := svc.Register(context.Background(), cqrs.RegisterCommand{Username: "alice", Password: "other"})

	assert.ErrorIs(t, err, repository.ErrDuplicateUser)
	account := mem.account(t, "alice")
	assert.Equal(t, "keep me", account.Sentence)
	assert.Equal(t, 5, account.Tokens)
}

func TestRegister_PasswordOverByteLimit(t *testing.T) {
	svc, mem, _ := newTestService(t)

	_, err := svc.Register(context.Background(), cqrs.RegisterCommand{
		Username: "alice", Password: strings.Repeat("€", 30),
	})

	assert.ErrorIs(t, err, bcrypt.ErrPasswordTooLong)
	assert.Empty(t, mem.accounts)
}

func TestRegister_SamePasswordDistinctHashes(t *testing.T) {
	svc, mem, _ := newTestService(t)
	register(t, svc, "alice", "shared")
	register(t, svc, "bob", "shared")

	assert.NotEqual(t, mem.account(t, "alice").PasswordHash, mem.account(t, "bob").PasswordHash)
}

func TestStore_SpendsOneToken(t *testing.T) {
	svc, mem, publisher := newTestService(t)
	register(t, svc, "alice", "pw")

	assert.Equal(t, cqrs.OutcomeOK, store(t, svc, "alice", "pw", "hello"))

	account := mem.account(t, "alice")
	assert.Equal(t, 5, account.Tokens)
	assert.Equal(t, "hello", account.Sentence)
	assert.Contains(t, publisher.events, "account.events/sentence.stored")
}

func TestStore_WrongPasswordLeavesState(t *testing.T) {
	svc, mem, _ := newTestService(t)
	register(t, svc, "alice", "pw")
	store(t, svc, "alice", "pw", "original")

	assert.Equal(t, cqrs.OutcomeInvalidCredentials, store(t, svc, "alice", "nope", "overwrite"))
	assert.Equal(t, cqrs.OutcomeInvalidCredentials, retrieve(t, svc, "alice", "nope").Outcome)

	account := mem.account(t, "alice")
	assert.Equal(t, 5, account.Tokens)
	assert.Equal(t, "original", account.Sentence)
}

func TestStore_UnknownUser(t *testing.T) {
	svc, _, publisher := newTestService(t)

	assert.Equal(t, cqrs.OutcomeInvalidCredentials, store(t, svc, "ghost", "pw", "hi"))
	assert.Equal(t, cqrs.OutcomeInvalidCredentials, retrieve(t, svc, "ghost", "pw").Outcome)
	assert.Empty(t, publisher.events)
}

func TestStore_SeventhStoreRunsOutOfTokens(t *testing.T) {
	svc, mem, _ := newTestService(t)
	register(t, svc, "alice", "pw")

	for i := 1; i <= models.StartingTokens; i++ {
		require.Equal(t, cqrs.OutcomeOK, store(t, svc, "alice", "pw", fmt.Sprintf("s%d", i)))
	}

	assert.Equal(t, cqrs.OutcomeOutOfTokens, store(t, svc, "alice", "pw", "s7"))
	assert.Equal(t, cqrs.OutcomeOutOfTokens, retrieve(t, svc, "alice", "pw").Outcome)

	account := mem.account(t, "alice")
	assert.Equal(t, 0, account.Tokens)
	assert.Equal(t, "s6", account.Sentence)
}

func TestStoreThenRetrieve(t *testing.T) {
	svc, mem, _ := newTestService(t)
	register(t, svc, "alice", "pw")

	require.Equal(t, cqrs.OutcomeOK, store(t, svc, "alice", "pw", "hello"))
	result := retrieve(t, svc, "alice", "pw")

	assert.Equal(t, cqrs.OutcomeOK, result.Outcome)
	assert.Equal(t, "hello", result.Sentence)
	assert.Equal(t, 4, mem.account(t, "alice").Tokens)
}

func TestRetrieve_BeforeAnyStore(t *testing.T) {
	svc, mem, _ := newTestService(t)
	register(t, svc, "alice", "pw")

	result := retrieve(t, svc, "alice", "pw")

	assert.Equal(t, cqrs.OutcomeOK, result.Outcome)
	assert.Equal(t, "", result.Sentence)
	assert.Equal(t, 5, mem.account(t, "alice").Tokens)
}

func TestRetrieve_LeavesSentence(t *testing.T) {
	svc, mem, _ := newTestService(t)
	register(t, svc, "alice", "pw")
	store(t, svc, "alice", "pw", "stable")

	first := retrieve(t, svc, "alice", "pw")
	second := retrieve(t, svc, "alice", "pw")

	assert.Equal(t, "stable", first.Sentence)
	assert.Equal(t, "stable", second.Sentence)
	assert.Equal(t, 3, mem.account(t, "alice").Tokens)
}

func TestTokensNeverNegative(t *testing.T) {
	svc, mem, _ := newTestService(t)
	register(t, svc, "alice", "pw")

	for i := 0; i < 10; i++ {
		if i%2 == 0 {
			store(t, svc, "alice", "pw", "x")
		} else {
			retrieve(t, svc, "alice", "pw")
		}
		assert.GreaterOrEqual(t, mem.account(t, "alice").Tokens, 0)
	}
}

func TestConcurrentSpendsStopAtZero(t *testing.T) {
	svc, mem, _ := newTestService(t)
	register(t, svc, "alice", "pw")

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		oks int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := svc.Retrieve(context.Background(), cqrs.RetrieveSentenceCommand{Username: "alice", Password: "pw"})
			if err != nil || result.Outcome != cqrs.OutcomeOK {
				return
			}
			mu.Lock()
			oks++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, models.StartingTokens, oks)
	assert.Equal(t, 0, mem.account(t, "alice").Tokens)
}

func TestStore_StaleViewRefusedByWriteStore(t *testing.T) {
	svc, mem, _ := newTestService(t)
	register(t, svc, "alice", "pw")
	for i := 0; i < models.StartingTokens; i++ {
		store(t, svc, "alice", "pw", "x")
	}
	mem.staleTokens["alice"] = 2

	assert.Equal(t, cqrs.OutcomeOutOfTokens, store(t, svc, "alice", "pw", "late"))
	assert.Equal(t, []string{"alice"}, mem.invalidated)
	assert.Equal(t, "x", mem.account(t, "alice").Sentence)
}

func TestStore_StorageFailure(t *testing.T) {
	svc, mem, _ := newTestService(t)
	register(t, svc, "alice", "pw")
	mem.spendErr = fmt.Errorf("failed to spend token: %w", repository.ErrStorageUnavailable)

	_, err := svc.Store(context.Background(), cqrs.StoreSentenceCommand{Username: "alice", Password: "pw", Sentence: "x"})
	assert.ErrorIs(t, err, repository.ErrStorageUnavailable)

	mem.spendErr = nil
	mem.getErr = fmt.Errorf("failed to get account: %w", repository.ErrStorageUnavailable)
	_, err = svc.Retrieve(context.Background(), cqrs.RetrieveSentenceCommand{Username: "alice", Password: "pw"})
	assert.ErrorIs(t, err, repository.ErrStorageUnavailable)
}

func TestPublishFailureDoesNotFailCommand(t *testing.T) {
	svc, mem, publisher := newTestService(t)
	publisher.err = errors.New("redis down")

	register(t, svc, "alice", "pw")
	assert.Equal(t, cqrs.OutcomeOK, store(t, svc, "alice", "pw", "hello"))
	assert.Equal(t, 5, mem.account(t, "alice").Tokens)
	assert.Empty(t, publisher.events)
}

func TestUsageDeltaCoversAccountEvents(t *testing.T) {
	for _, eventType := range []string{events.AccountRegistered, events.SentenceStored, events.SentenceRetrieved} {
		_, ok := usageDelta(eventType)
		assert.True(t, ok, eventType)
	}
}
