package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/DH-Cologne/ObjectsRepositoryServer/pkg/objectsrepository"
)

// EntityStore implements objectsrepository.EntityStore with in-memory
// maps, one per collection.
type EntityStore struct {
	mu          sync.RWMutex
	collections map[objectsrepository.Collection]map[string]objectsrepository.Document
}

// NewEntityStore creates a new in-memory entity store
func NewEntityStore() objectsrepository.EntityStore {
	return &EntityStore{
		collections: make(map[objectsrepository.Collection]map[string]objectsrepository.Document),
	}
}

func (s *EntityStore) Upsert(ctx context.Context, collection objectsrepository.Collection, id string, doc objectsrepository.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string]objectsrepository.Document)
		s.collections[collection] = docs
	}

	// Store a copy keyed by id; the identifier field itself is not part
	// of the stored payload.
	stored := doc.Clone()
	delete(stored, objectsrepository.FieldID)
	docs[id] = stored

	return nil
}

func (s *EntityStore) Get(ctx context.Context, collection objectsrepository.Collection, id string) (objectsrepository.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, objectsrepository.ErrNotFound
	}

	out := doc.Clone()
	out.SetID(id)
	return out, nil
}

func (s *EntityStore) All(ctx context.Context, collection objectsrepository.Collection) ([]objectsrepository.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := s.collections[collection]
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := make([]objectsrepository.Document, 0, len(ids))
	for _, id := range ids {
		out := docs[id].Clone()
		out.SetID(id)
		result = append(result, out)
	}
	return result, nil
}

func (s *EntityStore) Delete(ctx context.Context, collection objectsrepository.Collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection][id]; !ok {
		return objectsrepository.ErrNotFound
	}
	delete(s.collections[collection], id)
	return nil
}

// AccountStore implements objectsrepository.AccountStore in memory.
type AccountStore struct {
	mu       sync.RWMutex
	accounts map[string]*objectsrepository.Account
}

// NewAccountStore creates a new in-memory account store
func NewAccountStore() objectsrepository.AccountStore {
	return &AccountStore{accounts: make(map[string]*objectsrepository.Account)}
}

func (s *AccountStore) GetAccount(ctx context.Context, username string) (*objectsrepository.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[username]
	if !ok {
		return nil, objectsrepository.ErrAccountNotFound
	}
	return account.Clone(), nil
}

func (s *AccountStore) SaveAccount(ctx context.Context, account *objectsrepository.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[account.Username] = account.Clone()
	return nil
}

func (s *AccountStore) AllAccounts(ctx context.Context) ([]*objectsrepository.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	usernames := make([]string, 0, len(s.accounts))
	for username := range s.accounts {
		usernames = append(usernames, username)
	}
	sort.Strings(usernames)

	result := make([]*objectsrepository.Account, 0, len(usernames))
	for _, username := range usernames {
		result = append(result, s.accounts[username].Clone())
	}
	return result, nil
}
