package objectsrepository

import (
	"context"
	"errors"
	"fmt"
)

// DefaultResolveDepth is the expansion depth used when no explicit depth
// is requested: enough to expand a compilation's models and, below each
// model, its related digital object.
const DefaultResolveDepth = 2

// service implements the Service interface
type service struct {
	entities     EntityStore
	accounts     AccountStore
	locks        *keyedLocks
	resolveDepth int
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithEntityStore sets the objects store for the service
func WithEntityStore(store EntityStore) Option {
	return func(s *service) {
		s.entities = store
	}
}

// WithAccountStore sets the accounts store for the service
func WithAccountStore(store AccountStore) Option {
	return func(s *service) {
		s.accounts = store
	}
}

// WithResolveDepth overrides the default expansion depth of the resolver
func WithResolveDepth(depth int) Option {
	return func(s *service) {
		s.resolveDepth = depth
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		locks:        newKeyedLocks(),
		resolveDepth: DefaultResolveDepth,
	}

	for _, option := range options {
		option(s)
	}

	if s.entities == nil {
		return nil, fmt.Errorf("entity store is required")
	}
	if s.accounts == nil {
		return nil, fmt.Errorf("account store is required")
	}

	return s, nil
}

// GetEntity fetches a single entity, resolved at the default depth.
// Password-protected compilations are redacted unless the requester owns
// them or supplies the matching password.
func (s *service) GetEntity(ctx context.Context, req FetchRequest) (Document, error) {
	if !req.Collection.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCollection, req.Collection)
	}

	doc, err := s.Resolve(ctx, req.Collection, req.ID)
	if err != nil {
		return nil, err
	}

	if req.Collection == CollectionCompilations {
		return s.gateCompilation(ctx, doc, req.Session, req.Password), nil
	}
	return doc, nil
}

// ListEntities fetches every entity of a collection. Protected
// compilations are redacted per requester; no password applies to lists.
func (s *service) ListEntities(ctx context.Context, req ListRequest) ([]Document, error) {
	if !req.Collection.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCollection, req.Collection)
	}

	docs, err := s.entities.All(ctx, req.Collection)
	if err != nil {
		return nil, &EntityError{Collection: req.Collection, Op: "list", Err: err}
	}

	if req.Collection == CollectionCompilations {
		for i, doc := range docs {
			docs[i] = s.gateCompilation(ctx, doc, req.Session, "")
		}
	}
	return docs, nil
}

// getAccount loads the account behind a session identity.
func (s *service) getAccount(ctx context.Context, username string) (*Account, error) {
	if username == "" {
		return nil, ErrAccountNotFound
	}
	account, err := s.accounts.GetAccount(ctx, username)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}
