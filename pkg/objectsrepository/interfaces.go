package objectsrepository

import "context"

// EntityStore defines collection-oriented access to the objects store.
// Implementations carry no business logic.
//
// Upsert persists doc under id in the given collection, creating the
// document when absent and replacing it otherwise. The identifier field
// itself is never part of the written payload; implementations key the
// document by id and re-inject "_id" on read. The per-document upsert is
// atomic; no cross-document transaction is offered.
type EntityStore interface {
	Upsert(ctx context.Context, collection Collection, id string, doc Document) error
	Get(ctx context.Context, collection Collection, id string) (Document, error)
	All(ctx context.Context, collection Collection) ([]Document, error)
	Delete(ctx context.Context, collection Collection, id string) error
}

// AccountStore defines access to the accounts store, one record per
// session-bound owner.
type AccountStore interface {
	GetAccount(ctx context.Context, username string) (*Account, error)
	SaveAccount(ctx context.Context, account *Account) error
	AllAccounts(ctx context.Context) ([]*Account, error)
}
