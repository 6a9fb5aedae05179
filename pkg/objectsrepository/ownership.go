package objectsrepository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// accountForSession loads the session's account record, creating a
// minimal one on first contact. Session establishment itself happens at
// the authentication boundary; the core only keeps the owner bookkeeping.
func (s *service) accountForSession(ctx context.Context, session Session) (*Account, error) {
	if session.Username == "" {
		return nil, fmt.Errorf("%w: session without username", ErrValidation)
	}

	account, err := s.accounts.GetAccount(ctx, session.Username)
	if err == nil {
		// A returning owner under a fresh session must be able to pass
		// the delete gate even when nothing else changes the account, so
		// the refreshed identifier is persisted right away.
		if session.SessionID != "" && account.SessionID != session.SessionID {
			account.SessionID = session.SessionID
			if err := s.accounts.SaveAccount(ctx, account); err != nil {
				return nil, err
			}
		}
		return account, nil
	}
	if !errors.Is(err, ErrAccountNotFound) && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	account = &Account{
		Username:  session.Username,
		Role:      AccountRoleUser,
		SessionID: session.SessionID,
		Data:      make(map[string][]string),
	}
	if err := s.accounts.SaveAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// recordOwnership appends every reference of the ledger to the session's
// account data, idempotently, and saves the account once.
func (s *service) recordOwnership(ctx context.Context, session Session, ledger *referenceLedger) error {
	account, err := s.accountForSession(ctx, session)
	if err != nil {
		return err
	}

	changed := false
	collections := maps.Keys(ledger.refs)
	slices.Sort(collections)
	for _, collection := range collections {
		key := string(collection)
		for _, id := range ledger.refs[collection] {
			if !slices.Contains(account.Data[key], id) {
				account.Data[key] = append(account.Data[key], id)
				changed = true
			}
		}
	}

	if !changed {
		return nil
	}
	return s.accounts.SaveAccount(ctx, account)
}

// Attach links an already-stored entity to the session's account data.
// Attaching an entity twice is a no-op.
func (s *service) Attach(ctx context.Context, req AttachRequest) error {
	if !req.Collection.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidCollection, req.Collection)
	}
	if !ValidID(req.ID) {
		return fmt.Errorf("%w: invalid identifier %q", ErrNotFound, req.ID)
	}

	if _, err := s.entities.Get(ctx, req.Collection, req.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, req.Collection, req.ID)
		}
		return &EntityError{Collection: req.Collection, ID: req.ID, Op: "attach", Err: err}
	}

	account, err := s.accountForSession(ctx, req.Session)
	if err != nil {
		return err
	}

	key := string(req.Collection)
	if slices.Contains(account.Data[key], req.ID) {
		return nil
	}
	account.Data[key] = append(account.Data[key], req.ID)

	return s.accounts.SaveAccount(ctx, account)
}

// DeleteEntity removes an owned entity from storage and prunes it from
// the owner's account data. The requester's identity is re-derived from
// the session, never taken from the request body; failures are reported
// without detail.
func (s *service) DeleteEntity(ctx context.Context, req DeleteRequest) error {
	if !req.Collection.Valid() || !req.Collection.Deletable() {
		return fmt.Errorf("%w: collection %s cannot be deleted from", ErrValidation, req.Collection)
	}
	if !ValidID(req.ID) {
		return fmt.Errorf("%w: invalid identifier %q", ErrNotFound, req.ID)
	}

	account, err := s.getAccount(ctx, req.Session.Username)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrPermissionDenied
		}
		return err
	}

	if account.SessionID == "" || account.SessionID != req.Session.SessionID {
		return ErrPermissionDenied
	}
	if account.Role != AccountRoleAdmin && !account.Owns(req.ID) {
		return ErrPermissionDenied
	}

	if err := s.entities.Delete(ctx, req.Collection, req.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, req.Collection, req.ID)
		}
		return &EntityError{Collection: req.Collection, ID: req.ID, Op: "delete", Err: err}
	}

	if pruneAccountData(account, req.ID) {
		if err := s.accounts.SaveAccount(ctx, account); err != nil {
			return &EntityError{Collection: req.Collection, ID: req.ID, Op: "delete", Err: err}
		}
	}

	slog.Info("deleted entity", "collection", req.Collection, "id", req.ID, "username", account.Username)
	return nil
}

// pruneAccountData removes id from every data array of the account.
func pruneAccountData(account *Account, id string) bool {
	changed := false
	for key, ids := range account.Data {
		kept := slices.DeleteFunc(slices.Clone(ids), func(e string) bool { return e == id })
		if len(kept) != len(ids) {
			account.Data[key] = kept
			changed = true
		}
	}
	return changed
}

// OwnedData resolves the session's account data map in full. Dangling
// references are dropped and the pruned arrays written back; resolved
// model entries are annotated with the usernames of every account owning
// them.
func (s *service) OwnedData(ctx context.Context, session Session) (map[string][]Document, error) {
	account, err := s.getAccount(ctx, session.Username)
	if err != nil {
		return nil, err
	}

	result := make(map[string][]Document, len(account.Data))
	changed := false

	keys := maps.Keys(account.Data)
	slices.Sort(keys)
	for _, key := range keys {
		collection := Collection(key)
		if !collection.Valid() {
			continue
		}

		kept := make([]string, 0, len(account.Data[key]))
		docs := make([]Document, 0, len(account.Data[key]))
		for _, id := range account.Data[key] {
			doc, err := s.Resolve(ctx, collection, id)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					changed = true
					continue
				}
				return nil, err
			}
			kept = append(kept, id)
			docs = append(docs, doc)
		}

		account.Data[key] = kept
		result[key] = docs
	}

	if models := result[string(CollectionModels)]; len(models) > 0 {
		if err := s.annotateModelOwners(ctx, models); err != nil {
			return nil, err
		}
	}

	if changed {
		if err := s.accounts.SaveAccount(ctx, account); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// annotateModelOwners attaches the sorted list of owning usernames to
// each resolved model document.
func (s *service) annotateModelOwners(ctx context.Context, models []Document) error {
	accounts, err := s.accounts.AllAccounts(ctx)
	if err != nil {
		return err
	}

	ownersByModel := make(map[string][]string)
	for _, account := range accounts {
		for _, id := range account.Data[string(CollectionModels)] {
			ownersByModel[id] = append(ownersByModel[id], account.Username)
		}
	}

	for _, model := range models {
		owners := ownersByModel[model.ID()]
		slices.Sort(owners)
		model["owners"] = owners
	}
	return nil
}

// gateCompilation applies the password gate: a protected compilation is
// returned in full only to its owner or to a caller supplying the
// matching password. Everyone else gets a redacted marker; the denial
// carries no detail about the body.
func (s *service) gateCompilation(ctx context.Context, doc Document, session Session, password string) Document {
	stored := doc.StringField("password")
	if stored == "" {
		return doc
	}
	if password != "" && password == stored {
		return doc
	}

	if session.Username != "" {
		if doc.StringField("related_owner") == session.Username {
			return doc
		}
		if account, err := s.getAccount(ctx, session.Username); err == nil && account.Owns(doc.ID()) {
			return doc
		}
	}

	return Document{
		FieldID:              doc.ID(),
		FieldKind:            string(CollectionCompilations),
		"password_protected": true,
	}
}
