package surreal

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	surrealdb "github.com/surrealdb/surrealdb.go"

	"github.com/DH-Cologne/ObjectsRepositoryServer/pkg/objectsrepository"
)

// Repository implements objectsrepository.EntityStore and
// objectsrepository.AccountStore over the SurrealDB HTTP API. Each
// collection maps to a table; accounts live in the "ldap" table. Surreal
// record ids take the form "table:id", so identifiers are stripped back
// to the bare id on the way out.
type Repository struct {
	client surrealdb.Client
}

// New creates a repository over an existing SurrealDB client.
func New(client surrealdb.Client) *Repository {
	return &Repository{client: client}
}

// Connect builds the client from connection parameters and returns the
// repository. The HTTP API is stateless, so there is nothing to dial.
func Connect(url, ns, db, user, pass string) *Repository {
	return New(surrealdb.NewClient(url, ns, db, user, pass))
}

func storeErr(op string, err error) error {
	return &objectsrepository.StoreError{Backend: "surrealdb", Op: op, Err: err}
}

func checkResponse(op string, resp surrealdb.Response) error {
	if resp.Status != "" && !strings.EqualFold(resp.Status, "OK") {
		return storeErr(op, fmt.Errorf("%s: %w", resp.Status, objectsrepository.ErrStoreFailure))
	}
	return nil
}

// records coerces a response result into its record maps. Surreal
// returns every statement result as an array.
func records(result interface{}) []map[string]interface{} {
	entries, ok := result.([]interface{})
	if !ok {
		if single, ok := result.(map[string]interface{}); ok {
			return []map[string]interface{}{single}
		}
		return nil
	}
	out := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		if record, ok := entry.(map[string]interface{}); ok {
			out = append(out, record)
		}
	}
	return out
}

// recordID strips the "table:" prefix from a surreal record id.
func recordID(record map[string]interface{}) string {
	raw, _ := record["id"].(string)
	if i := strings.IndexByte(raw, ':'); i >= 0 {
		return raw[i+1:]
	}
	return raw
}

func documentFromRecord(record map[string]interface{}, id string) objectsrepository.Document {
	doc := objectsrepository.Document(record).Clone()
	delete(doc, "id")
	doc.SetID(id)
	return doc
}

// Entity operations

func (r *Repository) Upsert(ctx context.Context, collection objectsrepository.Collection, id string, doc objectsrepository.Document) error {
	stored := doc.Clone()
	delete(stored, objectsrepository.FieldID)

	resp, err := r.client.ReplaceOne(string(collection), id, map[string]any(stored))
	if err != nil {
		return storeErr("upsert entity", err)
	}
	return checkResponse("upsert entity", resp)
}

func (r *Repository) Get(ctx context.Context, collection objectsrepository.Collection, id string) (objectsrepository.Document, error) {
	resp, err := r.client.SelectOne(string(collection), id)
	if err != nil {
		return nil, storeErr("get entity", err)
	}
	if err := checkResponse("get entity", resp); err != nil {
		return nil, err
	}

	found := records(resp.Result)
	if len(found) == 0 {
		return nil, objectsrepository.ErrNotFound
	}
	return documentFromRecord(found[0], id), nil
}

func (r *Repository) All(ctx context.Context, collection objectsrepository.Collection) ([]objectsrepository.Document, error) {
	resp, err := r.client.SelectAll(string(collection))
	if err != nil {
		return nil, storeErr("list entities", err)
	}
	if err := checkResponse("list entities", resp); err != nil {
		return nil, err
	}

	found := records(resp.Result)
	result := make([]objectsrepository.Document, 0, len(found))
	for _, record := range found {
		id := recordID(record)
		if id == "" {
			continue
		}
		result = append(result, documentFromRecord(record, id))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID() < result[j].ID() })
	return result, nil
}

func (r *Repository) Delete(ctx context.Context, collection objectsrepository.Collection, id string) error {
	// DeleteOne does not report whether anything was removed.
	if _, err := r.Get(ctx, collection, id); err != nil {
		return err
	}

	resp, err := r.client.DeleteOne(string(collection), id)
	if err != nil {
		return storeErr("delete entity", err)
	}
	return checkResponse("delete entity", resp)
}

// Account operations

func (r *Repository) GetAccount(ctx context.Context, username string) (*objectsrepository.Account, error) {
	resp, err := r.client.SelectOne(objectsrepository.AccountCollection, username)
	if err != nil {
		return nil, storeErr("get account", err)
	}
	if err := checkResponse("get account", resp); err != nil {
		return nil, err
	}

	found := records(resp.Result)
	if len(found) == 0 {
		return nil, objectsrepository.ErrAccountNotFound
	}

	delete(found[0], "id")
	payload, err := json.Marshal(found[0])
	if err != nil {
		return nil, storeErr("get account", err)
	}
	var account objectsrepository.Account
	if err := json.Unmarshal(payload, &account); err != nil {
		return nil, storeErr("get account", err)
	}
	account.Username = username
	if account.Data == nil {
		account.Data = make(map[string][]string)
	}
	return &account, nil
}

func (r *Repository) SaveAccount(ctx context.Context, account *objectsrepository.Account) error {
	resp, err := r.client.ReplaceOne(objectsrepository.AccountCollection, account.Username, account)
	if err != nil {
		return storeErr("save account", err)
	}
	return checkResponse("save account", resp)
}

func (r *Repository) AllAccounts(ctx context.Context) ([]*objectsrepository.Account, error) {
	resp, err := r.client.SelectAll(objectsrepository.AccountCollection)
	if err != nil {
		return nil, storeErr("list accounts", err)
	}
	if err := checkResponse("list accounts", resp); err != nil {
		return nil, err
	}

	found := records(resp.Result)
	result := make([]*objectsrepository.Account, 0, len(found))
	for _, record := range found {
		username := recordID(record)
		delete(record, "id")
		payload, err := json.Marshal(record)
		if err != nil {
			return nil, storeErr("list accounts", err)
		}
		var account objectsrepository.Account
		if err := json.Unmarshal(payload, &account); err != nil {
			return nil, storeErr("list accounts", err)
		}
		if account.Username == "" {
			account.Username = username
		}
		if account.Data == nil {
			account.Data = make(map[string][]string)
		}
		result = append(result, &account)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	return result, nil
}
