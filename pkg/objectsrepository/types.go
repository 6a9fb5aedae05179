package objectsrepository

import (
	"github.com/google/uuid"
	"golang.org/x/exp/slices"
)

// Collection identifies one entity kind's collection in the objects store.
type Collection string

// Entity collections (typed).
const (
	CollectionPersons         Collection = "persons"
	CollectionInstitutions    Collection = "institutions"
	CollectionTags            Collection = "tags"
	CollectionPhysicalObjects Collection = "physicalobjects"
	CollectionDigitalObjects  Collection = "digitalobjects"
	CollectionModels          Collection = "models"
	CollectionCompilations    Collection = "compilations"
	CollectionAnnotations     Collection = "annotations"
)

// AccountCollection is the collection name accounts are kept under in the
// accounts store.
const AccountCollection = "ldap"

// Collections lists every entity collection of the objects store.
func Collections() []Collection {
	return []Collection{
		CollectionPersons,
		CollectionInstitutions,
		CollectionTags,
		CollectionPhysicalObjects,
		CollectionDigitalObjects,
		CollectionModels,
		CollectionCompilations,
		CollectionAnnotations,
	}
}

// Valid reports whether c names a known entity collection.
func (c Collection) Valid() bool {
	return slices.Contains(Collections(), c)
}

// RoleBearing reports whether entities of this collection carry a per-owner
// role map.
func (c Collection) RoleBearing() bool {
	return c == CollectionPersons || c == CollectionInstitutions
}

// Deletable reports whether the delete entry point may remove entities of
// this collection. Persons, institutions and tags are only ever unlinked.
func (c Collection) Deletable() bool {
	switch c {
	case CollectionDigitalObjects, CollectionModels, CollectionCompilations, CollectionAnnotations:
		return true
	}
	return false
}

// Role tags assigned by the submission pipeline.
const (
	RoleRightsOwner   = "RIGHTS_OWNER"
	RoleContactPerson = "CONTACT_PERSON"
)

// Rights-owner selector values. The two "new_" values are sentinels meaning
// "use the newly entered person/institution" from the inline arrays.
const (
	SelectorPerson         = "person"
	SelectorInstitution    = "institution"
	SelectorNewPerson      = "new_person"
	SelectorNewInstitution = "new_institution"
)

// Well-known document fields.
const (
	FieldID   = "_id"
	FieldKind = "kind"
)

// Document is a stored entity in its wire form. Entities are schemaless at
// the store boundary; typed accessors below cover the fields the core
// depends on.
type Document map[string]any

// ID returns the document's identifier, or "" when unset.
func (d Document) ID() string {
	return d.StringField(FieldID)
}

// SetID sets the document's identifier.
func (d Document) SetID(id string) {
	d[FieldID] = id
}

// Kind returns the collection discriminant stamped at creation time.
func (d Document) Kind() Collection {
	return Collection(d.StringField(FieldKind))
}

// StringField returns the named field when it holds a string, "" otherwise.
func (d Document) StringField(key string) string {
	s, _ := d[key].(string)
	return s
}

// MapField returns the named field when it holds a nested document.
func (d Document) MapField(key string) Document {
	switch v := d[key].(type) {
	case Document:
		return v
	case map[string]any:
		return Document(v)
	}
	return nil
}

// SliceField returns the named field when it holds an array.
func (d Document) SliceField(key string) []any {
	v, _ := d[key].([]any)
	return v
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return cloneValue(map[string]any(d)).(map[string]any)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Document:
		return cloneValue(map[string]any(t))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Reference is a bare pointer to an entity stored in its own collection.
type Reference struct {
	ID string `json:"_id"`
}

// Document returns the reference in its stored wire form.
func (r Reference) Document() Document {
	return Document{FieldID: r.ID}
}

// referenceID extracts the identifier from a reference in any of its wire
// shapes: a bare id string, a reference document, or an embedded body.
func referenceID(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case Document:
		return t.ID()
	case map[string]any:
		return Document(t).ID()
	}
	return ""
}

// Account is a session-bound owner record in the accounts store. Data maps
// a collection name to the identifiers the account owns in it.
type Account struct {
	Username  string              `json:"username"`
	FullName  string              `json:"fullname,omitempty"`
	Mail      string              `json:"mail,omitempty"`
	Role      string              `json:"role"`
	SessionID string              `json:"sessionID,omitempty"`
	Data      map[string][]string `json:"data"`
}

// Account rank flags.
const (
	AccountRoleUser  = "user"
	AccountRoleAdmin = "admin"
)

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	out.Data = make(map[string][]string, len(a.Data))
	for k, ids := range a.Data {
		out.Data[k] = slices.Clone(ids)
	}
	return &out
}

// Owns reports whether id appears in any of the account's data arrays.
// Membership is exact, not substring-based.
func (a *Account) Owns(id string) bool {
	for _, ids := range a.Data {
		if slices.Contains(ids, id) {
			return true
		}
	}
	return false
}

// Session carries the authenticated identity a request acts under.
type Session struct {
	Username  string
	SessionID string
}

// NewID mints a fresh entity identifier.
func NewID() string {
	return uuid.New().String()
}

// ValidID reports whether id is a structurally valid entity identifier.
func ValidID(id string) bool {
	if id == "" {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
