package objectsrepository

// Request DTOs

// SubmitRequest carries one full digital-object submission graph.
type SubmitRequest struct {
	Session Session
	Graph   Document
}

// SubmitEntityRequest carries a single model, compilation or annotation
// write.
type SubmitEntityRequest struct {
	Session Session
	Entity  Document
}

// FetchRequest identifies a single entity to read. Password is consulted
// only for password-protected compilations.
type FetchRequest struct {
	Collection Collection
	ID         string
	Session    Session
	Password   string
}

// ListRequest identifies a collection to read in full.
type ListRequest struct {
	Collection Collection
	Session    Session
}

// SearchRequest is a filtered full-text search over one collection. The
// query is split on whitespace; every term must match.
type SearchRequest struct {
	Collection Collection
	Query      string
	Session    Session
}

// DeleteRequest identifies an entity to delete on behalf of a session.
type DeleteRequest struct {
	Collection Collection
	ID         string
	Session    Session
}

// AttachRequest links an already-stored entity to the session's account.
type AttachRequest struct {
	Collection Collection
	ID         string
	Session    Session
}
