package objectsrepository

import "context"

// Service is the core of the objects repository: the submission pipeline,
// the polymorphic resolver and the ownership/access layer over the two
// document stores.
type Service interface {
	// Write entry points
	Submit(ctx context.Context, req SubmitRequest) (Document, error)
	SubmitModel(ctx context.Context, req SubmitEntityRequest) (Document, error)
	SubmitCompilation(ctx context.Context, req SubmitEntityRequest) (Document, error)
	SubmitAnnotation(ctx context.Context, req SubmitEntityRequest) (Document, error)

	// Read entry points
	Resolve(ctx context.Context, collection Collection, id string) (Document, error)
	ResolveDepth(ctx context.Context, collection Collection, id string, depth int) (Document, error)
	GetEntity(ctx context.Context, req FetchRequest) (Document, error)
	ListEntities(ctx context.Context, req ListRequest) ([]Document, error)
	Search(ctx context.Context, req SearchRequest) ([]Document, error)

	// Delete entry point
	DeleteEntity(ctx context.Context, req DeleteRequest) error

	// Session-linked entry points
	OwnedData(ctx context.Context, session Session) (map[string][]Document, error)
	Attach(ctx context.Context, req AttachRequest) error
}
