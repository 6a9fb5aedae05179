package objectsrepository

import (
	"context"
	"errors"
	"fmt"
)

// Resolve expands a stored reference back into its nested form at the
// default depth.
func (s *service) Resolve(ctx context.Context, collection Collection, id string) (Document, error) {
	return s.ResolveDepth(ctx, collection, id, s.resolveDepth)
}

// ResolveDepth expands a stored reference with an explicit depth limit.
// Depth 0 returns the stored document unexpanded. Expansion is dispatched
// on the kind discriminant stamped at creation time: digital objects are
// leaves, a model embeds its related digital object one level, a
// compilation embeds every entry of its models list in array order.
// Documents of any other kind are returned unexpanded.
func (s *service) ResolveDepth(ctx context.Context, collection Collection, id string, depth int) (Document, error) {
	if !collection.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCollection, collection)
	}
	if !ValidID(id) {
		return nil, fmt.Errorf("%w: invalid identifier %q", ErrNotFound, id)
	}

	doc, err := s.entities.Get(ctx, collection, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
		}
		return nil, &EntityError{Collection: collection, ID: id, Op: "resolve", Err: err}
	}

	if depth == 0 {
		return doc, nil
	}

	kind := doc.Kind()
	if kind == "" {
		kind = collection
	}

	switch kind {
	case CollectionModels:
		return s.expandModel(ctx, doc, depth)
	case CollectionCompilations:
		return s.expandCompilation(ctx, doc, depth)
	default:
		return doc, nil
	}
}

// expandModel embeds the model's related digital object one level. A
// dangling reference is left bare rather than failing the model.
func (s *service) expandModel(ctx context.Context, model Document, depth int) (Document, error) {
	if depth < 1 {
		return model, nil
	}

	related := referenceID(model["related_digital_object"])
	if !ValidID(related) {
		return model, nil
	}

	object, err := s.entities.Get(ctx, CollectionDigitalObjects, related)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model, nil
		}
		return nil, &EntityError{Collection: CollectionDigitalObjects, ID: related, Op: "resolve", Err: err}
	}

	model["related_digital_object"] = map[string]any(object)
	return model, nil
}

// expandCompilation embeds every model of the compilation via the model
// rule, in array order. Entries are not deduplicated; dangling references
// stay bare.
func (s *service) expandCompilation(ctx context.Context, compilation Document, depth int) (Document, error) {
	entries := compilation.SliceField("models")

	expanded := make([]any, 0, len(entries))
	for _, entry := range entries {
		id := referenceID(entry)
		if !ValidID(id) {
			expanded = append(expanded, entry)
			continue
		}

		model, err := s.entities.Get(ctx, CollectionModels, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				expanded = append(expanded, entry)
				continue
			}
			return nil, &EntityError{Collection: CollectionModels, ID: id, Op: "resolve", Err: err}
		}

		model, err = s.expandModel(ctx, model, depth-1)
		if err != nil {
			return nil, err
		}
		expanded = append(expanded, map[string]any(model))
	}

	compilation["models"] = expanded
	return compilation, nil
}
