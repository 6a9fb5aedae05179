package objectsrepository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// SubmitModel ingests a standalone model, as pushed by the external
// processing service or attached to a digital object later. Embedded
// references are reduced to bare references before persistence.
func (s *service) SubmitModel(ctx context.Context, req SubmitEntityRequest) (Document, error) {
	if len(req.Entity) == 0 {
		return nil, fmt.Errorf("%w: empty model payload", ErrValidation)
	}

	model := req.Entity.Clone()

	id := model.ID()
	if !ValidID(id) {
		id = NewID()
		model.SetID(id)
	}

	if related := referenceID(model["related_digital_object"]); ValidID(related) {
		model["related_digital_object"] = map[string]any(Reference{ID: related}.Document())
	} else {
		delete(model, "related_digital_object")
	}
	model["annotation_list"] = bareReferenceList(model.SliceField("annotation_list"))
	model[FieldKind] = string(CollectionModels)

	if err := s.entities.Upsert(ctx, CollectionModels, id, model); err != nil {
		return nil, &EntityError{Collection: CollectionModels, ID: id, Op: "submit", Err: err}
	}

	ledger := newReferenceLedger()
	ledger.add(CollectionModels, id)
	if err := s.recordOwnership(ctx, req.Session, ledger); err != nil {
		return nil, err
	}

	return model, nil
}

// SubmitCompilation persists a curated compilation. Its models list holds
// bare references after the write completes: embedded bodies of
// already-persisted models are reduced to their identifier, embedded
// bodies without one are rejected.
func (s *service) SubmitCompilation(ctx context.Context, req SubmitEntityRequest) (Document, error) {
	if len(req.Entity) == 0 {
		return nil, fmt.Errorf("%w: empty compilation payload", ErrValidation)
	}

	compilation := req.Entity.Clone()

	id := compilation.ID()
	if !ValidID(id) {
		id = NewID()
		compilation.SetID(id)
	}

	entries := compilation.SliceField("models")
	models := make([]any, 0, len(entries))
	for _, entry := range entries {
		modelID := referenceID(entry)
		if !ValidID(modelID) {
			return nil, fmt.Errorf("%w: compilation model without identifier", ErrValidation)
		}
		models = append(models, map[string]any(Reference{ID: modelID}.Document()))
	}
	compilation["models"] = models

	compilation["annotation_list"] = bareReferenceList(compilation.SliceField("annotation_list"))
	compilation["related_owner"] = req.Session.Username
	compilation[FieldKind] = string(CollectionCompilations)

	if err := s.entities.Upsert(ctx, CollectionCompilations, id, compilation); err != nil {
		return nil, &EntityError{Collection: CollectionCompilations, ID: id, Op: "submit", Err: err}
	}

	ledger := newReferenceLedger()
	ledger.add(CollectionCompilations, id)
	if err := s.recordOwnership(ctx, req.Session, ledger); err != nil {
		return nil, err
	}

	return compilation, nil
}

// SubmitAnnotation persists an annotation and pushes its reference onto
// the annotation list of the model it targets, or of the compilation when
// the target is curated. An annotation is never left orphaned; a missing
// target rejects the unit before anything is written.
func (s *service) SubmitAnnotation(ctx context.Context, req SubmitEntityRequest) (Document, error) {
	if len(req.Entity) == 0 {
		return nil, fmt.Errorf("%w: empty annotation payload", ErrValidation)
	}

	annotation := req.Entity.Clone()

	source := annotation.MapField("target").MapField("source")
	if source == nil {
		return nil, fmt.Errorf("%w: annotation missing target source", ErrValidation)
	}

	modelID := referenceID(source["related_model"])
	if !ValidID(modelID) {
		return nil, fmt.Errorf("%w: annotation target has no related model", ErrValidation)
	}

	ownerCollection := CollectionModels
	ownerID := modelID
	if compilationID := referenceID(source["related_compilation"]); ValidID(compilationID) {
		ownerCollection = CollectionCompilations
		ownerID = compilationID
	}

	// The owning entity must exist before anything is written.
	if _, err := s.entities.Get(ctx, ownerCollection, ownerID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: annotation target %s/%s", ErrNotFound, ownerCollection, ownerID)
		}
		return nil, &EntityError{Collection: ownerCollection, ID: ownerID, Op: "submit annotation", Err: err}
	}

	id := annotation.ID()
	if !ValidID(id) {
		id = NewID()
		annotation.SetID(id)
	}
	annotation[FieldKind] = string(CollectionAnnotations)

	if err := s.entities.Upsert(ctx, CollectionAnnotations, id, annotation); err != nil {
		return nil, &EntityError{Collection: CollectionAnnotations, ID: id, Op: "submit", Err: err}
	}

	if err := s.pushAnnotation(ctx, ownerCollection, ownerID, id); err != nil {
		return nil, err
	}

	ledger := newReferenceLedger()
	ledger.add(CollectionAnnotations, id)
	if err := s.recordOwnership(ctx, req.Session, ledger); err != nil {
		return nil, err
	}

	slog.Info("annotation attached", "annotation", id, "owner_collection", ownerCollection, "owner", ownerID)
	return annotation, nil
}

// pushAnnotation appends the annotation reference to the owner's
// annotation list. The list is reduced to bare references before being
// written back, whatever shape it was resolved into.
func (s *service) pushAnnotation(ctx context.Context, ownerCollection Collection, ownerID, annotationID string) error {
	release := s.locks.acquire(entityLockKey(ownerCollection, ownerID))
	defer release()

	owner, err := s.entities.Get(ctx, ownerCollection, ownerID)
	if err != nil {
		return &EntityError{Collection: ownerCollection, ID: ownerID, Op: "push annotation", Err: err}
	}

	list := bareReferenceList(owner.SliceField("annotation_list"))
	for _, entry := range list {
		if referenceID(entry) == annotationID {
			owner["annotation_list"] = list
			return nil
		}
	}
	list = append(list, map[string]any(Reference{ID: annotationID}.Document()))
	owner["annotation_list"] = list

	if err := s.entities.Upsert(ctx, ownerCollection, ownerID, owner); err != nil {
		return &EntityError{Collection: ownerCollection, ID: ownerID, Op: "push annotation", Err: err}
	}
	return nil
}

// bareReferenceList reduces a reference array to bare references,
// dropping entries without a valid identifier.
func bareReferenceList(entries []any) []any {
	out := make([]any, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		id := referenceID(entry)
		if !ValidID(id) {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, map[string]any(Reference{ID: id}.Document()))
	}
	return out
}
