package objectsrepository

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/exp/slices"
)

// Submission-only graph fields. They are folded into the canonical
// reference lists and cleared before the object is persisted.
const (
	fieldRightsOwnerSelector     = "rightsowner_selector"
	fieldRightsOwnerPersons      = "rightsowner_persons"
	fieldRightsOwnerInstitutions = "rightsowner_institutions"
	fieldPersons                 = "persons"
	fieldPersonsExisting         = "persons_existing"
	fieldInstitutions            = "institutions"
	fieldInstitutionsExisting    = "institutions_existing"
	fieldTags                    = "tags"
	fieldPhysicalObjects         = "physical_objects"

	// Entries of the inline rights-owner arrays flagged with this marker
	// contribute their role tags to the selector-resolved entity instead
	// of being normalized on their own.
	fieldAddToNewRightsOwner = "add_to_new_rightsowner"
)

// rightsOwner is the entity the rights-owner selector resolved to.
type rightsOwner struct {
	Reference
	collection Collection
}

// referenceLedger collects every reference created or linked during a
// submission, for the ownership bookkeeping that follows a successful
// write.
type referenceLedger struct {
	refs map[Collection][]string
}

func newReferenceLedger() *referenceLedger {
	return &referenceLedger{refs: make(map[Collection][]string)}
}

func (l *referenceLedger) add(collection Collection, id string) {
	if !ValidID(id) {
		return
	}
	if !slices.Contains(l.refs[collection], id) {
		l.refs[collection] = append(l.refs[collection], id)
	}
}

// Submit runs one full digital-object submission graph through the
// pipeline: rights-owner resolution, per-field normalization, physical
// sub-graphs, final reconciliation, persistence and ownership
// bookkeeping. Steps already committed when a later step fails are not
// rolled back.
func (s *service) Submit(ctx context.Context, req SubmitRequest) (Document, error) {
	if len(req.Graph) == 0 {
		return nil, fmt.Errorf("%w: empty submission graph", ErrValidation)
	}

	graph := req.Graph.Clone()

	id := graph.ID()
	if ValidID(id) {
		slog.Info("updating digital object", "id", id)
	} else {
		id = NewID()
		graph.SetID(id)
		slog.Info("creating digital object", "id", id)
	}

	ledger := newReferenceLedger()

	if err := s.buildObjectGraph(ctx, graph, id, ledger); err != nil {
		return nil, err
	}

	// Physical sub-graphs repeat the same steps against their own
	// rights-owner context; their identifier, not the digital object's,
	// keys the role maps below them.
	physicalRefs, err := s.submitPhysicalObjects(ctx, graph, ledger)
	if err != nil {
		return nil, err
	}
	graph[fieldPhysicalObjects] = referenceDocs(physicalRefs)

	graph[FieldKind] = string(CollectionDigitalObjects)
	if err := s.entities.Upsert(ctx, CollectionDigitalObjects, id, graph); err != nil {
		return nil, &SubmissionError{Step: "persist digital object", Err: err}
	}
	ledger.add(CollectionDigitalObjects, id)

	if err := s.recordOwnership(ctx, req.Session, ledger); err != nil {
		return nil, &SubmissionError{Step: "record ownership", Err: err}
	}

	return s.Resolve(ctx, CollectionDigitalObjects, id)
}

// buildObjectGraph runs the shared steps of the pipeline against one
// object graph (the digital object or one physical sub-graph): rights
// owner, person/institution slots, tags, reconciliation. ownerID keys the
// role maps of every entity the graph references.
func (s *service) buildObjectGraph(ctx context.Context, graph Document, ownerID string, ledger *referenceLedger) error {
	owner, ownerPersons, ownerInstitutions, err := s.resolveRightsOwner(ctx, graph, ownerID, ledger)
	if err != nil {
		return err
	}

	personRefs, err := s.foldSlot(ctx, graph, fieldPersons, fieldPersonsExisting, CollectionPersons, ownerID, owner, ledger)
	if err != nil {
		return err
	}
	institutionRefs, err := s.foldSlot(ctx, graph, fieldInstitutions, fieldInstitutionsExisting, CollectionInstitutions, ownerID, owner, ledger)
	if err != nil {
		return err
	}

	tagRefs, err := s.normalizeTags(ctx, graph, ledger)
	if err != nil {
		return err
	}

	// Final reconciliation: existing ∪ newly created ∪ rights owners,
	// deduplicated by identifier, entries without a valid identifier
	// dropped. The inline arrays are cleared once folded.
	graph[fieldPersons] = referenceDocs(dedupReferences(append(personRefs, ownerPersons...)))
	graph[fieldInstitutions] = referenceDocs(dedupReferences(append(institutionRefs, ownerInstitutions...)))
	graph[fieldTags] = referenceDocs(tagRefs)
	graph[fieldPersonsExisting] = []any{}
	graph[fieldInstitutionsExisting] = []any{}
	graph[fieldRightsOwnerPersons] = []any{}
	graph[fieldRightsOwnerInstitutions] = []any{}

	return nil
}

// resolveRightsOwner resolves the selector to a person or institution,
// assigns it the RIGHTS_OWNER role plus any roles contributed by entries
// marked add_to_new_rightsowner, and normalizes the remaining inline
// rights-owner entries. Returned reference lists feed the canonical
// person/institution lists of the graph.
func (s *service) resolveRightsOwner(ctx context.Context, graph Document, ownerID string, ledger *referenceLedger) (*rightsOwner, []Reference, []Reference, error) {
	persons := documentSlice(graph.SliceField(fieldRightsOwnerPersons))
	institutions := documentSlice(graph.SliceField(fieldRightsOwnerInstitutions))
	selector := graph.StringField(fieldRightsOwnerSelector)

	if selector == "" {
		if len(persons) == 0 && len(institutions) == 0 {
			return nil, nil, nil, nil
		}
		return nil, nil, nil, fmt.Errorf("%w: rights-owner entries without a selector", ErrValidation)
	}

	var (
		candidates []Document
		collection Collection
		wantNew    bool
	)
	switch selector {
	case SelectorPerson:
		candidates, collection = persons, CollectionPersons
	case SelectorNewPerson:
		candidates, collection, wantNew = persons, CollectionPersons, true
	case SelectorInstitution:
		candidates, collection = institutions, CollectionInstitutions
	case SelectorNewInstitution:
		candidates, collection, wantNew = institutions, CollectionInstitutions, true
	default:
		return nil, nil, nil, fmt.Errorf("%w: unknown rights-owner selector %q", ErrValidation, selector)
	}

	selected, selectedIdx := pickRightsOwner(candidates, wantNew)
	if selected == nil {
		return nil, nil, nil, fmt.Errorf("%w: rights-owner selector %q matches no entry", ErrValidation, selector)
	}

	// Roles contributed by marked entries go to the resolved entity.
	contributed := []string{RoleRightsOwner}
	for _, entry := range append(slices.Clone(persons), institutions...) {
		if marked, _ := entry[fieldAddToNewRightsOwner].(bool); marked {
			contributed = append(contributed, roleTags(entry["person_role"])...)
			contributed = append(contributed, roleTags(entry["institution_role"])...)
		}
	}

	ownerRef, err := s.normalize(ctx, selected, collection, ownerID, contributed)
	if err != nil {
		return nil, nil, nil, &SubmissionError{Step: "resolve rights owner", Err: err}
	}
	ledger.add(collection, ownerRef.ID)

	owner := &rightsOwner{Reference: ownerRef, collection: collection}

	normalizeRest := func(entries []Document, entryCollection Collection) ([]Reference, error) {
		var refs []Reference
		for i, entry := range entries {
			if marked, _ := entry[fieldAddToNewRightsOwner].(bool); marked {
				continue
			}
			if entryCollection == collection && i == selectedIdx {
				continue
			}
			ref, err := s.normalize(ctx, entry, entryCollection, ownerID, []string{RoleRightsOwner})
			if err != nil {
				return nil, &SubmissionError{Step: "normalize rights owner", Err: err}
			}
			ledger.add(entryCollection, ref.ID)
			refs = append(refs, ref)
		}
		return refs, nil
	}

	personRefs, err := normalizeRest(persons, CollectionPersons)
	if err != nil {
		return nil, nil, nil, err
	}
	institutionRefs, err := normalizeRest(institutions, CollectionInstitutions)
	if err != nil {
		return nil, nil, nil, err
	}

	if collection == CollectionPersons {
		personRefs = append([]Reference{ownerRef}, personRefs...)
	} else {
		institutionRefs = append([]Reference{ownerRef}, institutionRefs...)
	}

	return owner, personRefs, institutionRefs, nil
}

// pickRightsOwner chooses the selector's target: for the "new_" sentinels
// the first entry without a valid identifier, otherwise the first entry
// with one. Falls back to the first entry either way.
func pickRightsOwner(candidates []Document, wantNew bool) (Document, int) {
	for i, entry := range candidates {
		if marked, _ := entry[fieldAddToNewRightsOwner].(bool); marked {
			continue
		}
		if ValidID(entry.ID()) != wantNew {
			return entry, i
		}
	}
	for i, entry := range candidates {
		if marked, _ := entry[fieldAddToNewRightsOwner].(bool); !marked {
			return entry, i
		}
	}
	return nil, -1
}

// foldSlot normalizes one semantic slot (contact persons or contact
// institutions): the inline "newly entered" array field by field, then the
// "existing" array, whose entries inherit the rights-owner's identifier
// when they carry none of their own. Returns existing-then-new references.
func (s *service) foldSlot(ctx context.Context, graph Document, inlineField, existingField string, collection Collection, ownerID string, owner *rightsOwner, ledger *referenceLedger) ([]Reference, error) {
	var refs []Reference

	for _, entry := range documentSlice(graph.SliceField(existingField)) {
		entry = entry.Clone()
		if !ValidID(entry.ID()) && owner != nil && owner.collection == collection {
			entry.SetID(owner.ID)
		}
		ref, err := s.normalize(ctx, entry, collection, ownerID, []string{RoleContactPerson})
		if err != nil {
			return nil, &SubmissionError{Step: "normalize " + existingField, Err: err}
		}
		ledger.add(collection, ref.ID)
		refs = append(refs, ref)
	}

	for _, entry := range documentSlice(graph.SliceField(inlineField)) {
		ref, err := s.normalize(ctx, entry, collection, ownerID, []string{RoleContactPerson})
		if err != nil {
			return nil, &SubmissionError{Step: "normalize " + inlineField, Err: err}
		}
		ledger.add(collection, ref.ID)
		refs = append(refs, ref)
	}

	return refs, nil
}

// normalizeTags normalizes the tag array. Tags carry no role map and are
// deduplicated by identifier only. A bare string entry is accepted as a
// reference when it is a valid identifier and as a fresh label otherwise.
func (s *service) normalizeTags(ctx context.Context, graph Document, ledger *referenceLedger) ([]Reference, error) {
	var refs []Reference

	for _, raw := range graph.SliceField(fieldTags) {
		var payload Document
		switch t := raw.(type) {
		case map[string]any:
			payload = Document(t)
		case Document:
			payload = t
		case string:
			if ValidID(t) {
				payload = Document{FieldID: t}
			} else {
				payload = Document{"value": t}
			}
		default:
			continue
		}

		ref, err := s.normalize(ctx, payload, CollectionTags, "", nil)
		if err != nil {
			return nil, &SubmissionError{Step: "normalize tags", Err: err}
		}
		ledger.add(CollectionTags, ref.ID)
		refs = append(refs, ref)
	}

	return dedupReferences(refs), nil
}

// submitPhysicalObjects runs steps 2-4 for every physical sub-graph, then
// normalizes the sub-graph itself into its collection.
func (s *service) submitPhysicalObjects(ctx context.Context, graph Document, ledger *referenceLedger) ([]Reference, error) {
	var refs []Reference

	for _, sub := range documentSlice(graph.SliceField(fieldPhysicalObjects)) {
		sub = sub.Clone()

		id := sub.ID()
		if !ValidID(id) {
			id = NewID()
			sub.SetID(id)
		}

		if err := s.buildObjectGraph(ctx, sub, id, ledger); err != nil {
			return nil, err
		}

		ref, err := s.normalize(ctx, sub, CollectionPhysicalObjects, "", nil)
		if err != nil {
			return nil, &SubmissionError{Step: "persist physical object", Err: err}
		}
		ledger.add(CollectionPhysicalObjects, ref.ID)
		refs = append(refs, ref)
	}

	return dedupReferences(refs), nil
}

// documentSlice filters an array field down to its document entries.
func documentSlice(entries []any) []Document {
	var docs []Document
	for _, e := range entries {
		switch t := e.(type) {
		case map[string]any:
			docs = append(docs, Document(t))
		case Document:
			docs = append(docs, t)
		}
	}
	return docs
}

// dedupReferences drops entries without a valid identifier and collapses
// duplicates, preserving first-seen order.
func dedupReferences(refs []Reference) []Reference {
	seen := make(map[string]struct{}, len(refs))
	var out []Reference
	for _, ref := range refs {
		if !ValidID(ref.ID) {
			continue
		}
		if _, dup := seen[ref.ID]; dup {
			continue
		}
		seen[ref.ID] = struct{}{}
		out = append(out, ref)
	}
	return out
}

// referenceDocs converts references to their stored wire form.
func referenceDocs(refs []Reference) []any {
	out := make([]any, len(refs))
	for i, ref := range refs {
		out[i] = map[string]any(ref.Document())
	}
	return out
}
