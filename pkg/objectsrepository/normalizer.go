package objectsrepository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

// Transient role-bearing fields a submitted payload may carry. Their
// contents are folded into roles[ownerID] and the fields themselves are
// never persisted.
var transientRoleFields = []string{"person_role", "institution_role"}

// normalize persists an inline entity payload in its own collection and
// returns a bare reference to it.
//
// A payload carrying a structurally valid identifier always means "update
// or reference this entity"; the stored document is loaded and the payload
// shallow-merged over it, incoming fields winning. A payload without one
// creates a new entity under a freshly minted identifier. For role-bearing
// collections the incoming role tags are appended to roles[ownerID],
// deduplicated. The load-merge-upsert section is serialized per entity
// identifier.
func (s *service) normalize(ctx context.Context, payload Document, collection Collection, ownerID string, incomingRoles []string) (Reference, error) {
	if len(payload) == 0 {
		return Reference{}, fmt.Errorf("%w: empty payload for %s", ErrValidation, collection)
	}
	if !collection.Valid() {
		return Reference{}, fmt.Errorf("%w: %s", ErrInvalidCollection, collection)
	}

	id := payload.ID()
	if !ValidID(id) {
		id = NewID()
	}

	release := s.locks.acquire(entityLockKey(collection, id))
	defer release()

	existing, err := s.entities.Get(ctx, collection, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return Reference{}, &EntityError{Collection: collection, ID: id, Op: "normalize", Err: err}
		}
		existing = Document{}
	}

	merged := existing.Clone()
	for k, v := range payload {
		if k == FieldID {
			continue
		}
		merged[k] = cloneValue(v)
	}

	if collection.RoleBearing() {
		tags := slices.Clone(incomingRoles)
		for _, field := range transientRoleFields {
			tags = append(tags, roleTags(payload[field])...)
			delete(merged, field)
		}
		mergeRoles(merged, ownerID, tags)
	}

	// A person may embed one inline institution; normalize it first and
	// substitute its reference. Institutions do not nest further.
	if collection == CollectionPersons {
		if inst := merged.MapField("institution"); inst != nil && !isBareReference(inst) {
			ref, err := s.normalize(ctx, inst, CollectionInstitutions, ownerID, nil)
			if err != nil {
				return Reference{}, err
			}
			merged["institution"] = map[string]any(ref.Document())
		}
	}

	merged.SetID(id)
	merged[FieldKind] = string(collection)

	if err := s.entities.Upsert(ctx, collection, id, merged); err != nil {
		return Reference{}, &EntityError{Collection: collection, ID: id, Op: "normalize", Err: err}
	}

	return Reference{ID: id}, nil
}

// isBareReference reports whether doc holds nothing beyond an identifier.
func isBareReference(doc Document) bool {
	for k := range doc {
		if k != FieldID && k != FieldKind {
			return false
		}
	}
	return doc.ID() != ""
}

// roleTags coerces a role field into a flat tag list. Accepted shapes:
// a comma-separated string, a list of strings, or nothing.
func roleTags(v any) []string {
	var raw []string
	switch t := v.(type) {
	case string:
		raw = strings.Split(t, ",")
	case []string:
		raw = t
	case []any:
		for _, e := range t {
			if s, ok := e.(string); ok {
				raw = append(raw, s)
			}
		}
	}

	var tags []string
	for _, tag := range raw {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// mergeRoles appends tags to doc's roles[ownerID] set. The resulting list
// is deduplicated and sorted; absent or empty entries are never stored.
func mergeRoles(doc Document, ownerID string, tags []string) {
	if ownerID == "" || len(tags) == 0 {
		return
	}

	roles := doc.MapField("roles")
	if roles == nil {
		roles = Document{}
	}

	merged := append(roleTags(roles[ownerID]), tags...)
	slices.Sort(merged)
	merged = slices.Compact(merged)

	roles[ownerID] = merged
	doc["roles"] = map[string]any(roles)
}
