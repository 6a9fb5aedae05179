package objectsrepository

import (
	"context"
	"fmt"
	"strings"
)

// Search runs a filtered full-text search over one collection: the query
// is lower-cased and split on whitespace, and a document matches when
// every term is a substring of the flattened concatenation of its string
// fields. Nested documents and arrays of documents are recursed into;
// arrays of scalars are not. Protected compilations are redacted per
// requester.
func (s *service) Search(ctx context.Context, req SearchRequest) ([]Document, error) {
	if !req.Collection.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCollection, req.Collection)
	}

	terms := strings.Fields(strings.ToLower(req.Query))
	if len(terms) == 0 {
		return []Document{}, nil
	}

	docs, err := s.entities.All(ctx, req.Collection)
	if err != nil {
		return nil, &EntityError{Collection: req.Collection, Op: "search", Err: err}
	}

	matches := make([]Document, 0, len(docs))
	for _, doc := range docs {
		if !matchDocument(doc, terms) {
			continue
		}
		if req.Collection == CollectionCompilations {
			doc = s.gateCompilation(ctx, doc, req.Session, "")
		}
		matches = append(matches, doc)
	}
	return matches, nil
}

// matchDocument reports whether every term occurs in the document's
// flattened string content.
func matchDocument(doc Document, terms []string) bool {
	var b strings.Builder
	flattenStrings(map[string]any(doc), &b)
	haystack := strings.ToLower(b.String())

	for _, term := range terms {
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}

func flattenStrings(v any, b *strings.Builder) {
	switch t := v.(type) {
	case string:
		b.WriteString(t)
		b.WriteByte(' ')
	case Document:
		flattenStrings(map[string]any(t), b)
	case map[string]any:
		for _, e := range t {
			flattenStrings(e, b)
		}
	case []any:
		for _, e := range t {
			// Arrays of scalars stay opaque; only nested documents
			// contribute their fields.
			switch e.(type) {
			case map[string]any, Document:
				flattenStrings(e, b)
			}
		}
	}
}
