// Package objectsrepository is the core of a repository service for
// cross-referenced cultural-heritage records: digital and physical
// objects, 3D models, curated compilations, annotations, persons,
// institutions and tags.
//
// Submissions arrive as deeply nested graphs and are decomposed into
// normalized, independently addressable entities, each stored in its own
// collection of a document store. Persons and institutions referenced
// from unrelated submissions are deduplicated by identifier and carry a
// per-owner role map. Reads reassemble the nested view through a
// type-directed, depth-bounded resolver. An ownership layer keyed by the
// authenticated session gates deletion and access to password-protected
// compilations.
//
// The package depends on two small store interfaces (EntityStore,
// AccountStore); repo/memory, repo/postgres and repo/surreal provide
// implementations.
package objectsrepository
