package objectsrepository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	objects "github.com/DH-Cologne/ObjectsRepositoryServer/pkg/objectsrepository"
)

func TestSearch(t *testing.T) {
	ctx := context.Background()

	seedPersons := func(t *testing.T, entities objects.EntityStore) {
		t.Helper()
		require.NoError(t, entities.Upsert(ctx, objects.CollectionPersons, objects.NewID(), objects.Document{
			"name": "Ada Lovelace",
			"institution": map[string]any{
				"name": "Analytical Society",
			},
		}))
		require.NoError(t, entities.Upsert(ctx, objects.CollectionPersons, objects.NewID(), objects.Document{
			"name": "Charles Babbage",
		}))
	}

	t.Run("case-insensitive term match", func(t *testing.T) {
		svc, entities, _ := setupTestService(t)
		seedPersons(t, entities)

		docs, err := svc.Search(ctx, objects.SearchRequest{
			Collection: objects.CollectionPersons,
			Query:      "ADA",
		})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "Ada Lovelace", docs[0].StringField("name"))
	})

	t.Run("every term must match", func(t *testing.T) {
		svc, entities, _ := setupTestService(t)
		seedPersons(t, entities)

		docs, err := svc.Search(ctx, objects.SearchRequest{
			Collection: objects.CollectionPersons,
			Query:      "ada analytical",
		})
		require.NoError(t, err)
		assert.Len(t, docs, 1)

		docs, err = svc.Search(ctx, objects.SearchRequest{
			Collection: objects.CollectionPersons,
			Query:      "ada babbage",
		})
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("empty query matches nothing", func(t *testing.T) {
		svc, entities, _ := setupTestService(t)
		seedPersons(t, entities)

		docs, err := svc.Search(ctx, objects.SearchRequest{
			Collection: objects.CollectionPersons,
			Query:      "   ",
		})
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("invalid collection", func(t *testing.T) {
		svc, _, _ := setupTestService(t)

		_, err := svc.Search(ctx, objects.SearchRequest{Collection: "nonsense", Query: "x"})
		assert.ErrorIs(t, err, objects.ErrInvalidCollection)
	})

	t.Run("protected compilations come back redacted", func(t *testing.T) {
		svc, _, _ := setupTestService(t)

		_, err := svc.SubmitCompilation(ctx, objects.SubmitEntityRequest{
			Session: testSession(),
			Entity: objects.Document{
				"name":     "Secret Exhibition",
				"password": "hunter2",
			},
		})
		require.NoError(t, err)

		docs, err := svc.Search(ctx, objects.SearchRequest{
			Collection: objects.CollectionCompilations,
			Query:      "secret",
		})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, true, docs[0]["password_protected"])
		assert.NotContains(t, docs[0], "name")
	})
}
