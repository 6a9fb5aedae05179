package objectsrepository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	objects "github.com/DH-Cologne/ObjectsRepositoryServer/pkg/objectsrepository"
)

func TestResolve(t *testing.T) {
	ctx := context.Background()

	seedModel := func(t *testing.T, svc objects.Service, entities objects.EntityStore) (string, string) {
		t.Helper()

		objectID := objects.NewID()
		require.NoError(t, entities.Upsert(ctx, objects.CollectionDigitalObjects, objectID, objects.Document{
			"title": "Amphora Scan",
			"kind":  string(objects.CollectionDigitalObjects),
		}))

		model, err := svc.SubmitModel(ctx, objects.SubmitEntityRequest{
			Session: testSession(),
			Entity: objects.Document{
				"name":                   "Amphora Mesh",
				"related_digital_object": objectID,
			},
		})
		require.NoError(t, err)
		return model.ID(), objectID
	}

	t.Run("depth zero returns the stored document", func(t *testing.T) {
		svc, entities, _ := setupTestService(t)
		modelID, objectID := seedModel(t, svc, entities)

		doc, err := svc.ResolveDepth(ctx, objects.CollectionModels, modelID, 0)
		require.NoError(t, err)

		related := doc.MapField("related_digital_object")
		require.NotNil(t, related)
		assert.Equal(t, objectID, related.ID())
		assert.Len(t, related, 1)
	})

	t.Run("default depth embeds the related digital object", func(t *testing.T) {
		svc, entities, _ := setupTestService(t)
		modelID, objectID := seedModel(t, svc, entities)

		doc, err := svc.Resolve(ctx, objects.CollectionModels, modelID)
		require.NoError(t, err)

		related := doc.MapField("related_digital_object")
		require.NotNil(t, related)
		assert.Equal(t, objectID, related.ID())
		assert.Equal(t, "Amphora Scan", related.StringField("title"))
	})

	t.Run("compilations expand models in order without deduplication", func(t *testing.T) {
		svc, entities, _ := setupTestService(t)
		firstID, _ := seedModel(t, svc, entities)
		secondID, _ := seedModel(t, svc, entities)

		compilation, err := svc.SubmitCompilation(ctx, objects.SubmitEntityRequest{
			Session: testSession(),
			Entity: objects.Document{
				"name": "Exhibition",
				"models": []any{
					map[string]any{"_id": firstID},
					map[string]any{"_id": secondID},
					map[string]any{"_id": firstID},
				},
			},
		})
		require.NoError(t, err)

		doc, err := svc.Resolve(ctx, objects.CollectionCompilations, compilation.ID())
		require.NoError(t, err)

		models := doc.SliceField("models")
		require.Len(t, models, 3)

		ids := make([]string, len(models))
		for i, entry := range models {
			model, ok := entry.(map[string]any)
			require.True(t, ok)
			ids[i] = objects.Document(model).ID()
			// The nested model carries its embedded digital object.
			related := objects.Document(model).MapField("related_digital_object")
			require.NotNil(t, related)
			assert.Equal(t, "Amphora Scan", related.StringField("title"))
		}
		assert.Equal(t, []string{firstID, secondID, firstID}, ids)
	})

	t.Run("dangling model references stay bare", func(t *testing.T) {
		svc, entities, _ := setupTestService(t)

		missing := objects.NewID()
		compilationID := objects.NewID()
		require.NoError(t, entities.Upsert(ctx, objects.CollectionCompilations, compilationID, objects.Document{
			"kind":   string(objects.CollectionCompilations),
			"models": []any{map[string]any{"_id": missing}},
		}))

		doc, err := svc.Resolve(ctx, objects.CollectionCompilations, compilationID)
		require.NoError(t, err)

		models := doc.SliceField("models")
		require.Len(t, models, 1)
		assert.Equal(t, map[string]any{"_id": missing}, models[0])
	})

	t.Run("dangling digital object keeps the bare reference", func(t *testing.T) {
		svc, entities, _ := setupTestService(t)

		missing := objects.NewID()
		modelID := objects.NewID()
		require.NoError(t, entities.Upsert(ctx, objects.CollectionModels, modelID, objects.Document{
			"kind":                   string(objects.CollectionModels),
			"related_digital_object": map[string]any{"_id": missing},
		}))

		doc, err := svc.Resolve(ctx, objects.CollectionModels, modelID)
		require.NoError(t, err)
		assert.Equal(t, missing, doc.MapField("related_digital_object").ID())
		assert.Len(t, doc.MapField("related_digital_object"), 1)
	})

	t.Run("errors", func(t *testing.T) {
		svc, _, _ := setupTestService(t)

		_, err := svc.Resolve(ctx, "nonsense", objects.NewID())
		assert.ErrorIs(t, err, objects.ErrInvalidCollection)

		_, err = svc.Resolve(ctx, objects.CollectionModels, "not-a-uuid")
		assert.ErrorIs(t, err, objects.ErrNotFound)

		_, err = svc.Resolve(ctx, objects.CollectionModels, objects.NewID())
		assert.ErrorIs(t, err, objects.ErrNotFound)
	})
}
