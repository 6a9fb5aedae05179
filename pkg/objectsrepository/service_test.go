package objectsrepository_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	objects "github.com/DH-Cologne/ObjectsRepositoryServer/pkg/objectsrepository"
	"github.com/DH-Cologne/ObjectsRepositoryServer/pkg/objectsrepository/repo/memory"
)

func setupTestService(t *testing.T) (objects.Service, objects.EntityStore, objects.AccountStore) {
	t.Helper()

	entities := memory.NewEntityStore()
	accounts := memory.NewAccountStore()

	svc, err := objects.New(
		objects.WithEntityStore(entities),
		objects.WithAccountStore(accounts),
	)
	require.NoError(t, err)

	return svc, entities, accounts
}

func testSession() objects.Session {
	return objects.Session{Username: "alice", SessionID: "session-1"}
}

func TestNew(t *testing.T) {
	t.Run("requires entity store", func(t *testing.T) {
		_, err := objects.New(objects.WithAccountStore(memory.NewAccountStore()))
		assert.Error(t, err)
	})

	t.Run("requires account store", func(t *testing.T) {
		_, err := objects.New(objects.WithEntityStore(memory.NewEntityStore()))
		assert.Error(t, err)
	})
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a digital object with a new rights owner", func(t *testing.T) {
		svc, entities, _ := setupTestService(t)

		graph := objects.Document{
			"title":                "Bronze Statue Scan",
			"rightsowner_selector": objects.SelectorNewPerson,
			"rightsowner_persons": []any{
				map[string]any{"name": "Ada", "person_role": "CREATOR"},
			},
			"persons": []any{
				map[string]any{"name": "Grace"},
			},
			"tags": []any{"bronze"},
		}

		result, err := svc.Submit(ctx, objects.SubmitRequest{Session: testSession(), Graph: graph})
		require.NoError(t, err)

		objectID := result.ID()
		require.True(t, objects.ValidID(objectID))
		assert.Equal(t, objects.CollectionDigitalObjects, result.Kind())

		// Both persons were extracted into their own collection and the
		// graph holds bare references only.
		persons, err := entities.All(ctx, objects.CollectionPersons)
		require.NoError(t, err)
		require.Len(t, persons, 2)
		assert.Len(t, result.SliceField("persons"), 2)
		for _, entry := range result.SliceField("persons") {
			ref, ok := entry.(map[string]any)
			require.True(t, ok)
			assert.Len(t, ref, 1)
		}

		// The selected rights owner carries RIGHTS_OWNER plus its own role
		// tags, keyed by the digital object's identifier.
		var ada, grace objects.Document
		for _, p := range persons {
			switch p.StringField("name") {
			case "Ada":
				ada = p
			case "Grace":
				grace = p
			}
		}
		require.NotNil(t, ada)
		require.NotNil(t, grace)
		assert.ElementsMatch(t, []string{"RIGHTS_OWNER", "CREATOR"}, ada.MapField("roles")[objectID])
		assert.ElementsMatch(t, []string{"CONTACT_PERSON"}, grace.MapField("roles")[objectID])
		assert.NotContains(t, ada, "person_role")

		// The transient submission arrays were cleared.
		assert.Equal(t, []any{}, result.SliceField("rightsowner_persons"))
		assert.Equal(t, []any{}, result.SliceField("persons_existing"))

		// The string tag became a stored tag entity.
		tags, err := entities.All(ctx, objects.CollectionTags)
		require.NoError(t, err)
		require.Len(t, tags, 1)
		assert.Equal(t, "bronze", tags[0].StringField("value"))
		assert.Len(t, result.SliceField("tags"), 1)
	})

	t.Run("resubmission is idempotent", func(t *testing.T) {
		svc, entities, _ := setupTestService(t)

		objectID := objects.NewID()
		personID := objects.NewID()

		graph := func() objects.Document {
			return objects.Document{
				"_id":                  objectID,
				"title":                "Amphora",
				"rightsowner_selector": objects.SelectorPerson,
				"rightsowner_persons": []any{
					map[string]any{"_id": personID, "name": "Ada"},
				},
			}
		}

		_, err := svc.Submit(ctx, objects.SubmitRequest{Session: testSession(), Graph: graph()})
		require.NoError(t, err)
		result, err := svc.Submit(ctx, objects.SubmitRequest{Session: testSession(), Graph: graph()})
		require.NoError(t, err)

		assert.Equal(t, objectID, result.ID())

		persons, err := entities.All(ctx, objects.CollectionPersons)
		require.NoError(t, err)
		require.Len(t, persons, 1)
		assert.Equal(t, []string{"RIGHTS_OWNER"}, persons[0].MapField("roles")[objectID])

		digital, err := entities.All(ctx, objects.CollectionDigitalObjects)
		require.NoError(t, err)
		require.Len(t, digital, 1)
		assert.Len(t, digital[0].SliceField("persons"), 1)
	})

	t.Run("roles accumulate per owning object", func(t *testing.T) {
		svc, entities, _ := setupTestService(t)

		personID := objects.NewID()
		firstID := objects.NewID()
		secondID := objects.NewID()

		for _, objectID := range []string{firstID, secondID} {
			graph := objects.Document{
				"_id":                  objectID,
				"rightsowner_selector": objects.SelectorPerson,
				"rightsowner_persons": []any{
					map[string]any{"_id": personID, "name": "Ada"},
				},
			}
			_, err := svc.Submit(ctx, objects.SubmitRequest{Session: testSession(), Graph: graph})
			require.NoError(t, err)
		}

		person, err := entities.Get(ctx, objects.CollectionPersons, personID)
		require.NoError(t, err)
		roles := person.MapField("roles")
		assert.Equal(t, []string{"RIGHTS_OWNER"}, roles[firstID])
		assert.Equal(t, []string{"RIGHTS_OWNER"}, roles[secondID])
	})

	t.Run("role lists merge without duplicates", func(t *testing.T) {
		svc, entities, _ := setupTestService(t)

		objectID := objects.NewID()
		personID := objects.NewID()

		submit := func(roleList string) {
			graph := objects.Document{
				"_id":                  objectID,
				"rightsowner_selector": objects.SelectorPerson,
				"rightsowner_persons": []any{
					map[string]any{"_id": personID, "name": "Ada", "person_role": roleList},
				},
			}
			_, err := svc.Submit(ctx, objects.SubmitRequest{Session: testSession(), Graph: graph})
			require.NoError(t, err)
		}

		submit("ROLE_A,ROLE_B")
		submit("ROLE_B,ROLE_C")

		person, err := entities.Get(ctx, objects.CollectionPersons, personID)
		require.NoError(t, err)
		assert.ElementsMatch(t,
			[]string{"RIGHTS_OWNER", "ROLE_A", "ROLE_B", "ROLE_C"},
			person.MapField("roles")[objectID])
	})

	t.Run("referencing an existing person merges fields", func(t *testing.T) {
		svc, entities, _ := setupTestService(t)

		personID := objects.NewID()
		require.NoError(t, entities.Upsert(ctx, objects.CollectionPersons, personID, objects.Document{
			"name": "Old Name",
			"note": "kept",
		}))

		graph := objects.Document{
			"persons": []any{
				map[string]any{"_id": personID, "name": "New Name"},
			},
		}
		result, err := svc.Submit(ctx, objects.SubmitRequest{Session: testSession(), Graph: graph})
		require.NoError(t, err)

		person, err := entities.Get(ctx, objects.CollectionPersons, personID)
		require.NoError(t, err)
		assert.Equal(t, "New Name", person.StringField("name"))
		assert.Equal(t, "kept", person.StringField("note"))
		assert.Equal(t, []string{"CONTACT_PERSON"}, person.MapField("roles")[result.ID()])

		persons, err := entities.All(ctx, objects.CollectionPersons)
		require.NoError(t, err)
		assert.Len(t, persons, 1)
	})

	t.Run("inline institution of a person is extracted", func(t *testing.T) {
		svc, entities, _ := setupTestService(t)

		graph := objects.Document{
			"persons": []any{
				map[string]any{
					"name":        "Grace",
					"institution": map[string]any{"name": "Navy Lab"},
				},
			},
		}
		_, err := svc.Submit(ctx, objects.SubmitRequest{Session: testSession(), Graph: graph})
		require.NoError(t, err)

		institutions, err := entities.All(ctx, objects.CollectionInstitutions)
		require.NoError(t, err)
		require.Len(t, institutions, 1)
		assert.Equal(t, "Navy Lab", institutions[0].StringField("name"))

		persons, err := entities.All(ctx, objects.CollectionPersons)
		require.NoError(t, err)
		require.Len(t, persons, 1)
		inst := persons[0].MapField("institution")
		require.NotNil(t, inst)
		assert.Equal(t, institutions[0].ID(), inst.ID())
		assert.Len(t, inst, 1)
	})

	t.Run("physical sub-graphs run the full pipeline", func(t *testing.T) {
		svc, entities, _ := setupTestService(t)

		graph := objects.Document{
			"title": "Scan",
			"physical_objects": []any{
				map[string]any{
					"title":                "Vase",
					"rightsowner_selector": objects.SelectorNewInstitution,
					"rightsowner_institutions": []any{
						map[string]any{"name": "City Museum"},
					},
				},
			},
		}

		result, err := svc.Submit(ctx, objects.SubmitRequest{Session: testSession(), Graph: graph})
		require.NoError(t, err)

		physical, err := entities.All(ctx, objects.CollectionPhysicalObjects)
		require.NoError(t, err)
		require.Len(t, physical, 1)
		assert.Equal(t, objects.CollectionPhysicalObjects, physical[0].Kind())
		assert.Len(t, physical[0].SliceField("institutions"), 1)

		// Role maps below the physical object are keyed by its identifier,
		// not the digital object's.
		institutions, err := entities.All(ctx, objects.CollectionInstitutions)
		require.NoError(t, err)
		require.Len(t, institutions, 1)
		roles := institutions[0].MapField("roles")
		assert.Contains(t, roles, physical[0].ID())
		assert.NotContains(t, roles, result.ID())

		// The graph keeps a bare reference to the physical object.
		refs := result.SliceField("physical_objects")
		require.Len(t, refs, 1)
		assert.Equal(t, map[string]any{"_id": physical[0].ID()}, refs[0])
	})

	t.Run("validation failures", func(t *testing.T) {
		svc, _, _ := setupTestService(t)

		_, err := svc.Submit(ctx, objects.SubmitRequest{Session: testSession(), Graph: objects.Document{}})
		assert.ErrorIs(t, err, objects.ErrValidation)

		_, err = svc.Submit(ctx, objects.SubmitRequest{Session: testSession(), Graph: objects.Document{
			"rightsowner_persons": []any{map[string]any{"name": "Ada"}},
		}})
		assert.ErrorIs(t, err, objects.ErrValidation)

		_, err = svc.Submit(ctx, objects.SubmitRequest{Session: testSession(), Graph: objects.Document{
			"rightsowner_selector": "owner",
			"rightsowner_persons":  []any{map[string]any{"name": "Ada"}},
		}})
		assert.ErrorIs(t, err, objects.ErrValidation)
	})
}

func TestSubmitConcurrentRoleMerge(t *testing.T) {
	ctx := context.Background()
	svc, entities, _ := setupTestService(t)

	personID := objects.NewID()
	objectIDs := make([]string, 8)
	for i := range objectIDs {
		objectIDs[i] = objects.NewID()
	}

	var wg sync.WaitGroup
	for _, objectID := range objectIDs {
		wg.Add(1)
		go func(objectID string) {
			defer wg.Done()
			graph := objects.Document{
				"_id":                  objectID,
				"rightsowner_selector": objects.SelectorPerson,
				"rightsowner_persons": []any{
					map[string]any{"_id": personID, "name": "Ada"},
				},
			}
			_, err := svc.Submit(ctx, objects.SubmitRequest{Session: testSession(), Graph: graph})
			assert.NoError(t, err)
		}(objectID)
	}
	wg.Wait()

	// Serialized read-modify-write on the shared person: no object's role
	// entry may be lost.
	person, err := entities.Get(ctx, objects.CollectionPersons, personID)
	require.NoError(t, err)
	roles := person.MapField("roles")
	for _, objectID := range objectIDs {
		assert.Contains(t, roles, objectID)
	}
}

// Identity is the identifier, nothing else: concurrent submissions that
// each inline "the same" person without one mint independent entities.
// Deduplication across submissions only happens when the client supplies
// the identifier.
func TestSubmitConcurrentDuplicatePerson(t *testing.T) {
	ctx := context.Background()
	svc, entities, _ := setupTestService(t)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			graph := objects.Document{
				"persons": []any{
					map[string]any{"name": "Ada", "mail": "ada@example.org"},
				},
			}
			_, err := svc.Submit(ctx, objects.SubmitRequest{Session: testSession(), Graph: graph})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	persons, err := entities.All(ctx, objects.CollectionPersons)
	require.NoError(t, err)
	require.Len(t, persons, 2)
	assert.NotEqual(t, persons[0].ID(), persons[1].ID())
	for _, person := range persons {
		assert.Equal(t, "Ada", person.StringField("name"))
	}
}
