package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DH-Cologne/ObjectsRepositoryServer/pkg/objectsrepository"
)

func TestEntityStore(t *testing.T) {
	ctx := context.Background()

	t.Run("upsert and get roundtrip", func(t *testing.T) {
		store := NewEntityStore()
		id := objectsrepository.NewID()

		require.NoError(t, store.Upsert(ctx, objectsrepository.CollectionPersons, id, objectsrepository.Document{
			"_id":  "stale identifier that must not be stored",
			"name": "Ada",
		}))

		doc, err := store.Get(ctx, objectsrepository.CollectionPersons, id)
		require.NoError(t, err)
		assert.Equal(t, id, doc.ID())
		assert.Equal(t, "Ada", doc.StringField("name"))
	})

	t.Run("get misses", func(t *testing.T) {
		store := NewEntityStore()
		_, err := store.Get(ctx, objectsrepository.CollectionPersons, objectsrepository.NewID())
		assert.ErrorIs(t, err, objectsrepository.ErrNotFound)
	})

	t.Run("returned documents are isolated copies", func(t *testing.T) {
		store := NewEntityStore()
		id := objectsrepository.NewID()
		require.NoError(t, store.Upsert(ctx, objectsrepository.CollectionPersons, id, objectsrepository.Document{
			"nested": map[string]any{"key": "value"},
		}))

		doc, err := store.Get(ctx, objectsrepository.CollectionPersons, id)
		require.NoError(t, err)
		doc.MapField("nested")["key"] = "mutated"

		again, err := store.Get(ctx, objectsrepository.CollectionPersons, id)
		require.NoError(t, err)
		assert.Equal(t, "value", again.MapField("nested")["key"])
	})

	t.Run("all is ordered by identifier", func(t *testing.T) {
		store := NewEntityStore()
		ids := []string{"c0000000-0000-0000-0000-000000000000", "a0000000-0000-0000-0000-000000000000", "b0000000-0000-0000-0000-000000000000"}
		for _, id := range ids {
			require.NoError(t, store.Upsert(ctx, objectsrepository.CollectionTags, id, objectsrepository.Document{"value": id}))
		}

		docs, err := store.All(ctx, objectsrepository.CollectionTags)
		require.NoError(t, err)
		require.Len(t, docs, 3)
		assert.Equal(t, "a0000000-0000-0000-0000-000000000000", docs[0].ID())
		assert.Equal(t, "b0000000-0000-0000-0000-000000000000", docs[1].ID())
		assert.Equal(t, "c0000000-0000-0000-0000-000000000000", docs[2].ID())
	})

	t.Run("delete", func(t *testing.T) {
		store := NewEntityStore()
		id := objectsrepository.NewID()
		require.NoError(t, store.Upsert(ctx, objectsrepository.CollectionModels, id, objectsrepository.Document{"name": "Mesh"}))

		require.NoError(t, store.Delete(ctx, objectsrepository.CollectionModels, id))
		_, err := store.Get(ctx, objectsrepository.CollectionModels, id)
		assert.ErrorIs(t, err, objectsrepository.ErrNotFound)

		assert.ErrorIs(t, store.Delete(ctx, objectsrepository.CollectionModels, id), objectsrepository.ErrNotFound)
	})
}

func TestAccountStore(t *testing.T) {
	ctx := context.Background()

	t.Run("save and get roundtrip", func(t *testing.T) {
		store := NewAccountStore()
		require.NoError(t, store.SaveAccount(ctx, &objectsrepository.Account{
			Username: "alice",
			Role:     objectsrepository.AccountRoleUser,
			Data:     map[string][]string{"models": {"m1"}},
		}))

		account, err := store.GetAccount(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, []string{"m1"}, account.Data["models"])
	})

	t.Run("missing account", func(t *testing.T) {
		store := NewAccountStore()
		_, err := store.GetAccount(ctx, "nobody")
		assert.ErrorIs(t, err, objectsrepository.ErrAccountNotFound)
	})

	t.Run("returned accounts are isolated copies", func(t *testing.T) {
		store := NewAccountStore()
		require.NoError(t, store.SaveAccount(ctx, &objectsrepository.Account{
			Username: "alice",
			Data:     map[string][]string{"models": {"m1"}},
		}))

		account, err := store.GetAccount(ctx, "alice")
		require.NoError(t, err)
		account.Data["models"] = append(account.Data["models"], "m2")

		again, err := store.GetAccount(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, []string{"m1"}, again.Data["models"])
	})

	t.Run("all accounts ordered by username", func(t *testing.T) {
		store := NewAccountStore()
		for _, name := range []string{"carol", "alice", "bob"} {
			require.NoError(t, store.SaveAccount(ctx, &objectsrepository.Account{Username: name, Data: map[string][]string{}}))
		}

		accounts, err := store.AllAccounts(ctx)
		require.NoError(t, err)
		require.Len(t, accounts, 3)
		assert.Equal(t, "alice", accounts[0].Username)
		assert.Equal(t, "bob", accounts[1].Username)
		assert.Equal(t, "carol", accounts[2].Username)
	})
}
