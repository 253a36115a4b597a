package shoebox

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type User struct {
	Name  string
	Email string
	Age   int
}

func (u User) String() string {
	return fmt.Sprintf("(%v, %v)", u.Name, u.Email)
}

func TestMemStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore[User]()

	_, err := store.Get(ctx, "john")
	require.ErrorIs(t, err, ErrNotFound)

	_, existed, err := store.Set(ctx, "john", User{Name: "john", Email: "john@abc.com"})
	require.NoError(t, err)
	assert.False(t, existed)

	prev, existed, err := store.Set(ctx, "john", User{Name: "john", Email: "j@abc.com"})
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, "john@abc.com", prev.Email)

	_, _, err = store.Set(ctx, "doe", User{Name: "doe"})
	require.NoError(t, err)

	entries, err := store.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "doe", entries[0].Key, "entries are in key order")
	assert.Equal(t, "john", entries[1].Key)

	prev, existed, err = store.Remove(ctx, "john")
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, "j@abc.com", prev.Email)

	_, existed, err = store.Remove(ctx, "john")
	require.NoError(t, err)
	assert.False(t, existed)

	_, _, err = store.Set(ctx, "", User{})
	assert.ErrorIs(t, err, ErrBlankKey)
	_, err = store.Get(ctx, "")
	assert.ErrorIs(t, err, ErrBlankKey)
	assert.Equal(t, 1, store.Len())
}

func TestShoeboxEvents(t *testing.T) {
	ctx := context.Background()
	box := NewShoebox[User](NewMemStore[User](), WithLogger(testLogger(t)))

	var got []string
	box.OnNew(func(kv KeyValue[User]) { got = append(got, "new "+kv.Key) })
	box.OnRemove(func(r Removal[User]) {
		assert.True(t, r.HasValue)
		got = append(got, fmt.Sprintf("remove %s %v", r.Key, r.Value))
	})
	box.OnAnyChange(func(key string, oldValue, newValue User) {
		got = append(got, fmt.Sprintf("any %s %d->%d", key, oldValue.Age, newValue.Age))
	})
	h := box.OnChange("john", func(oldValue, newValue User) {
		got = append(got, fmt.Sprintf("john %d->%d", oldValue.Age, newValue.Age))
	})

	require.NoError(t, box.Set(ctx, "john", User{Name: "john", Email: "john@abc.com", Age: 30}))
	require.NoError(t, box.Set(ctx, "doe", User{Name: "doe", Email: "test@abc.com", Age: 40}))
	require.NoError(t, box.Set(ctx, "john", User{Name: "john", Email: "john@abc.com", Age: 31}))
	require.NoError(t, box.Set(ctx, "john", User{Name: "john", Email: "john@abc.com", Age: 31}), "unchanged write")
	require.NoError(t, box.Set(ctx, "doe", User{Name: "doe", Email: "test@abc.com", Age: 41}))
	require.NoError(t, box.Remove(ctx, "doe"))

	assert.Equal(t, []string{
		"new john",
		"new doe",
		"john 30->31",
		"any john 30->31",
		"any doe 40->41",
		"remove doe (doe, test@abc.com)",
	}, got)

	t.Run("per-key listener lifecycle", func(t *testing.T) {
		assert.Equal(t, 1, box.ChangeListeners("john"))
		box.DeleteChangeListener("john", h)
		box.DeleteChangeListener("john", h)
		assert.Zero(t, box.ChangeListeners("john"))
	})

	t.Run("errors", func(t *testing.T) {
		assert.ErrorIs(t, box.Remove(ctx, "nobody"), ErrNotFound)
		assert.ErrorIs(t, box.Set(ctx, " ", User{}), ErrBlankKey)
		assert.ErrorIs(t, box.Remove(ctx, ""), ErrBlankKey)
	})

	u, err := box.Get(ctx, "john")
	require.NoError(t, err)
	assert.Equal(t, 31, u.Age)
	fmt.Println("box ->", box)
}

func TestShoeboxCustomEqual(t *testing.T) {
	ctx := context.Background()
	box := NewShoebox[User](NewMemStore[User](), WithEqual(func(a, b any) bool {
		return a.(User).Email == b.(User).Email
	}))
	changes := 0
	box.OnAnyChange(func(string, User, User) { changes++ })

	require.NoError(t, box.Set(ctx, "john", User{Email: "john@abc.com", Age: 1}))
	require.NoError(t, box.Set(ctx, "john", User{Email: "john@abc.com", Age: 2}))
	assert.Zero(t, changes)

	require.NoError(t, box.Set(ctx, "john", User{Email: "j@abc.com", Age: 2}))
	assert.Equal(t, 1, changes)
}

func TestShoeboxReentrantWrite(t *testing.T) {
	ctx := context.Background()
	box := NewShoebox[int](NewMemStore[int]())

	var order []string
	box.OnNew(func(kv KeyValue[int]) {
		order = append(order, "new "+kv.Key)
		if kv.Value < 3 {
			require.NoError(t, box.Set(ctx, fmt.Sprintf("k%d", kv.Value+1), kv.Value+1))
		}
	})

	require.NoError(t, box.Set(ctx, "k1", 1))
	assert.Equal(t, []string{"new k1", "new k2", "new k3"}, order)
}

func TestShoeboxChangeListenerJoinsBeforeDelivery(t *testing.T) {
	ctx := context.Background()
	box := NewShoebox[int](NewMemStore[int]())

	var got [][2]int
	box.OnNew(func(kv KeyValue[int]) {
		// The change is queued behind this event; a watcher registered now
		// must still receive it.
		require.NoError(t, box.Set(ctx, kv.Key, kv.Value+1))
		box.OnChange(kv.Key, func(oldValue, newValue int) {
			got = append(got, [2]int{oldValue, newValue})
		})
	})

	require.NoError(t, box.Set(ctx, "k", 1))
	assert.Equal(t, [][2]int{{1, 2}}, got)
}
