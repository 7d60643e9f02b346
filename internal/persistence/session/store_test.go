package session

import (
	"testing"

	isession "github.com/lumenmq/lighthouse/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutGetDelete(t *testing.T) {
	store := NewMemoryStore()
	sess := isession.New("client-1", false)

	_, ok := store.Get("client-1")
	assert.False(t, ok)

	store.Put(sess)
	got, ok := store.Get("client-1")
	require.True(t, ok)
	assert.Same(t, sess, got)
	assert.Equal(t, 1, store.Len())

	store.Delete("client-1")
	_, ok = store.Get("client-1")
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len())
}
