package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ordersCollection() CollectionName {
	return CollectionName{Authority: "shop", Name: "orders"}
}

func TestNewAssignsFirstRevision(t *testing.T) {
	doc := New(ordersCollection(), 1, []byte(`{"sku":"A","qty":3}`))
	assert.Equal(t, uint32(1), doc.Header.Revision.Sequence)
	assert.Equal(t, HashContents(doc.Contents), doc.Header.Revision.Hash)
}

func TestWithNewContentsAdvancesSequenceAndHash(t *testing.T) {
	original := New(ordersCollection(), 7, []byte("v1"))
	updated := original.WithNewContents([]byte("v2"))

	require.Equal(t, original.Header.Revision.Sequence+1, updated.Header.Revision.Sequence)
	assert.Equal(t, HashContents([]byte("v2")), updated.Header.Revision.Hash)
	assert.NotEqual(t, original.Header.Revision.Hash, updated.Header.Revision.Hash)
	assert.Equal(t, original.Header.ID, updated.Header.ID)
	assert.Equal(t, original.Header.Collection, updated.Header.Collection)
}

func TestMatchesRevisionDetectsConflict(t *testing.T) {
	doc := New(ordersCollection(), 7, []byte("v1"))
	assert.True(t, doc.MatchesRevision(doc.Header.Revision))

	staleRevision := doc.Header.Revision
	updated := doc.WithNewContents([]byte("v2"))
	assert.False(t, updated.MatchesRevision(staleRevision))
}

func TestCollectionNameString(t *testing.T) {
	assert.Equal(t, "shop.orders", ordersCollection().String())
}
