package transaction

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/hollowdb/hollow/pkg/dberr"
	"github.com/hollowdb/hollow/pkg/document"
	"github.com/hollowdb/hollow/pkg/schema"
	"github.com/hollowdb/hollow/pkg/storage"
	"github.com/hollowdb/hollow/pkg/view"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type user struct {
	Email string `json:"email"`
}

func usersCollection() document.CollectionName {
	return document.CollectionName{Authority: "shop", Name: "users"}
}

func byEmailMapper(doc document.Document) ([]view.MappedValue[string, string], error) {
	var u user
	if err := json.Unmarshal(doc.Contents, &u); err != nil {
		return nil, err
	}
	return []view.MappedValue[string, string]{{Key: u.Email, Value: u.Email}}, nil
}

func newTestDatabase(t *testing.T, unique bool) (*Database, *schema.Collection) {
	t.Helper()

	s, err := schema.New("shop.v1")
	require.NoError(t, err)

	opts := []view.Option[string, string]{}
	if unique {
		opts = append(opts, view.Unique[string, string]())
	}
	byEmail := view.New("by_email", usersCollection(), view.StringKey(), view.CBORValue[string](), byEmailMapper, opts...)

	coll, err := s.DefineCollection(usersCollection(), byEmail)
	require.NoError(t, err)

	engine, err := storage.OpenBoltEngine(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	db, err := Open(s, engine)
	require.NoError(t, err)
	return db, coll
}

func userContents(t *testing.T, email string) []byte {
	t.Helper()
	b, err := json.Marshal(user{Email: email})
	require.NoError(t, err)
	return b
}

func TestInsertAssignsEngineChosenID(t *testing.T) {
	db, _ := newTestDatabase(t, false)

	results, err := db.ApplyTransaction(New().Insert(usersCollection(), nil, userContents(t, "a@x")))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, ResultDocumentUpdated, results[0].Kind)
	assert.Equal(t, uint64(1), results[0].Header.ID)
	assert.Equal(t, uint32(1), results[0].Header.Revision.Sequence)
}

func TestInsertWithExplicitIDConflict(t *testing.T) {
	db, _ := newTestDatabase(t, false)
	id := uint64(42)

	_, err := db.ApplyTransaction(New().Insert(usersCollection(), &id, userContents(t, "a@x")))
	require.NoError(t, err)

	_, err = db.ApplyTransaction(New().Insert(usersCollection(), &id, userContents(t, "b@x")))
	var conflict *dberr.DocumentAlreadyExists
	assert.ErrorAs(t, err, &conflict)
}

func TestUpdateAdvancesRevisionAndRejectsStaleHeader(t *testing.T) {
	db, _ := newTestDatabase(t, false)

	results, err := db.ApplyTransaction(New().Insert(usersCollection(), nil, userContents(t, "a@x")))
	require.NoError(t, err)
	header := results[0].Header

	results, err = db.ApplyTransaction(New().Update(header, userContents(t, "a2@x")))
	require.NoError(t, err)
	assert.Equal(t, uint32(2), results[0].Header.Revision.Sequence)

	_, err = db.ApplyTransaction(New().Update(header, userContents(t, "a3@x")))
	var conflict *dberr.DocumentConflict
	assert.ErrorAs(t, err, &conflict)
}

func TestDeleteRequiresMatchingRevisionThenRemovesDocument(t *testing.T) {
	db, _ := newTestDatabase(t, false)

	results, err := db.ApplyTransaction(New().Insert(usersCollection(), nil, userContents(t, "a@x")))
	require.NoError(t, err)
	header := results[0].Header

	results, err = db.ApplyTransaction(New().Delete(header))
	require.NoError(t, err)
	assert.Equal(t, ResultDocumentDeleted, results[0].Kind)

	_, found, err := db.Get(usersCollection(), header.ID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDeleteOfMissingDocumentFails(t *testing.T) {
	db, _ := newTestDatabase(t, false)
	_, err := db.ApplyTransaction(New().Delete(document.Header{Collection: usersCollection(), ID: 999}))
	var notFound *dberr.DocumentNotFound
	assert.ErrorAs(t, err, &notFound)
}

// S3 from spec.md: unique view by_email. Insert A. A transaction inserting
// B with A's email and C with a fresh email fails the whole transaction;
// neither B nor C exists afterward.
func TestUniqueViewViolationFailsWholeTransaction(t *testing.T) {
	db, _ := newTestDatabase(t, true)

	_, err := db.ApplyTransaction(New().Insert(usersCollection(), nil, userContents(t, "a@x")))
	require.NoError(t, err)

	tx := New().
		Insert(usersCollection(), nil, userContents(t, "a@x")).
		Insert(usersCollection(), nil, userContents(t, "c@x"))
	_, err = db.ApplyTransaction(tx)

	var violation *dberr.UniqueKeyViolation
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "shop.users.by_email", violation.View)
	assert.Equal(t, uint64(1), violation.ExistingDocumentID)
	assert.Equal(t, uint64(2), violation.ConflictingDocumentID)

	_, found, err := db.Get(usersCollection(), 2)
	require.NoError(t, err)
	assert.False(t, found)
	_, found, err = db.Get(usersCollection(), 3)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestUniqueViewAllowsReinsertingSameDocumentKey(t *testing.T) {
	db, coll := newTestDatabase(t, true)
	_ = coll

	results, err := db.ApplyTransaction(New().Insert(usersCollection(), nil, userContents(t, "a@x")))
	require.NoError(t, err)
	header := results[0].Header

	// Updating the same document without changing its email must not
	// trip its own unique-key claim.
	_, err = db.ApplyTransaction(New().Update(header, userContents(t, "a@x")))
	assert.NoError(t, err)
}

func TestApplyTransactionAssignsMonotonicExecutedIDs(t *testing.T) {
	db, _ := newTestDatabase(t, false)

	_, err := db.ApplyTransaction(New().Insert(usersCollection(), nil, userContents(t, "a@x")))
	require.NoError(t, err)
	_, err = db.ApplyTransaction(New().Insert(usersCollection(), nil, userContents(t, "b@x")))
	require.NoError(t, err)

	lastID, err := db.LastTransactionID()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), lastID)

	executed, err := db.ListExecuted(1, 10)
	require.NoError(t, err)
	require.Len(t, executed, 2)
	assert.Equal(t, uint64(1), executed[0].TransactionID)
	assert.Equal(t, uint64(2), executed[1].TransactionID)
}

func TestReadYourWritesWithinTransaction(t *testing.T) {
	db, _ := newTestDatabase(t, false)
	id := uint64(7)

	// The Update refers to the header the Insert earlier in the same
	// transaction produces, so it must see that not-yet-committed revision.
	insertedHeader := document.New(usersCollection(), id, userContents(t, "a@x")).Header
	tx := New().
		Insert(usersCollection(), &id, userContents(t, "a@x")).
		Update(insertedHeader, userContents(t, "a2@x"))
	results, err := db.ApplyTransaction(tx)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, uint32(2), results[1].Header.Revision.Sequence)
}

// byEmailUpperMapper is byEmailMapper's "version 2": it upper-cases the
// emitted key, simulating a view definition change that requires a
// reindex rather than just a reload of persisted rows.
func byEmailUpperMapper(doc document.Document) ([]view.MappedValue[string, string], error) {
	entries, err := byEmailMapper(doc)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Key = strings.ToUpper(entries[i].Key)
		entries[i].Value = entries[i].Key
	}
	return entries, nil
}

func TestViewVersionBumpTriggersReindex(t *testing.T) {
	dataDir := t.TempDir()

	sV1, err := schema.New("shop.v1")
	require.NoError(t, err)
	byEmailV1 := view.New("by_email", usersCollection(), view.StringKey(), view.CBORValue[string](), byEmailMapper)
	_, err = sV1.DefineCollection(usersCollection(), byEmailV1)
	require.NoError(t, err)

	engine, err := storage.OpenBoltEngine(dataDir)
	require.NoError(t, err)

	db1, err := Open(sV1, engine)
	require.NoError(t, err)
	_, err = db1.ApplyTransaction(New().Insert(usersCollection(), nil, userContents(t, "a@x")))
	require.NoError(t, err)

	idxV1, ok := db1.Index(usersCollection(), "by_email")
	require.True(t, ok)
	lowerKey, err := view.StringKey().Encode("a@x")
	require.NoError(t, err)
	assert.Len(t, idxV1.Entries(lowerKey), 1)
	require.NoError(t, engine.Close())

	// Reopen the same on-disk data against a schema whose view bumped its
	// version and changed its mapper: the persisted version 1 rows must
	// be discarded and replaced with version 2 rows, not blended with
	// them or served stale.
	sV2, err := schema.New("shop.v1")
	require.NoError(t, err)
	byEmailV2 := view.New("by_email", usersCollection(), view.StringKey(), view.CBORValue[string](), byEmailUpperMapper, view.WithVersion[string, string](2))
	_, err = sV2.DefineCollection(usersCollection(), byEmailV2)
	require.NoError(t, err)

	engine2, err := storage.OpenBoltEngine(dataDir)
	require.NoError(t, err)
	t.Cleanup(func() { engine2.Close() })

	db2, err := Open(sV2, engine2)
	require.NoError(t, err)

	idxV2, ok := db2.Index(usersCollection(), "by_email")
	require.True(t, ok)
	assert.Empty(t, idxV2.Entries(lowerKey))

	upperKey, err := view.StringKey().Encode("A@X")
	require.NoError(t, err)
	assert.Len(t, idxV2.Entries(upperKey), 1)

	storedVersion, hasVersion, err := engine2.ViewVersion("shop.users.by_email")
	require.NoError(t, err)
	require.True(t, hasVersion)
	assert.Equal(t, 2, storedVersion)
}
