// Package document defines the identity and content model shared by every
// storage backend: a document's header (collection, id, revision) and its
// opaque contents blob.
package document

import (
	"fmt"

	"lukechampine.com/blake3"
)

// HashSize is the length in bytes of a revision's content digest.
const HashSize = 32

// Hash is a 32-byte BLAKE3 content digest.
type Hash [HashSize]byte

// HashContents computes the digest used for a document's revision.
func HashContents(contents []byte) Hash {
	return Hash(blake3.Sum256(contents))
}

func (h Hash) String() string {
	return fmt.Sprintf("%x", [HashSize]byte(h))
}

// CollectionName is a qualified two-part identifier, "authority.name".
// Validity is enforced by the schema package; this type is just the
// serialization shape (a single dotted string, per spec.md §6).
type CollectionName struct {
	Authority string
	Name      string
}

func (c CollectionName) String() string {
	return c.Authority + "." + c.Name
}

// Revision identifies one version of a document's contents: a strictly
// monotone per-document sequence number plus the digest of the contents at
// that sequence.
type Revision struct {
	Sequence uint32
	Hash     Hash
}

// NextRevision derives the revision that results from replacing a
// document's contents, per spec.md §4.B: seq+1 paired with H(newContents).
func (r Revision) NextRevision(newContents []byte) Revision {
	return Revision{
		Sequence: r.Sequence + 1,
		Hash:     HashContents(newContents),
	}
}

// Header is the (collection, id, revision) triple that update and delete
// operations reference to detect concurrent modification.
type Header struct {
	Collection CollectionName
	ID         uint64
	Revision   Revision
}

// Document pairs a header with its opaque contents. The core never
// interprets Contents; callers own its structure.
type Document struct {
	Header   Header
	Contents []byte
}

// New constructs the first revision (sequence 1) of a document for a
// freshly-assigned id.
func New(collection CollectionName, id uint64, contents []byte) Document {
	return Document{
		Header: Header{
			Collection: collection,
			ID:         id,
			Revision: Revision{
				Sequence: 1,
				Hash:     HashContents(contents),
			},
		},
		Contents: contents,
	}
}

// WithNewContents returns the document that results from an Update
// operation: the revision advances by exactly one and the digest matches
// the new contents (invariant 2 in spec.md §3).
func (d Document) WithNewContents(contents []byte) Document {
	return Document{
		Header: Header{
			Collection: d.Header.Collection,
			ID:         d.Header.ID,
			Revision:   d.Header.Revision.NextRevision(contents),
		},
		Contents: contents,
	}
}

// MatchesRevision reports whether this document's current header has the
// revision an operation expects; used for optimistic-concurrency checks on
// Update and Delete.
func (d Document) MatchesRevision(expected Revision) bool {
	return d.Header.Revision == expected
}
