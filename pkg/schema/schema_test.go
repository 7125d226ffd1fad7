package schema

import (
	"testing"

	"github.com/hollowdb/hollow/pkg/dberr"
	"github.com/hollowdb/hollow/pkg/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubView struct {
	name       string
	collection document.CollectionName
	unique     bool
}

func (v *stubView) Name() string                                { return v.name }
func (v *stubView) Collection() document.CollectionName         { return v.collection }
func (v *stubView) Unique() bool                                { return v.unique }
func (v *stubView) Version() int                                { return 1 }
func (v *stubView) Map(document.Document) ([]MapEntry, error)   { return nil, nil }
func (v *stubView) Reduce([][]byte, []int, [][]byte, bool) ([]byte, bool, error) {
	return nil, false, nil
}

func TestValidateQualifiedName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", "shop.orders", false},
		{"valid with dashes", "shop-inc.orders_v1", false},
		{"missing dot", "shop", true},
		{"leading dash authority", "-shop.orders", true},
		{"leading dash name", "shop.-orders", true},
		{"empty authority", ".orders", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateQualifiedName("collection", tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefineCollectionRejectsDuplicates(t *testing.T) {
	s, err := New("shop.v1")
	require.NoError(t, err)

	name := document.CollectionName{Authority: "shop", Name: "orders"}
	_, err = s.DefineCollection(name)
	require.NoError(t, err)

	_, err = s.DefineCollection(name)
	assert.ErrorIs(t, err, dberr.ErrCollectionAlreadyDefined)
}

func TestCollectionNotFound(t *testing.T) {
	s, err := New("shop.v1")
	require.NoError(t, err)

	_, err = s.Collection(document.CollectionName{Authority: "shop", Name: "missing"})
	assert.ErrorIs(t, err, dberr.ErrCollectionNotFound)
}

func TestViewResolutionByQualifiedName(t *testing.T) {
	s, err := New("shop.v1")
	require.NoError(t, err)

	collName := document.CollectionName{Authority: "shop", Name: "orders"}
	view := &stubView{name: "by_sku", collection: collName}
	_, err = s.DefineCollection(collName, view)
	require.NoError(t, err)

	resolved, err := s.View("shop.orders.by_sku")
	require.NoError(t, err)
	assert.Equal(t, "by_sku", resolved.Name())
}

func TestRegistryRejectsDuplicateSchemaNames(t *testing.T) {
	reg := NewRegistry()
	s1, err := New("shop.v1")
	require.NoError(t, err)
	require.NoError(t, reg.Register(s1))

	s2, err := New("SHOP.V1")
	require.NoError(t, err)
	err = reg.Register(s2)
	assert.ErrorIs(t, err, dberr.ErrSchemaAlreadyRegistered)
}

func TestRegistryResolve(t *testing.T) {
	reg := NewRegistry()
	s, err := New("shop.v1")
	require.NoError(t, err)
	require.NoError(t, reg.Register(s))

	resolved, err := reg.Resolve("Shop.V1")
	require.NoError(t, err)
	assert.Same(t, s, resolved)

	_, err = reg.Resolve("unknown.v1")
	assert.ErrorIs(t, err, dberr.ErrSchemaNotRegistered)
}
