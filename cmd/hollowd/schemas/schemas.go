// Package schemas builds the schema.Registry hollowd registers at startup.
// An embedding application would normally define its own collections and
// views in code the way pkg/query's and pkg/transaction's test fixtures do;
// this package plays that role for the standalone hollowd binary with one
// seed schema ("shop.v1") so `serve`/`database create` have something to
// point at out of the box.
package schemas

import (
	"encoding/json"

	"github.com/hollowdb/hollow/pkg/document"
	"github.com/hollowdb/hollow/pkg/schema"
	"github.com/hollowdb/hollow/pkg/view"
)

type order struct {
	SKU   string `json:"sku"`
	Total int    `json:"total"`
}

func ordersCollection() document.CollectionName {
	return document.CollectionName{Authority: "shop", Name: "orders"}
}

func bySKUMapper(doc document.Document) ([]view.MappedValue[string, int], error) {
	var o order
	if err := json.Unmarshal(doc.Contents, &o); err != nil {
		return nil, err
	}
	return []view.MappedValue[string, int]{{Key: o.SKU, Value: o.Total}}, nil
}

func sumReducer(_ []string, _ []int, values []int, _ bool) (int, error) {
	sum := 0
	for _, v := range values {
		sum += v
	}
	return sum, nil
}

// Registry builds and registers every seed schema hollowd ships with.
func Registry() (*schema.Registry, error) {
	reg := schema.NewRegistry()

	shop, err := schema.New("shop.v1")
	if err != nil {
		return nil, err
	}
	bySKU := view.New("by_sku", ordersCollection(), view.StringKey(), view.CBORValue[int](), bySKUMapper, view.WithReducer(sumReducer))
	if _, err := shop.DefineCollection(ordersCollection(), bySKU); err != nil {
		return nil, err
	}
	if err := reg.Register(shop); err != nil {
		return nil, err
	}

	return reg, nil
}
