package metrics

import (
	"time"

	"github.com/hollowdb/hollow/pkg/document"
	"github.com/hollowdb/hollow/pkg/schema"
	"github.com/hollowdb/hollow/pkg/view"
)

// Database is the subset of *transaction.Database the collector polls.
// Declared locally rather than importing pkg/transaction, since
// transaction.ApplyTransaction reports to these metrics directly and
// metrics must not import back into it. *transaction.Database satisfies
// this interface as-is.
type Database interface {
	Schema() *schema.Schema
	DocumentCount(coll document.CollectionName) (int, error)
	Index(coll document.CollectionName, viewName string) (*view.Index, bool)
}

// Collector periodically refreshes the gauges that reflect current
// database size (documents per collection, entries per view) rather than
// rates, which callers update inline as operations happen.
type Collector struct {
	db     Database
	stopCh chan struct{}
}

// NewCollector creates a collector over db.
func NewCollector(db Database) *Collector {
	return &Collector{
		db:     db,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics on a 15 second tick.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	for _, coll := range c.db.Schema().Collections() {
		count, err := c.db.DocumentCount(coll.Name)
		if err == nil {
			DocumentsTotal.WithLabelValues(coll.Name.String()).Set(float64(count))
		}

		for _, v := range coll.Views() {
			qualified := coll.Name.String() + "." + v.Name()
			idx, ok := c.db.Index(coll.Name, v.Name())
			if !ok {
				continue
			}
			ViewEntriesTotal.WithLabelValues(qualified).Set(float64(idx.Len()))
		}
	}
}
