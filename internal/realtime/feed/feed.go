// Package feed delivers full per-relation row sets to watchers.
package feed

import (
	"context"

	"github.com/smallbiznis/ordersync/internal/normalize"
)

// Callback receives the full current row set of a relation, never a diff.
type Callback func(rows []normalize.Row)

type Feed interface {
	Watch(ctx context.Context, relation normalize.Relation, cb Callback) error
}
