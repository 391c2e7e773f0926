// Package export defines the outbound statement port. The worker appends
// recorded transactions to an external statement, currently a Google
// spreadsheet with one sheet per year.
package export

import (
	"context"

	"saldo/internal/core"
)

// StatementWriter appends one transaction row to the statement and returns
// a reference to the written row.
type StatementWriter interface {
	Append(ctx context.Context, tx core.Transaction) (rowRef string, err error)
}
