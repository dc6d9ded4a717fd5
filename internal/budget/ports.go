package budget

import (
	"context"

	"budgetbee/internal/core"
)

// Ports for the remote ledger.
type (
	// Remote looks up and persists budget figures. Implementations return
	// *TransportError or *ValidationError on failure.
	Remote interface {
		// FetchSpent returns the current figures of one category in period p.
		FetchSpent(ctx context.Context, id core.CategoryID, p core.Period) (Figures, error)
		// SaveBudget persists a new limit and returns the resulting figures.
		SaveBudget(ctx context.Context, id core.CategoryID, limit core.Money, p core.Period) (Figures, error)
	}

	// SnapshotLoader returns the budget list of a period, the same data a
	// freshly rendered page would embed.
	SnapshotLoader interface {
		LoadSnapshot(ctx context.Context, p core.Period) (Snapshot, error)
	}
)
