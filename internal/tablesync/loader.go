package tablesync

import (
	"context"
	"log/slog"

	"tabledash/internal/dbclient"
	"tabledash/internal/domain"
)

// Loader reads a whole collection into a Snapshot.
type Loader struct {
	driver  dbclient.Driver
	locator *Locator
}

func NewLoader(driver dbclient.Driver, locator *Locator) *Loader {
	return &Loader{driver: driver, locator: locator}
}

// Load fetches every record of h. A missing collection is ErrNotFound; an empty one
// is a snapshot with no rows and no columns.
func (l *Loader) Load(ctx context.Context, h domain.Handle) (*Snapshot, error) {
	if err := l.locator.Check(ctx, h); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, l.locator.timeout)
	defer cancel()
	records, err := l.driver.FindAll(ctx, h)
	if err != nil {
		return nil, storeErr("find_all", h, err)
	}

	snap := BuildSnapshot(records)
	slog.Debug("table loaded", "collection", h.String(), "rows", snap.Len(), "columns", len(snap.columns))
	return snap, nil
}
