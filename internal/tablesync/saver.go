package tablesync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tabledash/internal/dbclient"
	"tabledash/internal/domain"
)

// Ack confirms a completed save.
type Ack struct {
	Handle   domain.Handle `json:"handle"`
	Deleted  int           `json:"deleted"`
	Inserted int           `json:"inserted"`
	SavedAt  time.Time     `json:"savedAt"`
}

// Saver overwrites a collection with a snapshot.
type Saver struct {
	driver  dbclient.Driver
	locator *Locator
	now     func() time.Time
}

func NewSaver(driver dbclient.Driver, locator *Locator) *Saver {
	return &Saver{driver: driver, locator: locator, now: time.Now}
}

// Save replaces the contents of h with the snapshot's records. Column names the store
// would refuse are rejected before anything is deleted. If the store deleted but could
// not insert, the error is a *domain.PartialSaveError; it is never reported as success.
func (sv *Saver) Save(ctx context.Context, h domain.Handle, s *Snapshot) (Ack, error) {
	if err := ValidateColumns(s.columns); err != nil {
		return Ack{}, domain.NewStoreError("save", h, domain.ErrValidation, err)
	}
	if err := sv.locator.Check(ctx, h); err != nil {
		return Ack{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, sv.locator.timeout)
	defer cancel()
	res, err := sv.driver.ReplaceAll(ctx, h, s.Records())
	if err != nil {
		return Ack{}, storeErr("replace_all", h, err)
	}

	slog.Info("table saved", "collection", h.String(), "deleted", res.Deleted, "inserted", res.Inserted)
	return Ack{Handle: h, Deleted: res.Deleted, Inserted: res.Inserted, SavedAt: sv.now()}, nil
}

// ValidateColumns rejects column names no document store accepts as field names.
func ValidateColumns(columns []string) error {
	for _, c := range columns {
		switch {
		case c == domain.IdentityField:
			return fmt.Errorf("column %q is reserved for the store identity", c)
		case strings.TrimSpace(c) == "":
			return fmt.Errorf("empty column name")
		case strings.HasPrefix(c, "$"):
			return fmt.Errorf("column %q: names may not start with '$'", c)
		}
	}
	return nil
}
