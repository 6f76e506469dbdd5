// Package sheets defines the outbound ports for the spreadsheet mirror.
package sheets

import (
	"context"

	"truckpay/internal/core"
)

type (
	// LoadMirror maintains one spreadsheet row per load. Upsert is keyed
	// by the load's identifier, so replaying a message is harmless.
	LoadMirror interface {
		Upsert(ctx context.Context, userID string, l core.Load) (rowRef string, err error)
		Delete(ctx context.Context, userID string, loadID int64) error
	}
)
