package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("scan_records")

		collection.Fields.Add(
			&core.TextField{Name: "ticket_id", Required: true},
			&core.TextField{Name: "nonce", Required: true},
			&core.TextField{Name: "event_id", Required: true},
			&core.TextField{Name: "scanned_by", Required: true},
			&core.DateField{Name: "scanned_at", Required: true},
		)

		// The unique pair index is the authoritative replay guard: concurrent
		// inserts of the same (ticket_id, nonce) resolve to exactly one row.
		collection.AddIndex("idx_scan_records_ticket_nonce", true, "ticket_id, nonce", "")
		collection.AddIndex("idx_scan_records_event", false, "event_id", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("scan_records")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
