package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("escrow_agreements")

		collection.Fields.Add(
			&core.TextField{Name: "agreement_id", Required: true},
			&core.TextField{Name: "event_id", Required: true},
			&core.BoolField{Name: "organizer_secret_submitted"},
			&core.BoolField{Name: "artist_secret_submitted"},
			&core.BoolField{Name: "release_triggered"},
			// Empty string, "claiming:<token>", or the real contract
			// reference. claimed_at is set while a claim is held.
			&core.TextField{Name: "contract_reference"},
			&core.DateField{Name: "claimed_at"},
			&core.TextField{Name: "release_amount"},
			&core.TextField{Name: "currency"},
			&core.TextField{Name: "release_tx_ref"},
			&core.DateField{Name: "release_confirmed_at"},
		)

		collection.AddIndex("idx_escrow_agreements_agreement_id", true, "agreement_id", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("escrow_agreements")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
