// Package devseed loads a small set of bibliographic records into the
// configured database for local development. Seeding is idempotent: records
// are created with fixed ids and existing ones are left untouched.
package devseed

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/marcbase/marcbase/internal/data"
	"github.com/marcbase/marcbase/internal/domain/model"
	"github.com/marcbase/marcbase/internal/service"
)

// seedConcurrency bounds parallel inserts so seeding does not exhaust the
// local connection pool.
const seedConcurrency = 4

// DefaultTenant is the tenant development data is seeded into.
const DefaultTenant = "diku"

// Services bundles the dependencies needed for development seeding.
type Services struct {
	DB      *sql.DB
	records *service.RecordService
}

// NewServices constructs the services required for seeding using the provided DB.
func NewServices(db *sql.DB) Services {
	recordRepo := data.NewRecordRepo(db, data.RepoConfig{})
	rows := data.NewRowSource(db, data.RepoConfig{})
	recordService := service.MustNewRecordService(service.RecordServiceOptions{
		Repo: recordRepo,
		Rows: rows,
	})

	return Services{
		DB:      db,
		records: recordService,
	}
}

// Run executes the full development seeding workflow against the provided DB.
func Run(ctx context.Context, svcs Services, logger *slog.Logger) error {
	if err := seedRecords(ctx, svcs.records, logger); err != nil {
		return fmt.Errorf("seed records: %w", err)
	}
	return nil
}

// seedRecords inserts the seed set concurrently. Records carry fixed ids and
// have no inter-record ordering requirement, so insert order does not matter.
func seedRecords(ctx context.Context, svc *service.RecordService, logger *slog.Logger) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(seedConcurrency)

	for _, req := range defaultRecords() {
		g.Go(func() error {
			created, err := createRecord(ctx, svc, req)
			if err != nil {
				if logger != nil {
					logger.ErrorContext(ctx, "failed to seed record",
						"id", req.ID, "kind", req.Kind, "error", err)
				}
				return fmt.Errorf("record %s: %w", req.ID, err)
			}
			if logger != nil {
				msg := "record already exists"
				if created {
					msg = "seeded record"
				}
				logger.InfoContext(ctx, msg, "id", req.ID, "kind", req.Kind)
			}
			return nil
		})
	}

	return g.Wait()
}

func createRecord(
	ctx context.Context,
	svc *service.RecordService,
	req *model.CreateRecordRequest,
) (bool, error) {
	if _, err := svc.Create(ctx, DefaultTenant, req); err != nil {
		if errors.Is(err, data.ErrRecordAlreadyExists) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func defaultRecords() []*model.CreateRecordRequest {
	return []*model.CreateRecordRequest{
		{
			ID:   "f7b2c9e0-6f1a-4d3b-8a52-1c9e4a7d0b11",
			Kind: model.RecordKindInstance,
			Document: doc(map[string]any{
				"title":  "The Gulag Archipelago",
				"source": "MARC",
				"contributors": []map[string]any{
					{"name": "Solzhenitsyn, Aleksandr", "primary": true},
				},
				"publication": []map[string]any{
					{"publisher": "Harper & Row", "dateOfPublication": "1974"},
				},
				"languages": []string{"eng"},
			}),
		},
		{
			ID:   "3a8f0d24-95cc-45e1-b1a6-7e5d8c2f4a02",
			Kind: model.RecordKindInstance,
			Document: doc(map[string]any{
				"title":  "Structure and Interpretation of Computer Programs",
				"source": "MARC",
				"contributors": []map[string]any{
					{"name": "Abelson, Harold", "primary": true},
					{"name": "Sussman, Gerald Jay"},
				},
				"publication": []map[string]any{
					{"publisher": "MIT Press", "dateOfPublication": "1985"},
				},
				"subjects":  []string{"Computer programming", "LISP (Computer program language)"},
				"languages": []string{"eng"},
			}),
		},
		{
			ID:   "59d1e6b8-20af-4f0c-9d31-b84a6c0e7f23",
			Kind: model.RecordKindInstance,
			Document: doc(map[string]any{
				"title":  "Kalevala",
				"source": "MARC",
				"publication": []map[string]any{
					{"publisher": "Suomalaisen Kirjallisuuden Seura", "dateOfPublication": "1849"},
				},
				"languages": []string{"fin"},
			}),
		},
		{
			ID:   "a4c7f1d9-3e82-4b60-ae15-6d9b0c3e8f34",
			Kind: model.RecordKindHolding,
			Document: doc(map[string]any{
				"instanceId":          "f7b2c9e0-6f1a-4d3b-8a52-1c9e4a7d0b11",
				"callNumber":          "DK267 .S59413 1974",
				"permanentLocationId": "main-library",
			}),
		},
		{
			ID:   "c2e9b5a7-81d4-4c3f-92b8-0f6a4d1e7c45",
			Kind: model.RecordKindItem,
			Document: doc(map[string]any{
				"holdingsRecordId": "a4c7f1d9-3e82-4b60-ae15-6d9b0c3e8f34",
				"barcode":          "36105033288921",
				"status":           map[string]any{"name": "Available"},
				"materialType":     "book",
			}),
		},
		{
			ID:   "e8d3a6f0-47b9-4e21-8c57-2a1f9d0b6e56",
			Kind: model.RecordKindAuthority,
			Document: doc(map[string]any{
				"personalName": "Solzhenitsyn, Aleksandr Isaevich, 1918-2008",
				"identifiers":  []map[string]any{{"value": "n79018637", "identifierTypeId": "lccn"}},
				"sourceFileId": "lc-names",
			}),
		},
	}
}

func doc(v map[string]any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		// Seed documents are static literals; a marshal failure is a bug.
		panic(err)
	}
	return b
}
