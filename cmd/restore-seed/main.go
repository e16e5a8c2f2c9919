// restore-seed loads the demo locations, products and opening balances.
// Existing locations and products are kept; opening receipts are posted only
// to balances that are still empty, so it is safe to run twice.
//
// Usage: go run ./cmd/restore-seed
package main

import (
	"context"
	"errors"
	"io"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"fieldstock/internal/app"
	"fieldstock/internal/bootstrap"
	"fieldstock/internal/config"
	"fieldstock/internal/core"
)

const seedActor = "seed"

var locations = []app.CreateLocationRequest{
	{Code: "CD-01", Name: "Central Depot", Type: core.LocationCentral},
	{Code: "OBRA-7", Name: "Building Site 7", Type: core.LocationField},
	{Code: "OBRA-12", Name: "Building Site 12", Type: core.LocationField},
	{Code: "TR-01", Name: "Truck 01", Type: core.LocationTransit},
}

var products = []app.CreateProductRequest{
	{Code: "CIM-50", Name: "Cement CP-II 50kg", Unit: "SC", Category: "binders"},
	{Code: "ARE-M3", Name: "Washed sand", Unit: "M3", Category: "aggregates"},
	{Code: "VER-10", Name: "Rebar CA-50 10mm", Unit: "BR", Category: "steel"},
	{Code: "TIJ-09", Name: "Ceramic brick 9x19x29", Unit: "UN", Category: "masonry"},
}

type opening struct {
	location, product string
	quantity, min     int64
}

var openings = []opening{
	{"CD-01", "CIM-50", 400, 100},
	{"CD-01", "ARE-M3", 60, 20},
	{"CD-01", "VER-10", 300, 50},
	{"CD-01", "TIJ-09", 5000, 1000},
	{"OBRA-7", "CIM-50", 12, 40},
	{"OBRA-7", "VER-10", 20, 30},
	{"OBRA-12", "TIJ-09", 900, 500},
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("FIELDSTOCK_CONFIG"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Storage != config.StoragePostgres {
		log.Fatalf("restore-seed needs storage=postgres (got %q)", cfg.Storage)
	}

	ctx := context.Background()
	c, err := bootstrap.New(ctx, cfg, io.Discard)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer c.Close()
	svc := c.App

	log.Println("Restoring locations...")
	for _, req := range locations {
		req.ActorID = seedActor
		if _, err := svc.CreateLocation(ctx, req); err != nil && !errors.Is(err, core.ErrConflict) {
			log.Fatalf("location %s: %v", req.Code, err)
		}
	}

	log.Println("Restoring products...")
	for _, req := range products {
		req.ActorID = seedActor
		if _, err := svc.CreateProduct(ctx, req); err != nil && !errors.Is(err, core.ErrConflict) {
			log.Fatalf("product %s: %v", req.Code, err)
		}
	}

	log.Println("Posting opening balances...")
	for _, o := range openings {
		stock, err := svc.GetStock(ctx, o.location, o.product)
		if err != nil {
			log.Fatalf("stock %s/%s: %v", o.location, o.product, err)
		}
		if len(stock.Lines) == 0 || stock.Lines[0].Quantity.IsZero() {
			if _, err := svc.ReceiveStock(ctx, app.StockEntryRequest{
				LocationRef: o.location,
				ProductRef:  o.product,
				Quantity:    decimal.NewFromInt(o.quantity),
				Note:        "opening balance",
				ActorID:     seedActor,
			}); err != nil {
				log.Fatalf("opening %s/%s: %v", o.location, o.product, err)
			}
		}
		if _, err := svc.SetStockLimits(ctx, app.SetLimitsRequest{
			LocationRef: o.location,
			ProductRef:  o.product,
			MinStock:    decimal.NewFromInt(o.min),
		}); err != nil {
			log.Fatalf("limits %s/%s: %v", o.location, o.product, err)
		}
	}

	log.Println("Seed data restored successfully.")
}
