// Command seed provisions the demo mining organization with members,
// sales history and loan applications. It targets PostgreSQL when
// MINEDESK_PG_DSN is set, which makes it useful for staging environments.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"minedesk.org/internal/fixture"
	"minedesk.org/internal/loan"
	"minedesk.org/internal/sales"
	"minedesk.org/internal/store/pg"
	"minedesk.org/internal/tenant"
)

func main() {
	log.SetFlags(0)
	_ = godotenv.Load()

	var (
		dsn  = flag.String("dsn", os.Getenv("MINEDESK_PG_DSN"), "PostgreSQL DSN")
		seed = flag.Int64("seed", 1, "Deterministic seed for the generated history")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or MINEDESK_PG_DSN")
	}

	store, err := pg.Open(*dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	tenants, err := tenant.NewService(store)
	if err != nil {
		log.Fatalf("tenant service: %v", err)
	}
	salesSvc, err := sales.NewService(store)
	if err != nil {
		log.Fatalf("sales service: %v", err)
	}
	loans, err := loan.NewService(store)
	if err != nil {
		log.Fatalf("loan service: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := fixture.NewBuilder(*seed).Build(ctx, tenants, salesSvc, loans)
	if err != nil {
		log.Fatalf("seed fixture: %v", err)
	}

	log.Printf("seeded organization %s (%s): %d members, %d sales, %d loans",
		result.Organization.Name, result.Organization.ID,
		len(result.Members), result.SalesCount, result.LoanCount)
}
