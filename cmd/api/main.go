package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"minedesk.org/internal/credit"
	"minedesk.org/internal/httpapi"
	"minedesk.org/internal/loan"
	"minedesk.org/internal/obs"
	"minedesk.org/internal/ops"
	"minedesk.org/internal/sales"
	"minedesk.org/internal/store/pg"
	"minedesk.org/internal/stream"
	"minedesk.org/internal/tenant"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	// Local development convenience; ignored when no .env file exists.
	_ = godotenv.Load()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	var (
		tenantStore tenant.Store
		salesStore  sales.Store
		creditStore credit.Store
		loanStore   loan.Store
		opsStore    ops.Store
		probe       httpapi.ReadyProbe
		aggregator  credit.SalesAggregator
	)
	if dsn := os.Getenv("MINEDESK_PG_DSN"); dsn != "" {
		store, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer store.Close()
		tenantStore = store
		salesStore = store
		creditStore = store
		loanStore = store
		opsStore = store
		aggregator = store
		probe = httpapi.ReadyProbe{DB: store.DB()}
	} else {
		log.Println("MINEDESK_PG_DSN not set; using in-memory stores")
		mem := sales.NewInMemory()
		tenantStore = tenant.NewInMemory()
		salesStore = mem
		creditStore = credit.NewInMemory()
		loanStore = loan.NewInMemory()
		opsStore = ops.NewInMemory()
		aggregator = mem
	}

	tenants, err := tenant.NewService(tenantStore)
	if err != nil {
		log.Fatalf("tenant service: %v", err)
	}
	salesSvc, err := sales.NewService(salesStore)
	if err != nil {
		log.Fatalf("sales service: %v", err)
	}
	creditSvc, err := credit.NewService(creditStore, aggregator)
	if err != nil {
		log.Fatalf("credit service: %v", err)
	}
	loanSvc, err := loan.NewService(loanStore)
	if err != nil {
		log.Fatalf("loan service: %v", err)
	}
	opsSvc, err := ops.NewService(opsStore)
	if err != nil {
		log.Fatalf("ops service: %v", err)
	}

	api := httpapi.New(httpapi.Deps{
		Tenants: tenants,
		Sales:   salesSvc,
		Credit:  creditSvc,
		Loans:   loanSvc,
		Ops:     opsSvc,
		Stream:  stream.New(),
		Ready:   probe,
		Version: version,
	})

	addr := os.Getenv("MINEDESK_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting minedesk-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
