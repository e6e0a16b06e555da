package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mdrakib/shopstock/internal/catalog"
	"github.com/mdrakib/shopstock/internal/config"
	"github.com/mdrakib/shopstock/internal/httpx"
	kafkax "github.com/mdrakib/shopstock/internal/kafka"
	"github.com/mdrakib/shopstock/internal/orders"
	"github.com/mdrakib/shopstock/internal/postgres"
	"github.com/mdrakib/shopstock/internal/redisx"
	"github.com/mdrakib/shopstock/internal/stock"
)

func main() {
	_ = godotenv.Load()
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one per topic
	pPlaced := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPlaced, 1024)
	pPlaced.Start(ctx)
	pStatus := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderStatus, 1024)
	pStatus.Start(ctx)
	pRestore := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicStockRestoreFailed, 1024)
	pRestore.Start(ctx)

	// Repos & services
	catalogRepo := &catalog.Repo{DB: db}
	store := &orders.PGStore{DB: db}
	svc := &orders.Service{
		Ledger:              &stock.PGLedger{DB: db},
		Products:            catalogRepo,
		Store:               store,
		Redis:               rdb,
		Producer:            pRestore,
		ServiceName:         cfg.ServiceName,
		DeliveryChargeCents: cfg.DeliveryChargeCents,
	}

	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Svc:      svc,
		Store:    store,
		Producer: pPlaced,
		Redis:    rdb,
		Service:  cfg.ServiceName,
	}
	oh.Register(router)
	ah := &httpx.AdminHandler{
		Svc:      svc,
		Store:    store,
		Catalog:  catalogRepo,
		Producer: pStatus,
		Redis:    rdb,
		Service:  cfg.ServiceName,
	}
	ah.Register(router)
	ch := &httpx.CatalogHandler{Repo: catalogRepo}
	ch.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	for _, p := range []*kafkax.Producer{pPlaced, pStatus, pRestore} {
		p.Close() // close inbox -> flush & close writer
	}
	cancel()
	for _, p := range []*kafkax.Producer{pPlaced, pStatus, pRestore} {
		p.WaitClosed()
	}
}
