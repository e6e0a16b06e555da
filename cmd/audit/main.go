package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mdrakib/shopstock/internal/audit"
	"github.com/mdrakib/shopstock/internal/config"
	kafkax "github.com/mdrakib/shopstock/internal/kafka"
	"github.com/mdrakib/shopstock/internal/orders"
	"github.com/mdrakib/shopstock/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &audit.Service{
		Redis:       rdb,
		ServiceName: cfg.ServiceName + "-audit",
	}

	group := getenv("AUDIT_GROUP", "shop-audit")
	workers := mustAtoi(os.Getenv("AUDIT_WORKERS"), "4")

	consumers := []struct {
		topic   string
		handler kafkax.Handler
	}{
		{orders.TopicOrderPlaced, svc.HandleOrderPlaced},
		{orders.TopicOrderStatus, svc.HandleOrderStatus},
		{orders.TopicStockRestoreFailed, svc.HandleRestoreFailed},
	}
	for _, c := range consumers {
		cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, c.topic, workers)
		topic := c.topic
		handler := c.handler
		go func() {
			log.Info().Str("group", group).Str("topic", topic).Int("workers", workers).
				Msg("audit consumer started")
			if err := cons.Start(ctx, handler); err != nil {
				log.Error().Err(err).Str("topic", topic).Msg("consumer exit")
				cancel()
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		log.Info().Msg("shutting down consumers...")
	case <-ctx.Done():
	}
	cancel()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}
