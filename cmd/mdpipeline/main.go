// Package main provides a reference binary for the market-data ingestion
// and book-building pipeline.
//
// Architecture:
//
//	┌──────────┐    RB0     ┌─────────┐    RB1     ┌──────────┐    RB2     ┌──────┐
//	│  UDP     │──RawPacket─▶│ Decoder │──WireMsg──▶│  Book    │──Snapshot─▶│ Cold │
//	│  ingress │            │  worker │            │  worker  │            │ path │
//	└──────────┘            └─────────┘            └──────────┘            └──────┘
//
// The ingress goroutine and the three pipeline workers are independent:
// this binary wires a UDP socket to PublishRaw and a logging Sink to the
// cold path, but any caller can drive the same Pipeline with its own
// transport.
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rishav/mdbook-pipeline/internal/clock"
	"github.com/rishav/mdbook-pipeline/internal/pipeline"
	"github.com/rishav/mdbook-pipeline/internal/sink"
)

// Config holds the reference binary's configuration.
type Config struct {
	ListenAddr    string
	StatsInterval time.Duration
	Development   bool
}

// DefaultConfig returns reasonable defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:    ":9001",
		StatsInterval: 10 * time.Second,
		Development:   false,
	}
}

func main() {
	listenAddr := flag.String("listen", DefaultConfig().ListenAddr, "UDP address to ingest market-data packets from")
	statsInterval := flag.Duration("stats-interval", DefaultConfig().StatsInterval, "interval between stats log lines")
	development := flag.Bool("dev", false, "use a human-readable development logger instead of JSON")
	flag.Parse()

	cfg := DefaultConfig()
	cfg.ListenAddr = *listenAddr
	cfg.StatsInterval = *statsInterval
	cfg.Development = *development

	logger, err := newLogger(cfg.Development)
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	conn, err := net.ListenPacket("udp", cfg.ListenAddr)
	if err != nil {
		logger.Fatal("failed to open UDP listener", zap.Error(err))
	}
	defer conn.Close()

	pipelineCfg := pipeline.DefaultConfig()
	pipelineCfg.Logger = logger
	pipelineCfg.Clock = clock.System{}
	pipelineCfg.Sink = sink.NewLogSink(logger)

	pl, err := pipeline.New(pipelineCfg)
	if err != nil {
		logger.Fatal("failed to construct pipeline", zap.Error(err))
	}

	pl.Start()
	logger.Info("pipeline started", zap.String("listen_addr", cfg.ListenAddr))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go runIngress(ctx, conn, pl, logger)
	go runStatsTicker(ctx, cfg.StatsInterval, pl, logger)

	<-sigCh
	logger.Info("shutdown signal received")
	cancel()
	pl.Stop()
	logger.Info("pipeline stopped")
}

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// runIngress reads UDP datagrams and forwards each to the pipeline via
// PublishRaw, using a locally assigned sequence number per packet and
// channel id 0 for every packet.
func runIngress(ctx context.Context, conn net.PacketConn, pl *pipeline.Pipeline, logger *zap.Logger) {
	buf := make([]byte, 64*1024)
	var seqNum uint64

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
				return
			default:
				logger.Warn("udp read error", zap.Error(err))
				continue
			}
		}

		seqNum++
		if !pl.PublishRaw(buf[:n], seqNum, 0) {
			logger.Warn("ingress ring full, packet dropped", zap.Uint64("seq_num", seqNum))
		}
	}
}

func runStatsTicker(ctx context.Context, interval time.Duration, pl *pipeline.Pipeline, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := pl.Stats()
			logger.Info("pipeline stats",
				zap.Uint64("total_packets", stats.TotalPackets),
				zap.Uint64("decode_errors", stats.DecodeErrors),
				zap.Uint64("book_updates", stats.BookUpdates),
				zap.Uint64("snapshots_dropped", stats.SnapshotsDropped),
				zap.Uint64("rb0_available", stats.RB0Available),
				zap.Uint64("rb1_available", stats.RB1Available),
				zap.Uint64("rb2_available", stats.RB2Available),
			)
		}
	}
}
