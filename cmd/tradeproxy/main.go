package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/geoffp/tradeproxy/internal/api"
	"github.com/geoffp/tradeproxy/internal/chaos"
	"github.com/geoffp/tradeproxy/internal/config"
	"github.com/geoffp/tradeproxy/internal/logging"
	"github.com/geoffp/tradeproxy/internal/msg"
	"github.com/geoffp/tradeproxy/internal/observability"
	"github.com/geoffp/tradeproxy/internal/relay"
)

func main() {
	settings, err := config.Load(config.DefaultOptions())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	var outputs []string
	if path := logging.FilePath(settings.LogPath); path != "" {
		if err := os.MkdirAll(settings.LogPath, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create log directory: %v\n", err)
			os.Exit(1)
		}
		outputs = append(outputs, path)
	}

	logger, err := logging.NewLogger(config.ServiceName, settings.LogLevel, outputs...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting tradeproxy service",
		zap.String("listen_addr", settings.ListenAddr()),
		zap.Int("http_port", settings.HTTPPort),
		zap.Int("grpc_port", settings.GRPCPort),
		zap.String("request_server", settings.RequestServer),
		zap.Uint64("long_bot_id", settings.LongBotID),
		zap.Uint64("short_bot_id", settings.ShortBotID),
		zap.String("kafka_brokers", settings.KafkaBrokers),
	)

	store := config.NewStore(settings)

	// Outbound client; chaos wraps the transport only when enabled
	client := &http.Client{}
	if chaosCfg := chaos.LoadConfig(); chaosCfg.Enabled {
		client = chaos.NewTransport(nil, chaos.New(chaosCfg, logger)).Client()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)
	healthChecker := observability.NewHealthChecker(logger, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	sinks := []relay.Sink{metrics}

	kafkaCfg := msg.ConfigFromSettings(settings)
	var producer *msg.Producer
	if kafkaCfg != nil {
		producer, err = msg.NewProducer(kafkaCfg, logger)
		if err != nil {
			logger.Fatal("failed to create kafka producer", zap.Error(err))
		}
		sinks = append(sinks, msg.NewOutcomePublisher(producer, kafkaCfg.OutcomeTopic, logger))
	}

	r, err := relay.New(store, client, logger, sinks...)
	if err != nil {
		logger.Fatal("failed to create relay", zap.Error(err))
	}

	// gRPC health
	grpcServer := grpc.NewServer()
	healthChecker.RegisterGRPC(grpcServer)

	grpcListener, err := net.Listen("tcp", settings.GRPCAddr())
	if err != nil {
		logger.Fatal("failed to listen on gRPC port", zap.Error(err))
	}

	grpcErrCh := make(chan error, 1)
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", settings.GRPCAddr()))
		if err := grpcServer.Serve(grpcListener); err != nil {
			grpcErrCh <- err
		}
	}()

	healthErrCh := make(chan error, 1)
	go func() {
		if err := healthChecker.StartHTTPServer(settings.HTTPAddr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			healthErrCh <- err
		}
	}()

	// Inbound signal listener
	server := &http.Server{
		Addr:    settings.ListenAddr(),
		Handler: api.NewRouter(store, r, metrics, logger),
	}

	listenErrCh := make(chan error, 1)
	go func() {
		logger.Info("signal listener started", zap.String("addr", settings.ListenAddr()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
		}
	}()

	consumerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var consumer *msg.Consumer
	consumerErrCh := make(chan error, 1)
	consumerDone := make(chan struct{})
	if kafkaCfg != nil {
		consumer, err = msg.NewConsumer(kafkaCfg, logger)
		if err != nil {
			logger.Fatal("failed to create kafka consumer", zap.Error(err))
		}

		go func() {
			defer close(consumerDone)
			err := consumer.Run(consumerCtx, func(_ context.Context, rec msg.Record) error {
				sig, err := msg.DecodeSignal(rec)
				if err != nil {
					return err
				}
				metrics.ObserveSignal(sig.Action.String())
				id := r.Handle(sig)
				logger.Debug("signal from kafka",
					zap.String("signal_id", id),
					zap.String("kafka_topic", rec.Topic),
					zap.Int32("kafka_partition", rec.Partition),
					zap.Int64("kafka_offset", rec.Offset),
				)
				return nil
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				consumerErrCh <- err
			}
		}()

		// Wait for consumer to start
		time.Sleep(1 * time.Second)
		if consumer.IsRunning() {
			healthChecker.SetKafkaReady(true)
		} else {
			healthChecker.SetKafkaReady(false)
			logger.Warn("consumer not running yet")
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-grpcErrCh:
		logger.Error("gRPC server error", zap.Error(err))
	case err := <-healthErrCh:
		logger.Error("HTTP health server error", zap.Error(err))
	case err := <-listenErrCh:
		logger.Error("signal listener error", zap.Error(err))
	case err := <-consumerErrCh:
		logger.Error("consumer error", zap.Error(err))
	}

	logger.Info("shutting down gracefully...")
	healthChecker.SetNotReady()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Stop intake first, then let in-flight signals finish
	cancel()
	if consumer != nil {
		// Run makes no further Handle calls once it has returned
		select {
		case <-consumerDone:
		case <-shutdownCtx.Done():
			logger.Error("consumer did not stop in time", zap.Error(shutdownCtx.Err()))
		}
		consumer.Close()
		healthChecker.SetKafkaReady(false)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down signal listener", zap.Error(err))
	}
	if err := r.Drain(shutdownCtx); err != nil {
		logger.Warn("abandoning in-flight signals", zap.Error(err))
	}
	if producer != nil {
		producer.Close(shutdownCtx)
	}

	if err := healthChecker.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down health checker", zap.Error(err))
	}
	grpcServer.GracefulStop()

	logger.Info("tradeproxy service stopped")
}
