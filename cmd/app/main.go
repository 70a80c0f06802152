package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/wirelessr/twitter-timeline-facade/configs"
	"github.com/wirelessr/twitter-timeline-facade/internal/graph"
	"github.com/wirelessr/twitter-timeline-facade/internal/kafka"
	"github.com/wirelessr/twitter-timeline-facade/internal/shared/httpx"
	"github.com/wirelessr/twitter-timeline-facade/internal/shared/redisx"
	"github.com/wirelessr/twitter-timeline-facade/internal/store"
	"github.com/wirelessr/twitter-timeline-facade/internal/timeline"
)

func initOTEL(ctx context.Context) func(context.Context) error {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		endpoint = "otel-collector:4318"
	}
	exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	if err != nil {
		log.Fatalf("otel exporter: %v", err)
	}
	svcName := os.Getenv("OTEL_SERVICE_NAME")
	if svcName == "" {
		svcName = "timeline-service"
	}
	res, _ := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(svcName),
		attribute.String("deployment.environment", os.Getenv("ENV")),
	))
	ratio := 1.0
	if s := os.Getenv("OTEL_TRACES_SAMPLER_ARG"); s != "" {
		if f, e := strconv.ParseFloat(s, 64); e == nil && f >= 0 && f <= 1 {
			ratio = f
		}
	}
	tp := trace.NewTracerProvider(
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(ratio))),
		trace.WithBatcher(exp),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	return tp.Shutdown
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := initOTEL(ctx)
	defer func() {
		c, cc := context.WithTimeout(context.Background(), 5*time.Second)
		defer cc()
		_ = shutdown(c)
	}()

	cfg := configs.LoadConfig()

	rdb := redisx.Open(cfg)
	defer func(rdb *redis.Client) { _ = rdb.Close() }(rdb)

	engine := timeline.NewEngine(
		store.NewRedisStore(rdb, cfg.PostMetaTTL),
		graph.NewRedisGateway(rdb),
		timeline.WithCelebrityFollowerThreshold(cfg.CelebrityFollowerThreshold),
		timeline.WithInactiveDayThreshold(cfg.InactiveDayThreshold),
		timeline.WithMaxRecommendLength(cfg.MaxRecommendLength),
		timeline.WithFanoutWorkers(cfg.FanoutWorkers),
	)

	cons := kafka.NewConsumer(cfg.KafkaBootstrapServers, cfg.PostsTopic, cfg.KafkaGroupID, engine)
	defer func() { _ = cons.Close() }()
	go func() {
		if err := cons.Run(ctx); err != nil {
			log.Printf("kafka consumer stopped: %v", err)
		}
	}()

	h := timeline.NewHandler(engine)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Public:
	mux.Handle("GET /users/{user_id}/feed", httpx.Wrap(h.GetAuthorFeed))

	// Protected:
	mux.Handle("GET /feed", httpx.AuthMiddleware(httpx.Wrap(h.GetTimeline)))
	mux.Handle("POST /posts", httpx.AuthMiddleware(httpx.Wrap(h.CreatePost)))
	mux.Handle("DELETE /posts/{post_id}", httpx.AuthMiddleware(httpx.Wrap(h.DeletePost)))

	srv := &http.Server{
		Addr:              cfg.AppPort,
		Handler:           otelhttp.NewHandler(mux, "http.server"),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
	go func() {
		log.Printf("timeline-service listening on %s", cfg.AppPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Print("shutting down...")

	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	_ = srv.Shutdown(shCtx)
	cancel()
}
