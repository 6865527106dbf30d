package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BearBump/OrderHub/config"
	"github.com/BearBump/OrderHub/internal/api/ordershttp"
	"github.com/BearBump/OrderHub/internal/broker/kafka"
	"github.com/BearBump/OrderHub/internal/cache"
	"github.com/BearBump/OrderHub/internal/cache/rediscache"
	"github.com/BearBump/OrderHub/internal/dispatch"
	"github.com/BearBump/OrderHub/internal/realtime"
	"github.com/BearBump/OrderHub/internal/services/orders"
	"github.com/BearBump/OrderHub/internal/storage/pgorders"
)

type orderHubApp struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   orderHubOpts

	svc      *orders.Service
	api      *ordershttp.OrdersAPI
	manager  *realtime.Manager
	sink     *dispatch.Dispatcher
	consumer *kafka.Consumer
	closeDB  func()
}

func mustBootstrapOrderHub() *orderHubApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.OrderHub.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.OrderHub.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "orderhub"
	}
	capturedTopic := cfg.Kafka.PaymentCapturedTopic
	if capturedTopic == "" {
		capturedTopic = "payment.captured"
	}
	failedTopic := cfg.Kafka.PaymentFailedTopic
	if failedTopic == "" {
		failedTopic = "payment.failed"
	}
	statusTopic := cfg.Kafka.OrderStatusTopicName
	if statusTopic == "" {
		statusTopic = "order.status.changed"
	}

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)
	store := cache.NewStore(rc)
	limiter := rediscache.NewRateLimiter(redisAddr)

	svc := orders.New(st)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	producer := kafka.NewProducer(brokers)
	consumer := kafka.NewConsumer(brokers, consumerGroup, capturedTopic, failedTopic)

	hub := realtime.NewHub()
	sink := dispatch.New(hub, store, producer, statusTopic)

	manager := realtime.NewManager(realtime.ManagerConfig{
		Heartbeat:          time.Duration(cfg.OrderHub.HeartbeatSeconds) * time.Second,
		SendBuffer:         cfg.OrderHub.SendBuffer,
		LocationRateLimit:  int64(cfg.OrderHub.LocationRateLimit),
		LocationRateWindow: time.Duration(cfg.OrderHub.LocationRateWindowSeconds) * time.Second,
	}, hub, channelVerifier(cfg.OrderHub.ChannelTokens), realtime.NewAuthorizer(st), svc, sink, limiter)

	api := ordershttp.New(svc, store, sink).
		WithOrderTTL(time.Duration(cfg.OrderHub.OrderTTLSeconds) * time.Second)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &orderHubApp{
		ctx:    ctx,
		cancel: cancel,
		opts: orderHubOpts{
			httpAddr:             httpAddr,
			paymentCapturedTopic: capturedTopic,
			paymentFailedTopic:   failedTopic,
			consumerGroup:        consumerGroup,
		},
		svc:      svc,
		api:      api,
		manager:  manager,
		sink:     sink,
		consumer: consumer,
		closeDB:  st.Close,
	}
}

// channelVerifier собирает демо-verifier из конфига: token -> "role:id".
func channelVerifier(tokens map[string]string) realtime.StaticTokenVerifier {
	v := realtime.StaticTokenVerifier{}
	for token, subject := range tokens {
		role, id, ok := strings.Cut(subject, ":")
		if !ok {
			continue
		}
		v[token] = realtime.Identity{Role: role, ID: id}
	}
	return v
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgorders.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgorders.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *orderHubApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *orderHubApp) Run() error {
	return runOrderHub(a.ctx, a.opts, a.svc, a.api, a.manager, a.sink, a.consumer)
}
