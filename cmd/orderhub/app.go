package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/BearBump/OrderHub/internal/api/ordershttp"
	"github.com/BearBump/OrderHub/internal/broker/messages"
	"github.com/BearBump/OrderHub/internal/dispatch"
	"github.com/BearBump/OrderHub/internal/models"
	"github.com/BearBump/OrderHub/internal/realtime"
	"github.com/BearBump/OrderHub/internal/services/orders"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

type orderHubOpts struct {
	httpAddr string

	paymentCapturedTopic string
	paymentFailedTopic   string
	consumerGroup        string

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(topic string, key, value []byte) error) error
}

func runOrderHub(ctx context.Context, opts orderHubOpts, svc *orders.Service, api *ordershttp.OrdersAPI, manager *realtime.Manager, sink *dispatch.Dispatcher, consumer kafkaConsumer) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8080"
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	r := chi.NewRouter()
	api.Register(r)
	r.Get("/ws", manager.ServeWS)

	if consumer != nil {
		go func() {
			slog.Info("kafka consumer started",
				"topics", []string{opts.paymentCapturedTopic, opts.paymentFailedTopic},
				"group", opts.consumerGroup)
			err := consumer.Consume(ctx, func(topic string, _ []byte, value []byte) error {
				return applyPaymentEvent(ctx, svc, sink, opts, topic, value)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("kafka consumer stopped", "error", err)
			}
		}()
	}

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	slog.Info("HTTP server listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

// applyPaymentEvent проводит событие платёжного шлюза через state machine.
// Уже терминальный заказ не повод перечитывать сообщение: такой отказ
// считаем обработкой, чтобы консьюмер коммитил и шёл дальше.
func applyPaymentEvent(ctx context.Context, svc *orders.Service, sink *dispatch.Dispatcher, opts orderHubOpts, topic string, value []byte) error {
	switch topic {
	case opts.paymentCapturedTopic:
		var m messages.PaymentCaptured
		if err := json.Unmarshal(value, &m); err != nil {
			return errors.Wrap(err, "unmarshal payment captured")
		}
		_, evs, err := svc.OnPaymentCaptured(ctx, m.OrderID, m.AmountCents)
		if err != nil {
			return settleOrFail(err, "payment captured", m.OrderID)
		}
		sink.Dispatch(ctx, evs)
		return nil

	case opts.paymentFailedTopic:
		var m messages.PaymentFailed
		if err := json.Unmarshal(value, &m); err != nil {
			return errors.Wrap(err, "unmarshal payment failed")
		}
		_, evs, err := svc.OnPaymentFailed(ctx, m.OrderID, m.Reason)
		if err != nil {
			return settleOrFail(err, "payment failed", m.OrderID)
		}
		sink.Dispatch(ctx, evs)
		return nil
	}

	slog.Warn("message from unexpected topic skipped", "topic", topic)
	return nil
}

// settleOrFail: доменные отказы (заказ уже в другом статусе, заказ неизвестен)
// перечитыванием сообщения не лечатся, считаем их обработанными и коммитим.
// Остальное возвращаем — консьюмер встанет и не закоммитит.
func settleOrFail(err error, what, orderID string) error {
	if errors.Is(err, models.ErrInvalidTransition) || errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrValidation) {
		slog.Warn("payment event not applicable, skipped", "event", what, "order_id", orderID, "error", err)
		return nil
	}
	return err
}
