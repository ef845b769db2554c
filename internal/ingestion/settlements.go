// Package ingestion consumes settled transactions from NATS JetStream and
// feeds them into the engine's position bookkeeping.
package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"RiskEngine/internal/engine"
	"RiskEngine/internal/payment"
)

// Settlement stream layout. The payment processor publishes one message per
// finalized transaction.
const (
	SettlementStreamName = "PAYMENT_SETTLEMENTS"
	SettlementSubject    = "payments.settlements.>"
	settlementConsumer   = "risk-engine-settlements"
)

// settlementMessage is the wire form of one finalized transaction.
type settlementMessage struct {
	TransactionID   string    `json:"transaction_id"`
	MerchantID      string    `json:"merchant_id"`
	CardFingerprint string    `json:"card_fingerprint"`
	Amount          string    `json:"amount"`
	Currency        string    `json:"currency"`
	Status          string    `json:"status"`
	FraudScore      int       `json:"fraud_score"`
	ClientIP        string    `json:"client_ip"`
	UserAgent       string    `json:"user_agent"`
	CreatedAt       time.Time `json:"created_at"`
}

// ParseSettlement validates and converts one settlement payload.
func ParseSettlement(data []byte) (*payment.Transaction, error) {
	var msg settlementMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode settlement: %w", err)
	}
	if msg.TransactionID == "" {
		return nil, fmt.Errorf("settlement missing transaction_id")
	}
	if msg.MerchantID == "" {
		return nil, fmt.Errorf("settlement missing merchant_id")
	}

	amount, err := decimal.NewFromString(msg.Amount)
	if err != nil {
		return nil, fmt.Errorf("settlement amount %q: %w", msg.Amount, err)
	}

	var status payment.Status
	switch strings.ToLower(msg.Status) {
	case "approved":
		status = payment.StatusApproved
	case "declined":
		status = payment.StatusDeclined
	default:
		return nil, fmt.Errorf("settlement status %q unknown", msg.Status)
	}

	return &payment.Transaction{
		TransactionID:   msg.TransactionID,
		MerchantID:      msg.MerchantID,
		CardFingerprint: msg.CardFingerprint,
		Amount:          amount,
		Currency:        msg.Currency,
		Status:          status,
		FraudScore:      msg.FraudScore,
		ClientIP:        msg.ClientIP,
		UserAgent:       msg.UserAgent,
		CreatedAt:       msg.CreatedAt,
	}, nil
}

// SettlementConsumer pulls settlements off JetStream with a durable,
// explicit-ACK consumer. Malformed messages are terminated so they never
// redeliver; transient settlement failures are NAKed for retry.
type SettlementConsumer struct {
	js     jetstream.JetStream
	engine *engine.Engine
	log    zerolog.Logger
	cc     jetstream.ConsumeContext

	// OnIngested receives "ok", "malformed" or "failed" per message.
	OnIngested func(status string)
}

func NewSettlementConsumer(js jetstream.JetStream, eng *engine.Engine, log zerolog.Logger) *SettlementConsumer {
	return &SettlementConsumer{js: js, engine: eng, log: log}
}

// Start creates the durable consumer and begins processing.
func (sc *SettlementConsumer) Start(ctx context.Context) error {
	consumer, err := sc.js.CreateOrUpdateConsumer(ctx, SettlementStreamName, jetstream.ConsumerConfig{
		Durable:       settlementConsumer,
		FilterSubject: SettlementSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", settlementConsumer, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		sc.handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", settlementConsumer, err)
	}

	sc.cc = cc
	sc.log.Info().Str("subject", SettlementSubject).Str("consumer", settlementConsumer).
		Msg("settlement consumer started")
	return nil
}

func (sc *SettlementConsumer) handle(ctx context.Context, msg jetstream.Msg) {
	txn, err := ParseSettlement(msg.Data())
	if err != nil {
		sc.log.Error().Err(err).Str("subject", msg.Subject()).Msg("dropping malformed settlement")
		msg.Term()
		sc.ingested("malformed")
		return
	}

	if err := sc.engine.SettleTransaction(ctx, txn); err != nil {
		sc.log.Error().Err(err).Str("transaction_id", txn.TransactionID).Msg("settlement rejected")
		msg.Nak()
		sc.ingested("failed")
		return
	}

	msg.Ack()
	sc.ingested("ok")
}

func (sc *SettlementConsumer) ingested(status string) {
	if sc.OnIngested != nil {
		sc.OnIngested(status)
	}
}

// Stop drains the consumer.
func (sc *SettlementConsumer) Stop() {
	if sc.cc != nil {
		sc.cc.Stop()
	}
	sc.log.Info().Msg("settlement consumer stopped")
}

// EnsureSettlementStream creates the inbound settlements stream if the
// payment processor has not already done so.
func EnsureSettlementStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      SettlementStreamName,
		Subjects:  []string{"payments.settlements.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create settlement stream: %w", err)
	}
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
