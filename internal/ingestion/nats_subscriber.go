package ingestion

import (
	"FeeMint/internal/event"
	"FeeMint/internal/observability"
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// Dispatcher is where parsed feed events go; the engine manager implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, close *event.LedgerClose) error
	ObserveFee(sample event.FeeSample)
}

// Subject and stream layout for the ledger feed.
const (
	SubjectLedgerCloses = "ledger.closes"
	SubjectFeeSamples   = "ledger.fees"
	StreamLedgerFeed    = "FEEMINT_LEDGER"

	consumerCloses = "feemint-closes"
	consumerFees   = "feemint-fees"
)

// NATSSubscriber consumes the ledger feed from JetStream and drives the
// engines through a Dispatcher. Close events use explicit ACK: a transient
// processing error NAKs the message so JetStream redelivers it, and replays
// after a crash are absorbed by the duplicate guard downstream.
type NATSSubscriber struct {
	js        jetstream.JetStream
	disp      Dispatcher
	metrics   *observability.Metrics
	log       zerolog.Logger
	consumers []jetstream.ConsumeContext
}

func NewNATSSubscriber(js jetstream.JetStream, disp Dispatcher, metrics *observability.Metrics, log zerolog.Logger) *NATSSubscriber {
	return &NATSSubscriber{
		js:      js,
		disp:    disp,
		metrics: metrics,
		log:     log.With().Str("component", "nats_subscriber").Logger(),
	}
}

// Subscribe creates the durable consumers for close events and fee samples.
// Close consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context) error {
	closes, err := ns.js.CreateOrUpdateConsumer(ctx, StreamLedgerFeed, jetstream.ConsumerConfig{
		Durable:       consumerCloses,
		FilterSubject: SubjectLedgerCloses,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerCloses, err)
	}

	closesCtx, err := closes.Consume(func(msg jetstream.Msg) {
		ns.handleClose(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", consumerCloses, err)
	}
	ns.consumers = append(ns.consumers, closesCtx)
	ns.log.Info().Str("subject", SubjectLedgerCloses).Msg("subscribed")

	// Fee samples only feed the congestion window; losing one is harmless,
	// so they ACK unconditionally.
	fees, err := ns.js.CreateOrUpdateConsumer(ctx, StreamLedgerFeed, jetstream.ConsumerConfig{
		Durable:       consumerFees,
		FilterSubject: SubjectFeeSamples,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    1,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerFees, err)
	}

	feesCtx, err := fees.Consume(func(msg jetstream.Msg) {
		ns.handleFeeSample(msg)
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", consumerFees, err)
	}
	ns.consumers = append(ns.consumers, feesCtx)
	ns.log.Info().Str("subject", SubjectFeeSamples).Msg("subscribed")

	return nil
}

func (ns *NATSSubscriber) handleClose(ctx context.Context, msg jetstream.Msg) {
	evt, err := ParseLedgerClose(msg.Data())
	if err != nil {
		// Malformed payloads never become processable; redelivery is pointless.
		ns.log.Error().Err(err).Msg("unparseable close event, terminating delivery")
		if ns.metrics != nil {
			ns.metrics.EventsRejected.WithLabelValues("all", "parse").Inc()
		}
		msg.Term()
		return
	}

	if err := ns.disp.Dispatch(ctx, &evt); err != nil {
		ns.log.Warn().
			Err(err).
			Uint64("sequence", evt.Sequence).
			Msg("close event deferred, requesting redelivery")
		msg.Nak()
		return
	}

	msg.Ack()
}

func (ns *NATSSubscriber) handleFeeSample(msg jetstream.Msg) {
	sample, err := ParseFeeSample(msg.Data())
	if err != nil {
		ns.log.Warn().Err(err).Msg("unparseable fee sample, dropping")
		msg.Term()
		return
	}
	ns.disp.ObserveFee(sample)
	msg.Ack()
}

// EnsureStreams creates the ledger feed stream if it does not exist.
func EnsureStreams(ctx context.Context, js jetstream.JetStream, log zerolog.Logger) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamLedgerFeed,
		Subjects:  []string{SubjectLedgerCloses, SubjectFeeSamples},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", StreamLedgerFeed, err)
	}
	log.Info().Str("stream", StreamLedgerFeed).Msg("ensured stream")
	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	ns.log.Info().Msg("NATS subscribers stopped")
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
