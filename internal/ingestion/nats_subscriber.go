// Package ingestion feeds the dispatcher from NATS JetStream in stream
// mode. It is a boundary adapter: decode failures are logged and the
// message is terminated, they never reach the engine.
package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"PayEngine/internal/dispatch"
)

const (
	// StreamName holds every inbound transaction subject.
	StreamName = "PAY_TRANSACTIONS"
	// Subject is the inbound transaction subject.
	Subject = "pay.transactions"
	// ConsumerName is the durable consumer for the engine.
	ConsumerName = "payengine-transactions"
)

// Subscriber pulls transaction messages off JetStream and posts them to the
// dispatcher. Messages are acked once the dispatcher accepts them, so a
// full mailbox exerts backpressure all the way to the broker.
type Subscriber struct {
	js         jetstream.JetStream
	dispatcher *dispatch.Dispatcher
	log        zerolog.Logger
	consumer   jetstream.ConsumeContext
}

func NewSubscriber(js jetstream.JetStream, d *dispatch.Dispatcher, log zerolog.Logger) *Subscriber {
	return &Subscriber{js: js, dispatcher: d, log: log}
}

// Start creates the durable consumer and begins feeding the dispatcher.
// The consume callback is NATS's dispatch goroutine; it is the single
// producer the dispatcher's ordering contract requires.
func (s *Subscriber) Start(ctx context.Context) error {
	consumer, err := s.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       ConsumerName,
		FilterSubject: Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", ConsumerName, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		txn, err := ParseTransaction(msg.Data())
		if err != nil {
			s.log.Warn().Err(err).Str("subject", msg.Subject()).Msg("skipping undecodable message")
			msg.Term()
			return
		}

		if err := s.dispatcher.Post(ctx, txn); err != nil {
			s.log.Error().Err(err).Uint32("tx", txn.ID).Msg("dispatch failed, message will be redelivered")
			msg.Nak()
			return
		}
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", ConsumerName, err)
	}

	s.consumer = cc
	s.log.Info().Str("subject", Subject).Str("consumer", ConsumerName).Msg("subscribed")
	return nil
}

// Stop drains consumption and waits until the callback goroutine has
// finished, so no Post is still in flight when the dispatcher shuts down.
// Already-posted events stay queued in their lanes.
func (s *Subscriber) Stop() {
	if s.consumer != nil {
		s.consumer.Drain()
		select {
		case <-s.consumer.Closed():
		case <-time.After(30 * time.Second):
			s.log.Warn().Msg("timed out waiting for consumer to drain")
		}
	}
	s.log.Info().Msg("subscriber stopped")
}

// EnsureStream creates the inbound stream when it does not exist yet.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{Subject},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", StreamName, err)
	}
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream handle.
func ConnectNATS(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("nats reconnected")
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
