package events

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// StreamConfig describes the NATS connection and the round event stream
type StreamConfig struct {
	URL           string
	ClientName    string
	Stream        string
	SubjectPrefix string

	// Retention of round events and the window JetStream uses to discard
	// envelopes republished with the same event id
	Retention time.Duration
	DedupeFor time.Duration
	Replicas  int
}

func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		URL:           nats.DefaultURL,
		ClientName:    "betsync-server",
		Stream:        "BETSYNC_ROUNDS",
		SubjectPrefix: "betsync.rounds",
		Retention:     24 * time.Hour,
		DedupeFor:     2 * time.Minute,
		Replicas:      1,
	}
}

// RoundStream is a Sink backed by a JetStream stream
type RoundStream struct {
	conn   *nats.Conn
	stream jetstream.JetStream
	cfg    StreamConfig
}

// OpenRoundStream connects to NATS and makes sure the stream exists
func OpenRoundStream(ctx context.Context, cfg StreamConfig) (*RoundStream, error) {
	if cfg.Stream == "" || cfg.SubjectPrefix == "" {
		return nil, errors.New("stream name and subject prefix are required")
	}

	conn, err := nats.Connect(cfg.URL, connectOptions(cfg.ClientName)...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", cfg.URL, err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open JetStream: %w", err)
	}

	rs := &RoundStream{conn: conn, stream: js, cfg: cfg}
	if err := rs.declare(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return rs, nil
}

// connectOptions keeps reconnecting forever; the game never waits on the bus
func connectOptions(name string) []nats.Option {
	return []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("lost connection to NATS")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("server", c.ConnectedUrl()).Msg("reconnected to NATS")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error().Err(err).Msg("asynchronous NATS error")
		}),
	}
}

func (rs *RoundStream) declare(ctx context.Context) error {
	subjects := []string{rs.cfg.SubjectPrefix + ".>"}

	info, err := rs.stream.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        rs.cfg.Stream,
		Description: "betsync round lifecycle",
		Subjects:    subjects,
		Retention:   jetstream.LimitsPolicy,
		Storage:     jetstream.FileStorage,
		MaxAge:      rs.cfg.Retention,
		Duplicates:  rs.cfg.DedupeFor,
		Replicas:    rs.cfg.Replicas,
	})
	if err != nil {
		return fmt.Errorf("declare stream %s: %w", rs.cfg.Stream, err)
	}

	log.Info().
		Str("stream", info.CachedInfo().Config.Name).
		Strs("subjects", subjects).
		Dur("retention", rs.cfg.Retention).
		Msg("round event stream declared")
	return nil
}

// Publish stores one envelope and waits for the stream acknowledgement.
// The event id doubles as the JetStream message id.
func (rs *RoundStream) Publish(ctx context.Context, env Envelope) error {
	data, err := env.Marshal()
	if err != nil {
		return err
	}

	msg := nats.NewMsg(env.Subject(rs.cfg.SubjectPrefix))
	msg.Data = data
	msg.Header.Set("Betsync-Event", env.EventType)
	msg.Header.Set("Betsync-Round", strconv.Itoa(env.RoundNumber))

	ack, err := rs.stream.PublishMsg(ctx, msg,
		jetstream.WithMsgID(env.EventID),
		jetstream.WithExpectStream(rs.cfg.Stream),
	)
	if err != nil {
		return fmt.Errorf("publish %s for round %d: %w", env.EventType, env.RoundNumber, err)
	}
	if ack.Duplicate {
		log.Debug().Str("event_id", env.EventID).Msg("stream already had this event")
		return nil
	}

	log.Debug().
		Str("subject", msg.Subject).
		Str("event_id", env.EventID).
		Uint64("seq", ack.Sequence).
		Msg("round event stored")
	return nil
}

// Close flushes pending publishes and closes the connection
func (rs *RoundStream) Close() error {
	if rs.conn == nil {
		return nil
	}
	return rs.conn.Drain()
}
