package forward

import (
	"context"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/kafka-go"

	"sensenode/codec"
)

const DefaultKafkaTopic = "sensenode.telemetry"

type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"` // empty disables
	Topic        string        `mapstructure:"topic"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka writes one message per batch keyed by node, so a node's batches keep
// their order within a partition.
type Kafka struct {
	w messageWriter
}

func NewKafka(cfg KafkaConfig) *Kafka {
	if cfg.Topic == "" {
		cfg.Topic = DefaultKafkaTopic
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 100 * time.Millisecond
	}
	return &Kafka{w: &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: cfg.BatchTimeout,
	}}
}

func (k *Kafka) Name() string { return "kafka" }

func (k *Kafka) Forward(ctx context.Context, b codec.Batch, received time.Time) error {
	body, err := Encode(NewDocument(b, received))
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(b.Node),
		Value: body,
		Time:  received,
		Headers: []kafka.Header{
			{Key: "seq", Value: []byte(strconv.FormatUint(uint64(b.Seq), 10))},
		},
	}
	if _, ok := hasCritical(b); ok {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "critical", Value: []byte("1")})
	}
	return errors.Wrap(k.w.WriteMessages(ctx, msg), "kafka: write")
}

func (k *Kafka) Close() error { return k.w.Close() }
