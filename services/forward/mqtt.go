package forward

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"sensenode/codec"
)

const (
	DefaultTopicPrefix    = "sensenode"
	DefaultConnectTimeout = 10 * time.Second
)

type MQTTConfig struct {
	Broker         string        `mapstructure:"broker"` // e.g. tcp://localhost:1883; empty disables
	TopicPrefix    string        `mapstructure:"topic_prefix"`
	ClientID       string        `mapstructure:"client_id"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	QoS            byte          `mapstructure:"qos"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// Enabled reports whether a broker is configured.
func (c MQTTConfig) Enabled() bool { return c.Broker != "" }

// mqttPublisher is the part of mqtt.Client the sink uses.
type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTT publishes each batch to <prefix>/<node>/telemetry. A batch carrying a
// Critical also sets the retained <prefix>/<node>/critical topic.
type MQTT struct {
	cfg    MQTTConfig
	client mqttPublisher
	close  func()
	log    *zap.Logger
}

// DialMQTT connects to cfg.Broker. The client reconnects on its own after a
// lost connection.
func DialMQTT(cfg MQTTConfig, log *zap.Logger) (*MQTT, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	log = log.Named("mqtt")
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn("broker connection lost", zap.Error(err))
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Info("broker connected", zap.String("broker", cfg.Broker))
		})
	c := mqtt.NewClient(opts)
	tok := c.Connect()
	if !tok.WaitTimeout(cfg.ConnectTimeout) {
		return nil, errors.Newf("mqtt: connect to %s timed out", cfg.Broker)
	}
	if err := tok.Error(); err != nil {
		return nil, errors.Wrapf(err, "mqtt: connect to %s", cfg.Broker)
	}
	return newMQTT(cfg, c, func() { c.Disconnect(250) }, log), nil
}

func newMQTT(cfg MQTTConfig, client mqttPublisher, closeFn func(), log *zap.Logger) *MQTT {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	if closeFn == nil {
		closeFn = func() {}
	}
	return &MQTT{cfg: cfg, client: client, close: closeFn, log: log}
}

func (m *MQTT) Name() string { return "mqtt" }

func (m *MQTT) Forward(ctx context.Context, b codec.Batch, received time.Time) error {
	body, err := Encode(NewDocument(b, received))
	if err != nil {
		return err
	}
	base := m.cfg.TopicPrefix + "/" + b.Node
	if err := m.publish(ctx, base+"/telemetry", false, body); err != nil {
		return err
	}
	if c, ok := hasCritical(b); ok {
		return m.publish(ctx, base+"/critical", true, []byte(c.Cause))
	}
	return nil
}

func (m *MQTT) publish(ctx context.Context, topic string, retained bool, body []byte) error {
	tok := m.client.Publish(topic, m.cfg.QoS, retained, body)
	select {
	case <-tok.Done():
		return errors.Wrapf(tok.Error(), "mqtt: publish %s", topic)
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "mqtt: publish %s", topic)
	}
}

func (m *MQTT) Close() error {
	m.close()
	return nil
}
