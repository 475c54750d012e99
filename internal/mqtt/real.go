package mqtt

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/thatsimonsguy/pump-controller/internal/model"
)

type Options struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	MaxRetries  int
	OnCommand   CommandHandler
	Logger      zerolog.Logger
}

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client paho.Client
	prefix string
	log    zerolog.Logger
}

// NewRealPublisher connects with exponential backoff and, when OnCommand is
// set, subscribes to the command topic. The subscription is renewed on every
// reconnect.
func NewRealPublisher(opts Options) (*RealPublisher, error) {
	p := &RealPublisher{prefix: opts.TopicPrefix, log: opts.Logger}
	onlineTopic := Topic(opts.TopicPrefix, TopicOnline)

	clientOpts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetWill(onlineTopic, "false", 1, true)

	clientOpts.SetOnConnectHandler(func(c paho.Client) {
		c.Publish(onlineTopic, 1, true, "true")
		if opts.OnCommand != nil {
			p.subscribe(c, opts.OnCommand)
		}
		p.log.Info().Str("broker", opts.Broker).Msg("Connected to MQTT broker")
	})
	clientOpts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		p.log.Warn().Err(err).Msg("MQTT connection lost")
	})

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	retries := opts.MaxRetries
	if retries < 1 {
		retries = 1
	}

	err := backoff.Retry(func() error {
		client := paho.NewClient(clientOpts)
		token := client.Connect()
		if !token.WaitTimeout(10 * time.Second) {
			return fmt.Errorf("connection timeout")
		}
		if err := token.Error(); err != nil {
			p.log.Warn().Err(err).Str("broker", opts.Broker).Msg("Failed to connect to MQTT broker")
			return err
		}
		p.client = client
		return nil
	}, backoff.WithMaxRetries(bo, uint64(retries-1)))
	if err != nil {
		return nil, fmt.Errorf("connect to broker %s after retries: %w", opts.Broker, err)
	}

	return p, nil
}

func (p *RealPublisher) subscribe(c paho.Client, handler CommandHandler) {
	topic := Topic(p.prefix, TopicCommand)
	token := c.Subscribe(topic, 1, func(_ paho.Client, msg paho.Message) {
		handler(msg.Payload())
	})
	if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		p.log.Error().Err(token.Error()).Str("topic", topic).Msg("Failed to subscribe to command topic")
		return
	}
	p.log.Info().Str("topic", topic).Msg("Subscribed to command topic")
}

// PublishEvent uses QoS 1 so state changes and faults are not lost on a
// flaky link.
func (p *RealPublisher) PublishEvent(ev model.EventRecord) error {
	payload, err := FormatEvent(ev)
	if err != nil {
		return fmt.Errorf("format event payload: %w", err)
	}
	return p.publish(Topic(p.prefix, TopicEvents), 1, false, payload)
}

func (p *RealPublisher) PublishStatus(status model.PumpStatus) error {
	payload, err := FormatStatus(status)
	if err != nil {
		return fmt.Errorf("format status payload: %w", err)
	}
	return p.publish(Topic(p.prefix, TopicStatus), 0, true, payload)
}

func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Close marks the controller offline and disconnects.
func (p *RealPublisher) Close() error {
	token := p.client.Publish(Topic(p.prefix, TopicOnline), 1, true, "false")
	token.WaitTimeout(time.Second)
	p.client.Disconnect(1000)
	return nil
}
