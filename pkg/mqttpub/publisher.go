package mqttpub

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/NotCoffee418/p1_load_monitor/pkg/esmutils"
	"github.com/NotCoffee418/p1_load_monitor/pkg/meterdb"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// client is the part of mqtt.Client the publisher uses.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Message is the JSON document sent for every stored record.
type Message struct {
	meterdb.Record
	PowerDeliveredW *uint32 `json:"power_delivered_w,omitempty"`
	PowerReceivedW  *uint32 `json:"power_received_w,omitempty"`
}

func NewMessage(record meterdb.Record) Message {
	m := Message{Record: record}
	if record.PowerDelivered != nil {
		w := esmutils.KwToW(*record.PowerDelivered)
		m.PowerDeliveredW = &w
	}
	if record.PowerReceived != nil {
		w := esmutils.KwToW(*record.PowerReceived)
		m.PowerReceivedW = &w
	}
	return m
}

type Publisher struct {
	client client
	topic  string
	logger *zap.Logger
}

// Connect dials the broker and returns a publisher for topic.
func Connect(broker, clientID, topic string, logger *zap.Logger) (*Publisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, fmt.Errorf("connect to mqtt broker %s: timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", broker, err)
	}
	logger.Info("connected to mqtt broker", zap.String("broker", broker), zap.String("topic", topic))
	return newPublisher(c, topic, logger), nil
}

func newPublisher(c client, topic string, logger *zap.Logger) *Publisher {
	return &Publisher{client: c, topic: topic, logger: logger}
}

// Publish implements ingest.Publisher. Failures are logged only.
func (p *Publisher) Publish(record meterdb.Record) {
	payload, err := json.Marshal(NewMessage(record))
	if err != nil {
		p.logger.Error("error marshalling record", zap.Error(err))
		return
	}

	token := p.client.Publish(p.topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		p.logger.Warn("mqtt publish timed out", zap.String("topic", p.topic))
		return
	}
	if err := token.Error(); err != nil {
		p.logger.Warn("failed to publish record", zap.String("topic", p.topic), zap.Error(err))
	}
}

// Close disconnects when the publisher owns a full mqtt.Client.
func (p *Publisher) Close() {
	if c, ok := p.client.(mqtt.Client); ok {
		c.Disconnect(250)
	}
}
