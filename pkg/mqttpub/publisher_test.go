package mqttpub

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/NotCoffee418/p1_load_monitor/pkg/meterdb"
	"github.com/NotCoffee418/p1_load_monitor/pkg/telegram"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type doneToken struct {
	err error
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type published struct {
	topic   string
	payload []byte
}

type fakeClient struct {
	err  error
	sent []published
}

func (f *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	f.sent = append(f.sent, published{topic: topic, payload: payload.([]byte)})
	return doneToken{err: f.err}
}

func ptr(v float64) *float64 { return &v }

func TestPublishSendsRecordWithWatts(t *testing.T) {
	fc := &fakeClient{}
	pub := newPublisher(fc, "p1/records", zaptest.NewLogger(t))

	pub.Publish(meterdb.Record{
		ID:        3,
		Timestamp: 1_700_000_000,
		Frame: telegram.Frame{
			DeliveredHighTariff: ptr(1234.5),
			PowerDelivered:      ptr(1.25),
		},
	})

	require.Len(t, fc.sent, 1)
	assert.Equal(t, "p1/records", fc.sent[0].topic)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(fc.sent[0].payload, &doc))
	assert.Equal(t, float64(1_700_000_000), doc["timestamp"])
	assert.Equal(t, 1234.5, doc["delivered_energy_high_tariff"])
	assert.Equal(t, float64(1250), doc["power_delivered_w"])
	assert.NotContains(t, doc, "power_received_w")
	assert.Equal(t, float64(3), doc["id"])
}

func TestPublishErrorIsNotFatal(t *testing.T) {
	fc := &fakeClient{err: errors.New("not connected")}
	pub := newPublisher(fc, "p1/records", zaptest.NewLogger(t))

	pub.Publish(meterdb.Record{Timestamp: 1})
	assert.Len(t, fc.sent, 1)
	pub.Close()
}
