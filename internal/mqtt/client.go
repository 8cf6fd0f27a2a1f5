// Package mqtt publishes tank telemetry to an MQTT broker.
//
// Each reading goes out as retained per-field topics (level, distance,
// volume, free) plus one retained JSON status topic, so dashboards and
// home-automation integrations can subscribe to either shape.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/tanksense/tanksense/internal/config"
	"github.com/tanksense/tanksense/internal/logging"
)

var log = logging.Component("mqtt")

// Status is one published reading.
type Status struct {
	LevelPct   float64 `json:"level"`
	DistanceCm float64 `json:"dist"`
	VolumeL    float64 `json:"vol"`
	FreeL      float64 `json:"free"`

	// HasVolume gates the volume/free topics; they are meaningless
	// without known tank geometry.
	HasVolume bool `json:"-"`
}

// Client wraps the paho client with the daemon's publishing scheme.
type Client struct {
	cfg    config.MQTTConfig
	client paho.Client
}

// NewClient creates a client from config. A disabled config yields a
// client whose methods are no-ops.
func NewClient(cfg config.MQTTConfig) *Client {
	return &Client{cfg: cfg}
}

// Connect establishes the broker connection with automatic reconnect.
func (c *Client) Connect() error {
	if !c.cfg.Enabled {
		log.Debug("mqtt disabled")
		return nil
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", c.cfg.Broker, c.cfg.Port))
	opts.SetClientID(c.cfg.ClientID)

	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetOnConnectHandler(func(paho.Client) {
		log.Info("connected", "broker", c.cfg.Broker, "port", c.cfg.Port)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Warn("connection lost", "error", err)
	})

	c.client = paho.NewClient(opts)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect mqtt broker: %w", token.Error())
	}
	return nil
}

// Disconnect closes the broker connection.
func (c *Client) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
	}
}

// Connected reports whether the broker connection is up.
func (c *Client) Connected() bool {
	return c.cfg.Enabled && c.client != nil && c.client.IsConnected()
}

// Publish sends one reading. Publish is best-effort: a broker outage
// is logged and the reading dropped, never surfaced to the sampler.
func (c *Client) Publish(s Status) {
	if !c.Connected() {
		return
	}

	c.publish("level", fmt.Sprintf("%.1f", s.LevelPct))
	c.publish("distance", fmt.Sprintf("%.1f", s.DistanceCm))
	if s.HasVolume {
		c.publish("volume", fmt.Sprintf("%.1f", s.VolumeL))
		c.publish("free", fmt.Sprintf("%.1f", s.FreeL))
	}

	payload, err := json.Marshal(s)
	if err != nil {
		return
	}
	c.publish("json", string(payload))
}

func (c *Client) publish(suffix, payload string) {
	topic := c.cfg.TopicPrefix + "/" + suffix
	token := c.client.Publish(topic, c.cfg.QoS, c.cfg.Retain, payload)
	go func() {
		if token.Wait() && token.Error() != nil {
			log.Warn("publish failed", "topic", topic, "error", token.Error())
		}
	}()
}
