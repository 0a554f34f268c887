// Package telemetry publishes executor events to an MQTT broker.
package telemetry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/teslashibe/go-gesture/pkg/motion"
	"github.com/teslashibe/go-gesture/pkg/protocol"
)

const (
	defaultClientID = "gesture-actuator-host"
	connectTimeout  = 5 * time.Second
	quiesceMs       = 250
)

// Config describes the broker connection.
type Config struct {
	Broker   string // e.g. tcp://localhost:1883
	ClientID string
	Topic    string // events go to Topic/events, state (retained) to Topic/state
	QoS      byte
}

// client is the subset of mqtt.Client the publisher uses.
type client interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Publisher forwards motion events. It implements motion.Notifier.
type Publisher struct {
	client client
	cfg    Config
	logger *slog.Logger
}

// stateData is the retained payload on Topic/state.
type stateData struct {
	Status  motion.Status `json:"status"`
	Command string        `json:"command,omitempty"`
	JobID   string        `json:"job_id,omitempty"`
}

// NewPublisher builds a paho client for cfg. Call Connect before use.
func NewPublisher(cfg Config, logger *slog.Logger) *Publisher {
	if cfg.ClientID == "" {
		cfg.ClientID = defaultClientID
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout)

	return newPublisher(mqtt.NewClient(opts), cfg, logger)
}

func newPublisher(c client, cfg Config, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Topic == "" {
		cfg.Topic = "gesture/motion"
	}
	return &Publisher{
		client: c,
		cfg:    cfg,
		logger: logger.With("component", "telemetry", "broker", cfg.Broker),
	}
}

// Connect connects to the broker.
func (p *Publisher) Connect() error {
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("telemetry: connect to %s timed out", p.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("telemetry: connect to %s: %w", p.cfg.Broker, err)
	}
	p.logger.Info("connected to MQTT broker")
	return nil
}

// EventsTopic is where every event is published.
func (p *Publisher) EventsTopic() string { return p.cfg.Topic + "/events" }

// StateTopic holds the retained executor state.
func (p *Publisher) StateTopic() string { return p.cfg.Topic + "/state" }

// Notify publishes e without waiting for the broker.
func (p *Publisher) Notify(e motion.Event) {
	msg, err := protocol.NewMotionMessage(e)
	if err != nil {
		p.logger.Warn("encode event", "error", err)
		return
	}
	payload, err := msg.Bytes()
	if err != nil {
		p.logger.Warn("encode event", "error", err)
		return
	}
	p.publish(p.EventsTopic(), false, payload)

	var state stateData
	switch e.Type {
	case motion.EventStarted:
		state = stateData{Status: motion.StatusRunning, Command: string(e.Command), JobID: e.JobID}
	case motion.EventCancelled, motion.EventSelfTerminated, motion.EventStopped:
		state = stateData{Status: motion.StatusIdle}
	default:
		return
	}
	data, err := json.Marshal(state)
	if err != nil {
		p.logger.Warn("encode state", "error", err)
		return
	}
	p.publish(p.StateTopic(), true, data)
}

func (p *Publisher) publish(topic string, retained bool, payload []byte) {
	token := p.client.Publish(topic, p.cfg.QoS, retained, payload)
	// Only report errors that are already known; never block the executor.
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			p.logger.Debug("publish failed", "topic", topic, "error", err)
		}
	default:
	}
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(quiesceMs)
}
