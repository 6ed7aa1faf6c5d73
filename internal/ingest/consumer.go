package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
	"github.com/sunmeter-lab/sunmeter/internal/core/bucket"
	"github.com/sunmeter-lab/sunmeter/internal/core/config"
)

const disconnectTimeout = 5 * time.Second

// Consumer subscribes to every configured topic filter and feeds incoming
// readings to the Aggregator. The session client reconnects automatically
// and re-subscribes on every connection-up.
type Consumer struct {
	cfg        config.MQTTConfig
	policies   []bucket.SeriesPolicy
	aggregator *Aggregator
	nowFn      func() time.Time
}

// NewConsumer creates an MQTT consumer for the given policies.
func NewConsumer(cfg config.MQTTConfig, policies []bucket.SeriesPolicy, aggregator *Aggregator) *Consumer {
	return &Consumer{
		cfg:        cfg,
		policies:   policies,
		aggregator: aggregator,
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Run connects to the broker and processes readings until ctx is cancelled,
// then disconnects cleanly.
func (c *Consumer) Run(ctx context.Context) error {
	brokerURL, err := url.Parse(c.cfg.BrokerURL)
	if err != nil {
		return fmt.Errorf("invalid broker url %q: %w", c.cfg.BrokerURL, err)
	}

	clientID := c.cfg.ClientID
	if clientID == "" {
		clientID = "sunmeter-" + uuid.NewString()[:8]
	}

	subscriptions := c.subscriptions()

	clientCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{brokerURL},
		KeepAlive:                     c.cfg.KeepAliveSeconds,
		CleanStartOnInitialConnection: true,
		SessionExpiryInterval:         60,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			slog.Info("[MQTT] Connected, subscribing", "broker", brokerURL.Host, "filters", len(subscriptions))
			if _, err := cm.Subscribe(ctx, &paho.Subscribe{Subscriptions: subscriptions}); err != nil {
				slog.Error("[MQTT] Subscribe failed", "error", err)
			}
		},
		OnConnectError: func(err error) {
			slog.Warn("[MQTT] Connection attempt failed", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: clientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					c.handleMessage(ctx, pr.Packet.Topic, pr.Packet.Payload)
					return true, nil
				},
			},
			OnClientError: func(err error) {
				slog.Error("[MQTT] Client error", "error", err)
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				slog.Warn("[MQTT] Server disconnect", "reason_code", d.ReasonCode)
			},
		},
	}

	cm, err := autopaho.NewConnection(ctx, clientCfg)
	if err != nil {
		return fmt.Errorf("create mqtt connection: %w", err)
	}

	slog.Info("[MQTT] Consumer started", "client_id", clientID, "broker", c.cfg.BrokerURL)

	<-ctx.Done()

	slog.Info("[MQTT] Stopping consumer...")
	disconnectCtx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	if err := cm.Disconnect(disconnectCtx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("[MQTT] Disconnect failed", "error", err)
	}
	<-cm.Done()

	slog.Info("[MQTT] Consumer stopped")
	return nil
}

// subscriptions builds one subscription per distinct topic filter.
// Two policies may share a filter (or a series); subscribing once keeps
// the broker from double-delivering.
func (c *Consumer) subscriptions() []paho.SubscribeOptions {
	seen := make(map[string]bool, len(c.policies))
	var subs []paho.SubscribeOptions
	for _, p := range c.policies {
		if seen[p.TopicFilter] {
			continue
		}
		seen[p.TopicFilter] = true
		subs = append(subs, paho.SubscribeOptions{Topic: p.TopicFilter, QoS: c.cfg.QoS})
	}
	return subs
}

func (c *Consumer) handleMessage(ctx context.Context, topic string, payload []byte) {
	rec, err := c.aggregator.Ingest(ctx, topic, payload, c.nowFn())
	if err != nil {
		if errors.Is(err, ErrBadPayload) {
			// Discard and continue; the same value will not reappear.
			slog.Warn("[MQTT] Discarded unparseable reading", "error", err)
			return
		}
		// Store failure: the reading is lost. There is no in-memory retry
		// queue; this is a documented simplicity trade-off.
		slog.Error("[MQTT] Failed to ingest reading", "topic", topic, "error", err)
		return
	}
	if rec == nil {
		return
	}

	slog.Debug("[MQTT] Ingested reading",
		"series", rec.SeriesName,
		"topic", topic,
		"count", rec.Count)
}
