// Package events publishes charm lifecycle events to Kafka on a best-effort
// basis. Grounded on the audit-log service's Kafka producer
// (services/audit-log/internal/adapter/messaging/kafka_producer.go), adapted
// to a single fire-and-forget writer per topic rather than a
// request/response pipeline: publish failures are logged and swallowed,
// never propagated back into the ingestion pipeline. The Block Processor
// publishes each event as the persistence step that produces it runs, before
// the block's bookmark is written; events are not held back until the whole
// block has persisted, so a block that fails at a later step has already
// published them and publishes them again when it is retried.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	topicCharmMinted = "charms.minted"
	topicCharmSpent  = "charms.spent"
	topicDexOrder    = "charms.dex_orders"
)

// Publisher is a best-effort domain-event sink. A nil *Publisher is valid
// and publishes nothing, so wiring it is optional for deployments without a
// broker.
type Publisher struct {
	writers map[string]*kafka.Writer
	logger  *zap.Logger
}

// New constructs a Publisher over brokers. Pass a nil/empty brokers slice to
// get a no-op publisher.
func New(brokers []string, logger *zap.Logger) *Publisher {
	p := &Publisher{logger: logger, writers: make(map[string]*kafka.Writer)}
	for _, topic := range []string{topicCharmMinted, topicCharmSpent, topicDexOrder} {
		if len(brokers) == 0 {
			continue
		}
		p.writers[topic] = &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
			Async:        true,
		}
	}
	return p
}

// CharmMinted reports that a new unspent charm landed in a confirmed block.
func (p *Publisher) CharmMinted(ctx context.Context, network, appID, txid string, vout int32, amount int64) {
	p.publish(ctx, topicCharmMinted, txid, map[string]interface{}{
		"event_type": "CHARM_MINTED",
		"network":    network,
		"app_id":     appID,
		"txid":       txid,
		"vout":       vout,
		"amount":     amount,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

// CharmSpent reports that a previously-unspent charm was consumed.
func (p *Publisher) CharmSpent(ctx context.Context, network, appID, txid string, vout int32) {
	p.publish(ctx, topicCharmSpent, txid, map[string]interface{}{
		"event_type": "CHARM_SPENT",
		"network":    network,
		"app_id":     appID,
		"txid":       txid,
		"vout":       vout,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

// DexOrderEvent reports a DEX order create/fulfill/cancel/partial-fill.
func (p *Publisher) DexOrderEvent(ctx context.Context, network, orderID, operation string) {
	p.publish(ctx, topicDexOrder, orderID, map[string]interface{}{
		"event_type": "DEX_ORDER_" + operation,
		"network":    network,
		"order_id":   orderID,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

func (p *Publisher) publish(ctx context.Context, topic, key string, value map[string]interface{}) {
	if p == nil {
		return
	}
	writer, ok := p.writers[topic]
	if !ok {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		p.logger.Warn("events: marshal failed", zap.String("topic", topic), zap.Error(err))
		return
	}

	msg := kafka.Message{Key: []byte(key), Value: data, Time: time.Now().UTC()}
	if err := writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Warn("events: publish failed, continuing", zap.String("topic", topic), zap.String("key", key), zap.Error(err))
	}
}

// Close closes every writer.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	for _, w := range p.writers {
		_ = w.Close()
	}
	return nil
}
