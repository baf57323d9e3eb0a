// Package push publishes outbound realtime events to Kafka. The websocket
// edge consumes the topic and fans out to connected clients. Delivery is
// fire-and-forget, at-most-once; the core never retries pushes.
package push

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// TopicStaffOnline is the broadcast channel every online staff client
// subscribes to (new queue entries, queue stats changes).
const TopicStaffOnline = "staff.online"

// Publisher writes chat events to a Kafka topic (best-effort, never blocks
// the request path). If brokers or topic are empty every method is a no-op.
type Publisher struct {
	writer *kafka.Writer
	topic  string
}

func NewPublisher(brokers []string, topic string) *Publisher {
	if len(brokers) == 0 || topic == "" {
		return &Publisher{}
	}
	return &Publisher{
		topic: topic,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *Publisher) publish(ctx context.Context, key string, payload map[string]interface{}) {
	if p.writer == nil {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("push: marshal event: %v", err)
		return
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: body}); err != nil {
		log.Printf("push: write event: %v", err)
	}
}

// PushToUser sends a payload to one user's channel.
func (p *Publisher) PushToUser(ctx context.Context, userID string, payload map[string]interface{}) {
	msg := map[string]interface{}{"channel": "user:" + userID}
	for k, v := range payload {
		msg[k] = v
	}
	p.publish(ctx, "user:"+userID, msg)
}

// PushToTopic broadcasts a payload to a named channel.
func (p *Publisher) PushToTopic(ctx context.Context, topic string, payload map[string]interface{}) {
	msg := map[string]interface{}{"channel": topic}
	for k, v := range payload {
		msg[k] = v
	}
	p.publish(ctx, topic, msg)
}

// NotifyOnlineStaff broadcasts to all online staff clients.
func (p *Publisher) NotifyOnlineStaff(ctx context.Context, payload map[string]interface{}) {
	p.PushToTopic(ctx, TopicStaffOnline, payload)
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// ParseBrokers splits "host1:9092,host2:9092" into a slice.
func ParseBrokers(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
