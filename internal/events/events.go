// Package events publishes transcript changes on a watermill bus so other consumers can follow a chat.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/RichardoC/aura/internal/models"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"
)

const DefaultTopic = "chat.transcript"

type Type string

const (
	TypeAppend Type = "append"
	TypeReplay Type = "replay"
	TypeReset  Type = "reset"
	TypeBusy   Type = "busy"
)

type Event struct {
	Type     Type             `json:"type"`
	Kind     models.Kind      `json:"kind"`
	Message  *models.Message  `json:"message,omitempty"`
	Messages []models.Message `json:"messages,omitempty"`
	Busy     bool             `json:"busy,omitempty"`
}

// NewBus returns an in-process pub/sub. Publish waits for subscribers to ack so events arrive in order.
// Close it to stop subscribers.
func NewBus(logger *zap.Logger) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            64,
		BlockPublishUntilSubscriberAck: true,
	}, NewLoggerAdapter(logger))
}

// Publisher is a chat transcript that forwards every change to a topic.
type Publisher struct {
	pub    message.Publisher
	topic  string
	kind   models.Kind
	logger *zap.Logger
}

func NewPublisher(pub message.Publisher, topic string, kind models.Kind, logger *zap.Logger) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{pub: pub, topic: topic, kind: kind, logger: logger}
}

func (p *Publisher) Append(m models.Message) {
	p.publish(Event{Type: TypeAppend, Message: &m})
}

func (p *Publisher) Replay(msgs []models.Message) {
	p.publish(Event{Type: TypeReplay, Messages: msgs})
}

func (p *Publisher) Reset() {
	p.publish(Event{Type: TypeReset})
}

func (p *Publisher) SetBusy(busy bool) {
	p.publish(Event{Type: TypeBusy, Busy: busy})
}

// publish never fails the caller; a dropped event is only logged.
func (p *Publisher) publish(ev Event) {
	ev.Kind = p.kind
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("failed to encode transcript event", zap.String("type", string(ev.Type)), zap.Error(err))
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := p.pub.Publish(p.topic, msg); err != nil {
		p.logger.Warn("failed to publish transcript event",
			zap.String("topic", p.topic),
			zap.String("type", string(ev.Type)),
			zap.Error(err))
	}
}

func Decode(msg *message.Message) (Event, error) {
	var ev Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return Event{}, fmt.Errorf("failed to decode transcript event %s: %w", msg.UUID, err)
	}
	return ev, nil
}

// Follow calls fn for each decoded event until msgs is closed. Messages that fail to decode are acked and
// skipped.
func Follow(msgs <-chan *message.Message, logger *zap.Logger, fn func(Event)) {
	for msg := range msgs {
		ev, err := Decode(msg)
		msg.Ack()
		if err != nil {
			logger.Warn("skipping transcript event", zap.Error(err))
			continue
		}
		fn(ev)
	}
}
