package actor

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"frostmeter/internal/config"
	"frostmeter/internal/core/domain"
	"frostmeter/internal/mqtt"
	"frostmeter/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// stashed messages kept while a publish is in flight
const MQTT_STASH_LIMIT = 512

// MQTTActor publishes sensor updates from the event stream and Home Assistant
// discovery documents to the broker.
type MQTTActor struct {
	config         *config.Config
	behavior       actor.Behavior
	stash          *actorutil.Stash
	client         *mqtt.MQTTClient
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription
	published      *PublishLog
	logger         *zap.Logger
}

type MQTTConnected struct {
}

type MQTTConnectionLost struct {
	Error error
}

type OnEventStreamMessage struct {
	message any
}

type publishResult struct {
	ReplyTo *actor.PID
	Error   error
}

type rawMessage struct {
	topic   string
	message string
	retain  bool
}

func NewMQTTActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:      config,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{Limit: MQTT_STASH_LIMIT},
		eventStream: eventStream,
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MQTTActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MQTTActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("mqtt@starting started")

		// create MQTT client
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), func(_ pahomqtt.Client) {
		}, func(_ pahomqtt.Client, err error) {
			ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
		})

		// connect to MQTT server
		state.client.Connect(func(err error) {
			if err != nil {
				ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
			} else {
				ctx.Send(ctx.Self(), MQTTConnected{})
			}
		}, 10*time.Second)

	case MQTTConnected:
		state.logger.Info("mqtt@starting connected")

		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_ONLINE, 0, true, func(error) {}, 500*time.Millisecond)
		state.subscribeEvents(ctx)

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@starting connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case *actor.Restarting:
		state.stop()
	default:
		state.logger.Debug("mqtt@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "connected",
		})
	case OnEventStreamMessage:
		state.logger.Debug("mqtt@default OnEventStreamMessage", zap.String("type", fmt.Sprintf("%T", msg.message)))
		state.publishSensorValue(ctx, msg.message, false)
	case domain.PublishMessageRequest:
		state.logger.Debug("mqtt@default PublishMessageRequest", zap.String("topic", msg.Topic))
		state.publishMessage(ctx, msg.Topic, msg.Payload, msg.Retain, actorutil.ForRequest(msg).ReplyTo(ctx))
	case domain.PublishSensorUpdateRequest:
		state.logger.Debug("mqtt@default PublishSensorUpdateRequest", zap.String("type", fmt.Sprintf("%T", msg.Event)))
		state.publishSensorValue(ctx, msg.Event, msg.Retain)
	case domain.PublishDiscoveryRequest:
		state.logger.Debug("mqtt@default PublishDiscoveryRequest", zap.Int("sensors", len(msg.Sensors)))
		if err := state.PublishHomeAssistantDiscovery(msg.Sensors); err != nil {
			state.logger.Error("mqtt@default PublishDiscoveryRequest error", zap.Error(err))
		}
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@default connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@default ignored", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MQTTActor) subscribeEvents(ctx actor.Context) {
	if state.eventStream == nil || state.eventStreamSub != nil {
		return
	}
	self := ctx.Self()
	system := ctx.ActorSystem()
	state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
		system.Root.Send(self, OnEventStreamMessage{message: value})
	})
}

func (state *MQTTActor) event2MQTTMessage(event any) *rawMessage {
	switch msg := event.(type) {
	case domain.FloatSensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.SensorStateTopic(msg.Id),
			message: fmt.Sprintf(fmt.Sprintf("%%.%df", msg.Decimals), msg.Value),
		}
	case domain.BinarySensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.BinarySensorStateTopic(msg.Id),
			message: bool2MQTTPayload(msg.Value),
		}
	case domain.TextSensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.SensorStateTopic(msg.Id),
			message: msg.Value,
		}
	case domain.BridgeStateUpdateEvent:
		var stringMessage string
		if msg.Value {
			stringMessage = mqtt.MQTT_PAYLOAD_ONLINE
		} else {
			stringMessage = mqtt.MQTT_PAYLOAD_OFFLINE
		}
		return &rawMessage{
			topic:   state.client.BridgeStateTopic(),
			message: stringMessage,
			retain:  true,
		}
	default:
		return nil
	}
}

func (state *MQTTActor) publishSensorValue(ctx actor.Context, event any, retain bool) {
	msg := state.event2MQTTMessage(event)
	if msg == nil {
		return
	}
	state.logger.Sugar().Debugf("mqtt@publish: sensor publish %s => %s", msg.topic, msg.message)
	state.client.Publish(msg.topic, msg.message, 1, msg.retain || retain, func(err error) {
		ctx.Send(ctx.Self(), publishResult{Error: err})
	}, 5*time.Second)
	state.behavior.BecomeStacked(state.PublishResultReceive)
}

func (state *MQTTActor) publishMessage(ctx actor.Context, topic, payload string, retain bool, replyTo *actor.PID) {
	state.logger.Sugar().Debugf("mqtt@publish: message publish %s => %s", topic, payload)
	state.client.Publish(topic, payload, 1, retain, func(err error) {
		ctx.Send(ctx.Self(), publishResult{ReplyTo: replyTo, Error: err})
	}, 5*time.Second)
	state.behavior.BecomeStacked(state.PublishResultReceive)
}

func (state *MQTTActor) PublishResultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case publishResult:
		if msg.Error != nil {
			state.logger.Error("mqtt@publishing could not publish a message", zap.Error(msg.Error))
		}
		if msg.ReplyTo != nil {
			ctx.Send(msg.ReplyTo, domain.PublishMessageResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: msg.Error,
				},
			})
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashOldest(ctx)
	case MQTTConnectionLost:
		state.logger.Error("mqtt@publishing connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@publishing stash", zap.String("type", fmt.Sprintf("%T", msg)))
		dropped := state.stash.Dropped()
		state.stash.Stash(ctx, msg)
		if state.stash.Dropped() > dropped {
			state.logger.Warn("mqtt@publishing broker too slow, dropping oldest message", zap.Uint64("dropped", state.stash.Dropped()))
		}
	}
}

func (state *MQTTActor) PublishHomeAssistantDiscovery(sensors []domain.GenericSensor) error {
	messages, err := state.discoveryMessages(sensors)
	if err != nil {
		return err
	}
	for _, m := range messages {
		state.client.Publish(m.topic, m.message, 0, m.retain, func(err error) {
			if err != nil {
				state.logger.Warn("mqtt@discovery publish failed", zap.Error(err))
			}
		}, 1*time.Second)
	}
	return nil
}

func (state *MQTTActor) discoveryMessages(sensors []domain.GenericSensor) ([]rawMessage, error) {
	messages := make([]rawMessage, 0, len(sensors))
	for i := range sensors {
		msg := mqtt.GenericSensorToHADiscoveryMessage(state.client, sensors[i])
		payload, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("discovery for %s: %w", sensors[i].Id, err)
		}
		messages = append(messages, rawMessage{
			topic:   mqtt.HADiscoverySensorTopic(state.client.DiscoveryPrefix(), sensors[i]),
			message: string(payload),
			retain:  true,
		})
	}
	return messages, nil
}

func (state *MQTTActor) stop() {
	state.logger.Debug("mqtt: disconnect")
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
	if state.client != nil && state.published == nil {
		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_OFFLINE, 0, true, func(error) {}, 500*time.Millisecond)
		state.client.Disconnect(500 * time.Millisecond)
	}
}

func bool2MQTTPayload(value bool) string {
	if value {
		return mqtt.MQTT_PAYLOAD_ON
	}
	return mqtt.MQTT_PAYLOAD_OFF
}

type PublishedMessage struct {
	Topic   string
	Payload string
	Retain  bool
}

// PublishLog collects what a test MQTT actor would have sent to the broker.
type PublishLog struct {
	mu       sync.Mutex
	messages []PublishedMessage
}

func (l *PublishLog) record(m rawMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, PublishedMessage{Topic: m.topic, Payload: m.message, Retain: m.retain})
}

func (l *PublishLog) Messages() []PublishedMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]PublishedMessage(nil), l.messages...)
}

// Last returns the most recent payload published on topic.
func (l *PublishLog) Last(topic string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.messages) - 1; i >= 0; i-- {
		if l.messages[i].Topic == topic {
			return l.messages[i].Payload, true
		}
	}
	return "", false
}

// NewTestMQTTActor never connects. Everything it would publish ends up in
// published.
func NewTestMQTTActor(config *config.Config, eventStream *eventstream.EventStream, published *PublishLog, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:      config,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		eventStream: eventStream,
		published:   published,
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.DummyReceive)
	return act
}

func (state *MQTTActor) DummyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), nil, nil)
		state.subscribeEvents(ctx)
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "test",
		})
	case OnEventStreamMessage:
		if m := state.event2MQTTMessage(msg.message); m != nil {
			state.published.record(*m)
		}
	case domain.PublishSensorUpdateRequest:
		if m := state.event2MQTTMessage(msg.Event); m != nil {
			state.published.record(*m)
		}
		if msg.ReplyToRef != nil {
			actorutil.ForRequest(msg).Respond(ctx, domain.PublishSensorUpdateResponse{})
		}
	case domain.PublishMessageRequest:
		state.published.record(rawMessage{topic: msg.Topic, message: msg.Payload, retain: msg.Retain})
		actorutil.ForRequest(msg).Respond(ctx, domain.PublishMessageResponse{})
	case domain.PublishDiscoveryRequest:
		messages, err := state.discoveryMessages(msg.Sensors)
		if err != nil {
			state.logger.Error("mqtt@test discovery", zap.Error(err))
			return
		}
		for _, m := range messages {
			state.published.record(m)
		}
	}
}
