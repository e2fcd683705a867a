package actor

import (
	"errors"
	"fmt"
	"time"

	"frostmeter/internal/config"
	"frostmeter/internal/core/domain"
	"frostmeter/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

var ErrMQTTNotHealthy = errors.New("MQTT actor is not healthy")

// HADiscoveryActor publishes the Home Assistant discovery documents once the
// MQTT actor is connected, then idles.
type HADiscoveryActor struct {
	config    *config.Config
	behavior  actor.Behavior
	stash     *actorutil.Stash
	mqttActor *actor.PID

	logger *zap.Logger
}

func NewHADiscoveryActor(config *config.Config, mqttActor *actor.PID, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:    config,
		mqttActor: mqttActor,
		behavior:  actor.NewBehavior(),
		stash:     &actorutil.Stash{},
		logger:    actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")

		// the MQTT actor answers only once it is connected
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 15*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("hadiscovery@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		if !msg.Healthy {
			panic(ErrMQTTNotHealthy)
		}
		sensors := DiscoverySensors(state.config.MQTT.BaseTopic)
		ctx.Send(state.mqttActor, domain.PublishDiscoveryRequest{
			Sensors: sensors,
		})
		state.logger.Info("hadiscovery@published", zap.Int("sensors", len(sensors)))
		state.behavior.Become(state.Done)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("hadiscovery@healthcheck: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) Done(ctx actor.Context) {
}

// DiscoverySensors lists the bridge availability sensor and the emulated
// meter sensors, the meter being attached via the bridge device.
func DiscoverySensors(baseTopic string) []domain.GenericSensor {
	bridgeDevice := domain.BridgeDevice(baseTopic)
	sensors := domain.BridgeSensors(bridgeDevice)

	meterDevice := domain.MeterDevice(baseTopic).Via(bridgeDevice)
	return append(sensors, domain.MeterSensors(meterDevice)...)
}
