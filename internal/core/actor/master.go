package actor

import (
	"fmt"
	"time"

	adactor "frostmeter/internal/adapter/actor"
	"frostmeter/internal/config"
	"frostmeter/internal/core/coordinator"
	"frostmeter/internal/core/domain"
	"frostmeter/internal/core/task"
	. "frostmeter/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

// EscalateFunc is called once for every outcome that must stop the process.
type EscalateFunc func(task.Outcome)

// MasterOfPuppetsActor supervises the pipeline tasks and the publishing
// actors. It answers health checks for the whole bridge.
type MasterOfPuppetsActor struct {
	config   *config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck healthCheckResult
	eventStream        *eventstream.EventStream
	snapshots          SnapshotSource
	mqttActor          *actor.PID
	powerFlowActor     *actor.PID
	mqttActorProvider  MQTTActorProvider
	escalate           EscalateFunc
	outcomes           map[string]task.Outcome
	logger             *zap.Logger
}

type healthCheckResult struct {
	pipelineHealthy       bool
	mqttActorHealthy      bool
	powerFlowActorHealthy bool
	checksReceived        int
	checksExpected        int
	respondTo             *actor.PID
}

// NewMasterOfPuppetsActor builds the supervisor. mqttActorProvider may be nil
// when MQTT publication is disabled.
func NewMasterOfPuppetsActor(config *config.Config, snapshots SnapshotSource, mqttActorProvider MQTTActorProvider,
	escalate EscalateFunc, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:            config,
		behavior:          actor.NewBehavior(),
		stash:             &Stash{},
		logger:            ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:       &eventstream.EventStream{},
		snapshots:         snapshots,
		mqttActorProvider: mqttActorProvider,
		escalate:          escalate,
		outcomes:          map[string]task.Outcome{},
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

// EventStream carries sensor update events from the power flow actor to the
// MQTT actor.
func (state *MasterOfPuppetsActor) EventStream() *eventstream.EventStream {
	return state.eventStream
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		state.currentHealthCheck = healthCheckResult{}
		state.currentHealthCheck.reset(state.expectedChecks())

		// start PowerFlow child
		powerFlowActorPID, err := state.startPowerFlowActor(ctx)
		if err != nil {
			panic(err)
		}
		state.powerFlowActor = powerFlowActorPID

		if state.mqttEnabled() {
			// start MQTT child
			mqttActorPID, err := state.startMQTTActor(ctx)
			if err != nil {
				panic(err)
			}
			state.mqttActor = mqttActorPID

			// start HA Discovery
			if state.config.MQTT.HADiscoveryEnable {
				if _, err := state.startHADiscoveryActor(ctx); err != nil {
					panic(err)
				}
			}
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset(state.expectedChecks())
		state.currentHealthCheck.respondTo = ForRequest(msg).ReplyTo(ctx)
		state.currentHealthCheck.pipelineHealthy = state.pipelineHealthy()

		// PowerFlow Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.powerFlowActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_POWERFLOW,
				Healthy: false,
			}
		})
		// MQTT Actor Request
		if state.mqttActor != nil {
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      domain.ACTOR_ID_MQTT,
					Healthy: false,
				}
			})
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case domain.TaskOutcomeReceived:
		state.onOutcome(msg.Outcome)
	case domain.GetMeterReadingRequest:
		ctx.Forward(state.powerFlowActor)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@default late ActorHealthResponse", zap.String("sender", msg.Id))
	case *actor.Terminated:
		state.logger.Warn("master@default child terminated", zap.String("child", msg.Who.Id))
	default:
		state.logger.Debug("master@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		ctx.CancelReceiveTimeout()
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		if msg.Healthy {
			switch msg.Id {
			case domain.ACTOR_ID_MQTT:
				state.currentHealthCheck.mqttActorHealthy = true
			case domain.ACTOR_ID_POWERFLOW:
				state.currentHealthCheck.powerFlowActorHealthy = true
			}
		}
		if state.currentHealthCheck.allReceived() {
			ctx.CancelReceiveTimeout()
			state.currentHealthCheck.respond(ctx)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		}
	case domain.TaskOutcomeReceived:
		// never delayed by a pending health check
		state.onOutcome(msg.Outcome)
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) onOutcome(outcome task.Outcome) {
	state.outcomes[outcome.Task] = outcome
	if outcome.IsFault() {
		state.logger.Error("master@task fault", zap.String("task", outcome.Task), zap.Error(outcome.Err))
	} else {
		state.logger.Info("master@task ended", zap.String("task", outcome.Task), zap.NamedError("reason", outcome.Err))
	}
	if coordinator.IsFatal(outcome) && state.escalate != nil {
		state.escalate(outcome)
	}
}

// pipelineHealthy is false once the combiner or the register update loop
// ended, or the primary reader gave up.
func (state *MasterOfPuppetsActor) pipelineHealthy() bool {
	for _, name := range []string{coordinator.TASK_COMBINER_PRIMARY, coordinator.TASK_COMBINER_SECONDARY, coordinator.TASK_EMULATOR} {
		if _, ended := state.outcomes[name]; ended {
			return false
		}
	}
	if outcome, ok := state.outcomes[coordinator.TASK_PRIMARY]; ok && outcome.IsFault() {
		return false
	}
	return true
}

func (state *MasterOfPuppetsActor) mqttEnabled() bool {
	return state.config.MQTT.Enabled() && state.mqttActorProvider != nil
}

func (state *MasterOfPuppetsActor) expectedChecks() int {
	if state.mqttEnabled() {
		return 2
	}
	return 1
}

func (state *MasterOfPuppetsActor) startPowerFlowActor(ctx actor.Context) (*actor.PID, error) {
	decider := func(reason interface{}) actor.Directive {
		state.logger.Warn("master@powerflow failure", zap.Any("reason", reason))
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(10, 10*time.Second, decider)

	powerFlowProps := actor.PropsFromProducer(func() actor.Actor {
		return NewPowerFlowActor(state.config, state.snapshots, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(powerFlowProps, domain.ACTOR_ID_POWERFLOW)
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {
	decider := func(reason interface{}) actor.Directive {
		state.logger.Warn("master@hadiscovery failure", zap.Any("reason", reason))
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(3, 30*time.Second, decider)

	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(state.config, state.mqttActor, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(haDiscProps, domain.ACTOR_ID_HA_DISCOVERY)
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {
	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
}

func (state *healthCheckResult) reset(expected int) {
	state.pipelineHealthy = false
	state.mqttActorHealthy = expected < 2
	state.powerFlowActorHealthy = false
	state.checksReceived = 0
	state.checksExpected = expected
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived >= state.checksExpected
}

func (state *healthCheckResult) allHealthy() bool {
	return state.pipelineHealthy && state.mqttActorHealthy && state.powerFlowActorHealthy
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
		State:   state.describe(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}

func (state *healthCheckResult) describe() string {
	switch {
	case !state.pipelineHealthy:
		return "pipeline stopped"
	case !state.powerFlowActorHealthy:
		return "powerflow unavailable"
	case !state.mqttActorHealthy:
		return "mqtt unavailable"
	default:
		return "running"
	}
}
