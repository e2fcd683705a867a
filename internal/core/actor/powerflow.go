package actor

import (
	"fmt"
	"time"

	"frostmeter/internal/config"
	"frostmeter/internal/core/combiner"
	"frostmeter/internal/core/domain"
	"frostmeter/internal/core/events"
	. "frostmeter/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// SnapshotSource returns the last combined reading, if any was emitted yet.
type SnapshotSource interface {
	Snapshot() (combiner.Reading, bool)
}

// PowerFlowActor samples the combiner every monitor interval and publishes
// the reading as sensor update events.
type PowerFlowActor struct {
	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	snapshots   SnapshotSource
	config      *config.Config
	eventStream *eventstream.EventStream
	last        readingFetched
	published   uint64

	logger *zap.Logger
}

type powerFlowTick struct {
}

type readingFetched struct {
	reading   combiner.Reading
	available bool
	err       error
}

func NewPowerFlowActor(config *config.Config, snapshots SnapshotSource, eventStream *eventstream.EventStream, logger *zap.Logger) *PowerFlowActor {
	act := &PowerFlowActor{
		config:      config,
		snapshots:   snapshots,
		behavior:    actor.NewBehavior(),
		stash:       &Stash{},
		logger:      ActorLogger(domain.ACTOR_ID_POWERFLOW, logger),
		eventStream: eventStream,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *PowerFlowActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *PowerFlowActor) pollInterval() time.Duration {
	return time.Duration(state.config.MonitorConfig.PollIntervalMillis) * time.Millisecond
}

func (state *PowerFlowActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("powerflow@starting started")

		if state.pollInterval() > 0 {
			state.scheduler = scheduler.NewTimerScheduler(ctx)
			state.scheduler.RequestOnce(state.pollInterval(), ctx.Self(), powerFlowTick{})
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.logger.Debug("powerflow@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PowerFlowActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("powerflow@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_POWERFLOW,
			Healthy: state.last.err == nil,
			State:   state.describe(),
		})
	case powerFlowTick:
		state.logger.Debug("powerflow@default tick")
		state.fetch(ctx)
		// schedule next tick
		state.scheduler.RequestOnce(state.pollInterval(), ctx.Self(), powerFlowTick{})
	case readingFetched:
		state.last = msg
		if msg.err != nil {
			state.logger.Error("powerflow@default snapshot failed", zap.Error(msg.err))
			return
		}
		if !msg.available {
			state.logger.Debug("powerflow@default no reading yet")
			return
		}
		for _, ev := range events.ReadingToUpdateEvents(msg.reading) {
			state.eventStream.Publish(ev)
		}
		state.published++
	case domain.GetMeterReadingRequest:
		reading, ok := state.snapshots.Snapshot()
		ForRequest(msg).Respond(ctx, domain.GetMeterReadingResponse{
			Reading:   reading,
			Available: ok,
		})
	default:
		state.logger.Debug("powerflow@default: ignored", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *PowerFlowActor) fetch(ctx actor.Context) {
	NewBackgroundTask(ctx, func() (*readingFetched, error) {
		reading, ok := state.snapshots.Snapshot()
		return &readingFetched{reading: reading, available: ok}, nil
	}).
		WithTimeout(time.Second).
		Recover(func(err error) readingFetched {
			return readingFetched{err: err}
		}).
		PipeTo(ctx.Self())
}

func (state *PowerFlowActor) describe() string {
	switch {
	case state.last.err != nil:
		return "snapshot failed"
	case !state.last.available:
		return "waiting for first reading"
	default:
		return fmt.Sprintf("published %d readings", state.published)
	}
}
