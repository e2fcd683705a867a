package domain

import (
	"frostmeter/internal/core/combiner"
	"frostmeter/internal/core/task"
)

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_POWERFLOW    = "powerflow"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

// TaskOutcomeReceived carries the end of a pipeline task to the supervisor.
type TaskOutcomeReceived struct {
	Outcome task.Outcome
}

type GetMeterReadingRequest struct {
	ActorRequestMixIn
}

type GetMeterReadingResponse struct {
	ActorResponseMixIn
	Reading   combiner.Reading
	Available bool
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors []GenericSensor
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
