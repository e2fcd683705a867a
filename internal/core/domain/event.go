package domain

import "fmt"

// SensorUpdateEvent is published on the actor event stream whenever a sensor
// has a new state.
type SensorUpdateEvent interface {
	SensorUpdateEvent() string
	SensorId() string
}

type SensorUpdateEventMixIn struct {
	Id string
}

func (e SensorUpdateEventMixIn) SensorUpdateEvent() string {
	return fmt.Sprintf("%T", e)
}

func (e SensorUpdateEventMixIn) SensorId() string {
	return e.Id
}

type FloatSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value    float64
	Decimals uint
}

// PowerUpdate reports watts with two decimals.
func PowerUpdate(sensorId string, watts float32) FloatSensorUpdateEvent {
	return FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: sensorId},
		Value:                  float64(watts),
		Decimals:               2,
	}
}

type BinarySensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

type TextSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value string
}

// BridgeStateUpdateEvent switches the retained availability topic.
type BridgeStateUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}
