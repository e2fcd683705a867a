package domain

import (
	"github.com/asynkron/protoactor-go/actor"
)

// ActorRef is a PID carried inside a request so the answer can go to an
// actor other than the sender.
type ActorRef actor.PID

func RefOf(pid *actor.PID) *ActorRef {
	return (*ActorRef)(pid)
}

func (r *ActorRef) PID() *actor.PID {
	return (*actor.PID)(r)
}

type ActorRequest interface {
	ReplyTo() *ActorRef
}

type ActorRequestMixIn struct {
	ReplyToRef *ActorRef
}

func (r ActorRequestMixIn) ReplyTo() *ActorRef {
	return r.ReplyToRef
}

type ActorResponse interface {
	GetResponseError() error
	HasResponseError() bool
}

type ActorResponseMixIn struct {
	ResponseError error
}

func (r ActorResponseMixIn) GetResponseError() error {
	return r.ResponseError
}

func (r ActorResponseMixIn) HasResponseError() bool {
	return r.ResponseError != nil
}
