package actorutil

import (
	"github.com/asynkron/protoactor-go/actor"
)

// Stash holds messages an actor cannot handle in its current state, keeping
// the original sender so replies still reach it once unstashed.
type Stash struct {
	stash []stashElem
}

type stashElem struct {
	msg    any
	sender *actor.PID
}

func (stash *Stash) Stash(ctx actor.Context, msg any) {
	stash.stash = append(stash.stash, stashElem{
		msg:    msg,
		sender: ctx.Sender(),
	})
}

func (stash *Stash) Len() int {
	return len(stash.stash)
}

func (stash *Stash) UnstashAll(ctx actor.Context) {
	for _, elem := range stash.stash {
		stash.resend(ctx, elem)
	}
	stash.stash = nil
}

func (stash *Stash) UnstashOldest(ctx actor.Context) {
	if len(stash.stash) > 0 {
		stash.resend(ctx, stash.stash[0])
		stash.stash = stash.stash[1:]
	}
}

func (stash *Stash) resend(ctx actor.Context, elem stashElem) {
	if elem.sender != nil {
		ctx.RequestWithCustomSender(ctx.Self(), elem.msg, elem.sender)
		return
	}
	ctx.Send(ctx.Self(), elem.msg)
}
