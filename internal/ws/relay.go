package ws

import (
	"typestake/internal/chain"
)

// Relay forwards contract events to the room of the duel they belong to
// until events is closed. Solo session events carry no duel id and are
// skipped.
func Relay(hub *Hub, events <-chan chain.Event) {
	for ev := range events {
		if ev.DuelID == 0 {
			continue
		}
		hub.Publish(ev.DuelID, MsgChainEvent, ev)
	}
}
