package ws

// Frame types. Watchers only ever send ping and sync.
const (
	MsgPing = "ping"
	MsgSync = "sync"

	MsgReady           = "ready"
	MsgPong            = "pong"
	MsgSnapshot        = "snapshot"
	MsgResultSubmitted = "result_submitted"
	MsgResultsComplete = "results_complete"
	MsgResultsCleared  = "results_cleared"
	MsgChainEvent      = "chain_event"
	MsgError           = "error"
)
