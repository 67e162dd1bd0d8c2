package ws

import (
	"encoding/json"

	"typestake/internal/domain"
)

// Envelope is every server → client frame.
type Envelope struct {
	Type   string      `json:"type"`
	DuelID uint64      `json:"duelId,omitempty"`
	Data   interface{} `json:"data,omitempty"`
}

// client → server
type inbound struct {
	Type string `json:"type"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// ResultsSnapshot answers a sync frame.
type ResultsSnapshot struct {
	Results  []*domain.DuelResult `json:"results"`
	Complete bool                 `json:"complete"`
}

func encode(e Envelope) []byte {
	b, err := json.Marshal(e)
	if err != nil {
		b, _ = json.Marshal(Envelope{Type: MsgError, DuelID: e.DuelID, Data: ErrorPayload{Message: "encode failed"}})
	}
	return b
}
