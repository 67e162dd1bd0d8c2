package main

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"typestake/internal/client"
	"typestake/internal/domain"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gorilla/websocket"
)

// Runs two players through the server half of a duel: both submit, a
// watcher sees the pushes, one side gets the decision signed, the outcome is
// recorded and the results cleaned up. Needs a server started without
// CONTRACT_ADDRESS, since no duel exists on chain.
func main() {
	base := os.Getenv("TYPESTAKE_SERVER")
	if base == "" {
		port := os.Getenv("APP_PORT")
		if port == "" {
			port = "8080"
		}
		// use 127.0.0.1 to prefer IPv4 (avoid resolving to [::1])
		base = "http://127.0.0.1:" + port
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	keyA, keyB := mustKey(), mustKey()
	addrA := crypto.PubkeyToAddress(keyA.PublicKey).Hex()
	addrB := crypto.PubkeyToAddress(keyB.PublicKey).Hex()
	duelID := uint64(time.Now().Unix())

	apiA, apiB := client.NewAPI(base), client.NewAPI(base)
	if os.Getenv("SMOKE_LOGIN") == "true" {
		for _, p := range []struct {
			api *client.API
			key *ecdsa.PrivateKey
		}{{apiA, keyA}, {apiB, keyB}} {
			if _, err := p.api.Login(ctx, p.key); err != nil {
				log.Fatalf("login: %v", err)
			}
		}
	}

	wsURL := fmt.Sprintf("ws%s/duel/ws?duelId=%d", strings.TrimPrefix(base, "http"), duelID)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Fatalf("dial ws: %v", err)
	}
	defer conn.Close()
	readPush(conn, "ready")

	if _, err := apiA.SubmitResult(ctx, domain.DuelResult{DuelID: duelID, PlayerAddress: addrA, Score: 120, WPM: 60, Misses: 1}); err != nil {
		log.Fatalf("submit A: %v", err)
	}
	readPush(conn, "result_submitted")

	if _, err := apiA.SettleDuel(ctx, duelID, addrA); err != nil {
		log.Printf("settle with one result refused as expected: %v", err)
	} else {
		log.Fatal("settle with one result should have been refused")
	}

	if _, err := apiB.SubmitResult(ctx, domain.DuelResult{DuelID: duelID, PlayerAddress: addrB, Score: 150, WPM: 75}); err != nil {
		log.Fatalf("submit B: %v", err)
	}
	readPush(conn, "result_submitted")
	readPush(conn, "results_complete")

	auth, err := apiB.SettleDuel(ctx, duelID, addrA)
	if err != nil {
		log.Fatalf("settle: %v", err)
	}
	log.Printf("decided: winner=%s %d vs %d signer=%s", auth.Params.Winner, auth.Params.Player1Score, auth.Params.Player2Score, auth.Signer.Hex())

	err = apiB.RecordDuel(ctx, domain.DuelRecord{
		DuelID:       duelID,
		Player1:      addrA,
		Player2:      addrB,
		Winner:       auth.Params.Winner,
		Player1Score: auth.Params.Player1Score,
		Player2Score: auth.Params.Player2Score,
		// no chain here; the message hash stands in for a tx hash
		TxHash: auth.Hash.Hex(),
	})
	if err != nil {
		log.Fatalf("record: %v", err)
	}

	removed, err := apiA.CleanupResults(ctx, duelID)
	if err != nil {
		log.Fatalf("cleanup: %v", err)
	}
	readPush(conn, "results_cleared")
	log.Printf("cleaned up %d results", removed)

	log.Println("smoke test finished")
}

func mustKey() *ecdsa.PrivateKey {
	key, err := crypto.GenerateKey()
	if err != nil {
		log.Fatalf("generate key: %v", err)
	}
	return key
}

// readPush waits for the next push of the given type, skipping others.
func readPush(conn *websocket.Conn, want string) {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(deadline)
		_, msg, err := conn.ReadMessage()
		if err != nil {
			log.Fatalf("waiting for %s: %v", want, err)
		}
		var env struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(msg, &env)
		if env.Type == want {
			log.Printf("push: %s", msg)
			return
		}
	}
	log.Fatalf("no %s push", want)
}
