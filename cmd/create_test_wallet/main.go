package main

import (
	"log"
	"os"

	"typestake/internal/service"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

func main() {
	key, err := crypto.GenerateKey()
	if err != nil {
		log.Fatalf("generate key failed: %v", err)
	}
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	log.Printf("address=%s\n", address)
	log.Printf("private_key=%s\n", hexutil.Encode(crypto.FromECDSA(key))[2:])

	// with JWT_SECRET set, also print a wallet token the server will accept
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Println("JWT_SECRET not set, skipping token")
		return
	}
	service.InitJWT(secret)
	token, err := service.GenerateJWT(address)
	if err != nil {
		log.Fatalf("failed to generate token: %v", err)
	}
	log.Printf("token=%s\n", token)
}
