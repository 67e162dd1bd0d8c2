package http

import (
	"bytes"
	"context"
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"typestake/internal/domain"
	"typestake/internal/http/handlers"
	"typestake/internal/repository"
	"typestake/internal/service"
	"typestake/internal/signer"
	"typestake/internal/ws"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	verifierKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	aliceKey    = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	alice       = "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"
	bob         = "0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc"
	txHash      = "0x8f1c5a7d0b3e2f4a6c9d8e7f1a2b3c4d5e6f708192a3b4c5d6e7f8091a2b3c4d"
)

type testServer struct {
	router  *gin.Engine
	handler *handlers.Handler
	results *repository.MemoryDuelResultStore
	audit   *repository.MemoryAuditStore
}

type brokenSigner struct{}

func (brokenSigner) SignSolo(context.Context, domain.SoloSettlement) (*signer.Authorization, error) {
	return nil, &domain.ConfigurationError{Setting: "VERIFIER_PRIVATE_KEY"}
}

func (brokenSigner) SignDuel(context.Context, domain.DuelSettlement) (*signer.Authorization, error) {
	return nil, &domain.ConfigurationError{Setting: "VERIFIER_PRIVATE_KEY"}
}

func newTestServer(t *testing.T, sign service.SettlementSigner) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	service.InitJWT("routes-test-secret")

	auditStore := repository.NewMemoryAuditStore()
	audit := service.NewAuditService(auditStore)
	if sign == nil {
		s, err := signer.New(verifierKey, audit)
		require.NoError(t, err)
		sign = s
	}

	hub := ws.NewHub()
	results := repository.NewMemoryDuelResultStore()
	h := handlers.NewHandler(
		service.NewSettlementService(sign, results, nil),
		service.NewResultSyncService(results, hub),
		service.NewDuelRecordService(repository.NewMemoryDuelRecordStore(), audit),
		service.NewWalletAuthService(service.NewMemoryNonceStore(), audit),
	)
	h.Audit = audit
	health := handlers.NewHealthHandler("test")

	r := gin.New()
	RegisterRoutes(r, h, health, hub, RouteConfig{APIRateLimit: 1000, APIRateWindow: time.Minute, SettleRateLimit: 1000})
	return &testServer{router: r, handler: h, results: results, audit: auditStore}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, token string) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	out := map[string]interface{}{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func TestSettleIssuesRecoverableSignature(t *testing.T) {
	s := newTestServer(t, nil)
	code, body := s.do(t, "POST", "/settle", map[string]interface{}{
		"sequenceNumber": 7, "misses": 3, "typos": 1, "bonusAmount": 40000, "playerAddress": alice,
	}, "")
	require.Equal(t, nethttp.StatusOK, code, body)

	sig := hexutil.MustDecode(body["signature"].(string))
	got, err := signer.Recover(common.HexToHash(body["hash"].(string)), sig)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), got)
	assert.Contains(t, []byte{27, 28}, sig[64])

	params := body["params"].(map[string]interface{})
	assert.EqualValues(t, 7, params["sequenceNumber"])

	logs, err := s.audit.List(context.Background(), domain.AuditFilter{Category: domain.AuditCategorySettlement})
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestSettleRejectsBadInput(t *testing.T) {
	s := newTestServer(t, nil)
	valid := func() map[string]interface{} {
		return map[string]interface{}{"sequenceNumber": 1, "misses": 0, "typos": 0, "bonusAmount": 0, "playerAddress": alice}
	}

	tests := []struct {
		name   string
		mutate func(map[string]interface{})
	}{
		{"missing sequence", func(m map[string]interface{}) { delete(m, "sequenceNumber") }},
		{"zero sequence", func(m map[string]interface{}) { m["sequenceNumber"] = 0 }},
		{"negative misses", func(m map[string]interface{}) { m["misses"] = -1 }},
		{"missing typos", func(m map[string]interface{}) { delete(m, "typos") }},
		{"missing bonus", func(m map[string]interface{}) { delete(m, "bonusAmount") }},
		{"bad address", func(m map[string]interface{}) { m["playerAddress"] = "0x1234" }},
		{"zero address", func(m map[string]interface{}) { m["playerAddress"] = "0x0000000000000000000000000000000000000000" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(req)
			code, body := s.do(t, "POST", "/settle", req, "")
			assert.Equal(t, nethttp.StatusBadRequest, code, body)
		})
	}
}

func TestSettleWithoutUsableKeyIsConfigurationError(t *testing.T) {
	s := newTestServer(t, brokenSigner{})
	code, body := s.do(t, "POST", "/settle", map[string]interface{}{
		"sequenceNumber": 1, "misses": 0, "typos": 0, "bonusAmount": 0, "playerAddress": alice,
	}, "")
	assert.Equal(t, nethttp.StatusInternalServerError, code)
	assert.Equal(t, "configuration error", body["error"])
}

func TestDuelSubmitFetchSettleCleanup(t *testing.T) {
	s := newTestServer(t, nil)

	code, _ := s.do(t, "GET", "/duel/submit", nil, "")
	assert.Equal(t, nethttp.StatusBadRequest, code)

	code, body := s.do(t, "POST", "/duel/submit", map[string]interface{}{"duelId": 9, "playerAddress": alice, "score": 120, "wpm": 60}, "")
	require.Equal(t, nethttp.StatusOK, code, body)

	code, body = s.do(t, "GET", "/duel/submit?duelId=9", nil, "")
	require.Equal(t, nethttp.StatusOK, code)
	assert.Len(t, body["results"], 1)
	assert.Equal(t, false, body["complete"])

	// one result is not enough to settle
	code, _ = s.do(t, "POST", "/duel/settle", map[string]interface{}{"duelId": 9, "player1": alice}, "")
	assert.Equal(t, nethttp.StatusConflict, code)

	code, _ = s.do(t, "POST", "/duel/submit", map[string]interface{}{"duelId": 9, "playerAddress": bob, "score": 150, "wpm": 75}, "")
	require.Equal(t, nethttp.StatusOK, code)

	code, body = s.do(t, "GET", "/duel/submit?duelId=9", nil, "")
	require.Equal(t, nethttp.StatusOK, code)
	assert.Len(t, body["results"], 2)
	assert.Equal(t, true, body["complete"])

	code, body = s.do(t, "POST", "/duel/settle", map[string]interface{}{"duelId": 9, "player1": alice}, "")
	require.Equal(t, nethttp.StatusOK, code, body)
	params := body["params"].(map[string]interface{})
	assert.True(t, strings.EqualFold(bob, params["winner"].(string)))
	assert.EqualValues(t, 120, params["player1Score"])
	assert.EqualValues(t, 150, params["player2Score"])

	code, body = s.do(t, "DELETE", "/duel/submit?duelId=9", nil, "")
	require.Equal(t, nethttp.StatusOK, code)
	assert.EqualValues(t, 2, body["removed"])

	// cleanup is idempotent
	code, body = s.do(t, "DELETE", "/duel/submit?duelId=9", nil, "")
	require.Equal(t, nethttp.StatusOK, code)
	assert.EqualValues(t, 0, body["removed"])

	code, body = s.do(t, "GET", "/duel/submit?duelId=9", nil, "")
	require.Equal(t, nethttp.StatusOK, code)
	assert.Len(t, body["results"], 0)
}

func TestDuelRecordRoundTrip(t *testing.T) {
	s := newTestServer(t, nil)
	rec := map[string]interface{}{
		"duelId": 4, "player1": alice, "player2": bob, "winner": bob,
		"stake": "1000000000000000000", "payout": "1800000000000000000",
		"player1Score": 90, "player2Score": 110, "txHash": txHash,
	}

	code, body := s.do(t, "POST", "/duel/record", rec, "")
	require.Equal(t, nethttp.StatusOK, code, body)

	// recording twice keeps the first row
	code, _ = s.do(t, "POST", "/duel/record", rec, "")
	require.Equal(t, nethttp.StatusOK, code)

	code, body = s.do(t, "GET", "/duel/record?walletAddress="+bob+"&limit=5", nil, "")
	require.Equal(t, nethttp.StatusOK, code)
	records := body["records"].([]interface{})
	require.Len(t, records, 1)
	first := records[0].(map[string]interface{})
	assert.Equal(t, "win", first["result"])
	assert.Equal(t, "1800000000000000000", first["payout"])

	bad := map[string]interface{}{"duelId": 4, "player1": alice, "player2": bob, "winner": bob, "txHash": "0x12"}
	code, _ = s.do(t, "POST", "/duel/record", bad, "")
	assert.Equal(t, nethttp.StatusBadRequest, code)

	code, _ = s.do(t, "GET", "/duel/record?walletAddress=nope", nil, "")
	assert.Equal(t, nethttp.StatusBadRequest, code)
}

func TestWalletLoginGuardsSubmissions(t *testing.T) {
	s := newTestServer(t, nil)
	s.handler.RequireWalletAuth = true
	submission := map[string]interface{}{"duelId": 3, "playerAddress": alice, "score": 10}

	code, _ := s.do(t, "POST", "/duel/submit", submission, "")
	assert.Equal(t, nethttp.StatusUnauthorized, code)

	code, body := s.do(t, "POST", "/auth/challenge", map[string]interface{}{"address": alice}, "")
	require.Equal(t, nethttp.StatusOK, code, body)
	msg := body["message"].(string)

	key, err := crypto.HexToECDSA(aliceKey)
	require.NoError(t, err)
	sig, err := crypto.Sign(accounts.TextHash([]byte(msg)), key)
	require.NoError(t, err)
	sig[64] += 27

	code, body = s.do(t, "POST", "/auth/verify", map[string]interface{}{"address": alice, "signature": hexutil.Encode(sig)}, "")
	require.Equal(t, nethttp.StatusOK, code, body)
	token := body["token"].(string)

	code, _ = s.do(t, "POST", "/duel/submit", submission, token)
	assert.Equal(t, nethttp.StatusOK, code)

	// alice's token can't submit for bob
	submission["playerAddress"] = bob
	code, _ = s.do(t, "POST", "/duel/submit", submission, token)
	assert.Equal(t, nethttp.StatusForbidden, code)

	// nonce is single-use
	code, _ = s.do(t, "POST", "/auth/verify", map[string]interface{}{"address": alice, "signature": hexutil.Encode(sig)}, "")
	assert.Equal(t, nethttp.StatusBadRequest, code)

	code, _ = s.do(t, "GET", "/auth/activity", nil, "")
	assert.Equal(t, nethttp.StatusUnauthorized, code)

	code, body = s.do(t, "GET", "/auth/activity?limit=5", nil, token)
	require.Equal(t, nethttp.StatusOK, code, body)
	assert.Equal(t, alice, body["wallet"])
	entries := body["entries"].([]interface{})
	require.Len(t, entries, 1)
	assert.Equal(t, domain.AuditActionWalletLogin, entries[0].(map[string]interface{})["action"])
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	code, body := s.do(t, "GET", "/health", nil, "")
	assert.Equal(t, nethttp.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	code, _ = s.do(t, "GET", "/readyz", nil, "")
	assert.Equal(t, nethttp.StatusOK, code)
}
