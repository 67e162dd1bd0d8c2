package client

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"typestake/internal/domain"
	"typestake/internal/retry"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-resty/resty/v2"
)

// DefaultAPIPolicy retries idempotent server calls on network errors and 5xx.
var DefaultAPIPolicy = retry.Exponential(4, 250*time.Millisecond, 2*time.Second)

// Authorization is a verifier signature as returned by the server.
type Authorization struct {
	Signature hexutil.Bytes  `json:"signature"`
	Hash      common.Hash    `json:"hash"`
	Signer    common.Address `json:"signer"`
}

type SoloAuthorization struct {
	Authorization
	Params domain.SoloSettlement `json:"params"`
}

type DuelAuthorization struct {
	Authorization
	Params domain.DuelSettlement `json:"params"`
}

// APIError is a non-2xx answer from the settlement server.
type APIError struct {
	Status  int
	Message string
	Field   string
	TxHash  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

type errorBody struct {
	Error  string `json:"error"`
	Field  string `json:"field"`
	TxHash string `json:"txHash"`
}

// API talks to the settlement server. Every call it makes is idempotent, so
// all of them go through the retry policy.
type API struct {
	http   *resty.Client
	policy retry.Policy
}

func NewAPI(baseURL string) *API {
	return &API{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(10*time.Second).
			SetHeader("Content-Type", "application/json"),
		policy: DefaultAPIPolicy,
	}
}

// WithPolicy replaces the retry policy.
func (a *API) WithPolicy(p retry.Policy) *API {
	a.policy = p
	return a
}

// SetToken attaches a wallet token to every request.
func (a *API) SetToken(token string) {
	a.http.SetAuthToken(token)
}

// SubmitResult upserts this player's duel result.
func (a *API) SubmitResult(ctx context.Context, res domain.DuelResult) (*domain.DuelResult, error) {
	var out struct {
		Result *domain.DuelResult `json:"result"`
	}
	err := a.do(ctx, "submit result", func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(map[string]interface{}{
			"duelId":        res.DuelID,
			"playerAddress": res.PlayerAddress,
			"score":         res.Score,
			"wpm":           res.WPM,
			"misses":        res.Misses,
			"typos":         res.Typos,
		}).SetResult(&out).Post("/duel/submit")
	})
	if err != nil {
		return nil, err
	}
	return out.Result, nil
}

// FetchResults returns the 0, 1 or 2 results submitted so far.
func (a *API) FetchResults(ctx context.Context, duelID uint64) ([]*domain.DuelResult, error) {
	var out struct {
		Results []*domain.DuelResult `json:"results"`
	}
	err := a.do(ctx, "fetch results", func(r *resty.Request) (*resty.Response, error) {
		return r.SetQueryParam("duelId", strconv.FormatUint(duelID, 10)).SetResult(&out).Get("/duel/submit")
	})
	if err != nil {
		return nil, err
	}
	return out.Results, nil
}

// CleanupResults removes the duel's parked results.
func (a *API) CleanupResults(ctx context.Context, duelID uint64) (int64, error) {
	var out struct {
		Removed int64 `json:"removed"`
	}
	err := a.do(ctx, "cleanup results", func(r *resty.Request) (*resty.Response, error) {
		return r.SetQueryParam("duelId", strconv.FormatUint(duelID, 10)).SetResult(&out).Delete("/duel/submit")
	})
	if err != nil {
		return 0, err
	}
	return out.Removed, nil
}

// SignSolo asks the verifier to sign a solo result. The same inputs always
// produce the same authorization, so retrying is safe.
func (a *API) SignSolo(ctx context.Context, in domain.SoloSettlement) (*SoloAuthorization, error) {
	var out SoloAuthorization
	err := a.do(ctx, "sign solo", func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(in).SetResult(&out).Post("/settle")
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SettleDuel asks the server to decide the duel and sign the outcome.
// player1 is only consulted when the server runs without a contract.
func (a *API) SettleDuel(ctx context.Context, duelID uint64, player1 string) (*DuelAuthorization, error) {
	var out DuelAuthorization
	err := a.do(ctx, "settle duel", func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(map[string]interface{}{"duelId": duelID, "player1": player1}).SetResult(&out).Post("/duel/settle")
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RecordDuel stores the settled outcome. Recording twice is a no-op.
func (a *API) RecordDuel(ctx context.Context, rec domain.DuelRecord) error {
	body := map[string]interface{}{
		"duelId":       rec.DuelID,
		"player1":      rec.Player1,
		"player2":      rec.Player2,
		"winner":       rec.Winner,
		"player1Score": rec.Player1Score,
		"player2Score": rec.Player2Score,
		"txHash":       rec.TxHash,
	}
	if rec.Stake != nil {
		body["stake"] = rec.Stake.String()
	}
	if rec.Payout != nil {
		body["payout"] = rec.Payout.String()
	}
	return a.do(ctx, "record duel", func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(body).Post("/duel/record")
	})
}

// Login runs the challenge/verify handshake with key and keeps the token.
func (a *API) Login(ctx context.Context, key *ecdsa.PrivateKey) (string, error) {
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	var challenge struct {
		Message string `json:"message"`
	}
	err := a.do(ctx, "auth challenge", func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(map[string]string{"address": address}).SetResult(&challenge).Post("/auth/challenge")
	})
	if err != nil {
		return "", err
	}

	sig, err := crypto.Sign(accounts.TextHash([]byte(challenge.Message)), key)
	if err != nil {
		return "", err
	}
	sig[crypto.RecoveryIDOffset] += 27

	var verified struct {
		Token string `json:"token"`
	}
	// a nonce is single-use, so verify is sent once
	err = a.once(ctx, "auth verify", func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(map[string]string{"address": address, "signature": hexutil.Encode(sig)}).SetResult(&verified).Post("/auth/verify")
	})
	if err != nil {
		return "", err
	}
	a.SetToken(verified.Token)
	return verified.Token, nil
}

func (a *API) do(ctx context.Context, op string, send func(*resty.Request) (*resty.Response, error)) error {
	err := a.policy.Do(ctx, func(ctx context.Context, _ int) error {
		err := a.send(ctx, send)
		if err == nil {
			return nil
		}
		// 4xx and configuration errors won't change on resend
		var (
			apiErr *APIError
			cfgErr *domain.ConfigurationError
		)
		if errors.As(err, &cfgErr) || (errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, unwrapExhausted(err))
	}
	return nil
}

func (a *API) once(ctx context.Context, op string, send func(*resty.Request) (*resty.Response, error)) error {
	if err := a.send(ctx, send); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (a *API) send(ctx context.Context, send func(*resty.Request) (*resty.Response, error)) error {
	resp, err := send(a.http.R().SetContext(ctx).SetError(&errorBody{}))
	if err != nil {
		return err
	}
	if !resp.IsError() {
		return nil
	}
	return classify(resp)
}

// classify turns an error response back into the domain taxonomy so callers
// can use domain.IsRetryable on it.
func classify(resp *resty.Response) error {
	apiErr := &APIError{Status: resp.StatusCode(), Message: resp.Status()}
	if body, ok := resp.Error().(*errorBody); ok && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.Field = body.Field
		apiErr.TxHash = body.TxHash
	}

	switch apiErr.Status {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %w", &domain.ValidationError{Field: apiErr.Field, Reason: apiErr.Message}, apiErr)
	case http.StatusConflict:
		return fmt.Errorf("%w: %w", domain.NewConflict(nil, apiErr.Message), apiErr)
	case http.StatusInternalServerError:
		if apiErr.Message == "configuration error" {
			return fmt.Errorf("%w: %w", &domain.ConfigurationError{Setting: "settlement server"}, apiErr)
		}
	case http.StatusBadGateway:
		return &domain.ChainTransactionError{Operation: "server", TxHash: apiErr.TxHash, Err: apiErr}
	}
	return apiErr
}

func unwrapExhausted(err error) error {
	var ex *retry.ExhaustedError
	if errors.As(err, &ex) && ex.Last != nil {
		return fmt.Errorf("%w (after %d attempts)", ex.Last, ex.Attempts)
	}
	return err
}
