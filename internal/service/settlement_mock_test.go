package service

import (
	"context"
	"testing"

	"typestake/internal/domain"
	"typestake/internal/repository"
	"typestake/internal/signer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSigner struct {
	mock.Mock
}

func (m *mockSigner) SignSolo(ctx context.Context, in domain.SoloSettlement) (*signer.Authorization, error) {
	args := m.Called(ctx, in)
	auth, _ := args.Get(0).(*signer.Authorization)
	return auth, args.Error(1)
}

func (m *mockSigner) SignDuel(ctx context.Context, in domain.DuelSettlement) (*signer.Authorization, error) {
	args := m.Called(ctx, in)
	auth, _ := args.Get(0).(*signer.Authorization)
	return auth, args.Error(1)
}

func TestSettleSoloNeverSignsInactiveSession(t *testing.T) {
	s := new(mockSigner)
	reader := &fakeReader{session: &domain.GameSession{Player: alice, SequenceNumber: 3}}
	svc := NewSettlementService(s, repository.NewMemoryDuelResultStore(), reader)

	_, err := svc.SettleSolo(context.Background(), domain.SoloSettlement{SequenceNumber: 3, PlayerAddress: alice.Hex()})
	require.Error(t, err)
	s.AssertNotCalled(t, "SignSolo", mock.Anything, mock.Anything)
}

func TestSettleDuelSignsDecidedOutcome(t *testing.T) {
	s := new(mockSigner)
	results := repository.NewMemoryDuelResultStore()
	reader := &fakeReader{duel: &domain.Duel{ID: 9, Player1: alice, Player2: bob, Active: true, Fulfilled: true}}
	svc := NewSettlementService(s, results, reader)

	submit(t, results, 9, alice, 120)
	submit(t, results, 9, bob, 180)

	want := domain.DuelSettlement{DuelID: 9, Winner: bob.Hex(), Player1Score: 120, Player2Score: 180}
	s.On("SignDuel", mock.Anything, want).Return(&signer.Authorization{Signer: alice}, nil).Once()

	auth, err := svc.SettleDuel(context.Background(), 9, "")
	require.NoError(t, err)
	assert.Equal(t, want, auth.Params)
	s.AssertExpectations(t)
}
