package chain

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Preimages are abi.encodePacked layouts: fixed-width big-endian integers,
// 20-byte addresses, no padding between fields. Any drift from the
// contract's encoding makes every signature invalid.

const (
	SoloPreimageLen = 8 + 32 + 32 + 32 + common.AddressLength
	DuelPreimageLen = 32 + common.AddressLength + 32 + 32
)

// SoloSettlementPreimage packs (uint64 seq, uint256 misses, uint256 typos,
// uint256 bonusAmount, address player).
func SoloSettlementPreimage(seq, misses, typos, bonus uint64, player common.Address) []byte {
	buf := make([]byte, 0, SoloPreimageLen)
	buf = binary.BigEndian.AppendUint64(buf, seq)
	buf = appendUint256(buf, misses)
	buf = appendUint256(buf, typos)
	buf = appendUint256(buf, bonus)
	buf = append(buf, player.Bytes()...)
	return buf
}

// SoloSettlementHash is keccak256 of SoloSettlementPreimage.
func SoloSettlementHash(seq, misses, typos, bonus uint64, player common.Address) common.Hash {
	return crypto.Keccak256Hash(SoloSettlementPreimage(seq, misses, typos, bonus, player))
}

// DuelSettlementPreimage packs (uint256 duelId, address winner,
// uint256 player1Score, uint256 player2Score).
func DuelSettlementPreimage(duelID uint64, winner common.Address, score1, score2 uint64) []byte {
	buf := make([]byte, 0, DuelPreimageLen)
	buf = appendUint256(buf, duelID)
	buf = append(buf, winner.Bytes()...)
	buf = appendUint256(buf, score1)
	buf = appendUint256(buf, score2)
	return buf
}

// DuelSettlementHash is keccak256 of DuelSettlementPreimage.
func DuelSettlementHash(duelID uint64, winner common.Address, score1, score2 uint64) common.Hash {
	return crypto.Keccak256Hash(DuelSettlementPreimage(duelID, winner, score1, score2))
}

func appendUint256(buf []byte, v uint64) []byte {
	word := uint256.NewInt(v).Bytes32()
	return append(buf, word[:]...)
}
