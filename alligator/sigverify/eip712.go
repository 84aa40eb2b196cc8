// Package sigverify recovers the signer of a typed vote ballot.
//
// Ballots are hashed following EIP-712: a domain separator over
// (name, chainId, verifyingContract) is combined with a struct hash over the
// typed payload, and the signer is recovered from a secp256k1 signature over
//
//	keccak256(0x19 ‖ 0x01 ‖ domainSeparator ‖ structHash)
//
// Dynamic members are hashed as EIP-712 prescribes: strings and bytes by
// keccak256 of their contents, address[] by keccak256 of the concatenated
// 32-byte words, and address[][] by keccak256 of the concatenated hashes of
// each inner array.
package sigverify

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rony4d/go-alligator/inter"
	"github.com/rony4d/go-alligator/params"
)

// Type hashes of the domain and the three ballot structs.
var (
	DomainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,uint256 chainId,address verifyingContract)"))
	BallotTypeHash = crypto.Keccak256Hash([]byte(
		"Ballot(uint256 proposalId,uint8 support,address[] authority)"))
	ExtendedBallotTypeHash = crypto.Keccak256Hash([]byte(
		"ExtendedBallot(uint256 proposalId,uint8 support,address[] authority,string reason,bytes params)"))
	ExtendedBallotBatchedTypeHash = crypto.Keccak256Hash([]byte(
		"ExtendedBallotBatched(uint256 proposalId,uint8 support,uint256 maxVotingPower,address[][] authorities,string reason,bytes params)"))
)

// DomainSeparator computes the EIP-712 domain separator of a deployment.
func DomainSeparator(p params.Params) common.Hash {
	return hashWords(
		DomainTypeHash.Bytes(),
		crypto.Keccak256([]byte(params.DomainName)),
		uintWord(new(big.Int).SetUint64(p.ChainID)),
		addressWord(p.Alligator),
	)
}

// BallotHash is the struct hash of a Ballot.
func BallotHash(b inter.Ballot) common.Hash {
	return hashWords(
		BallotTypeHash.Bytes(),
		uintWord(b.ProposalID),
		uintWord(new(big.Int).SetUint64(uint64(b.Support))),
		authorityHash(b.Authority).Bytes(),
	)
}

// ExtendedBallotHash is the struct hash of an ExtendedBallot.
func ExtendedBallotHash(b inter.ExtendedBallot) common.Hash {
	return hashWords(
		ExtendedBallotTypeHash.Bytes(),
		uintWord(b.ProposalID),
		uintWord(new(big.Int).SetUint64(uint64(b.Support))),
		authorityHash(b.Authority).Bytes(),
		crypto.Keccak256([]byte(b.Reason)),
		crypto.Keccak256(b.Params),
	)
}

// ExtendedBallotBatchedHash is the struct hash of an ExtendedBallotBatched.
func ExtendedBallotBatchedHash(b inter.ExtendedBallotBatched) common.Hash {
	inner := make([][]byte, len(b.Authorities))
	for i, authority := range b.Authorities {
		inner[i] = authorityHash(authority).Bytes()
	}
	return hashWords(
		ExtendedBallotBatchedTypeHash.Bytes(),
		uintWord(b.ProposalID),
		uintWord(new(big.Int).SetUint64(uint64(b.Support))),
		uintWord(b.MaxVotingPower),
		crypto.Keccak256(inner...),
		crypto.Keccak256([]byte(b.Reason)),
		crypto.Keccak256(b.Params),
	)
}

// TypedDataHash combines a domain separator and a struct hash into the
// digest that is actually signed.
func TypedDataHash(domainSeparator, structHash common.Hash) common.Hash {
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, domainSeparator.Bytes(), structHash.Bytes())
}

func authorityHash(authority inter.AuthorityChain) common.Hash {
	words := make([][]byte, len(authority))
	for i, a := range authority {
		words[i] = addressWord(a)
	}
	return crypto.Keccak256Hash(words...)
}

func hashWords(words ...[]byte) common.Hash {
	return crypto.Keccak256Hash(words...)
}

// uintWord encodes a uint256 as a 32-byte big-endian word. nil encodes as zero.
func uintWord(v *big.Int) []byte {
	if v == nil {
		return make([]byte, 32)
	}
	return math.U256Bytes(new(big.Int).Set(v))
}

func addressWord(a common.Address) []byte {
	return common.LeftPadBytes(a.Bytes(), 32)
}
