package sigverify

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rony4d/go-alligator/inter"
	"github.com/rony4d/go-alligator/params"
)

// SignatureLength is the length of an [R ‖ S ‖ V] signature.
const SignatureLength = crypto.SignatureLength

// Verifier recovers ballot signers for one deployment.
type Verifier struct {
	domain common.Hash
}

// NewVerifier binds a verifier to the EIP-712 domain of p.
func NewVerifier(p params.Params) *Verifier {
	return &Verifier{domain: DomainSeparator(p)}
}

// DomainSeparator returns the domain separator the verifier is bound to.
func (v *Verifier) DomainSeparator() common.Hash {
	return v.domain
}

func (v *Verifier) BallotDigest(b inter.Ballot) common.Hash {
	return TypedDataHash(v.domain, BallotHash(b))
}

func (v *Verifier) ExtendedBallotDigest(b inter.ExtendedBallot) common.Hash {
	return TypedDataHash(v.domain, ExtendedBallotHash(b))
}

func (v *Verifier) BatchedDigest(b inter.ExtendedBallotBatched) common.Hash {
	return TypedDataHash(v.domain, ExtendedBallotBatchedHash(b))
}

// RecoverBallot returns the signer of a Ballot.
func (v *Verifier) RecoverBallot(b inter.Ballot, sig []byte) (common.Address, error) {
	return Recover(v.BallotDigest(b), sig)
}

// RecoverExtendedBallot returns the signer of an ExtendedBallot.
func (v *Verifier) RecoverExtendedBallot(b inter.ExtendedBallot, sig []byte) (common.Address, error) {
	return Recover(v.ExtendedBallotDigest(b), sig)
}

// RecoverBatched returns the signer of an ExtendedBallotBatched.
func (v *Verifier) RecoverBatched(b inter.ExtendedBallotBatched, sig []byte) (common.Address, error) {
	return Recover(v.BatchedDigest(b), sig)
}

// Recover returns the address that produced sig over digest. Both the
// 27/28 and the 0/1 recovery id conventions are accepted. High-s signatures,
// malformed input and a zero recovered address are rejected.
func Recover(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", inter.ErrInvalidSignature, len(sig))
	}
	normalized := common.CopyBytes(sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	r := new(big.Int).SetBytes(normalized[:32])
	s := new(big.Int).SetBytes(normalized[32:64])
	if !crypto.ValidateSignatureValues(normalized[64], r, s, true) {
		return common.Address{}, fmt.Errorf("%w: bad signature values", inter.ErrInvalidSignature)
	}
	pub, err := crypto.SigToPub(digest.Bytes(), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", inter.ErrInvalidSignature, err)
	}
	signer := crypto.PubkeyToAddress(*pub)
	if signer == (common.Address{}) {
		return common.Address{}, inter.ErrInvalidSignature
	}
	return signer, nil
}

// Sign produces an [R ‖ S ‖ V] signature over digest with V in {27, 28}.
func Sign(digest common.Hash, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}
