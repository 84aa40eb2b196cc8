// Package proxy derives the address of the proxy that holds one owner's
// pooled voting power.
//
// The derivation follows CREATE2:
//
//	address = keccak256(0xff ‖ deployer ‖ salt ‖ keccak256(initCode))[12:]
//
// where deployer is the alligator, salt is the owner left-padded to 32 bytes
// and initCode is the proxy template followed by the abi-encoded governor.
// No lookup table is kept and no creation step is required before an address
// can be referenced: validation works against the derived identity alone.
package proxy

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rony4d/go-alligator/params"
)

var addressArgs abi.Arguments

func init() {
	addressType, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	addressArgs = abi.Arguments{{Type: addressType}}
}

// Deriver computes proxy addresses for a fixed deployment.
type Deriver struct {
	deployer     common.Address
	initCodeHash []byte
}

// NewDeriver precomputes the init code hash for the deployment described by p.
func NewDeriver(p params.Params) *Deriver {
	encoded, err := addressArgs.Pack(p.Governor)
	if err != nil {
		// packing a fixed-size address cannot fail
		panic(err)
	}
	initCode := append(p.ProxyTemplate.Bytes(), encoded...)
	return &Deriver{
		deployer:     p.Alligator,
		initCodeHash: crypto.Keccak256(initCode),
	}
}

// ProxyAddress returns the proxy owned by owner.
func (d *Deriver) ProxyAddress(owner common.Address) common.Address {
	return crypto.CreateAddress2(d.deployer, common.BytesToHash(owner.Bytes()), d.initCodeHash)
}

// InitCodeHash returns the hash of the proxy init code.
func (d *Deriver) InitCodeHash() common.Hash {
	return common.BytesToHash(d.initCodeHash)
}
