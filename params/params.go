// Package params defines the deployment parameters of an alligator instance.
//
// This package provides:
//   - Network identification constants (MainNet, TestNet, FakeNet)
//   - The identities the alligator is bound to (its own address, the governor)
//   - The EIP-712 domain name used for vote signatures
//   - The proxy template identity used to derive proxy addresses
//
// The Params type is the central configuration structure every component is
// built from. Changing any identity field changes every derived proxy address
// and invalidates every signature made against the previous domain.

package params

import (
	"encoding/binary"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Network identification constants
const (
	// MainNetworkID is the chain ID of OP Mainnet.
	MainNetworkID uint64 = 10

	// TestNetworkID is the chain ID of OP Sepolia.
	TestNetworkID uint64 = 11155420

	// FakeNetworkID is the chain ID used by local devnets and tests.
	FakeNetworkID uint64 = 31337

	// DomainName is the EIP-712 domain name vote signatures are bound to.
	DomainName = "Alligator"
)

// DefaultProxyTemplate is the identity of the proxy creation code. Every proxy
// address is derived from it, so it must never change for a live deployment.
var DefaultProxyTemplate = crypto.Keccak256Hash([]byte("AlligatorProxy(address governor)"))

// Params bundles the identities an alligator instance is bound to.
type Params struct {
	// Name is a human-readable label for the deployment (e.g., "main").
	Name string

	// ChainID is part of the EIP-712 domain and prevents cross-chain replay
	// of signed ballots.
	ChainID uint64

	// Alligator is the verifying identity of the EIP-712 domain and the
	// deployer identity proxies are derived from.
	Alligator common.Address

	// Governor is the tally system votes are forwarded to. It is also baked
	// into the proxy init code.
	Governor common.Address

	// ProxyTemplate identifies the proxy creation code.
	ProxyTemplate common.Hash
}

// MainNetParams returns the parameters of the OP Mainnet deployment.
func MainNetParams() Params {
	return Params{
		Name:          "main",
		ChainID:       MainNetworkID,
		Alligator:     common.HexToAddress("0x7f08F3095530B67CdF8466B7a923607944136Df0"),
		Governor:      common.HexToAddress("0xcDF27F107725988f2261Ce2256bDfCdE8B382B10"),
		ProxyTemplate: DefaultProxyTemplate,
	}
}

// TestNetParams returns the parameters of an OP Sepolia deployment. There is
// no canonical testnet deployment, so the identities are placeholders and
// must be overridden with --alligator and --governor.
func TestNetParams() Params {
	return Params{
		Name:          "test",
		ChainID:       TestNetworkID,
		Alligator:     TestNetPlaceholder(0xa1),
		Governor:      TestNetPlaceholder(0x90),
		ProxyTemplate: DefaultProxyTemplate,
	}
}

// TestNetPlaceholder builds a synthetic testnet identity: the chain ID in the
// high bytes followed by tag. Addresses of this shape are never deployed.
func TestNetPlaceholder(tag byte) common.Address {
	var addr common.Address
	binary.BigEndian.PutUint64(addr[:8], TestNetworkID)
	addr[common.AddressLength-1] = tag
	return addr
}

// IsTestNetPlaceholder reports whether addr was built by TestNetPlaceholder.
func IsTestNetPlaceholder(addr common.Address) bool {
	return addr == TestNetPlaceholder(addr[common.AddressLength-1])
}

// FakeNetParams returns parameters for local devnets. The identities are
// deterministic so proxy addresses and signatures are reproducible in tests.
func FakeNetParams() Params {
	return Params{
		Name:          "fake",
		ChainID:       FakeNetworkID,
		Alligator:     common.HexToAddress("0x00000000000000000000000000000000a11e6a70"),
		Governor:      common.HexToAddress("0x000000000000000000000000000000006f7e4a01"),
		ProxyTemplate: DefaultProxyTemplate,
	}
}

// ByName resolves a preset by its Name. The second result is false for an
// unknown name.
func ByName(name string) (Params, bool) {
	switch name {
	case "main", "mainnet":
		return MainNetParams(), true
	case "test", "testnet":
		return TestNetParams(), true
	case "fake", "fakenet":
		return FakeNetParams(), true
	}
	return Params{}, false
}

// Copy returns a copy of the params. Params holds only value types, so a
// plain copy is already deep.
func (p Params) Copy() Params {
	return p
}

// String returns a JSON representation for logs and config dumps.
func (p Params) String() string {
	b, _ := json.Marshal(&p)
	return string(b)
}
