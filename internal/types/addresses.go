// Package types provides well-known program addresses used during
// bytecode verification.
package types

// Loader program addresses.
// A program's on-chain representation depends on which loader owns it; only
// programs owned by the upgradeable loader split into Program/ProgramData
// account pairs.
var (
	// BPFLoaderAddr is the legacy BPF Loader address.
	BPFLoaderAddr = MustPubkeyFromBase58("BPFLoader1111111111111111111111111111111111")

	// BPFLoader2Addr is the BPF Loader 2 address.
	BPFLoader2Addr = MustPubkeyFromBase58("BPFLoader2111111111111111111111111111111111")

	// BPFLoaderUpgradeableAddr is the BPF Loader Upgradeable address.
	BPFLoaderUpgradeableAddr = MustPubkeyFromBase58("BPFLoaderUpgradeab1e11111111111111111111111")

	// LoaderV4Addr is the Loader V4 address.
	LoaderV4Addr = MustPubkeyFromBase58("LoaderV411111111111111111111111111111111111")

	// NativeLoaderAddr is the Native Loader address.
	NativeLoaderAddr = MustPubkeyFromBase58("NativeLoader1111111111111111111111111111111")

	// SystemProgramAddr is the System Program address.
	SystemProgramAddr = MustPubkeyFromBase58("11111111111111111111111111111111")
)

// MustPubkeyFromBase58 parses a base58 pubkey or panics.
// Only use for compile-time constants.
func MustPubkeyFromBase58(s string) Pubkey {
	p, err := PubkeyFromBase58(s)
	if err != nil {
		panic("invalid pubkey constant " + s + ": " + err.Error())
	}
	return p
}

// IsLoader returns true if the pubkey is one of the BPF loaders.
func IsLoader(p Pubkey) bool {
	switch p {
	case BPFLoaderAddr,
		BPFLoader2Addr,
		BPFLoaderUpgradeableAddr,
		LoaderV4Addr,
		NativeLoaderAddr:
		return true
	default:
		return false
	}
}
