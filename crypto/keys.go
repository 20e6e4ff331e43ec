package crypto

import (
	"encoding/hex"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// PrivateKey wraps a secp256k1 private key in SEC1/ASN.1 DER-less raw form
// (32 bytes, big-endian scalar).
type PrivateKey []byte

// PublicKey wraps an uncompressed secp256k1 public key (65 bytes, 0x04 prefix).
type PublicKey []byte

// AddrEOA and AddrContract are the two address-prefix families (§3 Account).
const (
	AddrEOA      = "gBx"
	AddrContract = "gBc"
)

// GenerateKeyPair generates a new secp256k1 key pair.
func GenerateKeyPair() (PrivateKey, PublicKey, error) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, nil, err
	}
	priv := ethcrypto.FromECDSA(key)
	pub := ethcrypto.FromECDSAPub(&key.PublicKey)
	return PrivateKey(priv), PublicKey(pub), nil
}

// Address derives the account address from the public key: SHA3-256 of the
// uncompressed public key, last 40 hex chars, prefixed "gBx" for an
// externally-owned account.
func (pub PublicKey) Address() string {
	return AddrEOA + addressSuffix40(pub)
}

// ContractAddress derives a contract address with the "gBc" prefix from the
// 40-hex suffix of hash(sender || nonce); see execution.Executor.runCreate
// for the actual create-address computation that calls this helper.
func ContractAddress(suffixSource []byte) string {
	return AddrContract + addressSuffix40(suffixSource)
}

func addressSuffix40(data []byte) string {
	full := hex.EncodeToString(HashBytes(data))
	return full[len(full)-40:]
}

// Hex returns the full hex-encoded uncompressed public key.
func (pub PublicKey) Hex() string {
	return hex.EncodeToString(pub)
}

// Hex returns the hex-encoded private key scalar.
func (priv PrivateKey) Hex() string {
	return hex.EncodeToString(priv)
}

// Public derives the secp256k1 public key from the private key.
func (priv PrivateKey) Public() PublicKey {
	key, err := ethcrypto.ToECDSA(priv)
	if err != nil {
		return nil
	}
	return PublicKey(ethcrypto.FromECDSAPub(&key.PublicKey))
}

// PubKeyFromHex decodes a hex-encoded uncompressed public key.
func PubKeyFromHex(s string) (PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid pubkey hex: %w", err)
	}
	if _, err := ethcrypto.UnmarshalPubkey(b); err != nil {
		return nil, fmt.Errorf("invalid secp256k1 pubkey: %w", err)
	}
	return PublicKey(b), nil
}

// PrivKeyFromHex decodes a hex-encoded private key scalar.
func PrivKeyFromHex(s string) (PrivateKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid privkey hex: %w", err)
	}
	if _, err := ethcrypto.ToECDSA(b); err != nil {
		return nil, fmt.Errorf("invalid secp256k1 privkey: %w", err)
	}
	return PrivateKey(b), nil
}
