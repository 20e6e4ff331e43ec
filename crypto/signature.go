package crypto

import (
	"encoding/hex"
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Sign hashes data with SHA3-256 and signs the digest with secp256k1 ECDSA
// using a deterministic nonce (RFC 6979, as implemented by the underlying
// secp256k1 library). The returned hex string is 65 bytes: R (32) || S (32)
// || recovery id (1, "00" or "01").
func Sign(priv PrivateKey, data []byte) string {
	key, err := ethcrypto.ToECDSA(priv)
	if err != nil {
		return ""
	}
	digest := HashBytes(data)
	sig, err := ethcrypto.Sign(digest, key)
	if err != nil {
		return ""
	}
	return hex.EncodeToString(sig)
}

// Verify checks a hex-encoded signature against data using the public key.
func Verify(pub PublicKey, data []byte, sigHex string) error {
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return fmt.Errorf("invalid signature hex: %w", err)
	}
	if len(sig) != 65 {
		return fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}
	digest := HashBytes(data)
	if !ethcrypto.VerifySignature([]byte(pub), digest, sig[:64]) {
		return errors.New("signature verification failed")
	}
	return nil
}
