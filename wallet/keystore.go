// Package wallet provides key management and transaction signing helpers.
package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tolelom/llfchain/crypto"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/sha3"
)

const keystoreFilenameConst = "llfchain-keystore"
const pbkdfIterations = 210_000

type keystoreFile struct {
	PubKey     string `json:"pub_key"`
	Salt       string `json:"salt"`
	CipherText string `json:"cipher_text"`
}

// KeyFileName derives the keystore's on-disk name from the seed: this chain
// indexes key files by HMAC-SHA3-256(seed, const) rather than a user-chosen
// filename.
func KeyFileName(seed string) string {
	mac := hmac.New(sha3.New256, []byte(seed))
	mac.Write([]byte(keystoreFilenameConst))
	return hex.EncodeToString(mac.Sum(nil))
}

// SaveKey encrypts priv under seed and writes it into dir, named by
// KeyFileName(seed). Encryption is AES-256-CBC with a zero IV; the key is
// derived from seed via PBKDF2-SHA3-256 (a hardening layer over the chain's
// baseline key = SHA3-256(seed)).
func SaveKey(dir, seed string, priv crypto.PrivateKey) error {
	salt := saltFor(seed)
	key := deriveKey(seed, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}

	plain := pkcs7Pad(priv, aes.BlockSize)
	cipherText := make([]byte, len(plain))
	var zeroIV [aes.BlockSize]byte
	cbc := cipher.NewCBCEncrypter(block, zeroIV[:])
	cbc.CryptBlocks(cipherText, plain)

	ks := keystoreFile{
		PubKey:     priv.Public().Hex(),
		Salt:       hex.EncodeToString(salt),
		CipherText: hex.EncodeToString(cipherText),
	}
	data, err := json.MarshalIndent(ks, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(dir, KeyFileName(seed))
	return os.WriteFile(path, data, 0600)
}

// LoadKey decrypts the keystore for seed out of dir.
func LoadKey(dir, seed string) (crypto.PrivateKey, error) {
	path := filepath.Join(dir, KeyFileName(seed))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ks keystoreFile
	if err := json.Unmarshal(data, &ks); err != nil {
		return nil, err
	}
	salt, err := hex.DecodeString(ks.Salt)
	if err != nil {
		return nil, err
	}
	cipherText, err := hex.DecodeString(ks.CipherText)
	if err != nil {
		return nil, err
	}
	if len(cipherText)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("keystore: cipher text is not block-aligned")
	}

	key := deriveKey(seed, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	var zeroIV [aes.BlockSize]byte
	cbc := cipher.NewCBCDecrypter(block, zeroIV[:])
	plain := make([]byte, len(cipherText))
	cbc.CryptBlocks(plain, cipherText)

	priv, err := pkcs7Unpad(plain)
	if err != nil {
		return nil, errors.New("wrong seed or corrupted keystore")
	}
	return crypto.PrivateKey(priv), nil
}

// saltFor derives a deterministic salt from seed so the same seed always
// maps to the same keystore filename and ciphertext.
func saltFor(seed string) []byte {
	sum := sha3.Sum256([]byte("llfchain-keystore-salt:" + seed))
	return sum[:16]
}

func deriveKey(seed string, salt []byte) []byte {
	return pbkdf2.Key([]byte(seed), salt, pbkdfIterations, 32, sha3.New256)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty plaintext")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return nil, errors.New("invalid padding")
	}
	return data[:len(data)-padLen], nil
}
