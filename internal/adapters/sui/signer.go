package sui

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// ed25519Flag is the Sui signature scheme flag for ed25519 keys.
const ed25519Flag = 0x00

// intentTransactionData is the Sui signing intent for transaction data:
// scope=TransactionData, version=0, app=Sui.
var intentTransactionData = []byte{0, 0, 0}

// Signer holds the keeper's operating identity: an ed25519 keypair and the
// Sui address derived from it.
type Signer struct {
	key     ed25519.PrivateKey
	pub     ed25519.PublicKey
	address string
}

// NewSigner parses a private key given as base64 or hex. Accepts a 32-byte
// seed or a 64-byte expanded key (the first 32 bytes are the seed).
func NewSigner(encoded string) (*Signer, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, fmt.Errorf("sui.NewSigner: empty private key")
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		raw, err = hex.DecodeString(strings.TrimPrefix(encoded, "0x"))
		if err != nil {
			return nil, fmt.Errorf("sui.NewSigner: key is neither base64 nor hex")
		}
	}

	var seed []byte
	switch len(raw) {
	case ed25519.SeedSize:
		seed = raw
	case ed25519.SeedSize + 1:
		// scheme flag byte prepended by some exporters
		seed = raw[1:]
	case ed25519.PrivateKeySize:
		seed = raw[:ed25519.SeedSize]
	default:
		return nil, fmt.Errorf("sui.NewSigner: unexpected key length %d", len(raw))
	}

	key := ed25519.NewKeyFromSeed(seed)
	pub := key.Public().(ed25519.PublicKey)

	// Sui address: blake2b-256 over scheme flag || public key.
	h, err := blake2b.New256(nil)
	if err != nil {
		return nil, fmt.Errorf("sui.NewSigner: blake2b: %w", err)
	}
	h.Write([]byte{ed25519Flag})
	h.Write(pub)
	addr := "0x" + hex.EncodeToString(h.Sum(nil))

	return &Signer{key: key, pub: pub, address: addr}, nil
}

// Address returns the keeper's Sui address.
func (s *Signer) Address() string { return s.address }

// SignTransaction signs BCS transaction bytes under the TransactionData
// intent and returns the serialized signature (flag || sig || pubkey, base64)
// expected by sui_executeTransactionBlock.
func (s *Signer) SignTransaction(txBytes []byte) string {
	msg := make([]byte, 0, len(intentTransactionData)+len(txBytes))
	msg = append(msg, intentTransactionData...)
	msg = append(msg, txBytes...)
	digest := blake2b.Sum256(msg)

	sig := ed25519.Sign(s.key, digest[:])

	serialized := make([]byte, 0, 1+len(sig)+len(s.pub))
	serialized = append(serialized, ed25519Flag)
	serialized = append(serialized, sig...)
	serialized = append(serialized, s.pub...)
	return base64.StdEncoding.EncodeToString(serialized)
}
