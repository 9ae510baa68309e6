package stacks

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/ripemd160"
)

// Signer holds the service operator key. Stacks spending conditions sign with
// recoverable secp256k1 ECDSA, the same curve go-ethereum's crypto package
// implements.
type Signer struct {
	key     *ecdsa.PrivateKey
	hash160 [20]byte
	network byte
}

// NewSigner parses a hex private key. Keys exported by Stacks wallets carry a
// trailing "01" compression marker; it is stripped before parsing.
func NewSigner(hexKey string, network byte) (*Signer, error) {
	hexKey = strings.TrimPrefix(hexKey, "0x")
	if len(hexKey) == 66 && strings.HasSuffix(hexKey, "01") {
		hexKey = hexKey[:64]
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse operator key: %w", err)
	}

	s := &Signer{key: key, network: network}
	copy(s.hash160[:], hash160(crypto.CompressPubkey(&key.PublicKey)))
	return s, nil
}

// Address renders the operator address for the signer's network.
func (s *Signer) Address() string {
	version := byte(AddressVersionTestnet)
	if s.network == VersionMainnet {
		version = AddressVersionMainnet
	}
	return EncodeAddress(version, s.hash160[:])
}

// Hash160 is the signer fingerprint carried in spending conditions.
func (s *Signer) Hash160() [20]byte { return s.hash160 }

// SignTransaction fills in the transaction's spending-condition signature.
// The caller must have set nonce and fee before signing.
func (s *Signer) SignTransaction(tx *Transaction) error {
	if tx.Auth.Signer != s.hash160 {
		return fmt.Errorf("transaction signer does not match operator key")
	}
	presign := tx.sighashPresign()
	sig, err := crypto.Sign(presign, s.key)
	if err != nil {
		return fmt.Errorf("sign transaction: %w", err)
	}
	// go-ethereum emits r||s||recid; the wire format wants recid first.
	tx.Auth.Signature[0] = sig[64]
	copy(tx.Auth.Signature[1:], sig[:64])
	tx.Auth.KeyEncoding = keyEncodingCompressed
	tx.raw = nil
	return nil
}

func hash160(b []byte) []byte {
	sha := sha256.Sum256(b)
	rmd := ripemd160.New()
	rmd.Write(sha[:])
	return rmd.Sum(nil)
}
