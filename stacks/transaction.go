package stacks

import (
	"bytes"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Wire constants from the Stacks transaction format. The codec below is
// structural: enough to reject garbage, address the payload, and compute the
// txid. It is not a general transaction library.
const (
	VersionMainnet byte = 0x00
	VersionTestnet byte = 0x80

	chainIDMainnet uint32 = 0x00000001
	chainIDTestnet uint32 = 0x80000000

	authTypeStandard byte = 0x04

	hashModeP2PKH byte = 0x00

	anchorModeAny byte = 0x03

	postConditionModeDeny byte = 0x02

	payloadTokenTransfer byte = 0x00
	payloadContractCall  byte = 0x02

	keyEncodingCompressed byte = 0x00

	recoverableSigLen = 65
)

// SpendingCondition is the single-signature authorization of a transaction.
type SpendingCondition struct {
	HashMode    byte
	Signer      [20]byte
	Nonce       uint64
	Fee         uint64
	KeyEncoding byte
	Signature   [recoverableSigLen]byte
}

// TokenTransfer is a native STX transfer payload.
type TokenTransfer struct {
	Recipient string
	Amount    uint64
	Memo      [34]byte
}

// ContractCall is a contract-call payload.
type ContractCall struct {
	ContractVersion byte
	ContractHash    [20]byte
	ContractName    string
	FunctionName    string
	// Args holds the raw Clarity-encoded arguments.
	Args [][]byte
}

// Transaction is a structurally decoded signed transaction.
type Transaction struct {
	Version           byte
	ChainID           uint32
	Auth              SpendingCondition
	AnchorMode        byte
	PostConditionMode byte

	// Exactly one of the payload fields is set.
	Transfer *TokenTransfer
	Call     *ContractCall

	raw []byte
}

// TxID returns the transaction identifier: sha512/256 over the wire bytes.
func (t *Transaction) TxID() string {
	raw := t.raw
	if raw == nil {
		raw = t.serialize(false)
	}
	sum := sha512.Sum512_256(raw)
	return hex.EncodeToString(sum[:])
}

// SenderAddress renders the authorizing signer as an address on the
// transaction's network.
func (t *Transaction) SenderAddress() string {
	version := byte(AddressVersionTestnet)
	if t.Version == VersionMainnet {
		version = AddressVersionMainnet
	}
	return EncodeAddress(version, t.Auth.Signer[:])
}

type txReader struct {
	buf []byte
	off int
}

func (r *txReader) take(n int) ([]byte, error) {
	if r.off+n > len(r.buf) {
		return nil, fmt.Errorf("truncated transaction at offset %d", r.off)
	}
	out := r.buf[r.off : r.off+n]
	r.off += n
	return out, nil
}

func (r *txReader) byte() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *txReader) uint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *txReader) uint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *txReader) shortString() (string, error) {
	n, err := r.byte()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeTransaction structurally parses a signed transaction. Any framing
// violation, unsupported mode, or trailing garbage is an error; callers that
// must fail closed turn that error into an invalid-payment result.
func DecodeTransaction(raw []byte) (*Transaction, error) {
	r := &txReader{buf: raw}
	tx := &Transaction{raw: append([]byte{}, raw...)}

	var err error
	if tx.Version, err = r.byte(); err != nil {
		return nil, err
	}
	if tx.Version != VersionMainnet && tx.Version != VersionTestnet {
		return nil, fmt.Errorf("unknown transaction version 0x%02x", tx.Version)
	}
	if tx.ChainID, err = r.uint32(); err != nil {
		return nil, err
	}
	if tx.ChainID != chainIDMainnet && tx.ChainID != chainIDTestnet {
		return nil, fmt.Errorf("unknown chain id 0x%08x", tx.ChainID)
	}

	authType, err := r.byte()
	if err != nil {
		return nil, err
	}
	if authType != authTypeStandard {
		return nil, fmt.Errorf("unsupported authorization type 0x%02x", authType)
	}
	if err := decodeSpendingCondition(r, &tx.Auth); err != nil {
		return nil, err
	}

	if tx.AnchorMode, err = r.byte(); err != nil {
		return nil, err
	}
	if tx.AnchorMode == 0 || tx.AnchorMode > anchorModeAny {
		return nil, fmt.Errorf("invalid anchor mode 0x%02x", tx.AnchorMode)
	}
	if tx.PostConditionMode, err = r.byte(); err != nil {
		return nil, err
	}
	pcCount, err := r.uint32()
	if err != nil {
		return nil, err
	}
	if pcCount != 0 {
		return nil, fmt.Errorf("post conditions not supported (%d present)", pcCount)
	}

	payloadType, err := r.byte()
	if err != nil {
		return nil, err
	}
	switch payloadType {
	case payloadTokenTransfer:
		tt := &TokenTransfer{}
		principal, n, err := DecodeClarity(r.buf[r.off:])
		if err != nil {
			return nil, fmt.Errorf("decode transfer recipient: %w", err)
		}
		if principal.Kind != clarityPrincipal && principal.Kind != clarityContract {
			return nil, fmt.Errorf("transfer recipient is not a principal")
		}
		tt.Recipient = principal.Principal
		r.off += n
		if tt.Amount, err = r.uint64(); err != nil {
			return nil, err
		}
		memo, err := r.take(len(tt.Memo))
		if err != nil {
			return nil, err
		}
		copy(tt.Memo[:], memo)
		tx.Transfer = tt

	case payloadContractCall:
		cc := &ContractCall{}
		ver, err := r.byte()
		if err != nil {
			return nil, err
		}
		cc.ContractVersion = ver
		hash, err := r.take(20)
		if err != nil {
			return nil, err
		}
		copy(cc.ContractHash[:], hash)
		if cc.ContractName, err = r.shortString(); err != nil {
			return nil, err
		}
		if cc.FunctionName, err = r.shortString(); err != nil {
			return nil, err
		}
		argc, err := r.uint32()
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < argc; i++ {
			start := r.off
			_, n, err := DecodeClarity(r.buf[r.off:])
			if err != nil {
				return nil, fmt.Errorf("decode argument %d: %w", i, err)
			}
			r.off += n
			cc.Args = append(cc.Args, append([]byte{}, r.buf[start:r.off]...))
		}
		tx.Call = cc

	default:
		return nil, fmt.Errorf("unsupported payload type 0x%02x", payloadType)
	}

	if r.off != len(r.buf) {
		return nil, fmt.Errorf("%d trailing bytes after payload", len(r.buf)-r.off)
	}
	return tx, nil
}

func decodeSpendingCondition(r *txReader, sc *SpendingCondition) error {
	var err error
	if sc.HashMode, err = r.byte(); err != nil {
		return err
	}
	if sc.HashMode != hashModeP2PKH {
		return fmt.Errorf("unsupported hash mode 0x%02x", sc.HashMode)
	}
	signer, err := r.take(20)
	if err != nil {
		return err
	}
	copy(sc.Signer[:], signer)
	if sc.Nonce, err = r.uint64(); err != nil {
		return err
	}
	if sc.Fee, err = r.uint64(); err != nil {
		return err
	}
	if sc.KeyEncoding, err = r.byte(); err != nil {
		return err
	}
	if sc.KeyEncoding > 0x01 {
		return fmt.Errorf("invalid key encoding 0x%02x", sc.KeyEncoding)
	}
	sig, err := r.take(recoverableSigLen)
	if err != nil {
		return err
	}
	copy(sc.Signature[:], sig)
	return nil
}

// serialize writes the transaction in wire order. With clearAuth the
// spending condition is zeroed, which is the form the sighash is computed
// over.
func (t *Transaction) serialize(clearAuth bool) []byte {
	var buf bytes.Buffer
	buf.WriteByte(t.Version)
	_ = binary.Write(&buf, binary.BigEndian, t.ChainID)
	buf.WriteByte(authTypeStandard)

	buf.WriteByte(t.Auth.HashMode)
	buf.Write(t.Auth.Signer[:])
	if clearAuth {
		// Cleared condition: zero nonce, fee, key encoding, and signature.
		buf.Write(make([]byte, 8+8))
		buf.WriteByte(keyEncodingCompressed)
		buf.Write(make([]byte, recoverableSigLen))
	} else {
		_ = binary.Write(&buf, binary.BigEndian, t.Auth.Nonce)
		_ = binary.Write(&buf, binary.BigEndian, t.Auth.Fee)
		buf.WriteByte(t.Auth.KeyEncoding)
		buf.Write(t.Auth.Signature[:])
	}

	buf.WriteByte(t.AnchorMode)
	buf.WriteByte(t.PostConditionMode)
	_ = binary.Write(&buf, binary.BigEndian, uint32(0)) // post conditions

	switch {
	case t.Transfer != nil:
		buf.WriteByte(payloadTokenTransfer)
		_, hash160, _ := DecodeAddress(t.Transfer.Recipient)
		buf.WriteByte(clarityPrincipal)
		buf.Write(encodePrincipal(principalVersionFor(t.Version), hash160))
		_ = binary.Write(&buf, binary.BigEndian, t.Transfer.Amount)
		buf.Write(t.Transfer.Memo[:])
	case t.Call != nil:
		buf.WriteByte(payloadContractCall)
		buf.WriteByte(t.Call.ContractVersion)
		buf.Write(t.Call.ContractHash[:])
		buf.WriteByte(byte(len(t.Call.ContractName)))
		buf.WriteString(t.Call.ContractName)
		buf.WriteByte(byte(len(t.Call.FunctionName)))
		buf.WriteString(t.Call.FunctionName)
		_ = binary.Write(&buf, binary.BigEndian, uint32(len(t.Call.Args)))
		for _, arg := range t.Call.Args {
			buf.Write(arg)
		}
	}
	return buf.Bytes()
}

func principalVersionFor(txVersion byte) byte {
	if txVersion == VersionMainnet {
		return AddressVersionMainnet
	}
	return AddressVersionTestnet
}

// sighashPresign computes the hash the spending key signs: the txid of the
// auth-cleared transaction, chained with the auth flag, fee, and nonce.
func (t *Transaction) sighashPresign() []byte {
	cleared := t.serialize(true)
	initial := sha512.Sum512_256(cleared)

	var buf bytes.Buffer
	buf.Write(initial[:])
	buf.WriteByte(authTypeStandard)
	_ = binary.Write(&buf, binary.BigEndian, t.Auth.Fee)
	_ = binary.Write(&buf, binary.BigEndian, t.Auth.Nonce)
	presign := sha512.Sum512_256(buf.Bytes())
	return presign[:]
}

// NewWaterCall builds the unsigned water(uint token-id) contract call the
// service submits with its operator key.
func NewWaterCall(network byte, contractAddr, contractName string, tokenID uint64, nonce, fee uint64, signerHash160 [20]byte) (*Transaction, error) {
	_, hash160, err := DecodeAddress(contractAddr)
	if err != nil {
		return nil, fmt.Errorf("contract address: %w", err)
	}

	chainID := chainIDTestnet
	if network == VersionMainnet {
		chainID = chainIDMainnet
	}

	cc := &ContractCall{
		ContractVersion: principalVersionFor(network),
		ContractName:    contractName,
		FunctionName:    "water",
		Args:            [][]byte{EncodeUint(tokenID)},
	}
	copy(cc.ContractHash[:], hash160)

	return &Transaction{
		Version: network,
		ChainID: chainID,
		Auth: SpendingCondition{
			HashMode:    hashModeP2PKH,
			Signer:      signerHash160,
			Nonce:       nonce,
			Fee:         fee,
			KeyEncoding: keyEncodingCompressed,
		},
		AnchorMode:        anchorModeAny,
		PostConditionMode: postConditionModeDeny,
		Call:              cc,
	}, nil
}

// Bytes returns the signed wire encoding. Decoded transactions hand back the
// exact bytes they were parsed from, so what settlement broadcasts is what
// the client signed; serialization is only for transactions built locally.
func (t *Transaction) Bytes() []byte {
	if t.raw != nil {
		return t.raw
	}
	return t.serialize(false)
}
