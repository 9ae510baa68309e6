package stacks

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"
)

// Clarity value type prefixes, per the Stacks wire format. Only the kinds the
// DenGrow contracts exchange are implemented.
const (
	clarityInt          byte = 0x00
	clarityUInt         byte = 0x01
	clarityBuffer       byte = 0x02
	clarityBoolTrue     byte = 0x03
	clarityBoolFalse    byte = 0x04
	clarityPrincipal    byte = 0x05
	clarityContract     byte = 0x06
	clarityResponseOK   byte = 0x07
	clarityResponseErr  byte = 0x08
	clarityOptionalNone byte = 0x09
	clarityOptionalSome byte = 0x0a
	clarityList         byte = 0x0b
	clarityTuple        byte = 0x0c
	clarityStringASCII  byte = 0x0d
	clarityStringUTF8   byte = 0x0e
)

// ClarityValue is a decoded Clarity value. Exactly one field group is set,
// according to Kind.
type ClarityValue struct {
	Kind byte

	UInt      uint64
	Int       *big.Int
	Bool      bool
	Principal string
	Buffer    []byte
	Str       string
	Inner     *ClarityValue            // optional-some, response ok/err
	List      []ClarityValue           //
	Tuple     map[string]*ClarityValue //
}

// EncodeUint serializes a Clarity uint, the only argument kind the DenGrow
// read-only and mutation calls take.
func EncodeUint(v uint64) []byte {
	out := make([]byte, 17)
	out[0] = clarityUInt
	binary.BigEndian.PutUint64(out[9:], v)
	return out
}

// DecodeClarity parses a single Clarity value from buf, returning the number
// of bytes consumed.
func DecodeClarity(buf []byte) (*ClarityValue, int, error) {
	if len(buf) == 0 {
		return nil, 0, fmt.Errorf("empty clarity value")
	}
	kind := buf[0]
	body := buf[1:]
	cv := &ClarityValue{Kind: kind}

	switch kind {
	case clarityInt, clarityUInt:
		if len(body) < 16 {
			return nil, 0, fmt.Errorf("truncated clarity integer")
		}
		if kind == clarityUInt {
			for _, b := range body[:8] {
				if b != 0 {
					return nil, 0, fmt.Errorf("clarity uint exceeds 64 bits")
				}
			}
			cv.UInt = binary.BigEndian.Uint64(body[8:16])
		} else {
			cv.Int = new(big.Int).SetBytes(body[:16])
		}
		return cv, 17, nil

	case clarityBoolTrue, clarityBoolFalse:
		cv.Bool = kind == clarityBoolTrue
		return cv, 1, nil

	case clarityPrincipal:
		if len(body) < 21 {
			return nil, 0, fmt.Errorf("truncated principal")
		}
		if body[0] >= 32 {
			return nil, 0, fmt.Errorf("invalid principal version 0x%02x", body[0])
		}
		cv.Principal = EncodeAddress(body[0], body[1:21])
		return cv, 22, nil

	case clarityContract:
		if len(body) < 22 {
			return nil, 0, fmt.Errorf("truncated contract principal")
		}
		if body[0] >= 32 {
			return nil, 0, fmt.Errorf("invalid principal version 0x%02x", body[0])
		}
		nameLen := int(body[21])
		if len(body) < 22+nameLen {
			return nil, 0, fmt.Errorf("truncated contract name")
		}
		cv.Principal = EncodeAddress(body[0], body[1:21]) + "." + string(body[22:22+nameLen])
		return cv, 1 + 22 + nameLen, nil

	case clarityOptionalNone:
		return cv, 1, nil

	case clarityOptionalSome, clarityResponseOK, clarityResponseErr:
		inner, n, err := DecodeClarity(body)
		if err != nil {
			return nil, 0, err
		}
		cv.Inner = inner
		return cv, 1 + n, nil

	case clarityBuffer, clarityStringASCII, clarityStringUTF8:
		if len(body) < 4 {
			return nil, 0, fmt.Errorf("truncated clarity length prefix")
		}
		n := int(binary.BigEndian.Uint32(body[:4]))
		if len(body) < 4+n {
			return nil, 0, fmt.Errorf("truncated clarity payload")
		}
		if kind == clarityBuffer {
			cv.Buffer = append([]byte{}, body[4:4+n]...)
		} else {
			cv.Str = string(body[4 : 4+n])
		}
		return cv, 5 + n, nil

	case clarityList:
		if len(body) < 4 {
			return nil, 0, fmt.Errorf("truncated list length")
		}
		count := int(binary.BigEndian.Uint32(body[:4]))
		consumed := 5
		rest := body[4:]
		for i := 0; i < count; i++ {
			item, n, err := DecodeClarity(rest)
			if err != nil {
				return nil, 0, err
			}
			cv.List = append(cv.List, *item)
			rest = rest[n:]
			consumed += n
		}
		return cv, consumed, nil

	case clarityTuple:
		if len(body) < 4 {
			return nil, 0, fmt.Errorf("truncated tuple length")
		}
		count := int(binary.BigEndian.Uint32(body[:4]))
		cv.Tuple = make(map[string]*ClarityValue, count)
		consumed := 5
		rest := body[4:]
		for i := 0; i < count; i++ {
			if len(rest) < 1 {
				return nil, 0, fmt.Errorf("truncated tuple key")
			}
			keyLen := int(rest[0])
			if len(rest) < 1+keyLen {
				return nil, 0, fmt.Errorf("truncated tuple key name")
			}
			key := string(rest[1 : 1+keyLen])
			rest = rest[1+keyLen:]
			consumed += 1 + keyLen
			val, n, err := DecodeClarity(rest)
			if err != nil {
				return nil, 0, err
			}
			cv.Tuple[key] = val
			rest = rest[n:]
			consumed += n
		}
		return cv, consumed, nil

	default:
		return nil, 0, fmt.Errorf("unsupported clarity type 0x%02x", kind)
	}
}

// unwrap strips optional-some and response-ok wrappers so callers can read
// the underlying value regardless of how the contract returns it.
func (cv *ClarityValue) unwrap() *ClarityValue {
	v := cv
	for v != nil && (v.Kind == clarityOptionalSome || v.Kind == clarityResponseOK) {
		v = v.Inner
	}
	return v
}

// IsNone reports whether the value is (none), after unwrapping response-ok.
func (cv *ClarityValue) IsNone() bool {
	v := cv
	if v.Kind == clarityResponseOK {
		v = v.Inner
	}
	return v != nil && v.Kind == clarityOptionalNone
}

// TupleUint reads a uint field from a (possibly wrapped) tuple value.
func (cv *ClarityValue) TupleUint(key string) (uint64, error) {
	v := cv.unwrap()
	if v == nil || v.Tuple == nil {
		return 0, fmt.Errorf("clarity value is not a tuple")
	}
	field, ok := v.Tuple[key]
	if !ok {
		return 0, fmt.Errorf("tuple has no field %q", key)
	}
	if field.Kind != clarityUInt {
		return 0, fmt.Errorf("tuple field %q is not a uint", key)
	}
	return field.UInt, nil
}

// TuplePrincipal reads a principal field from a (possibly wrapped) tuple.
func (cv *ClarityValue) TuplePrincipal(key string) (string, error) {
	v := cv.unwrap()
	if v == nil || v.Tuple == nil {
		return "", fmt.Errorf("clarity value is not a tuple")
	}
	field, ok := v.Tuple[key]
	if !ok {
		return "", fmt.Errorf("tuple has no field %q", key)
	}
	if field.Kind != clarityPrincipal && field.Kind != clarityContract {
		return "", fmt.Errorf("tuple field %q is not a principal", key)
	}
	return field.Principal, nil
}

// AsBool reads a boolean, unwrapping response-ok if present.
func (cv *ClarityValue) AsBool() (bool, error) {
	v := cv.unwrap()
	if v == nil || (v.Kind != clarityBoolTrue && v.Kind != clarityBoolFalse) {
		return false, fmt.Errorf("clarity value is not a bool")
	}
	return v.Bool, nil
}

// AsUint reads a uint, unwrapping response-ok if present.
func (cv *ClarityValue) AsUint() (uint64, error) {
	v := cv.unwrap()
	if v == nil || v.Kind != clarityUInt {
		return 0, fmt.Errorf("clarity value is not a uint")
	}
	return v.UInt, nil
}

// encodePrincipal writes a standard principal (version + hash160) for
// contract-call payloads.
func encodePrincipal(version byte, hash160 []byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte(version)
	buf.Write(hash160)
	return buf.Bytes()
}
