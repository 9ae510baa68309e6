package stacks

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// c32 is the Crockford-style base32 alphabet Stacks addresses use.
const c32Alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// Address version bytes for single-signature accounts.
const (
	AddressVersionMainnet = 22 // "SP" prefix
	AddressVersionTestnet = 26 // "ST" prefix
)

var c32Lookup = func() [128]int8 {
	var tbl [128]int8
	for i := range tbl {
		tbl[i] = -1
	}
	for i, ch := range c32Alphabet {
		tbl[ch] = int8(i)
	}
	// Crockford aliases.
	tbl['O'] = 0
	tbl['L'] = 1
	tbl['I'] = 1
	return tbl
}()

func c32Checksum(version byte, data []byte) []byte {
	buf := append([]byte{version}, data...)
	first := sha256.Sum256(buf)
	second := sha256.Sum256(first[:])
	return second[:4]
}

func c32Encode(data []byte) string {
	// Treat the input as a big-endian bit string, 5 bits per character.
	var sb strings.Builder
	var carry, carryBits uint
	for i := len(data) - 1; i >= 0; i-- {
		carry |= uint(data[i]) << carryBits
		carryBits += 8
		for carryBits >= 5 {
			sb.WriteByte(c32Alphabet[carry&0x1f])
			carry >>= 5
			carryBits -= 5
		}
	}
	if carryBits > 0 {
		sb.WriteByte(c32Alphabet[carry&0x1f])
	}
	out := []byte(sb.String())
	// Trim redundant leading zeros, then restore one character per leading
	// zero byte of the input.
	for len(out) > 0 && out[len(out)-1] == '0' {
		out = out[:len(out)-1]
	}
	for _, b := range data {
		if b != 0 {
			break
		}
		out = append(out, '0')
	}
	// Characters were produced least-significant first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}

func c32Decode(s string, size int) ([]byte, error) {
	out := make([]byte, size)
	var carry, carryBits uint
	pos := size - 1
	for i := len(s) - 1; i >= 0; i-- {
		ch := s[i]
		if ch >= 128 || c32Lookup[ch] < 0 {
			return nil, fmt.Errorf("invalid c32 character %q", ch)
		}
		carry |= uint(c32Lookup[ch]) << carryBits
		carryBits += 5
		for carryBits >= 8 {
			if pos < 0 {
				return nil, fmt.Errorf("c32 string too long for %d bytes", size)
			}
			out[pos] = byte(carry & 0xff)
			carry >>= 8
			carryBits -= 8
			pos--
		}
	}
	if carry != 0 {
		if pos < 0 {
			return nil, fmt.Errorf("c32 string too long for %d bytes", size)
		}
		out[pos] = byte(carry)
	}
	return out, nil
}

// EncodeAddress renders a version byte and hash160 as a Stacks c32check
// address string ("ST..." on testnet).
func EncodeAddress(version byte, hash160 []byte) string {
	checksum := c32Checksum(version, hash160)
	payload := append(append([]byte{}, hash160...), checksum...)
	return "S" + string(c32Alphabet[version]) + c32Encode(payload)
}

// DecodeAddress parses a c32check address back into its version byte and
// hash160, rejecting bad checksums.
func DecodeAddress(addr string) (byte, []byte, error) {
	if len(addr) < 7 || addr[0] != 'S' {
		return 0, nil, fmt.Errorf("malformed address %q", addr)
	}
	ver := int8(-1)
	if addr[1] < 128 {
		ver = c32Lookup[addr[1]]
	}
	if ver < 0 {
		return 0, nil, fmt.Errorf("invalid address version character %q", addr[1])
	}
	payload, err := c32Decode(addr[2:], 24)
	if err != nil {
		return 0, nil, fmt.Errorf("decode address %q: %w", addr, err)
	}
	hash160, checksum := payload[:20], payload[20:]
	want := c32Checksum(byte(ver), hash160)
	for i := range want {
		if checksum[i] != want[i] {
			return 0, nil, fmt.Errorf("address %q checksum mismatch", addr)
		}
	}
	return byte(ver), hash160, nil
}
