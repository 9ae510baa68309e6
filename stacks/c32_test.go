package stacks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const deployerAddress = "ST23SRWT9A0CYMPW4Q32D0D7KT2YY07PQAVJY3NJZ"

func TestDecodeAddressDeployer(t *testing.T) {
	version, hash160, err := DecodeAddress(deployerAddress)
	require.NoError(t, err)
	assert.Equal(t, byte(AddressVersionTestnet), version)
	assert.Len(t, hash160, 20)

	// Re-encoding must reproduce the canonical form.
	assert.Equal(t, deployerAddress, EncodeAddress(version, hash160))
}

func TestDecodeAddressChecksumMismatch(t *testing.T) {
	corrupted := deployerAddress[:len(deployerAddress)-1] + "9"
	_, _, err := DecodeAddress(corrupted)
	assert.ErrorContains(t, err, "checksum")
}

func TestDecodeAddressMalformed(t *testing.T) {
	for _, addr := range []string{"", "X23SRWT9", "ST", "ST!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!"} {
		_, _, err := DecodeAddress(addr)
		assert.Error(t, err, "address %q", addr)
	}
}

func TestDecodeAddressNonASCIIVersion(t *testing.T) {
	addr := "S" + string([]byte{0x80}) + deployerAddress[2:]
	_, _, err := DecodeAddress(addr)
	assert.ErrorContains(t, err, "version character")
}

func TestEncodeAddressRoundTrip(t *testing.T) {
	hash160 := make([]byte, 20)
	for i := range hash160 {
		hash160[i] = byte(i * 7)
	}

	for _, version := range []byte{AddressVersionMainnet, AddressVersionTestnet} {
		addr := EncodeAddress(version, hash160)
		gotVersion, gotHash, err := DecodeAddress(addr)
		require.NoError(t, err)
		assert.Equal(t, version, gotVersion)
		assert.Equal(t, hash160, gotHash)
	}
}

func TestEncodeAddressLeadingZeros(t *testing.T) {
	hash160 := make([]byte, 20)
	hash160[19] = 0x01

	addr := EncodeAddress(AddressVersionTestnet, hash160)
	_, gotHash, err := DecodeAddress(addr)
	require.NoError(t, err)
	assert.Equal(t, hash160, gotHash)
}

func TestAddressPrefixes(t *testing.T) {
	hash160 := make([]byte, 20)
	assert.Equal(t, "SP", EncodeAddress(AddressVersionMainnet, hash160)[:2])
	assert.Equal(t, "ST", EncodeAddress(AddressVersionTestnet, hash160)[:2])
}
