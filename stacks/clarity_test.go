package stacks

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeUintRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 101, 1<<32 + 5, ^uint64(0)} {
		raw := EncodeUint(v)
		require.Len(t, raw, 17)
		assert.Equal(t, clarityUInt, raw[0])

		cv, n, err := DecodeClarity(raw)
		require.NoError(t, err)
		assert.Equal(t, 17, n)
		got, err := cv.AsUint()
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestDecodeClarityBool(t *testing.T) {
	cv, n, err := DecodeClarity([]byte{clarityBoolTrue})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := cv.AsBool()
	require.NoError(t, err)
	assert.True(t, got)

	cv, _, err = DecodeClarity([]byte{clarityBoolFalse})
	require.NoError(t, err)
	got, err = cv.AsBool()
	require.NoError(t, err)
	assert.False(t, got)
}

func TestDecodeClarityResponseOKUnwraps(t *testing.T) {
	// (ok true)
	cv, n, err := DecodeClarity([]byte{clarityResponseOK, clarityBoolTrue})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	got, err := cv.AsBool()
	require.NoError(t, err)
	assert.True(t, got)
}

func TestDecodeClarityNone(t *testing.T) {
	// (ok none), the shape get-plant returns for a missing token.
	cv, _, err := DecodeClarity([]byte{clarityResponseOK, clarityOptionalNone})
	require.NoError(t, err)
	assert.True(t, cv.IsNone())

	cv, _, err = DecodeClarity([]byte{clarityResponseOK, clarityOptionalSome, clarityBoolTrue})
	require.NoError(t, err)
	assert.False(t, cv.IsNone())
}

func TestDecodeClarityPrincipal(t *testing.T) {
	version, hash160, err := DecodeAddress(deployerAddress)
	require.NoError(t, err)

	raw := append([]byte{clarityPrincipal, version}, hash160...)
	cv, n, err := DecodeClarity(raw)
	require.NoError(t, err)
	assert.Equal(t, 22, n)
	assert.Equal(t, deployerAddress, cv.Principal)
}

func TestDecodeClarityTuple(t *testing.T) {
	// { stage: u2, owner: <principal> } wrapped in (ok (some ...)).
	version, hash160, err := DecodeAddress(deployerAddress)
	require.NoError(t, err)

	var raw []byte
	raw = append(raw, clarityResponseOK, clarityOptionalSome, clarityTuple)
	raw = binary.BigEndian.AppendUint32(raw, 2)
	raw = append(raw, byte(len("stage")))
	raw = append(raw, "stage"...)
	raw = append(raw, EncodeUint(2)...)
	raw = append(raw, byte(len("owner")))
	raw = append(raw, "owner"...)
	raw = append(raw, clarityPrincipal, version)
	raw = append(raw, hash160...)

	cv, n, err := DecodeClarity(raw)
	require.NoError(t, err)
	assert.Equal(t, len(raw), n)

	stage, err := cv.TupleUint("stage")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stage)

	owner, err := cv.TuplePrincipal("owner")
	require.NoError(t, err)
	assert.Equal(t, deployerAddress, owner)

	_, err = cv.TupleUint("missing")
	assert.Error(t, err)
}

func TestDecodeClarityTruncated(t *testing.T) {
	cases := [][]byte{
		{},
		{clarityUInt, 0x00},
		{clarityPrincipal, 26, 0x01},
		{clarityTuple, 0x00, 0x00, 0x00},
		{clarityOptionalSome},
	}
	for _, raw := range cases {
		_, _, err := DecodeClarity(raw)
		assert.Error(t, err, "raw %x", raw)
	}
}

func TestDecodeClarityRejectsBadPrincipalVersion(t *testing.T) {
	// A version byte past the c32 alphabet must be a decode error, not a
	// panic downstream in address encoding.
	principal := make([]byte, 22)
	principal[0] = clarityPrincipal
	principal[1] = 0xff
	_, _, err := DecodeClarity(principal)
	assert.ErrorContains(t, err, "principal version")

	contract := append([]byte{clarityContract, 0x20}, make([]byte, 20)...)
	contract = append(contract, 1, 'a')
	_, _, err = DecodeClarity(contract)
	assert.ErrorContains(t, err, "principal version")
}

func TestDecodeClarityUintOverflow(t *testing.T) {
	raw := make([]byte, 17)
	raw[0] = clarityUInt
	raw[1] = 0x01 // 65th bit set
	_, _, err := DecodeClarity(raw)
	assert.ErrorContains(t, err, "64 bits")
}
