// Copyright 2025 Confkit Authors and contributors. All rights reserved.
// Use of this source code is governed by the license in the LICENSE file.

package lockfile

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegrityHashFormat(t *testing.T) {
	integrity := IntegrityHash([]byte("hello"))
	assert.True(t, strings.HasPrefix(integrity, "sha256-"))
	assert.True(t, VerifyIntegrity([]byte("hello"), integrity))
	assert.False(t, VerifyIntegrity([]byte("hellp"), integrity))
}

func TestIntegrityHexRoundTrip(t *testing.T) {
	for _, input := range [][]byte{nil, {}, []byte("x"), []byte("some archive bytes")} {
		sum := sha256.Sum256(input)
		wantHex := hex.EncodeToString(sum[:])

		gotHex, err := IntegrityToHex(IntegrityHash(input))
		require.NoError(t, err)
		assert.Equal(t, wantHex, gotHex)

		integrity, err := HexToIntegrity(wantHex)
		require.NoError(t, err)
		assert.Equal(t, IntegrityHash(input), integrity)
	}
}

func TestIntegrityMalformed(t *testing.T) {
	for _, bad := range []string{
		"",
		"md5-abcd",
		"sha256-",
		"sha256-!!!",
		"sha256-YWJj", // valid base64, wrong digest length
	} {
		_, err := IntegrityToHex(bad)
		assert.Error(t, err, "IntegrityToHex(%q)", bad)
		assert.False(t, VerifyIntegrity([]byte("data"), bad), "VerifyIntegrity with %q", bad)
	}

	_, err := HexToIntegrity("zz")
	assert.Error(t, err)
	_, err = HexToIntegrity("abcd")
	assert.Error(t, err)
}
