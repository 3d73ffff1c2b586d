// Copyright 2025 Confkit Authors and contributors. All rights reserved.
// Use of this source code is governed by the license in the LICENSE file.

package lockfile

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
)

const integrityPrefix = "sha256-"

// IntegrityHash returns the "sha256-<base64>" integrity string for data.
func IntegrityHash(data []byte) string {
	sum := sha256.Sum256(data)
	return integrityPrefix + base64.StdEncoding.EncodeToString(sum[:])
}

// VerifyIntegrity reports whether data matches the recorded integrity
// string. Malformed integrity strings never verify.
func VerifyIntegrity(data []byte, integrity string) bool {
	want, err := decodeIntegrity(integrity)
	if err != nil {
		return false
	}
	sum := sha256.Sum256(data)
	return subtle.ConstantTimeCompare(sum[:], want) == 1
}

// HexToIntegrity converts a hex SHA-256 digest, as reported by registries,
// into the integrity string format stored in the lockfile.
func HexToIntegrity(hexDigest string) (string, error) {
	raw, err := hex.DecodeString(hexDigest)
	if err != nil {
		return "", errors.Wrapf(err, "invalid hex digest %q", hexDigest)
	}
	if len(raw) != sha256.Size {
		return "", errors.Errorf("hex digest %q is not a sha256 digest", hexDigest)
	}
	return integrityPrefix + base64.StdEncoding.EncodeToString(raw), nil
}

// IntegrityToHex recovers the hex SHA-256 digest from an integrity string.
func IntegrityToHex(integrity string) (string, error) {
	raw, err := decodeIntegrity(integrity)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

func decodeIntegrity(integrity string) ([]byte, error) {
	encoded, found := strings.CutPrefix(integrity, integrityPrefix)
	if !found {
		return nil, errors.Errorf("integrity string %q does not start with %q", integrity, integrityPrefix)
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrapf(err, "integrity string %q is not valid base64", integrity)
	}
	if len(raw) != sha256.Size {
		return nil, errors.Errorf("integrity string %q is not a sha256 digest", integrity)
	}
	return raw, nil
}
