package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2Params holds the cost parameters for argon2id hashing. They are read
// once at startup; changing them later does not invalidate stored hashes
// because each hash carries its own parameters.
type Argon2Params struct {
	Time        uint32
	Memory      uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Params returns the production cost settings: two passes over
// 64 MiB with four lanes.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Time:        2,
		Memory:      64 * 1024,
		Parallelism: 4,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher hashes and verifies password credentials with argon2id. The encoded
// form is the standard self-describing string
// $argon2id$v=19$m=..,t=..,p=..$salt$digest, so any conforming argon2id
// implementation can verify hashes produced here.
type Hasher struct {
	params Argon2Params
}

// NewHasher constructs a Hasher with the given cost parameters. Zero-value
// fields fall back to the defaults.
func NewHasher(params Argon2Params) *Hasher {
	def := DefaultArgon2Params()
	if params.Time == 0 {
		params.Time = def.Time
	}
	if params.Memory == 0 {
		params.Memory = def.Memory
	}
	if params.Parallelism == 0 {
		params.Parallelism = def.Parallelism
	}
	if params.SaltLength == 0 {
		params.SaltLength = def.SaltLength
	}
	if params.KeyLength == 0 {
		params.KeyLength = def.KeyLength
	}
	return &Hasher{params: params}
}

// Params returns the configured cost parameters.
func (h *Hasher) Params() Argon2Params { return h.params }

// Hash derives a salted argon2id hash of the plaintext and returns the
// encoded string. The only failure mode is the system entropy source, which
// is treated as fatal.
func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", &HashingError{Err: fmt.Errorf("generate salt: %w", err)}
	}
	digest := argon2.IDKey([]byte(password), salt,
		h.params.Time, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	), nil
}

// Verify reports whether the plaintext matches the stored hash, re-deriving
// the digest with the parameters embedded in the stored encoding. Malformed
// hashes, unsupported variants and mismatches all return false, never an
// error, so callers cannot distinguish the failure modes.
func (h *Hasher) Verify(password, encoded string) bool {
	params, salt, digest, err := decodeArgon2Hash(encoded)
	if err != nil {
		return false
	}
	derived := argon2.IDKey([]byte(password), salt,
		params.Time, params.Memory, params.Parallelism, uint32(len(digest)))
	return subtle.ConstantTimeCompare(derived, digest) == 1
}

// NeedsRehash reports whether the stored hash was produced with parameters
// that differ from the currently configured ones. Unparsable hashes report
// true so a successful login can replace them.
func (h *Hasher) NeedsRehash(encoded string) bool {
	params, _, digest, err := decodeArgon2Hash(encoded)
	if err != nil {
		return true
	}
	return params.Time != h.params.Time ||
		params.Memory != h.params.Memory ||
		params.Parallelism != h.params.Parallelism ||
		uint32(len(digest)) != h.params.KeyLength
}

var errMalformedHash = errors.New("malformed argon2 hash")

func decodeArgon2Hash(encoded string) (Argon2Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Argon2Params{}, nil, nil, errMalformedHash
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return Argon2Params{}, nil, nil, errMalformedHash
	}
	var params Argon2Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d",
		&params.Memory, &params.Time, &params.Parallelism); err != nil {
		return Argon2Params{}, nil, nil, errMalformedHash
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Argon2Params{}, nil, nil, errMalformedHash
	}
	digest, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(digest) == 0 {
		return Argon2Params{}, nil, nil, errMalformedHash
	}
	params.SaltLength = uint32(len(salt))
	params.KeyLength = uint32(len(digest))
	return params, salt, digest, nil
}
