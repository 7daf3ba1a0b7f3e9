package service

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Hasher turns API keys into salted one-way digests. Verify never errors:
// a malformed or foreign digest simply does not match.
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(plain, digest string) bool
}

// Supported hash algorithms.
const (
	HashBcrypt   = "bcrypt"
	HashArgon2id = "argon2id"
)

// Argon2id parameters, OWASP 2025 recommendation.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 1
	argonKeyLen  = 32
	argonSaltLen = 16

	// Upper bounds accepted when decoding a stored digest.
	argonMaxMemory = 1024 * 1024
	argonMaxTime   = 16
)

// NewHasher returns a hasher that produces digests with the named
// algorithm. cost applies to bcrypt only; zero selects bcrypt.DefaultCost.
// Whatever the algorithm, Verify accepts digests of every supported kind so
// switching algorithms does not strand keys already issued.
func NewHasher(algorithm string, cost int) (Hasher, error) {
	switch algorithm {
	case HashBcrypt, "":
		if cost == 0 {
			cost = bcrypt.DefaultCost
		}
		if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
			return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
		}
		return &multiHasher{hash: bcryptHash(cost)}, nil
	case HashArgon2id:
		return &multiHasher{hash: argon2idHash}, nil
	default:
		return nil, fmt.Errorf("unknown hash algorithm %q", algorithm)
	}
}

type multiHasher struct {
	hash func(plain string) (string, error)
}

func (h *multiHasher) Hash(plain string) (string, error) {
	return h.hash(plain)
}

func (h *multiHasher) Verify(plain, digest string) bool {
	switch {
	case strings.HasPrefix(digest, "$2a$"),
		strings.HasPrefix(digest, "$2b$"),
		strings.HasPrefix(digest, "$2y$"):
		return bcrypt.CompareHashAndPassword([]byte(digest), prehash(plain)) == nil
	case strings.HasPrefix(digest, "$argon2id$"):
		return verifyArgon2id(plain, digest)
	default:
		return false
	}
}

// prehash maps the input to 44 bytes so bcrypt's 72-byte input limit never
// truncates a long API-key token.
func prehash(plain string) []byte {
	sum := sha256.Sum256([]byte(plain))
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sum)))
	base64.StdEncoding.Encode(out, sum[:])
	return out
}

func bcryptHash(cost int) func(string) (string, error) {
	return func(plain string) (string, error) {
		digest, err := bcrypt.GenerateFromPassword(prehash(plain), cost)
		if err != nil {
			return "", fmt.Errorf("bcrypt: %w", err)
		}
		return string(digest), nil
	}
}

// argon2idHash returns a PHC string: $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>
func argon2idHash(plain string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	hash := argon2.IDKey([]byte(plain), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

func verifyArgon2id(plain, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}

	var memory, time uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false
	}
	// argon2.IDKey panics on a zero time or thread count.
	if time < 1 || time > argonMaxTime || threads < 1 || memory < 8*uint32(threads) || memory > argonMaxMemory {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(hash) == 0 {
		return false
	}

	candidate := argon2.IDKey([]byte(plain), salt, time, memory, threads, uint32(len(hash))) //nolint:gosec // G115: decoded hash length fits uint32
	return subtle.ConstantTimeCompare(hash, candidate) == 1
}
