package vault

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ErrInvalidVerifier – zapisany weryfikator nie jest poprawnym stringiem argon2id.
var ErrInvalidVerifier = errors.New("invalid argon2id verifier")

// Params – parametry argon2id. Zera zastępujemy domyślnymi.
type Params struct {
	MemoryKB    int `json:"memory_kb"`
	Time        int `json:"time"`
	Parallelism int `json:"parallelism"`
	SaltLen     int `json:"salt_len"`
	KeyLen      int `json:"key_len"`
}

func DefaultParams() Params {
	return Params{MemoryKB: 64 * 1024, Time: 3, Parallelism: 2, SaltLen: 16, KeyLen: 32}
}

type argonParams struct {
	memory  uint32
	time    uint32
	threads uint8
	saltLen uint32
	keyLen  uint32
}

func (p Params) normalized() argonParams {
	d := DefaultParams()
	pick := func(v, def int) int {
		if v <= 0 {
			return def
		}
		return v
	}
	return argonParams{
		memory:  uint32(clamp(pick(p.MemoryKB, d.MemoryKB), 8, 512*1024)),
		time:    uint32(clamp(pick(p.Time, d.Time), 1, 10)),
		threads: uint8(clamp(pick(p.Parallelism, d.Parallelism), 1, 255)),
		saltLen: uint32(clamp(pick(p.SaltLen, d.SaltLen), 8, 64)),
		keyLen:  uint32(clamp(pick(p.KeyLen, d.KeyLen), 16, 64)),
	}
}

// newVerifier liczy $argon2id$v=19$m=..,t=..,p=..$salt$hash z losową solą.
func newVerifier(password string, p Params) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	ap := p.normalized()
	salt := make([]byte, ap.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(password), salt, ap.time, ap.memory, ap.threads, ap.keyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, ap.memory, ap.time, ap.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash)), nil
}

// checkVerifier przelicza hash z zapisaną solą i porównuje w stałym czasie.
func checkVerifier(password, encoded string) (bool, error) {
	ap, salt, hash, err := decodeVerifier(encoded)
	if err != nil {
		return false, err
	}
	computed := argon2.IDKey([]byte(password), salt, ap.time, ap.memory, ap.threads, ap.keyLen)
	return subtle.ConstantTimeCompare(hash, computed) == 1, nil
}

func decodeVerifier(encoded string) (argonParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return argonParams{}, nil, nil, ErrInvalidVerifier
	}

	var ap argonParams
	for _, token := range strings.Split(parts[3], ",") {
		kv := strings.SplitN(token, "=", 2)
		if len(kv) != 2 {
			return argonParams{}, nil, nil, ErrInvalidVerifier
		}
		v, err := strconv.ParseUint(kv[1], 10, 32)
		if err != nil {
			return argonParams{}, nil, nil, ErrInvalidVerifier
		}
		switch kv[0] {
		case "m":
			ap.memory = uint32(v)
		case "t":
			ap.time = uint32(v)
		case "p":
			if v > 255 {
				return argonParams{}, nil, nil, ErrInvalidVerifier
			}
			ap.threads = uint8(v)
		}
	}
	if ap.memory == 0 || ap.time == 0 || ap.threads == 0 {
		return argonParams{}, nil, nil, ErrInvalidVerifier
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return argonParams{}, nil, nil, ErrInvalidVerifier
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(hash) == 0 {
		return argonParams{}, nil, nil, ErrInvalidVerifier
	}
	ap.saltLen = uint32(len(salt))
	ap.keyLen = uint32(len(hash))
	return ap, salt, hash, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
