package service

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"

	"golang.org/x/crypto/argon2"
)

// Parámetros argon2id recomendados por OWASP.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32

	// 24 bytes aleatorios producen exactamente 32 caracteres en base64 raw.
	saltBytes = 24
)

// PasswordHasher deriva y verifica hashes de contraseñas con salt explícito
// almacenado junto al hash.
type PasswordHasher struct{}

func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{}
}

// GenerateSalt devuelve un salt aleatorio de 32 caracteres, fresco en cada llamada.
func (*PasswordHasher) GenerateSalt() (string, error) {
	buf := make([]byte, saltBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawStdEncoding.EncodeToString(buf), nil
}

// Hash deriva un hash argon2id determinista de (password, salt).
func (*PasswordHasher) Hash(password, salt string) string {
	key := argon2.IDKey([]byte(password), []byte(salt), argonTime, argonMemory, argonThreads, argonKeyLen)
	return base64.RawStdEncoding.EncodeToString(key)
}

// Verify recomputa el hash y compara en tiempo constante.
func (h *PasswordHasher) Verify(password, hash, salt string) bool {
	expected, err := base64.RawStdEncoding.DecodeString(hash)
	if err != nil {
		return false
	}
	computed := argon2.IDKey([]byte(password), []byte(salt), argonTime, argonMemory, argonThreads, argonKeyLen)
	return subtle.ConstantTimeCompare(computed, expected) == 1
}
