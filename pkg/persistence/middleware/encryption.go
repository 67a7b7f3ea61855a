package middleware

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/regions/pkg/domain"
	"github.com/aretw0/regions/pkg/ports"
)

// EnvelopeField holds the ciphertext of an encrypted record.
const EnvelopeField = "__encrypted__"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next   ports.RecordStore
	config EncryptionConfig
}

type encryptionSplicer struct {
	*encryptionMiddleware
	splicer ports.Splicer
}

// NewEncryptionMiddleware creates a middleware that encrypts record data
// using AES-GCM. Presentation flags stay in clear so the store can still
// be inspected for monitoring.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.RecordStore) ports.RecordStore {
		m := &encryptionMiddleware{next: next, config: config}
		if s, ok := next.(ports.Splicer); ok {
			return &encryptionSplicer{encryptionMiddleware: m, splicer: s}
		}
		return m
	}
}

// ParseKey decodes a base64 AES-256 key.
func ParseKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

func (m *encryptionMiddleware) Records(ctx context.Context, surface, tool string) ([]domain.Record, error) {
	envelopes, err := m.next.Records(ctx, surface, tool)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Record, len(envelopes))
	for i, env := range envelopes {
		rec, err := m.open(env)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out[i] = rec
	}
	return out, nil
}

func (m *encryptionMiddleware) AddRecord(ctx context.Context, surface, tool string, rec domain.Record) error {
	env, err := m.seal(rec)
	if err != nil {
		return err
	}
	return m.next.AddRecord(ctx, surface, tool, env)
}

func (m *encryptionMiddleware) ReplaceRecord(ctx context.Context, surface, tool string, index int, rec domain.Record) error {
	env, err := m.seal(rec)
	if err != nil {
		return err
	}
	return m.next.ReplaceRecord(ctx, surface, tool, index, env)
}

func (m *encryptionMiddleware) ClearStore(ctx context.Context, surface, tool string) error {
	return m.next.ClearStore(ctx, surface, tool)
}

func (m *encryptionSplicer) RemoveRecordAt(ctx context.Context, surface, tool string, index int) error {
	return m.splicer.RemoveRecordAt(ctx, surface, tool, index)
}

func (m *encryptionMiddleware) seal(rec domain.Record) (domain.Record, error) {
	plainText, err := json.Marshal(rec.Data)
	if err != nil {
		return domain.Record{}, fmt.Errorf("failed to marshal record: %w", err)
	}
	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return domain.Record{}, fmt.Errorf("failed to encrypt record: %w", err)
	}
	return domain.Record{
		Data:    map[string]any{EnvelopeField: base64.StdEncoding.EncodeToString(ciphertext)},
		Visible: rec.Visible,
		Active:  rec.Active,
	}, nil
}

func (m *encryptionMiddleware) open(env domain.Record) (domain.Record, error) {
	encryptedStr, ok := env.Data[EnvelopeField].(string)
	if !ok {
		// Fail secure: a configured store only ever holds envelopes.
		return domain.Record{}, errors.New("record is missing encrypted data envelope")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encryptedStr)
	if err != nil {
		return domain.Record{}, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return domain.Record{}, fmt.Errorf("failed to decrypt record: %w", err)
	}

	data := make(map[string]any)
	dec := json.NewDecoder(bytes.NewReader(plainText))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		return domain.Record{}, fmt.Errorf("failed to unmarshal decrypted record: %w", err)
	}
	return domain.Record{Data: data, Visible: env.Visible, Active: env.Active}, nil
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	return gcm.Open(nil, nonce, ciphertext[gcm.NonceSize():], nil)
}
