// Package vault implements the card vault's key-encryption hierarchy:
// a random data key encrypts each card record with AES-256-GCM, and the
// data key itself is wrapped by the master key provider. The unwrapped
// master key never touches storage.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/clearroute/payment-core/internal/application"
	"github.com/clearroute/payment-core/internal/domain"
)

const dataKeySize = 32

// envelope is the stored form of an encrypted card record.
type envelope struct {
	Version    string `json:"v"`
	WrappedKey []byte `json:"wrapped_key"`
	Ciphertext []byte `json:"ciphertext"`
}

type cardRecord struct {
	Number   string `json:"number"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
}

// Encryptor envelope-encrypts card references for the token vault.
type Encryptor struct {
	master     application.MasterKeyProvider
	keyVersion string
}

func NewEncryptor(master application.MasterKeyProvider) *Encryptor {
	return &Encryptor{master: master, keyVersion: "v1"}
}

// EncryptCard seals the card reference under a fresh data key and wraps
// the data key with the master key. CVV is never part of the record.
func (e *Encryptor) EncryptCard(ref domain.CardRef) (string, error) {
	plaintext, err := json.Marshal(cardRecord{
		Number:   ref.Number,
		ExpMonth: ref.ExpMonth,
		ExpYear:  ref.ExpYear,
	})
	if err != nil {
		return "", fmt.Errorf("marshal card record: %w", err)
	}

	dataKey := make([]byte, dataKeySize)
	if _, err := rand.Read(dataKey); err != nil {
		return "", fmt.Errorf("generate data key: %w", err)
	}

	ciphertext, err := gcmSeal(dataKey, plaintext)
	if err != nil {
		return "", err
	}

	wrapped, err := e.master.Wrap(dataKey)
	if err != nil {
		return "", fmt.Errorf("wrap data key: %w", err)
	}

	blob, err := json.Marshal(envelope{
		Version:    e.keyVersion,
		WrappedKey: wrapped,
		Ciphertext: ciphertext,
	})
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}

	return base64.StdEncoding.EncodeToString(blob), nil
}

// DecryptCard unwraps the data key and opens the sealed card record.
func (e *Encryptor) DecryptCard(encoded string) (domain.CardRef, error) {
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return domain.CardRef{}, fmt.Errorf("decode envelope: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return domain.CardRef{}, fmt.Errorf("unmarshal envelope: %w", err)
	}

	dataKey, err := e.master.Unwrap(env.WrappedKey)
	if err != nil {
		return domain.CardRef{}, fmt.Errorf("unwrap data key: %w", err)
	}

	plaintext, err := gcmOpen(dataKey, env.Ciphertext)
	if err != nil {
		return domain.CardRef{}, err
	}

	var rec cardRecord
	if err := json.Unmarshal(plaintext, &rec); err != nil {
		return domain.CardRef{}, fmt.Errorf("unmarshal card record: %w", err)
	}

	number := rec.Number
	ref := domain.CardRef{
		Number:   number,
		ExpMonth: rec.ExpMonth,
		ExpYear:  rec.ExpYear,
		Brand:    domain.DetectCardBrand(number),
	}
	if len(number) >= 4 {
		ref.LastFour = number[len(number)-4:]
	}
	return ref, nil
}

// LocalMasterKey is an in-process stand-in for an HSM-backed master key
// provider. Wrap and unwrap are AES-256-GCM under the configured key.
type LocalMasterKey struct {
	key []byte
}

func NewLocalMasterKey(key []byte) (*LocalMasterKey, error) {
	if len(key) != dataKeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", dataKeySize, len(key))
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &LocalMasterKey{key: k}, nil
}

func (m *LocalMasterKey) Wrap(dataKey []byte) ([]byte, error) {
	return gcmSeal(m.key, dataKey)
}

func (m *LocalMasterKey) Unwrap(wrapped []byte) ([]byte, error) {
	return gcmOpen(m.key, wrapped)
}

func gcmSeal(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func gcmOpen(key, sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("sealed data too short")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open sealed data: %w", err)
	}
	return plaintext, nil
}

// Fingerprinter derives a stable, non-reversible card fingerprint for
// duplicate detection. Safe to store and expose.
type Fingerprinter struct {
	salt []byte
}

func NewFingerprinter(salt string) *Fingerprinter {
	return &Fingerprinter{salt: []byte(salt)}
}

func (f *Fingerprinter) Fingerprint(number string, expMonth, expYear int) string {
	mac := hmac.New(sha256.New, f.salt)
	fmt.Fprintf(mac, "%s|%d|%d", number, expMonth, expYear)
	return hex.EncodeToString(mac.Sum(nil))[:32]
}
