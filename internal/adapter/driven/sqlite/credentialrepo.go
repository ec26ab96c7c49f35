package sqlite

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/ericfisherdev/recibos/internal/domain/model"
	"github.com/ericfisherdev/recibos/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port interface.
// Credential values are encrypted with AES-256-GCM before write and decrypted after read.
type CredentialRepo struct {
	db  *DB
	key []byte // 32-byte AES-256 key; nil when encryption is disabled.
}

// NewCredentialRepo creates a new CredentialRepo. key must be 32 bytes for AES-256-GCM,
// or nil to disable credential storage (reads and writes return driven.ErrEncryptionKeyNotSet).
func NewCredentialRepo(db *DB, key []byte) *CredentialRepo {
	return &CredentialRepo{db: db, key: key}
}

// Set stores or replaces the credential identified by service and key.
func (r *CredentialRepo) Set(ctx context.Context, service, key, plaintext string) error {
	encrypted, err := r.encrypt(service, key, plaintext)
	if err != nil {
		return err
	}

	const query = `INSERT INTO credentials (service, key, value, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (service, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	_, err = r.db.Writer.ExecContext(ctx, query, service, key, encrypted)
	if err != nil {
		return fmt.Errorf("set credential %s/%s: %w", service, key, err)
	}
	return nil
}

// Get retrieves the plaintext credential. Returns ("", nil) if none exists.
func (r *CredentialRepo) Get(ctx context.Context, service, key string) (string, error) {
	if r.key == nil {
		return "", driven.ErrEncryptionKeyNotSet
	}

	const query = `SELECT value FROM credentials WHERE service = ? AND key = ?`
	var encrypted string
	err := r.db.Reader.QueryRowContext(ctx, query, service, key).Scan(&encrypted)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get credential %s/%s: %w", service, key, err)
	}

	plaintext, err := r.decrypt(service, key, encrypted)
	if err != nil {
		return "", fmt.Errorf("decrypt credential %s/%s: %w", service, key, err)
	}
	return plaintext, nil
}

// GetAll returns every key/value stored for service; an empty map when none.
func (r *CredentialRepo) GetAll(ctx context.Context, service string) (map[string]string, error) {
	if r.key == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	const query = `SELECT key, value FROM credentials WHERE service = ?`
	rows, err := r.db.Reader.QueryContext(ctx, query, service)
	if err != nil {
		return nil, fmt.Errorf("list credentials for %s: %w", service, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, encrypted string
		if err := rows.Scan(&key, &encrypted); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		plaintext, err := r.decrypt(service, key, encrypted)
		if err != nil {
			return nil, fmt.Errorf("decrypt credential %s/%s: %w", service, key, err)
		}
		out[key] = plaintext
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}
	return out, nil
}

// List returns all stored credentials with decrypted values.
func (r *CredentialRepo) List(ctx context.Context) ([]model.Credential, error) {
	if r.key == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	const query = `SELECT id, service, key, value, updated_at FROM credentials ORDER BY service, key`
	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var creds []model.Credential
	for rows.Next() {
		var cred model.Credential
		var encrypted string
		var updatedAt string
		if err := rows.Scan(&cred.ID, &cred.Service, &cred.Key, &encrypted, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}

		plaintext, err := r.decrypt(cred.Service, cred.Key, encrypted)
		if err != nil {
			return nil, fmt.Errorf("decrypt credential %s/%s: %w", cred.Service, cred.Key, err)
		}
		cred.Value = plaintext

		cred.UpdatedAt, err = parseTime(updatedAt)
		if err != nil {
			return nil, fmt.Errorf("parse updated_at for credential %s/%s: %w", cred.Service, cred.Key, err)
		}

		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}

	return creds, nil
}

// Delete removes the credential identified by service and key.
func (r *CredentialRepo) Delete(ctx context.Context, service, key string) error {
	const query = `DELETE FROM credentials WHERE service = ? AND key = ?`
	_, err := r.db.Writer.ExecContext(ctx, query, service, key)
	if err != nil {
		return fmt.Errorf("delete credential %s/%s: %w", service, key, err)
	}
	return nil
}

// sealer returns the AES-256-GCM AEAD for the repo key.
func (r *CredentialRepo) sealer() (cipher.AEAD, error) {
	if r.key == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}
	block, err := aes.NewCipher(r.key)
	if err != nil {
		return nil, fmt.Errorf("credential cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("credential gcm: %w", err)
	}
	return aead, nil
}

// rowBinding is the additional data sealed with each value, so a ciphertext
// copied to another row fails to open.
func rowBinding(service, key string) []byte {
	return []byte(service + "\x00" + key)
}

// encrypt returns base64(nonce || ciphertext || tag).
func (r *CredentialRepo) encrypt(service, key, plaintext string) (string, error) {
	aead, err := r.sealer()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("credential nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), rowBinding(service, key))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (r *CredentialRepo) decrypt(service, key, encoded string) (string, error) {
	aead, err := r.sealer()
	if err != nil {
		return "", err
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("credential encoding: %w", err)
	}
	if len(data) < aead.NonceSize() {
		return "", errors.New("ciphertext too short")
	}

	nonce, sealed := data[:aead.NonceSize()], data[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, rowBinding(service, key))
	if err != nil {
		return "", fmt.Errorf("credential authentication: %w", err)
	}
	return string(plaintext), nil
}
