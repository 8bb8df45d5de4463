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
	"time"

	"github.com/ericfisherdev/sonarpanel/internal/domain/model"
	"github.com/ericfisherdev/sonarpanel/internal/domain/port/driven"
	"github.com/ericfisherdev/sonarpanel/internal/idx"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

const credentialColumns = `id, username, name, value, host_url, class, project_key, active,
	created_at, updated_at, expires_at, note`

// CredentialRepo is the SQLite implementation of the CredentialStore port interface.
// Credential values are encrypted with AES-256-GCM before write and decrypted after read.
type CredentialRepo struct {
	db  *DB
	key []byte // 32-byte AES-256 key; nil when encryption is disabled.
}

// NewCredentialRepo creates a new CredentialRepo. key must be 32 bytes for AES-256-GCM,
// or nil to disable credential storage (reads and writes of secret values
// return ErrEncryptionKeyNotSet).
func NewCredentialRepo(db *DB, key []byte) *CredentialRepo {
	return &CredentialRepo{db: db, key: key}
}

// Insert encrypts and stores a new credential. A missing ID is generated.
func (r *CredentialRepo) Insert(ctx context.Context, cred model.Credential) (*model.Credential, error) {
	encrypted, err := r.encrypt(cred.Value)
	if err != nil {
		return nil, err
	}

	if cred.ID == "" {
		cred.ID = idx.New()
	}
	now := time.Now().UTC()
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = now
	}
	cred.UpdatedAt = now

	var expiresAt sql.NullString
	if cred.ExpiresAt != nil {
		expiresAt = sql.NullString{String: formatTime(*cred.ExpiresAt), Valid: true}
	}

	const query = `INSERT INTO credentials (id, username, name, value, host_url, class, project_key,
		active, created_at, updated_at, expires_at, note) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.Writer.ExecContext(ctx, query,
		cred.ID, cred.Username, cred.Name, encrypted, cred.HostURL, string(cred.Class), cred.ProjectKey,
		cred.Active, formatTime(cred.CreatedAt), formatTime(cred.UpdatedAt), expiresAt, cred.Note,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert credential %s: %w", cred.ID, driven.ErrLocalStoreConflict)
		}
		return nil, fmt.Errorf("insert credential %s: %w", cred.ID, err)
	}

	return &cred, nil
}

// Get returns the credential with the given id, or nil, nil.
func (r *CredentialRepo) Get(ctx context.Context, id string) (*model.Credential, error) {
	if r.key == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE id = ?`
	cred, err := r.scanCredential(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential %s: %w", id, err)
	}
	return cred, nil
}

// FindActiveByHostAndClass returns one active credential for the pair.
// No ORDER BY is applied: with several matches, the row SQLite yields first wins.
func (r *CredentialRepo) FindActiveByHostAndClass(ctx context.Context, hostURL string, class model.CredentialClass) (*model.Credential, error) {
	if r.key == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	query := `SELECT ` + credentialColumns + ` FROM credentials
		WHERE host_url = ? AND class = ? AND active = 1 LIMIT 1`
	cred, err := r.scanCredential(r.db.Reader.QueryRowContext(ctx, query, hostURL, string(class)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find credential for %s %s: %w", hostURL, class, err)
	}
	return cred, nil
}

// List returns all credentials with decrypted values, newest first.
func (r *CredentialRepo) List(ctx context.Context) ([]model.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials ORDER BY created_at DESC, id DESC`
	return r.list(ctx, "list credentials", query)
}

// ListByProject returns the credentials issued for projectKey, newest first.
func (r *CredentialRepo) ListByProject(ctx context.Context, projectKey string) ([]model.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials
		WHERE project_key = ? ORDER BY created_at DESC, id DESC`
	return r.list(ctx, "list credentials for "+projectKey, query, projectKey)
}

func (r *CredentialRepo) list(ctx context.Context, op, query string, args ...any) ([]model.Credential, error) {
	if r.key == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	creds := []model.Credential{}
	for rows.Next() {
		cred, err := r.scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, *cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}

	return creds, nil
}

// UpdateValue re-encrypts and replaces the secret value.
func (r *CredentialRepo) UpdateValue(ctx context.Context, id, value string) error {
	encrypted, err := r.encrypt(value)
	if err != nil {
		return err
	}

	const query = `UPDATE credentials SET value = ?, updated_at = ? WHERE id = ?`
	return r.execByID(ctx, "update credential", id, query, encrypted, formatTime(time.Now()), id)
}

// Deactivate clears the active flag without removing the row.
func (r *CredentialRepo) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE credentials SET active = 0, updated_at = ? WHERE id = ?`
	return r.execByID(ctx, "deactivate credential", id, query, formatTime(time.Now()), id)
}

// Delete removes the credential row.
func (r *CredentialRepo) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM credentials WHERE id = ?`
	return r.execByID(ctx, "delete credential", id, query, id)
}

func (r *CredentialRepo) execByID(ctx context.Context, op, id, query string, args ...any) error {
	result, err := r.db.Writer.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %s: %w", op, id, driven.ErrCredentialNotFound)
	}
	return nil
}

func (r *CredentialRepo) scanCredential(s scanner) (*model.Credential, error) {
	var cred model.Credential
	var class, encrypted, createdAt, updatedAt string
	var expiresAt sql.NullString

	err := s.Scan(
		&cred.ID, &cred.Username, &cred.Name, &encrypted, &cred.HostURL, &class, &cred.ProjectKey,
		&cred.Active, &createdAt, &updatedAt, &expiresAt, &cred.Note,
	)
	if err != nil {
		return nil, err
	}
	cred.Class = model.CredentialClass(class)

	cred.Value, err = r.decrypt(encrypted)
	if err != nil {
		return nil, fmt.Errorf("decrypt credential %s: %w", cred.ID, err)
	}

	if cred.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if cred.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if expiresAt.Valid {
		t, err := parseTime(expiresAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse expires_at: %w", err)
		}
		cred.ExpiresAt = &t
	}

	return &cred, nil
}

// encrypt encrypts plaintext using AES-256-GCM and returns a base64-encoded string
// containing the nonce (12 bytes) prepended to the ciphertext.
func (r *CredentialRepo) encrypt(plaintext string) (string, error) {
	gcm, err := r.aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	// Seal appends the ciphertext to nonce, producing: nonce || ciphertext || tag.
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts a base64-encoded AES-256-GCM ciphertext.
func (r *CredentialRepo) decrypt(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}

	gcm, err := r.aead()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("gcm.Open: %w", err)
	}

	return string(plaintext), nil
}

func (r *CredentialRepo) aead() (cipher.AEAD, error) {
	if r.key == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	block, err := aes.NewCipher(r.key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm, nil
}
