// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"filippo.io/age"

	"github.com/seedfourtytwo/telegramshell/lib/secret"
)

// Keypair holds an age x25519 keypair. The private key lives in a
// secret.Buffer; the public key is a plain string, safe to publish.
//
// The caller must Close the keypair when it is no longer needed.
type Keypair struct {
	// PrivateKey is the secret key in AGE-SECRET-KEY-1... format. It
	// must never be logged or passed on a command line.
	PrivateKey *secret.Buffer

	// PublicKey is the corresponding recipient key in age1... format.
	PublicKey string
}

// Close releases the private key memory. Idempotent.
func (k *Keypair) Close() error {
	if k.PrivateKey != nil {
		return k.PrivateKey.Close()
	}
	return nil
}

// GenerateKeypair generates a new age x25519 keypair for sealing
// credentials. The caller must Close the returned Keypair.
func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age keypair: %w", err)
	}

	// Move the private key into mmap-backed memory immediately. The
	// string returned by the age library stays on the heap until GC;
	// the buffer is the durable copy.
	privateKeyBytes := []byte(identity.String())
	privateKey, err := secret.NewFromBytes(privateKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("protecting private key: %w", err)
	}

	return &Keypair{
		PrivateKey: privateKey,
		PublicKey:  identity.Recipient().String(),
	}, nil
}

// Seal encrypts plaintext to one or more age recipient keys and returns
// base64-encoded ciphertext suitable for a credential file. At least
// one recipient is required.
func Seal(plaintext []byte, recipientKeys []string) (string, error) {
	if len(recipientKeys) == 0 {
		return "", fmt.Errorf("at least one recipient is required")
	}

	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return "", fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	var ciphertextBuffer bytes.Buffer
	writer, err := age.Encrypt(&ciphertextBuffer, recipients...)
	if err != nil {
		return "", fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return "", fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalizing age encryption: %w", err)
	}

	return base64.StdEncoding.EncodeToString(ciphertextBuffer.Bytes()), nil
}

// Unseal decrypts base64-encoded ciphertext with the given private key
// and returns the plaintext in a secret.Buffer the caller must Close.
// The private key is borrowed, not closed.
func Unseal(ciphertext string, privateKey *secret.Buffer) (*secret.Buffer, error) {
	identity, err := age.ParseX25519Identity(privateKey.String())
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	rawCiphertext, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decoding base64 ciphertext: %w", err)
	}

	reader, err := age.Decrypt(bytes.NewReader(rawCiphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}

	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted plaintext: %w", err)
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("sealed credential is empty")
	}

	buffer, err := secret.NewFromBytes(plaintext)
	if err != nil {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("protecting decrypted plaintext: %w", err)
	}
	return buffer, nil
}

// UnsealFile reads a sealed credential file (base64 age ciphertext,
// surrounding whitespace ignored) and unseals it with the given private
// key.
func UnsealFile(path string, privateKey *secret.Buffer) (*secret.Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sealed credential: %w", err)
	}
	ciphertext := string(bytes.TrimSpace(data))
	if ciphertext == "" {
		return nil, fmt.Errorf("sealed credential %s is empty", path)
	}
	buffer, err := Unseal(ciphertext, privateKey)
	if err != nil {
		return nil, fmt.Errorf("unsealing %s: %w", path, err)
	}
	return buffer, nil
}

// ReadIdentity loads and validates an age identity file ("-" reads
// stdin). The returned buffer holds the private key and must be closed
// by the caller.
func ReadIdentity(path string) (*secret.Buffer, error) {
	identity, err := secret.ReadFromPath(path)
	if err != nil {
		return nil, fmt.Errorf("reading identity: %w", err)
	}
	if err := ParsePrivateKey(identity); err != nil {
		identity.Close()
		return nil, err
	}
	return identity, nil
}

// ParsePublicKey validates an age public key string before it is used
// as a seal recipient.
func ParsePublicKey(publicKey string) error {
	if _, err := age.ParseX25519Recipient(publicKey); err != nil {
		return fmt.Errorf("invalid age public key: %w", err)
	}
	return nil
}

// ParsePrivateKey validates an age private key held in a secret.Buffer.
func ParsePrivateKey(privateKey *secret.Buffer) error {
	if _, err := age.ParseX25519Identity(privateKey.String()); err != nil {
		return fmt.Errorf("invalid age private key: %w", err)
	}
	return nil
}
