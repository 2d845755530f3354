// Package encryption optionally encrypts export artifacts for recipients
// listed in an age recipients file.
package encryption

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"filippo.io/age"

	"wet-go/internal/config"
)

// AgeEncryptor encrypts artifacts using filippo.io/age for the X25519
// recipients listed in a recipients file (one per line, "#" comments
// allowed, the format age-keygen and age itself use).
type AgeEncryptor struct {
	recipientsPath string
}

// NewAgeEncryptor creates an AgeEncryptor from configuration.
func NewAgeEncryptor(cfg config.EncryptionConfig) *AgeEncryptor {
	return &AgeEncryptor{recipientsPath: cfg.RecipientsPath}
}

// IsConfigured returns true if a recipients file is configured and exists.
func (e *AgeEncryptor) IsConfigured() bool {
	if e.recipientsPath == "" {
		return false
	}
	_, err := os.Stat(e.recipientsPath)
	return err == nil
}

// Encrypt reads plaintext from r and writes age-encrypted ciphertext to w
// for every configured recipient.
func (e *AgeEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	recipients, err := e.loadRecipients()
	if err != nil {
		return fmt.Errorf("loading recipients: %w", err)
	}

	encWriter, err := age.Encrypt(w, recipients...)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}

	if _, err := io.Copy(encWriter, r); err != nil {
		return fmt.Errorf("encrypting data: %w", err)
	}

	if err := encWriter.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}
	return nil
}

// EncryptFile encrypts the file at src into dst.
func (e *AgeEncryptor) EncryptFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	defer out.Close()

	if err := e.Encrypt(in, out); err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", dst, err)
	}
	return nil
}

// loadRecipients reads and parses the recipients file.
func (e *AgeEncryptor) loadRecipients() ([]age.Recipient, error) {
	data, err := os.ReadFile(e.recipientsPath)
	if err != nil {
		return nil, fmt.Errorf("reading recipients file: %w", err)
	}

	recipients, err := age.ParseRecipients(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing recipients file: %w", err)
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("no recipients found in %s", e.recipientsPath)
	}
	return recipients, nil
}
