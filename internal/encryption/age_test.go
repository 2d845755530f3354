package encryption

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"filippo.io/age"

	"wet-go/internal/config"
)

func newTestEncryptor(t *testing.T) (*AgeEncryptor, *age.X25519Identity) {
	t.Helper()
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("generating identity: %v", err)
	}

	recipientsPath := filepath.Join(t.TempDir(), "recipients.txt")
	content := "# export recipients\n" + identity.Recipient().String() + "\n"
	if err := os.WriteFile(recipientsPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	return NewAgeEncryptor(config.EncryptionConfig{RecipientsPath: recipientsPath}), identity
}

func TestEncryptRoundTrip(t *testing.T) {
	enc, identity := newTestEncryptor(t)

	plaintext := "# Chat\n\nsome exported markdown\n"
	var ciphertext bytes.Buffer
	if err := enc.Encrypt(strings.NewReader(plaintext), &ciphertext); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if bytes.Contains(ciphertext.Bytes(), []byte("exported markdown")) {
		t.Fatal("ciphertext contains plaintext")
	}

	r, err := age.Decrypt(&ciphertext, identity)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading decrypted data: %v", err)
	}
	if string(got) != plaintext {
		t.Errorf("round-trip = %q, want %q", got, plaintext)
	}
}

func TestEncryptFile(t *testing.T) {
	enc, identity := newTestEncryptor(t)

	dir := t.TempDir()
	src := filepath.Join(dir, "chat.md")
	dst := filepath.Join(dir, "chat.md.age")
	if err := os.WriteFile(src, []byte("markdown body"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := enc.EncryptFile(src, dst); err != nil {
		t.Fatalf("EncryptFile() error = %v", err)
	}

	f, err := os.Open(dst)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	r, err := age.Decrypt(f, identity)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "markdown body" {
		t.Errorf("decrypted = %q", got)
	}
}

func TestIsConfigured(t *testing.T) {
	enc, _ := newTestEncryptor(t)
	if !enc.IsConfigured() {
		t.Error("IsConfigured() = false with existing recipients file")
	}

	missing := NewAgeEncryptor(config.EncryptionConfig{RecipientsPath: "/nonexistent/recipients.txt"})
	if missing.IsConfigured() {
		t.Error("IsConfigured() = true with missing recipients file")
	}

	unset := NewAgeEncryptor(config.EncryptionConfig{})
	if unset.IsConfigured() {
		t.Error("IsConfigured() = true with no recipients path")
	}
}

func TestEncryptEmptyRecipientsFile(t *testing.T) {
	recipientsPath := filepath.Join(t.TempDir(), "recipients.txt")
	if err := os.WriteFile(recipientsPath, []byte("# no keys here\n"), 0644); err != nil {
		t.Fatal(err)
	}
	enc := NewAgeEncryptor(config.EncryptionConfig{RecipientsPath: recipientsPath})

	var out bytes.Buffer
	if err := enc.Encrypt(strings.NewReader("data"), &out); err == nil {
		t.Fatal("Encrypt() should fail with no recipients")
	}
}
