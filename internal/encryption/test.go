package encryption

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"

	"fsnap-go/internal/fsnap"
)

// blobMagic opens every blob sealed by TestEncryptor. A 4-byte key tag
// follows it, then the masked payload.
var blobMagic = []byte("FSNAPENC")

const keyTagSize = 4

// ErrWrongPassphrase is returned by TestEncryptor.Unlock when the passphrase
// differs from the one given to Setup.
var ErrWrongPassphrase = errors.New("wrong passphrase")

// ErrForeignBlob is returned when a blob was sealed under a different key.
var ErrForeignBlob = errors.New("snapshot sealed under a different key")

// TestEncryptor is a deterministic, passphrase-keyed stand-in for the age
// encryptor. It behaves like age at the interface level (a wrong passphrase
// fails Unlock, blobs from another key fail Decrypt) but masks data with a
// repeating key stream instead of real crypto.
type TestEncryptor struct {
	mu     sync.Mutex
	key    []byte
	sealed int
}

var _ fsnap.Encryptor = (*TestEncryptor)(nil)

// NewTestEncryptor creates a TestEncryptor keyed by the empty passphrase.
func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{key: deriveKey("")}
}

// Setup rekeys the encryptor. Blobs sealed before the call can no longer be
// decrypted by contexts unlocked afterwards.
func (e *TestEncryptor) Setup(passphrase string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.key = deriveKey(passphrase)
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	key := e.currentKey()

	if _, err := w.Write(blobMagic); err != nil {
		return fmt.Errorf("writing blob header: %w", err)
	}
	if _, err := w.Write(key[:keyTagSize]); err != nil {
		return fmt.Errorf("writing key tag: %w", err)
	}
	if _, err := io.Copy(w, &maskReader{r: r, key: key}); err != nil {
		return fmt.Errorf("masking snapshot: %w", err)
	}

	e.mu.Lock()
	e.sealed++
	e.mu.Unlock()
	return nil
}

func (e *TestEncryptor) Unlock(passphrase string) (fsnap.DecryptionContext, error) {
	key := deriveKey(passphrase)
	if !bytes.Equal(key, e.currentKey()) {
		return nil, ErrWrongPassphrase
	}
	return &TestDecryptionContext{key: key}, nil
}

func (e *TestEncryptor) IsConfigured() bool {
	return true
}

// Sealed reports how many blobs Encrypt has completed.
func (e *TestEncryptor) Sealed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sealed
}

func (e *TestEncryptor) currentKey() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.key
}

// TestDecryptionContext unmasks blobs sealed under its key.
type TestDecryptionContext struct {
	key []byte
}

var _ fsnap.DecryptionContext = (*TestDecryptionContext)(nil)

func (c *TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(blobMagic)+keyTagSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading blob header: %w", err)
	}
	if !bytes.Equal(header[:len(blobMagic)], blobMagic) {
		return fmt.Errorf("not an encrypted snapshot")
	}
	if !bytes.Equal(header[len(blobMagic):], c.key[:keyTagSize]) {
		return ErrForeignBlob
	}
	if _, err := io.Copy(w, &maskReader{r: r, key: c.key}); err != nil {
		return fmt.Errorf("unmasking snapshot: %w", err)
	}
	return nil
}

func deriveKey(passphrase string) []byte {
	sum := sha256.Sum256([]byte("fsnap-test:" + passphrase))
	return sum[:]
}

// maskReader XORs the stream with the repeating key. Applying it twice
// restores the input.
type maskReader struct {
	r   io.Reader
	key []byte
	off int
}

func (m *maskReader) Read(p []byte) (int, error) {
	n, err := m.r.Read(p)
	for i := 0; i < n; i++ {
		p[i] ^= m.key[m.off%len(m.key)]
		m.off++
	}
	return n, err
}
