package bunker

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"filippo.io/age"
	"gopkg.in/yaml.v3"
)

// DecodePublicKey decodes a base64-encoded Ed25519 public key as stored
// in a Principal entry. Exported so other packages (registry) can decode
// the same field without duplicating the format.
func DecodePublicKey(b64 string) (ed25519.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// Store owns the on-disk encrypted bunker file: decrypting it into a
// Document at engage time, and re-encrypting an updated Document back to
// disk. The host identity is always tried first; the operator identity
// (obtained through internal/unlock) is the fallback so an operator can
// recover a bunker even if the host identity file is lost or rotated.
type Store struct {
	path           string
	hostIdentity   *age.X25519Identity
	hostRecipient  *age.X25519Recipient
}

// NewStore returns a Store bound to path that decrypts and encrypts with
// hostIdentity (see LoadHostIdentity for loading or generating one). The
// host identity is how turret re-reads its own bunker across restarts
// without operator involvement; the operator fallback identity only
// matters for recovery.
func NewStore(path string, hostIdentity *age.X25519Identity) *Store {
	return &Store{
		path:          path,
		hostIdentity:  hostIdentity,
		hostRecipient: hostIdentity.Recipient(),
	}
}

// LoadHostIdentity reads an existing host identity file (age's standard
// "AGE-SECRET-KEY-1..." text format) or generates and persists a new one
// if identityPath does not exist yet.
func LoadHostIdentity(identityPath string) (*age.X25519Identity, error) {
	raw, err := os.ReadFile(identityPath)
	if os.IsNotExist(err) {
		id, genErr := age.GenerateX25519Identity()
		if genErr != nil {
			return nil, fmt.Errorf("bunker: generating host identity: %w", genErr)
		}
		contents := fmt.Sprintf("# turret host identity, generated on first run\n%s\n", id.String())
		if writeErr := os.WriteFile(identityPath, []byte(contents), 0o600); writeErr != nil {
			return nil, fmt.Errorf("bunker: persisting host identity: %w", writeErr)
		}
		return id, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bunker: reading host identity: %w", err)
	}
	ids, err := age.ParseIdentities(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("bunker: parsing host identity: %w", err)
	}
	for _, candidate := range ids {
		if x, ok := candidate.(*age.X25519Identity); ok {
			return x, nil
		}
	}
	return nil, fmt.Errorf("bunker: %s contains no X25519 identity", identityPath)
}

// Load decrypts and parses the bunker document. It tries the host
// identity first; if decryption fails with that identity (the file was
// recovered on a new host, or the host identity was rotated), it falls
// back to operatorIdentity when the caller supplies one. A nil
// operatorIdentity skips the fallback, so unattended restarts on the
// provisioning host never block on an operator prompt.
func (s *Store) Load(operatorIdentity age.Identity) (*Document, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("bunker: opening %s: %w", s.path, err)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("bunker: reading %s: %w", s.path, err)
	}

	plaintext, err := age.Decrypt(bytes.NewReader(raw), s.hostIdentity)
	if err != nil && operatorIdentity != nil {
		plaintext, err = age.Decrypt(bytes.NewReader(raw), operatorIdentity)
	}
	if err != nil {
		return nil, fmt.Errorf("bunker: decrypting %s: %w", s.path, err)
	}

	plainBytes, err := io.ReadAll(plaintext)
	if err != nil {
		return nil, fmt.Errorf("bunker: reading decrypted contents: %w", err)
	}

	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(plainBytes))
	dec.KnownFields(true) // spec.md §6: "Unknown keys are rejected in v1"
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("bunker: parsing document: %w", err)
	}
	if err := Validate(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Save re-encrypts doc to disk against the host recipient plus every
// operator recipient string recorded in doc.Operators.Recipients, so an
// operator identity alone (without the host identity) can still recover
// the bunker later.
func (s *Store) Save(doc *Document) error {
	if err := Validate(doc); err != nil {
		return err
	}

	plainBytes, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("bunker: marshaling document: %w", err)
	}

	recipients := []age.Recipient{s.hostRecipient}
	for _, r := range doc.Operators.Recipients {
		parsed, err := parseOperatorRecipient(r)
		if err != nil {
			return fmt.Errorf("bunker: operator recipient %q: %w", r, err)
		}
		recipients = append(recipients, parsed)
	}

	var ciphertext bytes.Buffer
	w, err := age.Encrypt(&ciphertext, recipients...)
	if err != nil {
		return fmt.Errorf("bunker: opening encrypt stream: %w", err)
	}
	if _, err := w.Write(plainBytes); err != nil {
		return fmt.Errorf("bunker: encrypting document: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("bunker: finalizing encryption: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, ciphertext.Bytes(), 0o600); err != nil {
		return fmt.Errorf("bunker: writing temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("bunker: renaming into place: %w", err)
	}
	return nil
}

// parseOperatorRecipient parses a recipient string the core otherwise
// treats as opaque (spec.md §3: "core never interprets a recipient
// string"); this is the one place that string is given meaning, and only
// at save time, to keep the bunker recoverable by any of its recipients.
func parseOperatorRecipient(s string) (age.Recipient, error) {
	return age.ParseX25519Recipient(s)
}
