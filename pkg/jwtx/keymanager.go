package jwtx

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/csis-platform/iam/pkg/cryptox"
)

// Key material file names inside the key directory. The private key is
// stored encrypted when encrypt-at-rest is enabled.
const (
	privateKeyFile          = "private.pem"
	privateKeyFileEncrypted = "private.pem.enc"
	publicKeyFile           = "public.pem"
	keyIDFile               = "keyid.txt"
)

// KeyManager owns the single active RS256 signing keypair. It wires together
// key material (cryptox), signing and verification (jwtx), and the KeySet
// used for JWKS publishing.
type KeyManager struct {
	Signer   Signer
	Verifier Verifier
	KeySet   *KeySet
}

// KeyManagerOptions configures key loading and generation.
type KeyManagerOptions struct {
	// Issuer is the issuer claim (iss) that will be validated in tokens.
	Issuer string

	// RSABits specifies the RSA key size when generating a new keypair.
	// Defaults to 2048 if not specified. Must be at least 2048.
	RSABits int

	// EncryptAtRest stores the private key AES-GCM encrypted under the
	// cryptox master key instead of as plaintext PEM.
	EncryptAtRest bool
}

// NewEphemeralKeyManager creates a KeyManager whose keypair only exists in
// memory. All tokens become invalid when the process exits, which is exactly
// what tests want.
func NewEphemeralKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	if opts.Issuer == "" {
		return nil, fmt.Errorf("jwtx: Issuer is required")
	}

	kid, err := newKeyID()
	if err != nil {
		return nil, err
	}

	pemBytes, err := cryptox.GenerateRSAKey(rsaBitsOrDefault(opts.RSABits))
	if err != nil {
		return nil, fmt.Errorf("jwtx: generate keypair: %w", err)
	}

	return buildKeyManager(kid, pemBytes, opts.Issuer)
}

// LoadOrGenerateKeyManager loads the keypair persisted under dir, or
// generates and persists a fresh one when the directory holds no key. The
// key survives restarts so previously issued tokens keep verifying.
func LoadOrGenerateKeyManager(dir string, opts KeyManagerOptions) (*KeyManager, error) {
	if opts.Issuer == "" {
		return nil, fmt.Errorf("jwtx: Issuer is required")
	}

	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("jwtx: create key directory: %w", err)
	}

	pemBytes, kid, err := loadKeyMaterial(dir, opts.EncryptAtRest)
	if err == nil {
		return buildKeyManager(kid, pemBytes, opts.Issuer)
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	// No key on disk yet, mint one.
	kid, err = newKeyID()
	if err != nil {
		return nil, err
	}

	pemBytes, err = cryptox.GenerateRSAKey(rsaBitsOrDefault(opts.RSABits))
	if err != nil {
		return nil, fmt.Errorf("jwtx: generate keypair: %w", err)
	}

	km, err := buildKeyManager(kid, pemBytes, opts.Issuer)
	if err != nil {
		return nil, err
	}

	if err := persistKeyMaterial(dir, kid, pemBytes, km.Signer.(*RS256Signer), opts.EncryptAtRest); err != nil {
		return nil, err
	}

	return km, nil
}

// IsReady returns true if the KeyManager has valid keys loaded.
func (km *KeyManager) IsReady() bool {
	return km.KeySet.IsReady()
}

// KID returns the active signing key identifier.
func (km *KeyManager) KID() string {
	return km.Signer.KID()
}

func buildKeyManager(kid string, pemBytes []byte, issuer string) (*KeyManager, error) {
	signer, err := NewSignerRS256(kid, pemBytes)
	if err != nil {
		return nil, err
	}

	keyset := NewKeySet()
	if err := keyset.AddSigner(signer); err != nil {
		return nil, err
	}

	return &KeyManager{
		Signer:   signer,
		Verifier: NewCommonRS256(keyset, issuer),
		KeySet:   keyset,
	}, nil
}

func loadKeyMaterial(dir string, encrypted bool) ([]byte, string, error) {
	keyPath := filepath.Join(dir, privateKeyFile)
	if encrypted {
		keyPath = filepath.Join(dir, privateKeyFileEncrypted)
	}

	raw, err := os.ReadFile(keyPath) // #nosec G304 - path is operator-configured
	if err != nil {
		return nil, "", err
	}

	pemBytes := raw
	if encrypted {
		pemBytes, err = cryptox.DecryptPrivateKey(raw)
		if err != nil {
			return nil, "", fmt.Errorf("jwtx: decrypt private key: %w", err)
		}
	}

	kidRaw, err := os.ReadFile(filepath.Join(dir, keyIDFile)) // #nosec G304
	if err != nil {
		return nil, "", err
	}

	kid := strings.TrimSpace(string(kidRaw))
	if kid == "" {
		return nil, "", fmt.Errorf("jwtx: empty key id in %s", keyIDFile)
	}

	return pemBytes, kid, nil
}

func persistKeyMaterial(dir, kid string, pemBytes []byte, signer *RS256Signer, encrypted bool) error {
	keyName := privateKeyFile
	keyData := pemBytes
	if encrypted {
		var err error
		keyName = privateKeyFileEncrypted
		keyData, err = cryptox.EncryptPrivateKey(pemBytes)
		if err != nil {
			return fmt.Errorf("jwtx: encrypt private key: %w", err)
		}
	}

	pubPEM, err := cryptox.EncodeRSAPublicKey(signer.PublicKey())
	if err != nil {
		return err
	}

	if err := writeFileAtomic(filepath.Join(dir, keyName), keyData, 0600); err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(dir, publicKeyFile), pubPEM, 0644); err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(dir, keyIDFile), []byte(kid+"\n"), 0644)
}

// writeFileAtomic writes via a temp file and rename so a crash mid-write
// never leaves a truncated key on disk.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".key-*")
	if err != nil {
		return fmt.Errorf("jwtx: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("jwtx: write key file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("jwtx: rename key file: %w", err)
	}
	return nil
}

// newKeyID mints a short random hex key identifier.
func newKeyID() (string, error) {
	kid, err := cryptox.GenerateHexToken(8)
	if err != nil {
		return "", fmt.Errorf("jwtx: generate key id: %w", err)
	}
	return kid, nil
}

func rsaBitsOrDefault(bits int) int {
	if bits == 0 {
		return 2048
	}
	return bits
}
