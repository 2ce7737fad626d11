package app

import (
	"fmt"
	"log/slog"

	"github.com/csis-platform/iam/pkg/cryptox"
	"github.com/csis-platform/iam/pkg/jwtx"
)

// InitKeys creates the RS256 KeyManager.
//
// Storage modes:
//   - "persistent": the keypair lives under cfg.KeyDir and survives restarts,
//     so previously issued tokens keep verifying. Optionally encrypted at
//     rest under the cryptox master key.
//   - "ephemeral": a fresh keypair per process. Every restart invalidates all
//     outstanding tokens. Useful for tests and throwaway environments.
func InitKeys(cfg Config, logger *slog.Logger) (*jwtx.KeyManager, error) {
	if cfg.MasterKeyPath != "" {
		cryptox.SetMasterKeyPath(cfg.MasterKeyPath)
		logger.Info("master key path configured", "path", cfg.MasterKeyPath)
	}

	opts := jwtx.KeyManagerOptions{
		Issuer:        cfg.Issuer,
		RSABits:       cfg.RSABits,
		EncryptAtRest: cfg.KeyEncryptAtRest,
	}

	if cfg.KeyStorageMode == "ephemeral" {
		km, err := jwtx.NewEphemeralKeyManager(opts)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ephemeral key manager: %w", err)
		}
		logger.Warn("ephemeral signing key generated; all previously issued tokens are now invalid",
			"kid", km.KID(),
		)
		return km, nil
	}

	km, err := jwtx.LoadOrGenerateKeyManager(cfg.KeyDir, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize persistent key manager: %w", err)
	}

	logger.Info("signing key loaded",
		"kid", km.KID(),
		"dir", cfg.KeyDir,
		"encrypted_at_rest", cfg.KeyEncryptAtRest,
		"issuer", cfg.Issuer,
	)

	return km, nil
}
