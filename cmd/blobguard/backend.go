package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"blobguard/internal/api"
	"blobguard/internal/config"
	"blobguard/internal/localnet"
	"blobguard/internal/models"
	"blobguard/internal/network"
	"blobguard/internal/store"
)

const gatewayPingTimeout = 2 * time.Second

var errSignerRequired = errors.New("signer key is required")

// backend bundles the collaborators a command runs against.
type backend struct {
	ledger  network.LedgerClient
	storage network.StorageClient
	vault   *store.Store
	logger  *slog.Logger
}

type backendNeeds struct {
	vault bool
}

func withBackend(cfg *config.Config, needs backendNeeds, fn func(*backend) error) error {
	b, err := openBackend(cfg, needs)
	if err != nil {
		return err
	}
	defer b.close()
	return fn(b)
}

func openBackend(cfg *config.Config, needs backendNeeds) (*backend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config not initialized")
	}
	b := &backend{logger: slog.Default()}

	switch cfg.Backend {
	case config.BackendGateway:
		client := api.NewClient(cfg.GatewayURL)
		ctx, cancel := context.WithTimeout(context.Background(), gatewayPingTimeout)
		defer cancel()
		if err := client.Ping(ctx); err != nil {
			return nil, fmt.Errorf("gateway %s unreachable: %w", cfg.GatewayURL, err)
		}
		b.ledger, b.storage = client, client
	default:
		lnet, err := openLocalnet(cfg)
		if err != nil {
			return nil, err
		}
		b.ledger, b.storage = lnet, lnet
	}

	if needs.vault {
		if cfg.DBPath == "" {
			return nil, fmt.Errorf("db path is required")
		}
		b.logger.Debug("opening vault", "path", cfg.DBPath)
		st, err := store.Open(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		b.vault = st
	}
	return b, nil
}

func openLocalnet(cfg *config.Config) (*localnet.Network, error) {
	return localnet.Open(localnet.Options{
		Dir:           cfg.LocalnetDir(),
		Persist:       true,
		CertifyDelay:  cfg.Localnet.CertifyDelay.Duration,
		EpochDuration: cfg.Localnet.EpochDuration.Duration,
		Logger:        slog.Default(),
	})
}

func (b *backend) close() {
	if b.vault != nil {
		_ = b.vault.Close()
	}
}

func loadSigner(cfg *config.Config) (network.Signer, error) {
	if cfg.SignerKey == "" {
		return nil, errSignerRequired
	}
	signer, err := network.NewKeySigner(cfg.SignerKey)
	if err != nil {
		return nil, fmt.Errorf("load signer: %w", err)
	}
	return signer, nil
}

// vaultRecord loads a tracked record, mapping absence to store.ErrRecordNotFound.
func (b *backend) vaultRecord(ctx context.Context, blobID string) (*models.BlobRecord, error) {
	record, err := b.vault.GetBlobRecord(ctx, blobID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %s", store.ErrRecordNotFound, blobID)
	}
	return record, nil
}
