package cmd

import (
	"context"

	"starload/internal/catalog"
	"starload/internal/config"
	"starload/internal/credentials"
	"starload/internal/storage"
	"starload/internal/ui"
	"starload/internal/warehouse"
)

// warehouseConn is an open warehouse session.
type warehouseConn interface {
	warehouse.Executor
	Ping(ctx context.Context) error
	Close() error
}

// sourceChecker verifies the bulk-load sources.
type sourceChecker interface {
	Preflight(ctx context.Context, src catalog.Sources) ([]storage.Result, error)
	Close() error
}

// Constructors for external systems. Tests replace them.
var (
	connectWarehouse = func(ctx context.Context, cfg *config.Config) (warehouseConn, error) {
		svc := warehouse.NewService(warehouse.Config{
			DSN:       cfg.Cluster.DSN,
			Password:  cfg.Cluster.Password,
			Timeout:   cfg.Cluster.Timeout,
			Passwords: credentials.NewKeyring(),
		})
		if err := svc.Connect(ctx); err != nil {
			return nil, err
		}
		return svc, nil
	}

	newSourceChecker = func(cfg *config.Config) sourceChecker {
		return storage.NewInspector(cfg.S3.Region)
	}

	confirm = ui.Confirm
)
