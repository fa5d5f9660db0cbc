package storage

import (
	"context"
	"fmt"

	"plumenote-server/internal/config"
	"plumenote-server/internal/repository"

	"go.uber.org/zap"
)

// OpenerFor returns the opener for the configured storage driver.
func OpenerFor(cfg config.StorageConfig, logger *zap.Logger) (Opener, error) {
	switch cfg.Driver {
	case "couchdb":
		couch := repository.CouchDBConfig{
			Host:     cfg.CouchDB.Host,
			Port:     cfg.CouchDB.Port,
			User:     cfg.CouchDB.User,
			Password: cfg.CouchDB.Password,
			Name:     cfg.CouchDB.Name,
		}
		return func(ctx context.Context) (repository.Store, error) {
			return repository.OpenCouchDB(ctx, couch, logger)
		}, nil

	case "badger":
		badger := repository.BadgerConfig{
			Path:       cfg.Badger.Path,
			InMemory:   cfg.Badger.InMemory,
			SyncWrites: cfg.Badger.SyncWrites,
		}
		return func(ctx context.Context) (repository.Store, error) {
			return repository.OpenBadger(badger, logger)
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver: %q", cfg.Driver)
	}
}
