package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"tubbly/config"
	"tubbly/core"
	"tubbly/crypto"
	"tubbly/observability/logging"
	"tubbly/rpc"
	"tubbly/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("TUBBLY_ENV"))
	logger := logging.Setup("tubblyd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	key, err := ensureNodeKey(cfg.KeyFile)
	if err != nil {
		logger.Error("failed to load node key", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("node identity ready",
		slog.String("identity", crypto.EncodeIdentity(key.Identity())),
		slog.String("network", cfg.NetworkName),
	)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	opts := []core.Option{
		core.WithEventRetention(cfg.EventRetention),
		core.WithLogger(logger),
	}
	if cfg.RestrictRequestReads {
		opts = append(opts, core.WithRestrictedReads())
	}
	node := core.NewNode(db, opts...)

	server := rpc.NewServer(node, logger)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("rpc server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// ensureNodeKey loads the key file, generating one on first start.
func ensureNodeKey(path string) (*crypto.PrivateKey, error) {
	key, err := crypto.LoadKeyFile(path)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	key, err = crypto.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate node key: %w", err)
	}
	if err := crypto.SaveKeyFile(path, key); err != nil {
		return nil, fmt.Errorf("persist node key: %w", err)
	}
	return key, nil
}
