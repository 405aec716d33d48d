package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/OCAP2/vehicledyn/internal/api"
	"github.com/OCAP2/vehicledyn/internal/config"
	"github.com/OCAP2/vehicledyn/internal/storage"

	"github.com/spf13/viper"
)

func initStorage() (storage.Backend, error) {
	storageCfg := config.GetStorageConfig()
	if storageCfg.Type == storage.TypeWebSocket && storageCfg.WebSocket.URL == "" {
		storageCfg.WebSocket.URL = httpToWS(viper.GetString("api.serverUrl")) + "/api/v1/stream"
		storageCfg.WebSocket.Secret = viper.GetString("api.apiKey")
	}

	backend, err := storage.NewBackend(storageCfg, storage.Dependencies{
		LogManager: SlogManager,
		Logger:     Logger,
		ZeroLog:    ZeroLog,
		BackupDir:  viper.GetString("logsDir"),
	})
	if err != nil {
		Logger.Error("Failed to create storage backend", "error", err)
		return nil, err
	}
	if err := backend.Init(); err != nil {
		Logger.Error("Failed to initialize storage backend", "error", err)
		return nil, fmt.Errorf("failed to initialize %s storage: %w", storageCfg.Type, err)
	}
	Logger.Info("Storage backend initialized", "type", storageCfg.Type)
	return backend, nil
}

// uploadRecording sends the exported file of an Uploadable backend to the
// dashboard.
func uploadRecording(ctx context.Context, backend storage.Backend) error {
	u, ok := backend.(storage.Uploadable)
	if !ok {
		Logger.Warn("Storage backend does not produce uploadable files", "type", viper.GetString("storage.type"))
		return nil
	}
	path := u.GetExportedFilePath()
	if path == "" {
		return fmt.Errorf("no exported recording to upload")
	}

	client := api.New(viper.GetString("api.serverUrl"), viper.GetString("api.apiKey"))
	if err := client.Healthcheck(ctx); err != nil {
		return fmt.Errorf("dashboard offline: %w", err)
	}
	if err := client.Upload(ctx, path, u.GetExportMetadata()); err != nil {
		return err
	}
	Logger.Info("Uploaded recording", "path", path)
	return nil
}

// httpToWS converts an HTTP(S) URL to a WebSocket URL.
func httpToWS(httpURL string) string {
	s := strings.TrimRight(httpURL, "/")
	s = strings.Replace(s, "https://", "wss://", 1)
	s = strings.Replace(s, "http://", "ws://", 1)
	return s
}
