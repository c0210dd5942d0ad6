// Package storage builds the artifact store the API and worker share.
package storage

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"framecast/internal/adapters/storage/gdrive"
	"framecast/internal/adapters/storage/localfs"
	apperr "framecast/internal/pkg/errors"
	"framecast/internal/pkg/util"
	"framecast/internal/ports"
)

// Config selects and configures the artifact store.
type Config struct {
	// Provider is "localfs" or "gdrive".
	Provider  string
	LocalRoot string

	GDriveClientID     string
	GDriveClientSecret string
	GDriveRefreshToken string
	GDriveFolderID     string
}

// ConfigFromEnv reads STORAGE_PROVIDER, STORAGE_LOCAL_ROOT and GDRIVE_*.
func ConfigFromEnv() Config {
	return Config{
		Provider:           util.Env("STORAGE_PROVIDER", localfs.Name),
		LocalRoot:          util.Env("STORAGE_LOCAL_ROOT", "/data"),
		GDriveClientID:     util.Env("GDRIVE_CLIENT_ID", ""),
		GDriveClientSecret: util.Env("GDRIVE_CLIENT_SECRET", ""),
		GDriveRefreshToken: util.Env("GDRIVE_REFRESH_TOKEN", ""),
		GDriveFolderID:     util.Env("GDRIVE_FOLDER_ID", ""),
	}
}

// NewProvider builds the provider named by cfg.
func NewProvider(ctx context.Context, cfg Config) (ports.StorageProvider, error) {
	switch cfg.Provider {
	case "", localfs.Name:
		if cfg.LocalRoot == "" {
			return nil, apperr.Config("STORAGE_LOCAL_ROOT", "local storage root is required")
		}
		return localfs.New(cfg.LocalRoot), nil

	case gdrive.Name:
		return newGDriveProvider(ctx, cfg)

	default:
		return nil, apperr.Config("STORAGE_PROVIDER", "unknown storage provider: %s", cfg.Provider)
	}
}

func newGDriveProvider(ctx context.Context, cfg Config) (ports.StorageProvider, error) {
	for k, v := range map[string]string{
		"GDRIVE_CLIENT_ID":     cfg.GDriveClientID,
		"GDRIVE_CLIENT_SECRET": cfg.GDriveClientSecret,
		"GDRIVE_REFRESH_TOKEN": cfg.GDriveRefreshToken,
	} {
		if v == "" {
			return nil, apperr.Config(k, "missing env: %s", k)
		}
	}

	conf := &oauth2.Config{
		ClientID:     cfg.GDriveClientID,
		ClientSecret: cfg.GDriveClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
	}

	tok := &oauth2.Token{RefreshToken: cfg.GDriveRefreshToken}
	httpClient := conf.Client(context.WithoutCancel(ctx), tok)

	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return gdrive.NewClient(srv, cfg.GDriveFolderID), nil
}
