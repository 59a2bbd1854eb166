package cmd

import (
	"fmt"
	"os"

	"geo-refresh/core/config"
	"geo-refresh/core/featureservice"
	"geo-refresh/core/logger"
	"geo-refresh/core/storage"
	"geo-refresh/feature/refresh"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// runtime holds everything a command needs, built from configuration.
type runtime struct {
	cfg     *config.Config
	logger  *zap.Logger
	fs      afero.Fs
	archive *storage.Archive
	jobs    *refresh.Jobs
	refresh *refresh.Service
}

func setup() (*runtime, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logg, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	zap.ReplaceGlobals(logg)

	fs := afero.NewOsFs()
	jobs, err := refresh.LoadJobs(fs, cfg.Refresh.JobsFile)
	if err != nil {
		return nil, err
	}

	var archive *storage.Archive
	if cfg.Storage.Enabled {
		client, err := storage.NewClient(cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		archive = storage.NewArchive(client, cfg.Storage.Bucket, cfg.Storage.Prefix)
	}

	portal := featureservice.NewClient(cfg.Portal, nil, logg)
	svc := refresh.NewService(logg, cfg.Refresh, cfg.Database, portal, jobs).WithFs(fs)
	if archive != nil {
		svc.WithArchive(archive)
	}

	return &runtime{
		cfg:     cfg,
		logger:  logg,
		fs:      fs,
		archive: archive,
		jobs:    jobs,
		refresh: svc,
	}, nil
}

// passwordEnv is read when a username is given without --password.
const passwordEnv = "PORTAL_PASSWORD"

// credentialFlags are the portal login flags shared by commands that may touch
// a feature service.
type credentialFlags struct {
	profile   string
	portalURL string
	username  string
	password  string
}

func (f *credentialFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.profile, "profile", "", "Credential profile from the jobs file")
	cmd.Flags().StringVar(&f.portalURL, "portal-url", "", "Portal URL for feature service targets")
	cmd.Flags().StringVar(&f.username, "username", "", "Portal username")
	cmd.Flags().StringVar(&f.password, "password", "", "Portal password (defaults to $"+passwordEnv+")")
}

func (f *credentialFlags) credentials() refresh.Credentials {
	password := f.password
	if password == "" && f.username != "" {
		password = os.Getenv(passwordEnv)
	}
	return refresh.Credentials{
		Profile:   f.profile,
		PortalURL: f.portalURL,
		Username:  f.username,
		Password:  password,
	}
}
