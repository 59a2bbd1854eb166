package changesets

import (
	"geo-refresh/core/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Feature implements the loader.Feature interface.
type Feature struct {
	service *Service
	handler *Handler
	enabled bool
}

// NewFeature creates the changesets feature. It is disabled when no changeset
// folder is configured.
func NewFeature(logger *zap.Logger, fs afero.Fs, dir string, retentionDays int, archive *storage.Archive) *Feature {
	svc := NewService(logger, fs, dir, retentionDays, archive)
	return &Feature{service: svc, handler: NewHandler(svc), enabled: dir != ""}
}

// Name returns the name of the feature.
func (f *Feature) Name() string {
	return "changesets"
}

// IsEnabled checks if the feature is enabled.
func (f *Feature) IsEnabled() bool {
	return f.enabled
}

// Load registers the feature's routes.
func (f *Feature) Load(app fiber.Router) error {
	f.handler.RegisterRoutes(app)
	return nil
}
