package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/couchcryptid/cap-alerts-etl/internal/config"
	"github.com/couchcryptid/cap-alerts-etl/internal/domain"
)

// Archiver keeps a copy of every raw document read.
type Archiver interface {
	Archive(ctx context.Context, path string, data []byte) error
}

// CAPTransformer implements Transformer with the domain CAP functions.
type CAPTransformer struct {
	rules    domain.Rules
	baseURL  string
	basePath string
	archive  Archiver
	logger   *slog.Logger
}

// RulesFromConfig returns the parameter rules, preferring the configured
// valueNames and falling back to the positional layout.
func RulesFromConfig(cfg *config.Config) domain.Rules {
	rules := domain.DefaultRules
	rules.Status.Name = cfg.StatusParam
	rules.WarningType.Name = cfg.AlertTypeParam
	return rules
}

// NewTransformer creates a CAPTransformer. Pass a nil archive to disable
// raw document archiving.
func NewTransformer(cfg *config.Config, archive Archiver, logger *slog.Logger) *CAPTransformer {
	return &CAPTransformer{
		rules:    RulesFromConfig(cfg),
		baseURL:  cfg.PublicBaseURL,
		basePath: cfg.GeometWeatherBasePath,
		archive:  archive,
		logger:   logger,
	}
}

func (t *CAPTransformer) Transform(ctx context.Context, raw domain.RawDocument) (domain.Result, error) {
	data := raw.Data
	if data == nil {
		var err error
		if data, err = os.ReadFile(raw.Path); err != nil {
			return domain.Result{}, fmt.Errorf("read cap file: %w", err)
		}
	}

	if t.archive != nil {
		if err := t.archive.Archive(ctx, raw.Path, data); err != nil {
			t.logger.Warn("archive failed", "error", err, "path", raw.Path)
		}
	}

	doc, err := domain.ParseDocument(data, t.rules)
	if err != nil {
		return domain.Result{}, fmt.Errorf("%s: %w", raw.Path, err)
	}

	url := domain.PublicURL(t.baseURL, t.basePath, raw.Path)
	res, err := domain.Transform(doc, url)
	if err != nil {
		return domain.Result{}, fmt.Errorf("%s: %w", raw.Path, err)
	}

	t.logger.Debug("cap document transformed",
		"path", raw.Path,
		"identifier", res.Identifier,
		"features", len(res.Features),
	)
	return res, nil
}
