package main

import (
	"context"
	"fmt"

	"github.com/JaimeStill/expedite/internal/app"
	"github.com/JaimeStill/expedite/internal/config"
	"github.com/JaimeStill/expedite/internal/infrastructure"
)

// session is one loaded configuration with its infrastructure and domain.
type session struct {
	cfg    *config.Config
	infra  *infrastructure.Infrastructure
	domain *app.Domain
}

// open loads configuration and builds the domain. With start set it also
// runs the infrastructure startup checks.
func open(ctx context.Context, path string, start bool) (*session, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}

	infra, err := infrastructure.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if start {
		if err := infra.Start(); err != nil {
			infra.Close()
			return nil, fmt.Errorf("startup: %w", err)
		}
	}

	domain, err := app.NewDomain(cfg, infra)
	if err != nil {
		infra.Close()
		return nil, err
	}

	infra.Logger.Info("expedite ready", "version", cfg.Version, "env", cfg.Env(), "mode", cfg.Mode)
	return &session{cfg: cfg, infra: infra, domain: domain}, nil
}

func (s *session) Close() {
	if err := s.infra.Close(); err != nil {
		s.infra.Logger.Error("shutdown incomplete", "error", err)
	}
}
