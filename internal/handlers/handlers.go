package handlers

import (
	"media-share/internal/database"
	"media-share/internal/deriver"
	"media-share/internal/media"
	"media-share/internal/startup"
)

type Handlers struct {
	db             *database.Database
	deriver        *deriver.Runner
	prober         *media.Prober
	storageRoot    string
	intakeDir      string
	maxUploadBytes int64
}

func New(db *database.Database, runner *deriver.Runner, config *startup.Config) *Handlers {
	prober := media.NewProber()
	prober.Timeout = config.ProbeTimeout
	return &Handlers{
		db:             db,
		deriver:        runner,
		prober:         prober,
		storageRoot:    config.StorageDir,
		intakeDir:      config.IntakeDir,
		maxUploadBytes: config.MaxUploadBytes,
	}
}
