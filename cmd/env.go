package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/afero"

	"github.com/sells-group/afm-api/internal/service"
)

// dataFs is the filesystem the data root is read from. Tests swap in a
// MemMapFs.
var dataFs afero.Fs = afero.NewOsFs()

// initService validates the configuration for mode and builds the service.
// Callers should defer svc.Close().
func initService(mode string) (*service.Service, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	svc, err := service.New(cfg, dataFs)
	if err != nil {
		return nil, eris.Wrap(err, "init service")
	}
	return svc, nil
}
