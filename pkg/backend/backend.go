// Package backend opens the storage engine named in the config file.
package backend

import (
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/go-viper/mapstructure/v2"

	"github.com/ssargent/pinkv/pkg/config"
	"github.com/ssargent/pinkv/pkg/engine"
	"github.com/ssargent/pinkv/pkg/engine/logstore"
	"github.com/ssargent/pinkv/pkg/engine/pebbleengine"
	"github.com/ssargent/pinkv/pkg/logging"
	"github.com/ssargent/pinkv/pkg/pinned"
)

// Deps are the process-wide collaborators handed to every engine.
type Deps struct {
	Logger   *logging.Logger
	Observer pinned.Observer
}

// Opener opens an engine from a config. Open is the production Opener;
// tests substitute their own.
type Opener func(cfg *config.Config, deps Deps) (engine.Engine, error)

// Dir returns the directory the backend named in cfg stores its data in.
func Dir(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, cfg.Engine.Backend)
}

// Open validates cfg and opens the engine it selects.
func Open(cfg *config.Config, deps Deps) (engine.Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}

	switch cfg.Engine.Backend {
	case config.BackendPebble:
		var opts pebbleengine.Options
		if err := DecodeOptions(cfg.Engine.Options, &opts); err != nil {
			return nil, errors.Wrapf(err, "%s options", cfg.Engine.Backend)
		}
		opts.Families = cfg.Engine.ColumnFamilies
		opts.Logger = deps.Logger
		opts.Observer = deps.Observer
		return pebbleengine.Open(Dir(cfg), opts)

	case config.BackendLogStore:
		var opts logstore.Options
		if err := DecodeOptions(cfg.Engine.Options, &opts); err != nil {
			return nil, errors.Wrapf(err, "%s options", cfg.Engine.Backend)
		}
		opts.DataDir = Dir(cfg)
		opts.Families = cfg.Engine.ColumnFamilies
		opts.Logger = deps.Logger
		opts.Observer = deps.Observer
		return logstore.Open(opts)
	}

	// Validate rejects every other backend.
	return nil, errors.Newf("unknown engine backend %q", cfg.Engine.Backend)
}

// DecodeOptions decodes the free-form engine.options block into out, a
// pointer to a backend Options struct. Durations may be given as strings
// such as "250ms", and unknown keys are an error.
func DecodeOptions(raw map[string]interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(raw)
}
