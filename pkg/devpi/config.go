package devpi

import (
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"

	apierr "github.com/devpi-tools/devpi-client/pkg/errors"
)

// fileConfig mirrors the on-disk TOML layout:
//
//	base_url = "http://localhost:3141"
//	username = "admin"
//	password = "secret"
//	# or instead of username/password:
//	# token = "devpi-..."
//	timeout_seconds = 10.0
type fileConfig struct {
	BaseURL        string  `toml:"base_url"`
	Username       string  `toml:"username"`
	Password       string  `toml:"password"`
	Token          string  `toml:"token"`
	TimeoutSeconds float64 `toml:"timeout_seconds"`
}

// LoadConfig reads client configuration from a TOML file. The returned
// Config still goes through the usual validation in New. A nil fsys means
// the OS filesystem.
func LoadConfig(fsys afero.Fs, path string) (Config, error) {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return Config{}, err
	}
	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return Config{}, apierr.Wrap(apierr.CodeValidation, err, "parse config file %s", path)
	}

	cfg := Config{
		BaseURL:  fc.BaseURL,
		Username: fc.Username,
		Password: fc.Password,
		Token:    fc.Token,
		Fs:       fsys,
	}
	if fc.TimeoutSeconds != 0 {
		cfg.Timeout = time.Duration(fc.TimeoutSeconds * float64(time.Second))
	}
	return cfg, nil
}
