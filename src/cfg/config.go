package cfg

import (
	"io/fs"
	"path/filepath"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "BUFMGR"

const (
	EnvDev  Environment = "dev"
	EnvProd Environment = "prod"

	DefaultEnv = EnvDev
)

type Environment string

func (e Environment) Validate() error {
	if e != EnvDev && e != EnvProd {
		return errors.Errorf("environment must be either %s or %s, got %q", EnvDev, EnvProd, e)
	}

	return nil
}

type Config struct {
	Environment Environment `default:"dev"`

	PoolSize     uint64 `split_words:"true" default:"64"`
	DataDir      string `split_words:"true" default:"./data"`
	Files        int    `default:"2"`
	PagesPerFile int    `split_words:"true" default:"256"`
	Workers      int    `default:"4"`
	Operations   int    `default:"10000"`
	Dispose      int    `default:"0"`
	Seed         int64
}

func (c Config) Validate() error {
	if err := c.Environment.Validate(); err != nil {
		return err
	}

	switch {
	case c.PoolSize == 0:
		return errors.New("pool size must be greater than zero")
	case c.Files <= 0:
		return errors.New("files must be greater than zero")
	case c.PagesPerFile <= 0:
		return errors.New("pages per file must be greater than zero")
	case c.Workers <= 0:
		return errors.New("workers must be greater than zero")
	case c.Operations < 0:
		return errors.New("operations must not be negative")
	case c.Dispose < 0:
		return errors.New("dispose must not be negative")
	}

	return nil
}

// Load reads <dir>/.env if it exists and then BUFMGR_* variables from the
// environment. Variables already set in the environment win over the file.
func Load(dir string) (Config, error) {
	if dir != "" {
		err := godotenv.Load(filepath.Join(dir, ".env"))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, errors.Wrap(err, "load .env")
		}
	}

	var c Config
	if err := envconfig.Process(envPrefix, &c); err != nil {
		return Config{}, errors.Wrap(err, "process environment")
	}

	if err := c.Validate(); err != nil {
		return Config{}, errors.Wrap(err, "validate config")
	}

	return c, nil
}
