package app

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"

	"github.com/go-faster/errors"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Blackdeer1524/bufmgr/src"
	"github.com/Blackdeer1524/bufmgr/src/bufferpool"
	"github.com/Blackdeer1524/bufmgr/src/cfg"
	"github.com/Blackdeer1524/bufmgr/src/pkg/utils"
	"github.com/Blackdeer1524/bufmgr/src/storage/disk"
	"github.com/Blackdeer1524/bufmgr/src/workload"
)

type OutputMode int

const (
	OutputText OutputMode = iota
	OutputJSON
	OutputFrames
)

// WorkloadEntrypoint runs the synthetic workload against a buffer pool
// backed by page files on disk.
type WorkloadEntrypoint struct {
	ConfigPath string
	Output     OutputMode
	Out        io.Writer

	// Fs defaults to the OS filesystem.
	Fs afero.Fs

	cfg    cfg.Config
	log    src.Logger
	disk   *disk.Manager
	pool   *bufferpool.Manager
	runner *workload.Runner
}

func (e *WorkloadEntrypoint) Init(_ context.Context) error {
	config, err := cfg.Load(e.ConfigPath)
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	e.cfg = config

	if e.log == nil {
		if e.cfg.Environment == cfg.EnvDev {
			e.log = utils.Must(zap.NewDevelopment()).Sugar()
		} else {
			e.log = utils.Must(zap.NewProduction()).Sugar()
		}
	}

	if e.Out == nil {
		e.Out = os.Stdout
	}

	if e.Fs == nil {
		e.Fs = afero.NewOsFs()
	}

	if uint64(e.cfg.Workers) > e.cfg.PoolSize { //nolint:gosec
		e.log.Warnw(
			"more workers than frames, fetches may report an exhausted pool",
			"workers", e.cfg.Workers,
			"pool_size", e.cfg.PoolSize,
		)
	}

	e.disk = disk.New(e.cfg.DataDir, e.Fs)

	files := make([]bufferpool.File, 0, e.cfg.Files)
	for i := range e.cfg.Files {
		f, err := e.disk.Open(fmt.Sprintf("file_%d.db", i))
		if err != nil {
			return multierr.Append(errors.Wrap(err, "open page file"), e.disk.Close())
		}

		files = append(files, f)
	}

	e.pool, err = bufferpool.New(e.cfg.PoolSize, bufferpool.WithLogger(e.log))
	if err != nil {
		return multierr.Append(errors.Wrap(err, "create buffer pool"), e.disk.Close())
	}

	e.runner = workload.New(e.pool, files, workload.Config{
		Workers:      e.cfg.Workers,
		Operations:   e.cfg.Operations,
		PagesPerFile: e.cfg.PagesPerFile,
		Seed:         e.cfg.Seed,
	}, e.log)

	e.log.Infow(
		"buffer pool initialised",
		"environment", e.cfg.Environment,
		"pool_size", e.cfg.PoolSize,
		"data_dir", e.cfg.DataDir,
		"files", e.cfg.Files,
	)

	return nil
}

func (e *WorkloadEntrypoint) Run(ctx context.Context) error {
	if err := e.runner.Prepare(); err != nil {
		return errors.Wrap(err, "prepare workload")
	}

	if e.cfg.Dispose > 0 {
		rng := rand.New(rand.NewSource(e.cfg.Seed)) //nolint:gosec
		if err := e.runner.DisposeRandom(e.cfg.Dispose, rng); err != nil {
			return errors.Wrap(err, "dispose pages")
		}
	}

	report, err := e.runner.Run(ctx)
	if err != nil {
		return err
	}

	return e.print(report)
}

func (e *WorkloadEntrypoint) print(report workload.Report) error {
	var out []byte

	switch e.Output {
	case OutputJSON:
		out = encodeReport(report)
	case OutputFrames:
		out = bufferpool.EncodeFrames(e.pool.Dump())
	default:
		_, err := fmt.Fprintf(
			e.Out,
			"run %s: %d operations, %d writes, %d pages verified\n"+
				"hits %d, misses %d, evictions %d, write-backs %d, exhausted retries %d\n",
			report.RunID, report.Operations, report.Writes, report.Verified,
			report.Stats.Hits, report.Stats.Misses, report.Stats.Evictions,
			report.Stats.WriteBacks, report.Exhausted,
		)

		return err
	}

	out = append(out, '\n')
	_, err := e.Out.Write(out)

	return err
}

func (e *WorkloadEntrypoint) Close() (err error) {
	if e.pool != nil {
		err = multierr.Append(err, e.pool.Close())
	}

	if e.disk != nil {
		err = multierr.Append(err, e.disk.Close())
	}

	if e.log != nil {
		if err != nil {
			e.log.Errorw("failed to close buffer pool", zap.Error(err))
		}

		// Sync returns EINVAL on terminals.
		_ = e.log.Sync()
	}

	return
}
