package workload

import (
	"context"
	"math/rand"
	"runtime"
	"sync"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/panjf2000/ants"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Blackdeer1524/bufmgr/src"
	"github.com/Blackdeer1524/bufmgr/src/bufferpool"
	"github.com/Blackdeer1524/bufmgr/src/pkg/common"
	"github.com/Blackdeer1524/bufmgr/src/pkg/utils"
)

// maxExhaustedRetries bounds how often a worker retries a fetch that found
// every frame pinned by other workers.
const maxExhaustedRetries = 64

var ErrCorruptPage = errors.New("page contents do not match the last write")

type Config struct {
	Workers      int
	Operations   int
	PagesPerFile int
	Seed         int64
}

type Report struct {
	RunID      string
	Operations int
	Writes     int
	Exhausted  int
	Verified   int
	Stats      bufferpool.Stats
}

// Runner drives a buffer pool with a synthetic read/modify workload and
// checks that every page reads back what was last written to it.
type Runner struct {
	pool  *bufferpool.Manager
	files []bufferpool.File
	cfg   Config
	log   src.Logger

	pages  []common.PageIdentity
	stamps map[common.PageIdentity]uint64
}

func New(
	pool *bufferpool.Manager,
	files []bufferpool.File,
	cfg Config,
	log src.Logger,
) *Runner {
	return &Runner{
		pool:   pool,
		files:  files,
		cfg:    cfg,
		log:    log,
		stamps: make(map[common.PageIdentity]uint64),
	}
}

// Prepare allocates the working set in every file and stamps each new page.
func (r *Runner) Prepare() error {
	for _, file := range r.files {
		for range r.cfg.PagesPerFile {
			pageID, h, err := r.pool.Allocate(file)
			if err != nil {
				return errors.Wrapf(err, "prepare file %d", file.ID())
			}

			data, err := h.Data()
			if err != nil {
				return err
			}

			ident := h.Ident()
			stamp := uint64(len(r.pages)) + 1
			utils.Stamp(data, stamp)

			if err := r.pool.Release(file, pageID, true); err != nil {
				return err
			}

			r.pages = append(r.pages, ident)
			r.stamps[ident] = stamp
		}
	}

	return nil
}

func (r *Runner) fileByID(id common.FileID) bufferpool.File {
	for _, f := range r.files {
		if f.ID() == id {
			return f
		}
	}

	return nil
}

type workerState struct {
	id     int
	ops    int
	pages  []common.PageIdentity
	stamps map[common.PageIdentity]uint64
	rng    *rand.Rand

	done      int
	writes    int
	exhausted int
}

// Run executes the workload on a pool of worker goroutines. Every worker
// owns a disjoint subset of pages, so page bytes are never shared between
// workers while pinned. After the workers finish, every file is flushed and
// each page is read back and verified.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	report := Report{RunID: uuid.NewString()}

	ctx, span := otel.Tracer("github.com/Blackdeer1524/bufmgr/src/workload").Start(
		ctx,
		"workload.run",
		trace.WithAttributes(
			attribute.String("run_id", report.RunID),
			attribute.Int("workers", r.cfg.Workers),
			attribute.Int("operations", r.cfg.Operations),
			attribute.Int64("pool_size", int64(r.pool.PoolSize())), //nolint:gosec
		),
	)
	defer span.End()

	err := r.run(ctx, &report)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		r.log.Errorw("workload failed", "run_id", report.RunID, zap.Error(err))

		return report, err
	}

	report.Stats = r.pool.Stats()
	r.log.Infow(
		"workload finished",
		"run_id", report.RunID,
		"operations", report.Operations,
		"writes", report.Writes,
		"exhausted", report.Exhausted,
		"verified", report.Verified,
		"hits", report.Stats.Hits,
		"misses", report.Stats.Misses,
		"evictions", report.Stats.Evictions,
	)

	return report, nil
}

func (r *Runner) run(ctx context.Context, report *Report) error {
	if len(r.pages) == 0 {
		return errors.New("workload is not prepared")
	}

	workers := r.partition()

	pool, err := ants.NewPool(len(workers))
	if err != nil {
		return errors.Wrap(err, "create worker pool")
	}
	defer pool.Release()

	var wg sync.WaitGroup
	errs := make([]error, len(workers))

	for i, w := range workers {
		wg.Add(1)

		submitErr := pool.Submit(func() {
			defer wg.Done()
			errs[i] = r.work(ctx, w)
		})
		if submitErr != nil {
			wg.Done()
			errs[i] = errors.Wrapf(submitErr, "submit worker %d", i)
		}
	}
	wg.Wait()

	for _, w := range workers {
		report.Operations += w.done
		report.Writes += w.writes
		report.Exhausted += w.exhausted

		for ident, stamp := range w.stamps {
			r.stamps[ident] = stamp
		}
	}

	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	for _, f := range r.files {
		if err := r.pool.Flush(f); err != nil {
			return errors.Wrapf(err, "flush file %d", f.ID())
		}
	}

	verified, err := r.verify()
	report.Verified = verified

	return err
}

func (r *Runner) partition() []*workerState {
	n := min(r.cfg.Workers, len(r.pages))

	workers := make([]*workerState, n)
	for i := range workers {
		workers[i] = &workerState{
			id:     i,
			ops:    r.cfg.Operations / n,
			stamps: make(map[common.PageIdentity]uint64),
			rng:    rand.New(rand.NewSource(r.cfg.Seed + int64(i))), //nolint:gosec
		}
		if i < r.cfg.Operations%n {
			workers[i].ops++
		}
	}

	for i, ident := range r.pages {
		w := workers[i%n]
		w.pages = append(w.pages, ident)
		w.stamps[ident] = r.stamps[ident]
	}

	return workers
}

func (r *Runner) work(ctx context.Context, w *workerState) error {
	for range w.ops {
		if err := ctx.Err(); err != nil {
			return err
		}

		ident := w.pages[w.rng.Intn(len(w.pages))]
		file := r.fileByID(ident.FileID)

		h, err := r.fetch(file, ident, w)
		if err != nil {
			return err
		}

		data, err := h.Data()
		if err != nil {
			return err
		}

		if !utils.HasStamp(data, w.stamps[ident]) {
			_ = r.pool.Release(file, ident.PageID, false)
			return errors.Wrapf(ErrCorruptPage, "worker %d, page %s", w.id, ident)
		}

		dirty := w.rng.Intn(2) == 0
		if dirty {
			stamp := w.rng.Uint64()
			utils.Stamp(data, stamp)
			w.stamps[ident] = stamp
			w.writes++
		}

		if err := r.pool.Release(file, ident.PageID, dirty); err != nil {
			return err
		}

		w.done++
	}

	return nil
}

func (r *Runner) fetch(
	file bufferpool.File,
	ident common.PageIdentity,
	w *workerState,
) (*bufferpool.PageHandle, error) {
	for attempt := 0; ; attempt++ {
		h, err := r.pool.Fetch(file, ident.PageID)
		if err == nil {
			return h, nil
		}

		if !errors.Is(err, bufferpool.ErrPoolExhausted) || attempt == maxExhaustedRetries {
			return nil, err
		}

		w.exhausted++
		runtime.Gosched()
	}
}

func (r *Runner) verify() (int, error) {
	verified := 0

	for _, ident := range r.pages {
		file := r.fileByID(ident.FileID)

		h, err := r.pool.Fetch(file, ident.PageID)
		if err != nil {
			return verified, err
		}

		data, err := h.Data()
		if err != nil {
			return verified, err
		}

		ok := utils.HasStamp(data, r.stamps[ident])

		if err := r.pool.Release(file, ident.PageID, false); err != nil {
			return verified, err
		}

		if !ok {
			return verified, errors.Wrapf(ErrCorruptPage, "verify page %s", ident)
		}

		verified++
	}

	return verified, nil
}

// DisposeRandom returns count random pages of the working set to their
// files and forgets them.
func (r *Runner) DisposeRandom(count int, rng *rand.Rand) error {
	count = min(count, len(r.pages))
	if count == 0 {
		return nil
	}

	picked := utils.GenerateUniqueInts(count, 0, len(r.pages)-1, rng)

	drop := make(map[common.PageIdentity]struct{}, count)
	for _, i := range picked {
		ident := r.pages[i]
		if err := r.pool.Dispose(r.fileByID(ident.FileID), ident.PageID); err != nil {
			return err
		}

		drop[ident] = struct{}{}
		delete(r.stamps, ident)
	}

	kept := r.pages[:0]
	for _, ident := range r.pages {
		if _, ok := drop[ident]; !ok {
			kept = append(kept, ident)
		}
	}
	r.pages = kept

	return nil
}

func (r *Runner) Pages() int {
	return len(r.pages)
}
