package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/slotpool/bufpool"
	pmet "github.com/IvanBrykalov/slotpool/metrics/prom"
	"github.com/IvanBrykalov/slotpool/storage"
)

func newPoolCmd(f *rootFlags) *cobra.Command {
	var (
		readPct int
		blocks  uint64
		zipfS   float64
		zipfV   float64
	)
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Zipf-distributed block reads and writes through the buffer pool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if blocks == 0 {
				return errors.New("--blocks must be > 0")
			}
			if zipfS <= 1 || zipfV < 1 {
				return fmt.Errorf("zipf parameters need s > 1 and v >= 1, got s=%v v=%v", zipfS, zipfV)
			}
			e, err := setup(f)
			if err != nil {
				return err
			}
			defer e.Close()

			st, err := storage.OpenOrCreate(e.mgr, "pool")
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			opt := e.cfg.PoolOptions(st, e.log.Named("pool"))
			opt.Metrics = pmet.NewPool(e.reg, "slotpool", "pool", nil)
			p := bufpool.New(opt)

			ctx, cancel := runContext(f.duration)
			defer cancel()

			var reads, writes atomic.Uint64
			start := time.Now()
			g, gctx := errgroup.WithContext(ctx)
			for w := 0; w < workerCount(f.workers); w++ {
				g.Go(func() error {
					// rand.Rand is not goroutine-safe; one per worker.
					r := rand.New(rand.NewSource(f.seed + int64(w)*9973))
					z := rand.NewZipf(r, zipfS, zipfV, blocks-1)
					for gctx.Err() == nil {
						block := int64(z.Uint64())
						if int(r.Int31n(100)) < readPct {
							if err := p.Read(block, func([]byte) {}); err != nil {
								return err
							}
							reads.Add(1)
							continue
						}
						stamp := r.Uint64()
						if err := p.Write(block, func(b []byte) {
							binary.LittleEndian.PutUint64(b, stamp)
						}); err != nil {
							return err
						}
						writes.Add(1)
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			elapsed := time.Since(start)
			if err := p.Close(); err != nil {
				return fmt.Errorf("close pool: %w", err)
			}

			s := p.Stats()
			ops := reads.Load() + writes.Load()
			hitRate := 0.0
			if s.Hits+s.Misses > 0 {
				hitRate = float64(s.Hits) / float64(s.Hits+s.Misses) * 100
			}
			e.log.Info("pool run finished",
				zap.Duration("elapsed", elapsed),
				zap.Int("workers", workerCount(f.workers)),
				zap.Int64("seed", f.seed))
			fmt.Fprintf(cmd.OutOrStdout(), "cap=%d blocks=%d dur=%v\n", opt.Capacity, blocks, elapsed.Round(time.Millisecond))
			fmt.Fprintf(cmd.OutOrStdout(), "ops=%d (%.0f ops/s)  reads=%d  writes=%d\n",
				ops, float64(ops)/elapsed.Seconds(), reads.Load(), writes.Load())
			fmt.Fprintf(cmd.OutOrStdout(), "hits=%d  misses=%d  hit-rate=%.2f%%  evictions=%d  write-backs=%d\n",
				s.Hits, s.Misses, hitRate, s.Evictions, s.WriteBacks)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.IntVar(&readPct, "reads", 80, "read percentage [0..100]")
	fl.Uint64Var(&blocks, "blocks", 1<<16, "block id space")
	fl.Float64Var(&zipfS, "zipf-s", 1.1, "Zipf s > 1 (skew)")
	fl.Float64Var(&zipfV, "zipf-v", 1.0, "Zipf v >= 1")
	return cmd
}
