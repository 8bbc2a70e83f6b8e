package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/slotpool/journal"
	pmet "github.com/IvanBrykalov/slotpool/metrics/prom"
)

func newJournalCmd(f *rootFlags) *cobra.Command {
	var (
		recordSize int
		verify     bool
	)
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Concurrent producers appending records to the journal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(f)
			if err != nil {
				return err
			}
			defer e.Close()

			// Start from an empty journal so replay counts match this run.
			if err := e.mgr.Remove("journal"); err != nil {
				return err
			}
			st, err := e.mgr.Create("journal")
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			opt := e.cfg.JournalOptions(e.log.Named("journal"))
			opt.Metrics = pmet.NewSequencer(e.reg, "slotpool", "journal", nil)
			if recordSize > opt.MaxRecordSize && opt.MaxRecordSize > 0 {
				return fmt.Errorf("--record-size %d exceeds journal.maxRecordSize %d", recordSize, opt.MaxRecordSize)
			}
			j, err := journal.Open(st, opt)
			if err != nil {
				return err
			}

			ctx, cancel := runContext(f.duration)
			defer cancel()

			start := time.Now()
			g, gctx := errgroup.WithContext(ctx)
			for w := 0; w < workerCount(f.workers); w++ {
				g.Go(func() error {
					r := rand.New(rand.NewSource(f.seed + int64(w)*9973))
					rec := make([]byte, recordSize)
					for gctx.Err() == nil {
						_, _ = r.Read(rec)
						if err := j.Append(rec); err != nil {
							return err
						}
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				_ = j.Close()
				return err
			}
			if err := j.Close(); err != nil {
				return fmt.Errorf("close journal: %w", err)
			}
			elapsed := time.Since(start)

			s := j.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "records=%d (%.0f rec/s)  batches=%d  avg-batch=%.1f  bytes=%d  dur=%v\n",
				s.Flushed, float64(s.Flushed)/elapsed.Seconds(), s.Batches,
				float64(s.Flushed)/float64(max(s.Batches, 1)), s.Bytes, elapsed.Round(time.Millisecond))

			if !verify {
				return nil
			}
			var n int64
			if err := journal.Replay(st, func([]byte) error { n++; return nil }); err != nil {
				return fmt.Errorf("replay: %w", err)
			}
			if n != s.Flushed {
				return fmt.Errorf("replay found %d records, journal flushed %d", n, s.Flushed)
			}
			e.log.Info("replay verified", zap.Int64("records", n))
			return nil
		},
	}
	fl := cmd.Flags()
	fl.IntVar(&recordSize, "record-size", 128, "bytes per record")
	fl.BoolVar(&verify, "verify", true, "replay the journal after the run and check the record count")
	return cmd
}
