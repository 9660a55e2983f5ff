package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gqflow/gqflow/pkg/assembler"
	"github.com/gqflow/gqflow/pkg/config"
	"github.com/gqflow/gqflow/pkg/schema"
	"github.com/gqflow/gqflow/pkg/stancsv"
	"github.com/gqflow/gqflow/pkg/watch"
)

func runInspect(cmd *cobra.Command, args []string) error {
	for _, path := range args {
		s, err := stancsv.ReadFile(path)
		if err != nil {
			return err
		}

		vars, err := schema.ParseColumns(s.Columns)
		if err != nil {
			return err
		}

		fmt.Printf("%s\n", path)
		fmt.Printf("  draws:   %d\n", len(s.Values))
		fmt.Printf("  columns: %d\n", len(s.Columns))
		fmt.Printf("  variables:\n")
		for _, v := range vars {
			fmt.Printf("    %s\n", v)
		}

		if len(s.Config) > 0 {
			keys := make([]string, 0, len(s.Config))
			for k := range s.Config {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Printf("  config:\n")
			for _, k := range keys {
				fmt.Printf("    %s = %s\n", k, s.Config[k])
			}
		}
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	if err := config.Global().Load(); err != nil {
		return err
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := watch.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Watch(watchDir); err != nil {
		return err
	}

	w.OnSample = func(path string) error {
		// Skip our own outputs.
		if strings.HasSuffix(path, "_gq.csv") {
			return nil
		}

		opts := mergeOptions(config.Global().Get())
		opts.drawFiles = []string{path}
		opts.output = strings.TrimSuffix(path, filepath.Ext(path)) + "_gq.csv"

		logger.Info("new sample file", zap.String("path", path))
		sample, _, err := executeRun(ctx, opts, logger, false)
		if err != nil {
			return err
		}
		if err := assembler.WriteFile(opts.output, sample); err != nil {
			return err
		}
		logger.Info("generated quantities written",
			zap.String("output", opts.output),
			zap.Int("draws", sample.Len()),
			zap.Int("failed", sample.FailureCount()))
		return nil
	}
	w.OnError = func(path string, err error) {
		logger.Warn("watch error", zap.String("path", path), zap.Error(err))
	}

	fmt.Printf("watching %s for sample files (Ctrl-C to stop)\n", watchDir)
	err = w.Run(ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}
