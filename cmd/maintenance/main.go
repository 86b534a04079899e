// Command maintenance はデータベースとアップロードディレクトリの保守作業を実行します。
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"apple_detector/internal/app/di"
	detectionadapters "apple_detector/internal/feature/detection/adapters"
	"apple_detector/internal/feature/detection/adapters/knowledge"
	"apple_detector/internal/feature/detection/adapters/model"
	"apple_detector/internal/feature/detection/adapters/storage"
	"apple_detector/internal/feature/detection/usecase"
	"apple_detector/internal/platform/config"
	"apple_detector/internal/platform/db"
	"apple_detector/internal/platform/imaging"
	"apple_detector/internal/platform/logging"
)

// errLabelMismatch はラベルとモデルの整合性チェックが失敗したことを表します。
var errLabelMismatch = errors.New("labels do not match the model")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(os.Stdout).ExecuteContext(ctx); err != nil {
		slog.Error("maintenance failed", "error", err)
		os.Exit(1)
	}
}

func newRootCommand(out io.Writer) *cobra.Command {
	var (
		configFile string
		cfg        *config.Config
	)

	root := &cobra.Command{
		Use:           "maintenance",
		Short:         "Apple detector maintenance tasks",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(configFile)
			if err != nil {
				return err
			}
			logging.New(loaded.Log.Level, loaded.Log.Format)
			cfg = loaded
			return nil
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to config.yaml")

	root.AddCommand(
		newMigrateCommand(func() *config.Config { return cfg }),
		newReconcileCommand(func() *config.Config { return cfg }),
		newLabelsCommand(func() *config.Config { return cfg }),
	)
	return root
}

func newMigrateCommand(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the detections table",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := *cfg()
			c.Database.RunMigrations = false
			gdb, err := di.NewDatabase(c.Database)
			if err != nil {
				return err
			}
			defer closeDB(gdb)

			if err := db.Migrate(gdb); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "migration ok")
			return err
		},
	}
}

func newReconcileCommand(cfg func() *config.Config) *cobra.Command {
	var (
		dryRun bool
		grace  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Remove uploaded files that no detection references",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg()
			gdb, err := di.NewDatabase(c.Database)
			if err != nil {
				return err
			}
			defer closeDB(gdb)

			store, err := storage.NewLocalStore(c.Storage.UploadDir)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if !cmd.Flags().Changed("grace") {
				grace = c.Reconcile.GracePeriod
			}
			uc := usecase.NewReconcileUsecase(store, detectionadapters.NewDetectionRepository(gdb), grace, nil)
			report, err := uc.Reconcile(cmd.Context(), dryRun)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			for _, name := range report.Orphans {
				fmt.Fprintln(w, name)
			}
			_, err = fmt.Fprintf(w, "scanned=%d orphans=%d removed=%d dry_run=%t\n",
				report.Scanned, len(report.Orphans), report.Removed, dryRun)
			return err
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list orphaned files without removing them")
	cmd.Flags().DurationVar(&grace, "grace", usecase.DefaultGracePeriod, "skip files modified within this period")
	return cmd
}

func newLabelsCommand(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "labels",
		Short: "Check that the label file, the model and the knowledge base agree",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg()
			labels, err := model.LoadLabels(c.Model.LabelsPath)
			if err != nil {
				return err
			}
			kb, err := knowledge.Load(c.Knowledge.Path)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			for i, label := range labels {
				info := kb.Lookup(label)
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i, label, info.DisplayName, info.Severity)
			}

			preprocessor, err := imaging.NewPreprocessor(c.Model.InputSize, c.Model.Interpolation)
			if err != nil {
				return err
			}
			classifier := di.NewClassifier(cmd.Context(), c.Model, preprocessor.InputShape())
			defer func() { _ = classifier.Close() }()
			if !classifier.Available() {
				return fmt.Errorf("%w: %v", errLabelMismatch, classifier.Reason())
			}
			_, err = fmt.Fprintf(w, "%d labels match the %s model\n", len(labels), c.Model.Backend)
			return err
		},
	}
}

func closeDB(gdb *gorm.DB) {
	if sqlDB, err := gdb.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
