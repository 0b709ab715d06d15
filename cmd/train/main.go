// Command train fits a model offline on a synthetic corpus and publishes
// the bundle the server loads on start.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/paycast/internal/adapters/artifact"
	app "github.com/okian/paycast/internal/app"
	"github.com/okian/paycast/internal/config"
	"github.com/okian/paycast/internal/domain/training"
	"github.com/okian/paycast/internal/synthetic"
	"github.com/okian/paycast/pkg/logger"
)

const defaultTrainTimeout = 2 * time.Hour

type options struct {
	training   training.Config
	corpus     synthetic.Config
	dir        string
	checkpoint string
	timeout    time.Duration
}

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Defaults come from the same layered config as the server.
	cfg, err := config.Load(context.Background())
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	opts, err := parseFlags(os.Args[1:], cfg)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		os.Stderr.WriteString("training failed: " + err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}

func parseFlags(args []string, cfg *config.Config) (options, error) {
	opts := options{
		training: app.TrainingConfig(cfg),
		corpus:   app.CorpusConfig(cfg),
		dir:      cfg.ArtifactDir,
		timeout:  defaultTrainTimeout,
	}

	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	fs.IntVar(&opts.corpus.Customers, "customers", opts.corpus.Customers, "Number of synthetic customers")
	fs.IntVar(&opts.corpus.Invoices, "invoices", opts.corpus.Invoices, "Number of synthetic invoices")
	fs.Int64Var(&opts.corpus.Seed, "corpus-seed", opts.corpus.Seed, "Seed of the synthetic corpus")
	fs.IntVar(&opts.training.Epochs, "epochs", opts.training.Epochs, "Maximum training epochs")
	fs.IntVar(&opts.training.BatchSize, "batch-size", opts.training.BatchSize, "Mini-batch size")
	fs.Int64Var(&opts.training.Seed, "seed", opts.training.Seed, "Seed for the split, shuffling and weight init")
	fs.StringVar(&opts.dir, "out", opts.dir, "Artifact directory the bundle is written to")
	fs.StringVar(&opts.checkpoint, "checkpoint", "", "Optional file for best-epoch weights")
	fs.DurationVar(&opts.timeout, "timeout", opts.timeout, "Abort training after this long")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.corpus.Customers <= 0 || opts.corpus.Invoices <= 0 {
		return options{}, errors.New("customers and invoices must be positive")
	}
	return opts, nil
}

// run generates the corpus, trains and publishes the bundle. The metrics of
// the published model are written to out as JSON.
func run(ctx context.Context, opts options, out io.Writer) error {
	l := logger.Named("train")
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	rows, err := synthetic.Generate(ctx, opts.corpus)
	if err != nil {
		return fmt.Errorf("generate corpus: %w", err)
	}
	l.Info(ctx, "corpus generated",
		logger.Int("customers", opts.corpus.Customers),
		logger.Int("invoices", len(rows)))

	store := artifact.NewFileStore(opts.dir, artifact.WithStoreLogger(l))
	publisher := artifact.NewPublisher(store, artifact.NewRegistry(), l)

	topts := []training.Option{
		training.WithConfig(opts.training),
		training.WithLogger(l),
		training.WithEpochHook(func(r training.EpochReport) {
			l.Debug(ctx, "epoch",
				logger.Int("epoch", r.Epoch),
				logger.Float64("train_loss", r.TrainLoss),
				logger.Float64("val_loss", r.ValLoss),
				logger.Float64("learning_rate", r.LearningRate))
		}),
	}
	if opts.checkpoint != "" {
		topts = append(topts, training.WithCheckpointPath(opts.checkpoint))
	}

	res, err := training.New(topts...).Train(ctx, rows, publisher)
	if err != nil {
		return err
	}
	l.Info(ctx, "bundle published",
		logger.String("path", store.Path()),
		logger.Float64("mae", res.Metrics.MAE),
		logger.Float64("r2", res.Metrics.R2))

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res.Metrics)
}
