package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"bitbucket.org/dtolpin/gplvm/config"
	"bitbucket.org/dtolpin/gplvm/dataset"
	"bitbucket.org/dtolpin/gplvm/latentplot"
	"bitbucket.org/dtolpin/gplvm/model"
	"bitbucket.org/dtolpin/gplvm/optimizer"
	"bitbucket.org/dtolpin/gplvm/train"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"k8s.io/klog/v2"
)

func main() {
	defer klog.Flush()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "gplvm",
		Short: "Gaussian process latent variable models",
		Long: `Fits a GPLVM or a Bayesian GPLVM to the rows of a CSV file and writes
the latent inputs. In 'selfcheck' mode, synthetic data is used to
demonstrate basic functionality.`,
		SilenceUsage: true,
	}
	klogFlags := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(klogFlags)
	root.PersistentFlags().AddGoFlagSet(klogFlags)

	root.AddCommand(fitCommand(), selfcheckCommand())
	return root
}

type fitFlags struct {
	config      string
	input       string
	header      bool
	normalize   bool
	output      string
	plot        string
	predict     string
	predictions string
	model       string
	latentDims  int
	restarts    int
	maxIter     int
	quiet       bool
}

func fitCommand() *cobra.Command {
	f := &fitFlags{}
	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit a model and write the latent inputs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(f.config)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("model") {
				cfg.Model = f.model
			}
			if flags.Changed("latent-dims") {
				cfg.LatentDims = f.latentDims
			}
			if flags.Changed("restarts") {
				cfg.Restarts = f.restarts
			}
			if flags.Changed("max-iter") {
				cfg.Optimizer.MaxIter = f.maxIter
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return fit(cmd.Context(), cfg, f, cmd.ErrOrStderr())
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&f.config, "config", "c", "", "YAML configuration")
	flags.StringVarP(&f.input, "input", "i", "", "observations, CSV (default stdin)")
	flags.BoolVar(&f.header, "header", true, "the input has a header row")
	flags.BoolVar(&f.normalize, "normalize", false, "standardize the columns of the input")
	flags.StringVarP(&f.output, "output", "o", "", "latent inputs, CSV (default stdout)")
	flags.StringVar(&f.plot, "plot", "", "scatter plot of the latent inputs (.png, .svg, .pdf)")
	flags.StringVar(&f.predict, "predict", "", "latent inputs to predict at, CSV with a header")
	flags.StringVar(&f.predictions, "predictions", "", "predictive means and variances, CSV")
	flags.StringVar(&f.model, "model", config.Bayesian, "model: gplvm or bayesian")
	flags.IntVarP(&f.latentDims, "latent-dims", "q", 2, "number of latent dimensions")
	flags.IntVar(&f.restarts, "restarts", 1, "number of optimizer restarts")
	flags.IntVar(&f.maxIter, "max-iter", 100, "optimizer iterations, 0 until convergence")
	flags.BoolVar(&f.quiet, "quiet", false, "do not show progress")
	return cmd
}

// standardizer centres and scales the columns of the data.
type standardizer struct {
	mean, std []float64
}

func standardize(Y *mat.Dense) *standardizer {
	_, d := Y.Dims()
	s := &standardizer{mean: make([]float64, d), std: make([]float64, d)}
	for j := 0; j != d; j++ {
		col := mat.Col(nil, j, Y)
		s.mean[j], s.std[j] = stat.MeanStdDev(col, nil)
		if s.std[j] == 0 {
			s.std[j] = 1
		}
		for i := range col {
			col[i] = (col[i] - s.mean[j]) / s.std[j]
		}
		Y.SetCol(j, col)
	}
	return s
}

// restore maps a prediction back to the scale of the data.
func (s *standardizer) restore(p *model.Prediction) {
	n, d := p.Mean.Dims()
	for i := 0; i != n; i++ {
		for j := 0; j != d; j++ {
			p.Mean.Set(i, j, p.Mean.At(i, j)*s.std[j]+s.mean[j])
			p.Var.Set(i, j, p.Var.At(i, j)*s.std[j]*s.std[j])
		}
	}
}

func fit(ctx context.Context, cfg *config.Config, f *fitFlags, stderr io.Writer) error {
	var input io.Reader = os.Stdin
	if f.input != "" {
		file, err := os.Open(f.input)
		if err != nil {
			return errors.Wrap(err, "open input")
		}
		defer file.Close()
		input = file
	}
	klog.V(1).Info("loading...")
	Y, _, err := dataset.ReadCSV(input, f.header)
	if err != nil {
		return err
	}
	n, d := Y.Dims()
	klog.Infof("loaded %s observations of %d dimensions", humanize.Comma(int64(n)), d)
	var scale *standardizer
	if f.normalize {
		scale = standardize(Y)
	}

	var progress train.Progress
	if !f.quiet {
		total := -1
		if cfg.Optimizer.MaxIter > 0 {
			total = cfg.Restarts * cfg.Optimizer.MaxIter
		}
		bar := progressbar.NewOptions(total,
			progressbar.OptionSetWriter(stderr),
			progressbar.OptionSetDescription(fmt.Sprintf("fitting %s", cfg.Model)),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("iterations"),
			progressbar.OptionClearOnFinish())
		defer bar.Finish()
		progress = func(int, int, float64) {
			bar.Add(1)
		}
	}

	res, err := train.Fit(ctx, cfg, Y, progress)
	if err != nil {
		return err
	}
	summary(stderr, res.Optimizer)

	q := cfg.LatentDims
	names := make([]string, q)
	for i := range names {
		names[i] = fmt.Sprintf("latent%d", i+1)
	}
	if err := writeCSV(f.output, res.Latent, names); err != nil {
		return err
	}
	if f.plot != "" {
		if err := latentplot.Save(f.plot, cfg.Model, res.Latent, nil); err != nil {
			return err
		}
	}
	if f.predict != "" {
		return predict(res.Model, f, scale)
	}
	return nil
}

func summary(w io.Writer, res *optimizer.Result) {
	fmt.Fprintf(w, "log likelihood %s -> %s, %s iterations, %s evaluations in %v\n",
		humanize.FormatFloat("#,###.####", res.Initial),
		humanize.FormatFloat("#,###.####", res.Final),
		humanize.Comma(int64(res.Iterations)),
		humanize.Comma(int64(res.Evaluations)),
		res.Runtime)
	if res.Err != nil {
		fmt.Fprintf(w, "optimizer stopped early: %v\n", res.Err)
	}
}

// predictor is implemented by both models.
type predictor interface {
	PredictY(Xnew mat.Matrix, fullCov bool) (*model.Prediction, error)
}

func predict(m model.Model, f *fitFlags, scale *standardizer) error {
	pr, ok := m.(predictor)
	if !ok {
		return errors.Errorf("%T does not predict observations", m)
	}
	file, err := os.Open(f.predict)
	if err != nil {
		return errors.Wrap(err, "open latent inputs")
	}
	defer file.Close()
	Xnew, _, err := dataset.ReadCSV(file, true)
	if err != nil {
		return err
	}
	p, err := pr.PredictY(Xnew, false)
	if err != nil {
		return err
	}
	if scale != nil {
		scale.restore(p)
	}

	n, d := p.Mean.Dims()
	out := mat.NewDense(n, 2*d, nil)
	names := make([]string, 2*d)
	for j := 0; j != d; j++ {
		names[2*j] = fmt.Sprintf("mean%d", j+1)
		names[2*j+1] = fmt.Sprintf("var%d", j+1)
		for i := 0; i != n; i++ {
			out.Set(i, 2*j, p.Mean.At(i, j))
			out.Set(i, 2*j+1, p.Var.At(i, j))
		}
	}
	return writeCSV(f.predictions, out, names)
}

func writeCSV(path string, m mat.Matrix, names []string) error {
	if path == "" {
		return dataset.WriteCSV(os.Stdout, m, names)
	}
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create output")
	}
	if err := dataset.WriteCSV(file, m, names); err != nil {
		file.Close()
		return err
	}
	return errors.Wrap(file.Close(), "close output")
}

func selfcheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "selfcheck",
		Short: "Fit both models to synthetic data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return selfcheck(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

// selfcheck fits both models to a 20×5 standard normal matrix
// with two latent dimensions and ten inducing inputs, for two
// iterations, and checks that the log likelihood grows.
func selfcheck(ctx context.Context, w io.Writer) error {
	Y := dataset.Normal(20, 5, 999)
	for _, kind := range []string{config.GPLVM, config.Bayesian} {
		cfg := config.DefaultConfig()
		cfg.Model = kind
		cfg.Optimizer.MaxIter = 2
		m, err := train.Build(cfg, Y, 0)
		if err != nil {
			return err
		}
		before := m.LogLikelihood()
		res, err := optimizer.Minimize(ctx, m, optimizer.Options{MaxIter: cfg.Optimizer.MaxIter})
		if err != nil {
			return errors.Wrap(err, kind)
		}
		after := m.LogLikelihood()
		fmt.Fprintf(w, "%s: log likelihood %.4f -> %.4f in %d iterations\n",
			kind, before, after, res.Iterations)
		if !(after > before) {
			return errors.Errorf("%s: log likelihood did not improve", kind)
		}
	}
	return nil
}
