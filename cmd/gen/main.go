package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"bitbucket.org/dtolpin/gplvm/dataset"
	"bitbucket.org/dtolpin/gplvm/kernel"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// Generator parameters.
type params struct {
	n, d, q     int
	seed        uint64
	noise       float64
	variance    float64
	lengthscale float64
	period      float64
	seasonal    bool
	latents     string
}

func main() {
	defer klog.Flush()
	p := &params{}
	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate test data",
		Long: `Generate test data for latent variable models: latent inputs are drawn
from the standard normal, and each output column is a sample of a
GP over the latent inputs. Invocation:
	gen [OPTIONS] > data.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return generate(p, cmd.OutOrStdout())
		},
		SilenceUsage: true,
	}
	flags := cmd.Flags()
	flags.IntVarP(&p.n, "points", "n", 50, "number of points")
	flags.IntVarP(&p.d, "outputs", "d", 5, "number of output dimensions")
	flags.IntVarP(&p.q, "latent-dims", "q", 2, "number of latent dimensions")
	flags.Uint64Var(&p.seed, "seed", 1, "random seed")
	flags.Float64Var(&p.noise, "noise", 0.01, "noise variance")
	flags.Float64Var(&p.variance, "variance", 1, "kernel variance")
	flags.Float64Var(&p.lengthscale, "lengthscale", 1, "kernel lengthscale")
	flags.Float64Var(&p.period, "period", 2, "period of the seasonal component")
	flags.BoolVar(&p.seasonal, "seasonal", false, "add a periodic component to the kernel")
	flags.StringVar(&p.latents, "latents", "", "write the latent inputs to this file")
	klogFlags := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(klogFlags)
	cmd.PersistentFlags().AddGoFlagSet(klogFlags)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func (p *params) covariance() kernel.Kernel {
	k := kernel.Kernel(kernel.NewMatern52(p.variance, p.lengthscale))
	if p.seasonal {
		k = kernel.NewSum(k, kernel.NewPeriodic(p.variance, p.lengthscale, p.period))
	}
	return k
}

func generate(p *params, w io.Writer) error {
	if p.n < 1 || p.d < 1 || p.q < 1 {
		return errors.Errorf("sizes must be positive: n=%d, d=%d, q=%d", p.n, p.d, p.q)
	}
	X := dataset.Normal(p.n, p.q, p.seed)
	Y, err := dataset.Sample(X, p.covariance(), p.noise, p.d, p.seed+1)
	if err != nil {
		return err
	}
	klog.V(1).Infof("sampled %d×%d outputs over %d latent dimensions", p.n, p.d, p.q)

	if p.latents != "" {
		if err := save(p.latents, X, "x"); err != nil {
			return err
		}
	}
	return dataset.WriteCSV(w, Y, names("y", p.d))
}

func names(prefix string, n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("%s%d", prefix, i+1)
	}
	return names
}

func save(path string, X *mat.Dense, prefix string) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create latents")
	}
	_, q := X.Dims()
	if err := dataset.WriteCSV(file, X, names(prefix, q)); err != nil {
		file.Close()
		return err
	}
	return errors.Wrap(file.Close(), "close latents")
}
