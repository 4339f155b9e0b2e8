package main

import (
	"fmt"
	"io"
	"math"
	"os"

	"bitbucket.org/dtolpin/gplvm/dataset"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
)

type params struct {
	observations string
	skip         int
	noise        float64
	header       bool
}

func main() {
	p := &params{}
	cmd := &cobra.Command{
		Use:   "nlpd",
		Short: "Compute average negative log predictive density",
		Long: `Computes average negative log predictive density. Invocation:
	nlpd [OPTIONS] < predictions.csv
The predictions are written by 'gplvm fit --predictions': pairs of
columns with the mean and the variance of each output. Without
--observations, each pair is preceded by the observed value.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := average(p, cmd.InOrStdin())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%f\n", v)
			return nil
		},
		SilenceUsage: true,
	}
	flags := cmd.Flags()
	flags.StringVar(&p.observations, "observations", "", "observed values, CSV")
	flags.IntVarP(&p.skip, "skip", "s", 0, "initial records to skip")
	flags.Float64Var(&p.noise, "noise", 0, "variance to add to the predictive variance")
	flags.BoolVar(&p.header, "header", true, "the files have a header row")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// nlpd is the negative log predictive density of y under
// N(mean, variance).
func nlpd(y, mean, variance float64) float64 {
	d := y - mean
	return 0.5 * (math.Log(2*math.Pi*variance) + d*d/variance)
}

func average(p *params, predictions io.Reader) (float64, error) {
	P, _, err := dataset.ReadCSV(predictions, p.header)
	if err != nil {
		return 0, err
	}
	var Y mat.Matrix
	if p.observations != "" {
		file, err := os.Open(p.observations)
		if err != nil {
			return 0, errors.Wrap(err, "open observations")
		}
		defer file.Close()
		if Y, _, err = dataset.ReadCSV(file, p.header); err != nil {
			return 0, err
		}
	}
	return meanNLPD(P, Y, p.skip, p.noise)
}

// meanNLPD averages the density over all predictions after the
// first skip rows. If Y is nil, the observations are in P, before
// each mean and variance.
func meanNLPD(P, Y mat.Matrix, skip int, noise float64) (float64, error) {
	n, c := P.Dims()
	width := 2
	if Y == nil {
		width = 3
	}
	if c%width != 0 {
		return 0, errors.Errorf("%d prediction columns, want a multiple of %d", c, width)
	}
	d := c / width
	if Y != nil {
		if yn, yd := Y.Dims(); yn != n || yd != d {
			return 0, errors.Errorf("observations are %d×%d, want %d×%d", yn, yd, n, d)
		}
	}
	if skip < 0 {
		return 0, errors.Errorf("negative skip %d", skip)
	}
	if skip >= n {
		return 0, errors.Errorf("skipped all %d records", n)
	}

	sum := 0.
	for i := skip; i != n; i++ {
		for j := 0; j != d; j++ {
			var y, mean, variance float64
			if Y == nil {
				y, mean, variance = P.At(i, 3*j), P.At(i, 3*j+1), P.At(i, 3*j+2)
			} else {
				y, mean, variance = Y.At(i, j), P.At(i, 2*j), P.At(i, 2*j+1)
			}
			sum += nlpd(y, mean, variance+noise)
		}
	}
	return sum / float64((n-skip)*d), nil
}
