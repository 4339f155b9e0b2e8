// Package latentplot draws the latent inputs of a fitted model.
package latentplot

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Size of the saved image.
const (
	Width  = 6 * vg.Inch
	Height = 6 * vg.Inch
)

// Plot makes a scatter plot of the first two latent dimensions of
// X, or of the single latent dimension against the point index.
// Points with the same label share a colour; labels may be nil.
func Plot(title string, X mat.Matrix, labels []int) (*plot.Plot, error) {
	n, q := X.Dims()
	if n == 0 || q == 0 {
		return nil, errors.New("latentplot: no points")
	}
	if labels != nil && len(labels) != n {
		return nil, errors.Errorf("latentplot: %d labels for %d points", len(labels), n)
	}

	groups := map[int]plotter.XYs{}
	for i := 0; i != n; i++ {
		label := 0
		if labels != nil {
			label = labels[i]
		}
		xy := plotter.XY{X: float64(i), Y: X.At(i, 0)}
		if q > 1 {
			xy = plotter.XY{X: X.At(i, 0), Y: X.At(i, 1)}
		}
		groups[label] = append(groups[label], xy)
	}
	keys := make([]int, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	p := plot.New()
	p.Title.Text = title
	if q > 1 {
		p.X.Label.Text = "latent 1"
		p.Y.Label.Text = "latent 2"
	} else {
		p.X.Label.Text = "point"
		p.Y.Label.Text = "latent 1"
	}
	for i, k := range keys {
		s, err := plotter.NewScatter(groups[k])
		if err != nil {
			return nil, errors.Wrap(err, "latentplot")
		}
		s.GlyphStyle.Color = plotutil.Color(i)
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(s)
		if labels != nil {
			p.Legend.Add(fmt.Sprint(k), s)
		}
	}
	p.Add(plotter.NewGrid())
	return p, nil
}

// Save plots X and writes the image to path; the format follows
// the file extension.
func Save(path, title string, X mat.Matrix, labels []int) error {
	p, err := Plot(title, X, labels)
	if err != nil {
		return err
	}
	return errors.Wrap(p.Save(Width, Height, path), "latentplot")
}
