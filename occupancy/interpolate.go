package occupancy

// interpolateIslands fills short interior runs of missing CO2 values on
// the reconstructed grid. Only islands of at most limit consecutive nulls
// with known values on both sides are filled; longer gaps and the
// leading/trailing edges stay null. Filling uses a natural cubic spline
// through the known points, degrading to linear interpolation when fewer
// than four support points exist.
func interpolateIslands(grid []gridRow, limit int) {
	if limit <= 0 || len(grid) < 3 {
		return
	}

	var xs, ys []float64
	for i, row := range grid {
		if row.co2 != nil {
			xs = append(xs, float64(i))
			ys = append(ys, *row.co2)
		}
	}
	if len(xs) < 2 {
		return
	}

	at := linearAt(xs, ys)
	if len(xs) >= 4 {
		if sp, err := newSpline(xs, ys); err == nil {
			at = sp.at
		}
	}

	i := 0
	for i < len(grid) {
		if grid[i].co2 != nil {
			i++
			continue
		}
		j := i
		for j < len(grid) && grid[j].co2 == nil {
			j++
		}
		interior := i > 0 && j < len(grid)
		if interior && j-i <= limit {
			for k := i; k < j; k++ {
				v := at(float64(k))
				grid[k].co2 = &v
			}
		}
		i = j
	}
}

// linearAt returns a piecewise-linear interpolant over the known points.
// xs must be strictly increasing.
func linearAt(xs, ys []float64) func(float64) float64 {
	return func(x float64) float64 {
		if x <= xs[0] {
			return ys[0]
		}
		if x >= xs[len(xs)-1] {
			return ys[len(ys)-1]
		}
		lo, hi := 0, len(xs)-1
		for hi-lo > 1 {
			mid := (lo + hi) / 2
			if xs[mid] <= x {
				lo = mid
			} else {
				hi = mid
			}
		}
		t := (x - xs[lo]) / (xs[hi] - xs[lo])
		return ys[lo] + t*(ys[hi]-ys[lo])
	}
}

// spline is a natural cubic spline: second derivatives are zero at both
// ends, interior ones solved from the standard tridiagonal system.
type spline struct {
	xs, ys, y2 []float64
}

func newSpline(xs, ys []float64) (*spline, error) {
	n := len(xs)
	if n < 4 || len(ys) != n {
		return nil, errShortSpline
	}

	y2 := make([]float64, n)
	u := make([]float64, n)
	for i := 1; i < n-1; i++ {
		sig := (xs[i] - xs[i-1]) / (xs[i+1] - xs[i-1])
		p := sig*y2[i-1] + 2
		y2[i] = (sig - 1) / p
		u[i] = (ys[i+1]-ys[i])/(xs[i+1]-xs[i]) - (ys[i]-ys[i-1])/(xs[i]-xs[i-1])
		u[i] = (6*u[i]/(xs[i+1]-xs[i-1]) - sig*u[i-1]) / p
	}
	for i := n - 2; i >= 0; i-- {
		y2[i] = y2[i]*y2[i+1] + u[i]
	}

	return &spline{xs: xs, ys: ys, y2: y2}, nil
}

// at evaluates the spline. Queries outside the knot range clamp to the
// nearest segment.
func (s *spline) at(x float64) float64 {
	lo, hi := 0, len(s.xs)-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if s.xs[mid] <= x {
			lo = mid
		} else {
			hi = mid
		}
	}

	h := s.xs[hi] - s.xs[lo]
	a := (s.xs[hi] - x) / h
	b := (x - s.xs[lo]) / h
	return a*s.ys[lo] + b*s.ys[hi] +
		((a*a*a-a)*s.y2[lo]+(b*b*b-b)*s.y2[hi])*(h*h)/6
}

type splineError string

func (e splineError) Error() string { return string(e) }

const errShortSpline = splineError("cubic spline needs at least 4 points")
