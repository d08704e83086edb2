package occupancy

import (
	"math"
	"math/rand"
	"testing"
)

// clusterWithOutliers returns a tight 2D cluster near the origin plus a
// handful of points far outside it.
func clusterWithOutliers(rng *rand.Rand, n, outliers int) [][]float64 {
	data := make([][]float64, 0, n+outliers)
	for i := 0; i < n; i++ {
		data = append(data, []float64{rng.NormFloat64(), rng.NormFloat64()})
	}
	for i := 0; i < outliers; i++ {
		data = append(data, []float64{20 + rng.Float64(), 20 + rng.Float64()})
	}
	return data
}

func TestForestSeparatesOutliers(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	data := clusterWithOutliers(rng, 200, 5)

	f := buildForest(data, 100, 128, rng)

	for i, x := range data[200:] {
		if s := f.anomalyScore(x); s < 0.6 {
			t.Errorf("Outlier %d scored %v, expected a clearly anomalous score", i, s)
		}
	}

	var inlierMean float64
	for _, x := range data[:200] {
		inlierMean += f.anomalyScore(x)
	}
	inlierMean /= 200
	if inlierMean >= 0.6 {
		t.Errorf("Inlier mean score %v too high", inlierMean)
	}
}

func TestForestDeterministicUnderSeed(t *testing.T) {
	data := clusterWithOutliers(rand.New(rand.NewSource(7)), 100, 3)

	f1 := buildForest(data, 50, 64, rand.New(rand.NewSource(42)))
	f2 := buildForest(data, 50, 64, rand.New(rand.NewSource(42)))

	for _, x := range data {
		if f1.anomalyScore(x) != f2.anomalyScore(x) {
			t.Fatalf("Same seed produced different forests")
		}
	}
}

func TestForestConstantData(t *testing.T) {
	data := make([][]float64, 50)
	for i := range data {
		data[i] = []float64{487, 20}
	}

	f := buildForest(data, 20, 32, rand.New(rand.NewSource(3)))
	s := f.anomalyScore(data[0])
	if s <= 0 || s >= 1 {
		t.Errorf("Score on constant data out of range: %v", s)
	}

	// No feature has spread; every tree is a single external node, so all
	// points share one score.
	if f.anomalyScore([]float64{1000, 1000}) != s {
		t.Errorf("Constant-data forest should score every point identically")
	}
}

func TestAvgPathLength(t *testing.T) {
	if avgPathLength(1) != 0 {
		t.Errorf("c(1) must be 0")
	}
	if avgPathLength(2) != 1 {
		t.Errorf("c(2) must be 1")
	}

	want := 2*(math.Log(255)+eulerGamma) - 2*255.0/256.0
	if got := avgPathLength(256); math.Abs(got-want) > 1e-12 {
		t.Errorf("c(256) = %v, want %v", got, want)
	}

	// Monotone in n.
	prev := 0.0
	for n := 2; n <= 1024; n *= 2 {
		c := avgPathLength(n)
		if c <= prev {
			t.Errorf("c(%d) = %v not increasing", n, c)
		}
		prev = c
	}
}

func TestSampleSizeCappedByData(t *testing.T) {
	data := clusterWithOutliers(rand.New(rand.NewSource(9)), 10, 0)
	f := buildForest(data, 10, 256, rand.New(rand.NewSource(9)))
	if f.cn != avgPathLength(10) {
		t.Errorf("Normalizer should use the capped subsample size")
	}
}
