// Package stats is the numeric core behind dataset summaries and the
// function catalogue advertised to the model. Variance and StdDev are
// population moments; SampleStdDev is the n-1 flavor used by column
// summaries.
package stats

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

var errEmpty = errors.New("stats: empty data")

// Mean returns the arithmetic mean.
func Mean(data []float64) (float64, error) {
	if len(data) == 0 {
		return 0, errEmpty
	}
	return stat.Mean(data, nil), nil
}

// Variance returns the population variance.
func Variance(data []float64) (float64, error) {
	if len(data) == 0 {
		return 0, errEmpty
	}
	return stat.PopVariance(data, nil), nil
}

// StdDev returns the population standard deviation.
func StdDev(data []float64) (float64, error) {
	if len(data) == 0 {
		return 0, errEmpty
	}
	return stat.PopStdDev(data, nil), nil
}

// SampleStdDev returns the sample standard deviation.
func SampleStdDev(data []float64) (float64, error) {
	if len(data) < 2 {
		return 0, errors.New("stats: need at least two samples")
	}
	return stat.StdDev(data, nil), nil
}

// Covariance returns the sample covariance between two series.
func Covariance(a, b []float64) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, errEmpty
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("stats: length mismatch %d vs %d", len(a), len(b))
	}
	return stat.Covariance(a, b, nil), nil
}

// Correlation returns the Pearson correlation coefficient.
func Correlation(a, b []float64) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, errEmpty
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("stats: length mismatch %d vs %d", len(a), len(b))
	}
	return stat.Correlation(a, b, nil), nil
}

// Percentile returns the value at the given percentile (0-100) using linear
// interpolation between order statistics, the same convention the dataset
// tooling's summaries use. gonum's Quantile kinds interpolate the empirical
// CDF instead, which lands between different samples, so the rank formula is
// computed directly.
func Percentile(data []float64, percentile float64) (float64, error) {
	if len(data) == 0 {
		return 0, errEmpty
	}
	if percentile < 0 || percentile > 100 {
		return 0, fmt.Errorf("stats: percentile %v out of range [0, 100]", percentile)
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	rank := percentile / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo], nil
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo]), nil
}

// Returns computes simple period-over-period returns from a price series.
func Returns(prices []float64) ([]float64, error) {
	if len(prices) < 2 {
		return nil, errors.New("stats: need at least two prices")
	}
	out := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			return nil, fmt.Errorf("stats: zero price at index %d", i-1)
		}
		out[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
	}
	return out, nil
}

// LogReturns computes logarithmic returns from a price series.
func LogReturns(prices []float64) ([]float64, error) {
	if len(prices) < 2 {
		return nil, errors.New("stats: need at least two prices")
	}
	out := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] <= 0 || prices[i] <= 0 {
			return nil, fmt.Errorf("stats: non-positive price at index %d", i)
		}
		out[i-1] = math.Log(prices[i] / prices[i-1])
	}
	return out, nil
}

type description struct {
	name string
	doc  string
}

var catalogue = []description{
	{"calculate_mean", "Calculate arithmetic mean of the data. Args: data (array-like): Numerical data. Returns: float: Mean value"},
	{"calculate_variance", "Calculate variance of the data. Args: data (array-like): Numerical data. Returns: float: Variance"},
	{"calculate_covariance", "Calculate covariance between two datasets. Args: data1 (array-like): First dataset, data2 (array-like): Second dataset. Returns: float: Covariance value"},
	{"calculate_correlation", "Calculate Pearson correlation coefficient. Args: data1 (array-like): First dataset, data2 (array-like): Second dataset. Returns: float: Correlation coefficient (-1 to 1)"},
	{"calculate_stddev", "Calculate standard deviation. Args: data (array-like): Numerical data. Returns: float: Standard deviation"},
	{"calculate_percentile", "Calculate specific percentile of the data. Args: data (array-like): Numerical data, percentile (float): Percentile value (0-100). Returns: float: Value at specified percentile"},
	{"calculate_returns", "Calculate simple returns from price series. Args: prices (array-like): Time series of prices. Returns: array: Series of returns"},
	{"calculate_log_returns", "Calculate logarithmic returns from price series. Args: prices (array-like): Time series of prices. Returns: array: Series of log returns"},
}

// Descriptions renders the analyzer function catalogue injected into the
// system prompt so the model knows which analyses the library supports.
func Descriptions() string {
	lines := make([]string, 0, len(catalogue))
	for _, d := range catalogue {
		lines = append(lines, fmt.Sprintf("- analyzer.%s(): %s", d.name, d.doc))
	}
	return strings.Join(lines, "\n")
}
