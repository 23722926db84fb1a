package stats_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/R2i2Labs/fin-agent-ui/internal/stats"
)

func TestMean(t *testing.T) {
	m, err := stats.Mean([]float64{1, 2, 3, 4})
	require.NoError(t, err)
	require.InDelta(t, 2.5, m, 1e-12)

	_, err = stats.Mean(nil)
	require.Error(t, err)
}

func TestVarianceAndStdDevArePopulationMoments(t *testing.T) {
	v, err := stats.Variance([]float64{1, 2, 3, 4})
	require.NoError(t, err)
	require.InDelta(t, 1.25, v, 1e-12)

	s, err := stats.StdDev([]float64{1, 2, 3, 4})
	require.NoError(t, err)
	require.InDelta(t, 1.118033988749895, s, 1e-12)
}

func TestSampleStdDev(t *testing.T) {
	s, err := stats.SampleStdDev([]float64{1, 2, 3, 4})
	require.NoError(t, err)
	require.InDelta(t, 1.2909944487358056, s, 1e-12)

	_, err = stats.SampleStdDev([]float64{1})
	require.Error(t, err)
}

func TestCovarianceAndCorrelation(t *testing.T) {
	cov, err := stats.Covariance([]float64{1, 2, 3}, []float64{2, 4, 6})
	require.NoError(t, err)
	require.InDelta(t, 2.0, cov, 1e-12)

	corr, err := stats.Correlation([]float64{1, 2, 3}, []float64{2, 4, 6})
	require.NoError(t, err)
	require.InDelta(t, 1.0, corr, 1e-12)

	_, err = stats.Covariance([]float64{1, 2}, []float64{1})
	require.Error(t, err)
	_, err = stats.Correlation([]float64{1, 2}, []float64{1})
	require.Error(t, err)
}

func TestPercentileLinearInterpolation(t *testing.T) {
	p, err := stats.Percentile([]float64{1, 2, 3}, 50)
	require.NoError(t, err)
	require.InDelta(t, 2.0, p, 1e-12)

	p, err = stats.Percentile([]float64{1, 2, 3, 4}, 25)
	require.NoError(t, err)
	require.InDelta(t, 1.75, p, 1e-12)

	p, err = stats.Percentile([]float64{3, 1, 2}, 0)
	require.NoError(t, err)
	require.InDelta(t, 1.0, p, 1e-12)

	p, err = stats.Percentile([]float64{3, 1, 2}, 100)
	require.NoError(t, err)
	require.InDelta(t, 3.0, p, 1e-12)

	_, err = stats.Percentile([]float64{1}, 101)
	require.Error(t, err)
	_, err = stats.Percentile(nil, 50)
	require.Error(t, err)
}

func TestReturns(t *testing.T) {
	r, err := stats.Returns([]float64{100, 110, 99})
	require.NoError(t, err)
	require.Len(t, r, 2)
	require.InDelta(t, 0.1, r[0], 1e-12)
	require.InDelta(t, -0.1, r[1], 1e-12)

	_, err = stats.Returns([]float64{100})
	require.Error(t, err)
	_, err = stats.Returns([]float64{0, 100})
	require.Error(t, err)
}

func TestLogReturns(t *testing.T) {
	r, err := stats.LogReturns([]float64{100, 110})
	require.NoError(t, err)
	require.Len(t, r, 1)
	require.InDelta(t, 0.09531017980432486, r[0], 1e-12)

	_, err = stats.LogReturns([]float64{100, -1})
	require.Error(t, err)
}

func TestDescriptionsListsEveryFunction(t *testing.T) {
	desc := stats.Descriptions()
	for _, name := range []string{
		"calculate_mean", "calculate_variance", "calculate_covariance",
		"calculate_correlation", "calculate_stddev", "calculate_percentile",
		"calculate_returns", "calculate_log_returns",
	} {
		require.Contains(t, desc, "analyzer."+name+"()")
	}
	require.Equal(t, 8, strings.Count(desc, "\n")+1)
}
