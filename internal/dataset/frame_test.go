package dataset_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/R2i2Labs/fin-agent-ui/internal/dataset"
)

const pricesCSV = `date,close,volume,note
2024-01-02,101.5,1200,open higher
2024-01-03,99.25,900,pullback
2024-01-04,103.0,1500,rally
2024-01-05,104.75,1100,follow through
`

func parseFrame(t *testing.T, name, body string) *dataset.Frame {
	t.Helper()
	frame, err := dataset.ParseCSV(name, strings.NewReader(body))
	require.NoError(t, err)
	return frame
}

func TestParseCSVInfersDtypes(t *testing.T) {
	frame := parseFrame(t, "prices.csv", pricesCSV)

	dtypes := frame.Dtypes()
	require.Equal(t, "object", dtypes["date"])
	require.Equal(t, "float64", dtypes["close"])
	require.Equal(t, "int64", dtypes["volume"])
	require.Equal(t, "object", dtypes["note"])
}

func TestParseCSVPromotesIntWithMissingValues(t *testing.T) {
	// A fully blank line would be dropped by the reader, so the gap sits in
	// a row that still has another populated cell.
	frame := parseFrame(t, "gaps.csv", "qty,tag\n1,a\n,b\n3,c\n")
	require.Equal(t, "float64", frame.Dtypes()["qty"])
	require.Equal(t, "object", frame.Dtypes()["tag"])
}

func TestParseCSVHeaderOnly(t *testing.T) {
	frame := parseFrame(t, "empty.csv", "a,b\n")
	require.Equal(t, [2]int{0, 2}, frame.Shape())
	require.Equal(t, "object", frame.Dtypes()["a"])
	require.Empty(t, frame.Head(10))
}

func TestParseCSVRejectsEmptyInput(t *testing.T) {
	_, err := dataset.ParseCSV("none.csv", strings.NewReader(""))
	require.Error(t, err)
}

func TestParseCSVRejectsRaggedRows(t *testing.T) {
	_, err := dataset.ParseCSV("ragged.csv", strings.NewReader("a,b\n1\n"))
	require.Error(t, err)
}

func TestShapeAndColumns(t *testing.T) {
	frame := parseFrame(t, "prices.csv", pricesCSV)
	require.Equal(t, [2]int{4, 4}, frame.Shape())
	require.Equal(t, []string{"date", "close", "volume", "note"}, frame.Columns())
}

func TestHeadReturnsTypedRecords(t *testing.T) {
	frame := parseFrame(t, "prices.csv", pricesCSV)

	head := frame.Head(2)
	require.Len(t, head, 2)
	require.Equal(t, "2024-01-02", head[0]["date"])
	require.Equal(t, 101.5, head[0]["close"])
	require.Equal(t, int64(1200), head[0]["volume"])

	require.Len(t, frame.Head(100), 4)
}

func TestHeadMissingNumericCellIsNil(t *testing.T) {
	frame := parseFrame(t, "gaps.csv", "qty,tag\n1,a\n,b\n")
	head := frame.Head(2)
	require.Equal(t, 1.0, head[0]["qty"])
	require.Nil(t, head[1]["qty"])
	require.Equal(t, "b", head[1]["tag"])
}

func TestDescribeNumericColumns(t *testing.T) {
	frame := parseFrame(t, "vals.csv", "x,label\n1,a\n2,b\n3,a\n4,c\n")

	summary := frame.Describe()
	require.Contains(t, summary, "x")
	require.NotContains(t, summary, "label")

	x := summary["x"]
	require.Equal(t, 4.0, x["count"])
	require.InDelta(t, 2.5, x["mean"].(float64), 1e-12)
	require.InDelta(t, 1.2909944487358056, x["std"].(float64), 1e-12)
	require.Equal(t, 1.0, x["min"])
	require.InDelta(t, 1.75, x["25%"].(float64), 1e-12)
	require.InDelta(t, 2.5, x["50%"].(float64), 1e-12)
	require.InDelta(t, 3.25, x["75%"].(float64), 1e-12)
	require.Equal(t, 4.0, x["max"])
}

func TestDescribeSingleRowStdIsNull(t *testing.T) {
	frame := parseFrame(t, "one.csv", "x\n7\n")
	x := frame.Describe()["x"]
	require.Equal(t, 1.0, x["count"])
	require.Nil(t, x["std"])
	require.Equal(t, 7.0, x["min"])
}

func TestDescribeFallsBackToObjectSummary(t *testing.T) {
	frame := parseFrame(t, "cats.csv", "sector\ntech\ntech\nenergy\n")

	summary := frame.Describe()
	sector := summary["sector"]
	require.Equal(t, 3.0, sector["count"])
	require.Equal(t, 2.0, sector["unique"])
	require.Equal(t, "tech", sector["top"])
	require.Equal(t, 2.0, sector["freq"])
}

func TestDtypeSample(t *testing.T) {
	frame := parseFrame(t, "prices.csv", pricesCSV)
	require.Equal(t, "{'date': 'object', 'close': 'float64'}", frame.DtypeSample(2))
	require.Equal(t,
		"{'date': 'object', 'close': 'float64', 'volume': 'int64', 'note': 'object'}",
		frame.DtypeSample(10))
}

func TestNumericColumn(t *testing.T) {
	frame := parseFrame(t, "prices.csv", pricesCSV)

	values, err := frame.NumericColumn("close")
	require.NoError(t, err)
	require.Equal(t, []float64{101.5, 99.25, 103.0, 104.75}, values)

	_, err = frame.NumericColumn("note")
	require.Error(t, err)
	_, err = frame.NumericColumn("missing")
	require.Error(t, err)
}
