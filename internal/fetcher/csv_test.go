package fetcher

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectDelimiter(t *testing.T) {
	assert.Equal(t, ',', DetectDelimiter("Driver,Asset,Key On"))
	assert.Equal(t, ';', DetectDelimiter("Driver;Asset;Key On"))
	assert.Equal(t, ',', DetectDelimiter("Driver;Asset,Key On"))
	assert.Equal(t, '\t', DetectDelimiter("Driver\tAsset"))
	assert.Equal(t, ',', DetectDelimiter("Driver"))
}

func TestReadCSV_Comma(t *testing.T) {
	input := "Driver,Asset,Key On\nMatthew Shaylor,EX-210013,06:45\n"
	rows, delim, err := ReadCSV(strings.NewReader(input), CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, ',', delim)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Matthew Shaylor", "EX-210013", "06:45"}, rows[1])
}

func TestReadCSV_Semicolon(t *testing.T) {
	input := "Driver;Asset;Key On\n\"Shaylor, Matthew\";EX-210013; 06:45 \n"
	rows, delim, err := ReadCSV(strings.NewReader(input), CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, ';', delim)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Shaylor, Matthew", "EX-210013", "06:45"}, rows[1])
}

func TestReadCSV_BOMAndRaggedRows(t *testing.T) {
	input := "\xEF\xBB\xBFDriver,Asset\nA,1,extra\nB\n"
	rows, _, err := ReadCSV(strings.NewReader(input), CSVOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Driver", rows[0][0])
	assert.Len(t, rows[1], 3)
	assert.Len(t, rows[2], 1)
}

func TestReadCSV_ExplicitDelimiter(t *testing.T) {
	input := "a|b\n1|2\n"
	rows, delim, err := ReadCSV(strings.NewReader(input), CSVOptions{Delimiter: '|'})
	require.NoError(t, err)
	assert.Equal(t, '|', delim)
	assert.Equal(t, []string{"1", "2"}, rows[1])
}

func TestReadCSV_Comment(t *testing.T) {
	input := "# exported by telematics portal\nDriver,Asset\nA,1\n"
	rows, _, err := ReadCSV(strings.NewReader(input), CSVOptions{Delimiter: ',', Comment: '#'})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Driver", "Asset"}, rows[0])
}

func TestReadCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "DrivingHistory_20250516.csv")
	require.NoError(t, writeTestFile(path, "Driver;Asset\nA;1\n"))

	rows, delim, err := ReadCSVFile(path, CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, ';', delim)
	assert.Len(t, rows, 2)

	_, _, err = ReadCSVFile(filepath.Join(t.TempDir(), "missing.csv"), CSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open file")

}

func TestReadCSV_TitleRowBeforeHeader(t *testing.T) {
	input := "Driving History Report\nDriver;Asset\nA;1\n"
	rows, delim, err := ReadCSV(strings.NewReader(input), CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, ';', delim)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"A", "1"}, rows[2])
}
