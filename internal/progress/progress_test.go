package progress

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBarRendersPercentAndSize(t *testing.T) {
	var buf bytes.Buffer
	bar := NewBar(&buf, "Uploading")

	total := int64(10 * 1024 * 1024)
	bar.Update(total/2, total)

	out := buf.String()
	assert.Contains(t, out, "Uploading:")
	assert.Contains(t, out, "50%")
	assert.Contains(t, out, "5.0/10.0 MB")
}

func TestBarThrottlesUnchangedPercent(t *testing.T) {
	var buf bytes.Buffer
	bar := NewBar(&buf, "Uploading")

	bar.Update(100, 1000000)
	first := buf.Len()
	bar.Update(101, 1000000) // still 0%
	assert.Equal(t, first, buf.Len(), "same percent must not redraw")
}

func TestBarCompletesWithNewline(t *testing.T) {
	var buf bytes.Buffer
	bar := NewBar(&buf, "Downloading")

	bar.Update(10, 10)
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
	assert.Contains(t, buf.String(), "100%")
	assert.Contains(t, buf.String(), strings.Repeat("=", 40))
}

func TestBarIgnoresUnknownTotal(t *testing.T) {
	var buf bytes.Buffer
	NewBar(&buf, "Uploading").Update(5, 0)
	assert.Zero(t, buf.Len())
}

func TestDirBarShowsBaseName(t *testing.T) {
	var buf bytes.Buffer
	bar := NewDirBar(&buf)

	bar.Update("/some/deep/path/file.txt", 5, 10)
	assert.Contains(t, buf.String(), "file.txt")
	assert.Contains(t, buf.String(), "50%")
	assert.NotContains(t, buf.String(), "/some/deep")
}

func TestDirBarTruncatesLongNames(t *testing.T) {
	var buf bytes.Buffer
	bar := NewDirBar(&buf)

	long := strings.Repeat("x", 48) + ".txt"
	bar.Update(long, 1, 2)
	assert.Contains(t, buf.String(), "...")
	assert.NotContains(t, buf.String(), long)
}

func TestDirBarZeroByteFileCompletes(t *testing.T) {
	var buf bytes.Buffer
	bar := NewDirBar(&buf)

	bar.Update("empty.dat", 0, 0)
	assert.Contains(t, buf.String(), "100%")
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}
