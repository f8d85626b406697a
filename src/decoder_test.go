package sphinx

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	charmlog "github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, charmlog.DebugLevel, parseLogLevel("debug"))
	assert.Equal(t, charmlog.WarnLevel, parseLogLevel("warn"))
	assert.Equal(t, charmlog.ErrorLevel, parseLogLevel("error"))
	assert.Equal(t, charmlog.InfoLevel, parseLogLevel("info"))
	assert.Equal(t, charmlog.InfoLevel, parseLogLevel("nonsense"), "unrecognised levels fall back to info")
}

func writeTestDMP(t *testing.T, path string, words []string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	binary.Write(f, binary.LittleEndian, dmpMagicLE)
	binary.Write(f, binary.LittleEndian, uint32(len(words)))
	for _, w := range words {
		binary.Write(f, binary.LittleEndian, uint32(len(w)))
		f.WriteString(w)
	}
	binary.Write(f, binary.LittleEndian, uint32(len(words)))
	for range words {
		binary.Write(f, binary.LittleEndian, int32(-100))
		binary.Write(f, binary.LittleEndian, int32(-10))
	}
}

func TestLoadLMCtlReadsNamedModelList(t *testing.T) {
	dir := t.TempDir()
	dmpPath := filepath.Join(dir, "one.dmp")
	writeTestDMP(t, dmpPath, []string{"<s>", "</s>", "one"})

	ctlPath := filepath.Join(dir, "lmctl")
	require.NoError(t, os.WriteFile(ctlPath, []byte("digits "+dmpPath+"\n"), 0o644))

	lm, err := NewLogMath(1.0001)
	require.NoError(t, err)

	ctlFile, err := os.Open(ctlPath)
	require.NoError(t, err)
	defer ctlFile.Close()

	models := make(map[string]*NgramModel)
	names, err := loadLMCtl(ctlFile, lm, &models)
	require.NoError(t, err)

	assert.Equal(t, []string{"digits"}, names)
	require.Contains(t, models, "digits")
	assert.Equal(t, WordID(0), models["digits"].BOS())
}

func TestLoadLMCtlRejectsMissingModelFile(t *testing.T) {
	dir := t.TempDir()
	ctlPath := filepath.Join(dir, "lmctl")
	require.NoError(t, os.WriteFile(ctlPath, []byte("digits /nonexistent.dmp\n"), 0o644))

	lm, err := NewLogMath(1.0001)
	require.NoError(t, err)

	ctlFile, err := os.Open(ctlPath)
	require.NoError(t, err)
	defer ctlFile.Close()

	models := make(map[string]*NgramModel)
	_, err = loadLMCtl(ctlFile, lm, &models)
	assert.Error(t, err)
}

func TestLoadLMCtlEmptyFileReturnsNoNames(t *testing.T) {
	dir := t.TempDir()
	ctlPath := filepath.Join(dir, "lmctl")
	require.NoError(t, os.WriteFile(ctlPath, []byte(""), 0o644))

	lm, err := NewLogMath(1.0001)
	require.NoError(t, err)

	ctlFile, err := os.Open(ctlPath)
	require.NoError(t, err)
	defer ctlFile.Close()

	models := make(map[string]*NgramModel)
	names, err := loadLMCtl(ctlFile, lm, &models)
	require.NoError(t, err)
	assert.Empty(t, names)
}
