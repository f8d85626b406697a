package sphinx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseConfigYAML(extra string) string {
	return "mdef: m\nmean: me\nvar: v\ntmat: t\ndict: d\nlm: l\n" + extra
}

func TestReadConfigAppliesDefaultsOverYAMLOverrides(t *testing.T) {
	cfg, err := ReadConfig(strings.NewReader(baseConfigYAML("beam: 500\n")))
	require.NoError(t, err)

	assert.Equal(t, int32(500), cfg.BeamWidth)
	assert.Equal(t, 4, cfg.TopN, "unset fields keep DefaultConfig's value")
	assert.Equal(t, SearchModeNgram, cfg.Mode)
}

func TestReadConfigMissingAcousticPathsFails(t *testing.T) {
	_, err := ReadConfig(strings.NewReader("dict: d\nlm: l\n"))
	assert.Error(t, err)
}

func TestReadConfigNgramModeRequiresLMOrLMCtl(t *testing.T) {
	_, err := ReadConfig(strings.NewReader("mdef: m\nmean: me\nvar: v\ntmat: t\ndict: d\n"))
	assert.Error(t, err)
}

func TestReadConfigLMAndLMCtlAreMutuallyExclusive(t *testing.T) {
	_, err := ReadConfig(strings.NewReader(baseConfigYAML("lmctl: lc\n")))
	assert.Error(t, err)
}

func TestReadConfigFSGModeRequiresFSGPath(t *testing.T) {
	text := "mdef: m\nmean: me\nvar: v\ntmat: t\ndict: d\nmode: fsg\n"
	_, err := ReadConfig(strings.NewReader(text))
	assert.Error(t, err)
}

func TestReadConfigKWSModeRequiresKWSPath(t *testing.T) {
	text := "mdef: m\nmean: me\nvar: v\ntmat: t\ndict: d\nmode: kws\n"
	_, err := ReadConfig(strings.NewReader(text))
	assert.Error(t, err)
}

func TestReadConfigRejectsUnrecognisedMode(t *testing.T) {
	_, err := ReadConfig(strings.NewReader(baseConfigYAML("mode: bogus\n")))
	assert.Error(t, err)
}

func TestReadConfigRejectsNonPositiveBeam(t *testing.T) {
	_, err := ReadConfig(strings.NewReader(baseConfigYAML("beam: 0\n")))
	assert.Error(t, err)
}

func TestFwdTreeConfigProjection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BeamWidth = 111
	cfg.WordBeamWidth = 222
	cfg.MaxHMMActive = 333

	ftc := cfg.FwdTreeConfig()
	assert.Equal(t, int32(111), ftc.BeamWidth)
	assert.Equal(t, int32(222), ftc.WordBeamWidth)
	assert.Equal(t, 333, ftc.MaxHMMActive)
}
