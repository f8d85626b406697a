package sphinx

import (
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// SearchMode selects which of the three search strategies (§4.4/§4.5,
// §4.6, §4.7) the decoder runs: the default two-pass n-gram pipeline, a
// single FSG-constrained pass, or keyword-phrase spotting.
type SearchMode string

const (
	SearchModeNgram SearchMode = "ngram"
	SearchModeFSG   SearchMode = "fsg"
	SearchModeKWS   SearchMode = "kws"
)

// Config is the decoder's top-level configuration, loaded from YAML
// (the teacher's config layer, adapted from its direwolf.yaml) rather
// than the original's flat "-arg value" argument-file format. Every
// field maps to one or more of the original's command-line switches,
// named per SPEC_FULL.md §A.2 and §C.2/§C.5.
type Config struct {
	// Acoustic model paths.
	MdefPath     string `yaml:"mdef"`
	MeanPath     string `yaml:"mean"`
	VarPath      string `yaml:"var"`
	MixwPath     string `yaml:"mixw"`
	TmatPath     string `yaml:"tmat"`
	SendumpPath  string `yaml:"sendump"`
	VarFloor     float64 `yaml:"var_floor"`

	// Language/lexicon.
	DictPath    string   `yaml:"dict"`
	FillerPath  string   `yaml:"fdict"`
	LMPath      string   `yaml:"lm"`
	LMCtlPath   string   `yaml:"lmctl"`
	LMName      string   `yaml:"lmname"`
	FSGPath     string   `yaml:"fsg"`
	KWSPath     string   `yaml:"kws"`
	KWSThresh   int32    `yaml:"kws_threshold"`

	// Search.
	Mode          SearchMode `yaml:"mode"`
	BeamWidth     int32      `yaml:"beam"`
	WordBeamWidth int32      `yaml:"wbeam"`
	MaxHMMActive  int        `yaml:"maxhmmpf"`
	TopN          int        `yaml:"topn"`
	Downsample    int        `yaml:"ds"`
	LMWeight      float64    `yaml:"lw"`
	NBest         int        `yaml:"nbest"`

	// Front-end.
	CMNMode        CMNMode `yaml:"cmn"`
	AGCEnabled     bool    `yaml:"agc"`
	ComputeAllSenones bool `yaml:"compallsen"`
	SampleRate     int     `yaml:"samprate"`

	// Partial hypothesis reporting (SPEC_FULL.md §C.4).
	PartialHypEveryNFrames int `yaml:"phyp_frames"`

	// Logging (SPEC_FULL.md §A.1).
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// DefaultConfig returns a Config with the same defaults the original
// bins its command-line parser with: a pruning beam of 200000 in the
// 1.0001 log base (a probability ratio of about 2e-9), top-4 Gaussian selection, no
// downsampling, current-mode CMN, AGC off, LM weight 1.0, N-best 1.
func DefaultConfig() *Config {
	return &Config{
		VarFloor:      1e-5,
		Mode:          SearchModeNgram,
		BeamWidth:     200000,
		WordBeamWidth: 100000,
		TopN:          4,
		Downsample:    1,
		LMWeight:      1.0,
		NBest:         1,
		CMNMode:       CMNCurrent,
		SampleRate:    16000,
		PartialHypEveryNFrames: 0,
		LogLevel:      "info",
	}
}

// LoadConfig reads and validates a YAML configuration file, layering it
// over DefaultConfig so a file only needs to name the fields it wants to
// override.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{Msg: "cannot open config file: " + err.Error()}
	}
	defer f.Close()
	return ReadConfig(f)
}

// ReadConfig parses YAML from r the same way LoadConfig does, for
// callers that already have an open reader (tests, embedded configs).
func ReadConfig(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, &ConfigError{Msg: "cannot parse config file: " + err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks for the option combinations the original's cmd_ln
// argument validation rejects: a search mode with no matching model
// path, conflicting LM/LMCtl selections, and out-of-range pruning
// parameters. An FSG path set alongside an LM is not rejected.
func (c *Config) Validate() error {
	if c.MdefPath == "" || c.MeanPath == "" || c.VarPath == "" || c.TmatPath == "" {
		return &ConfigError{Msg: "acoustic model paths (mdef, mean, var, tmat) are all required"}
	}
	if c.DictPath == "" {
		return &ConfigError{Msg: "a pronunciation dictionary is required"}
	}

	switch c.Mode {
	case SearchModeNgram:
		if c.LMPath == "" && c.LMCtlPath == "" {
			return &ConfigError{Msg: "ngram search mode requires lm or lmctl"}
		}
		if c.LMPath != "" && c.LMCtlPath != "" {
			return &ConfigError{Msg: "lm and lmctl are mutually exclusive"}
		}
	case SearchModeFSG:
		if c.FSGPath == "" {
			return &ConfigError{Msg: "fsg search mode requires fsg"}
		}
	case SearchModeKWS:
		if c.KWSPath == "" {
			return &ConfigError{Msg: "kws search mode requires kws"}
		}
	default:
		return &ConfigError{Msg: "unrecognised search mode: " + string(c.Mode)}
	}

	if c.BeamWidth <= 0 || c.WordBeamWidth <= 0 {
		return &ConfigError{Msg: "beam and wbeam must be positive"}
	}
	if c.TopN <= 0 {
		return &ConfigError{Msg: "topn must be positive"}
	}
	if c.Downsample <= 0 {
		return &ConfigError{Msg: "ds must be positive"}
	}
	if c.NBest <= 0 {
		return &ConfigError{Msg: "nbest must be positive"}
	}
	return nil
}

// FwdTreeConfig projects the pruning-relevant subset of Config into the
// smaller struct the search implementations take directly.
func (c *Config) FwdTreeConfig() FwdTreeConfig {
	return FwdTreeConfig{
		BeamWidth:     c.BeamWidth,
		WordBeamWidth: c.WordBeamWidth,
		MaxHMMActive:  c.MaxHMMActive,
	}
}
