// Command ps3kws runs keyword spotting over a raw audio file and reports
// every detection with its frame span and score.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	sphinx "github.com/pocketvox/decoder/src"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := pflag.NewFlagSet("ps3kws", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "path to decoder YAML config (required, mode: kws)")
	rawPath := fs.StringP("raw", "r", "", "path to raw 16-bit PCM audio (required)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *configPath == "" || *rawPath == "" {
		fmt.Fprintln(os.Stderr, "usage: ps3kws -c config.yaml -r input.raw")
		return 1
	}

	cfg, err := sphinx.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return 1
	}
	if cfg.Mode != sphinx.SearchModeKWS {
		fmt.Fprintln(os.Stderr, "config: mode must be kws for ps3kws")
		return 1
	}

	dec, err := sphinx.NewDecoder(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init:", err)
		return 1
	}

	data, err := os.ReadFile(*rawPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "raw:", err)
		return 1
	}

	if err := dec.StartUtt(""); err != nil {
		fmt.Fprintln(os.Stderr, "start:", err)
		return 1
	}
	const frameSamples = 160
	for i := 0; i+2*frameSamples <= len(data); i += 2 * frameSamples {
		vec := make([]float32, frameSamples)
		for j := 0; j < frameSamples; j++ {
			lo := data[i+2*j]
			hi := data[i+2*j+1]
			vec[j] = float32(int16(uint16(lo) | uint16(hi)<<8))
		}
		if err := dec.ProcessCep([][]float32{vec}); err != nil {
			fmt.Fprintln(os.Stderr, "process:", err)
			return 1
		}
	}
	if err := dec.EndUtt(); err != nil {
		fmt.Fprintln(os.Stderr, "end:", err)
		return 1
	}

	for _, hit := range dec.KWSHits() {
		fmt.Printf("%s [%d-%d] score=%d\n", hit.Phrase.Text, hit.StartFrame, hit.EndFrame, hit.Score)
	}
	return 0
}
