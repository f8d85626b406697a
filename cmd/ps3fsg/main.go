// Command ps3fsg runs a grammar-constrained decode, the FSG counterpart
// of ps3decode.
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
	fs := pflag.NewFlagSet("ps3fsg", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "path to decoder YAML config (required, mode: fsg)")
	rawPath := fs.StringP("raw", "r", "", "path to raw 16-bit PCM audio (required)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *configPath == "" || *rawPath == "" {
		fmt.Fprintln(os.Stderr, "usage: ps3fsg -c config.yaml -r input.raw")
		return 1
	}

	cfg, err := sphinx.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return 1
	}
	if cfg.Mode != sphinx.SearchModeFSG {
		fmt.Fprintln(os.Stderr, "config: mode must be fsg for ps3fsg")
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
	feats := framePCM(data)

	if err := dec.StartUtt(""); err != nil {
		fmt.Fprintln(os.Stderr, "start:", err)
		return 1
	}
	for _, f := range feats {
		if err := dec.ProcessCep(f); err != nil {
			fmt.Fprintln(os.Stderr, "process:", err)
			return 1
		}
	}
	if err := dec.EndUtt(); err != nil {
		fmt.Fprintln(os.Stderr, "end:", err)
		return 1
	}

	words, score, err := dec.GetHyp()
	if err != nil {
		fmt.Fprintln(os.Stderr, "gethyp:", err)
		return 1
	}
	fmt.Printf("%v (score=%d)\n", words, score)
	return 0
}

func framePCM(data []byte) [][][]float32 {
	const frameSamples = 160
	var frames [][][]float32
	for i := 0; i+2*frameSamples <= len(data); i += 2 * frameSamples {
		vec := make([]float32, frameSamples)
		for j := 0; j < frameSamples; j++ {
			lo := data[i+2*j]
			hi := data[i+2*j+1]
			vec[j] = float32(int16(uint16(lo) | uint16(hi)<<8))
		}
		frames = append(frames, [][]float32{vec})
	}
	return frames
}
