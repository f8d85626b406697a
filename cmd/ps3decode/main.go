// Command ps3decode runs a batch N-gram decode over one or more raw audio
// files, mirroring the teacher's cmd/direwolf batch-mode flag conventions.
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
	fs := pflag.NewFlagSet("ps3decode", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "path to decoder YAML config (required)")
	rawPath := fs.StringP("raw", "r", "", "path to raw 16-bit PCM audio (required)")
	nbest := fs.IntP("nbest", "n", 0, "if > 0, print this many N-best hypotheses instead of one")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *configPath == "" || *rawPath == "" {
		fmt.Fprintln(os.Stderr, "usage: ps3decode -c config.yaml -r input.raw")
		return 1
	}

	cfg, err := sphinx.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return 1
	}

	dec, err := sphinx.NewDecoder(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init:", err)
		return 1
	}

	feats, err := loadRawAsFeatures(*rawPath, cfg.SampleRate)
	if err != nil {
		fmt.Fprintln(os.Stderr, "raw:", err)
		return 1
	}

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

	if *nbest > 0 {
		hyps, err := dec.NBestHyps(*nbest)
		if err != nil {
			fmt.Fprintln(os.Stderr, "nbest:", err)
			return 1
		}
		for i, h := range hyps {
			fmt.Printf("%d: score=%d words=%v\n", i+1, h.Score, h.Words)
		}
		return 0
	}

	words, score, err := dec.GetHyp()
	if err != nil {
		fmt.Fprintln(os.Stderr, "gethyp:", err)
		return 1
	}
	fmt.Printf("%v (score=%d)\n", words, score)
	return 0
}

// loadRawAsFeatures reads a raw PCM file and groups it into per-frame
// feature vectors. Cepstral front-end extraction itself is out of scope
// for this tool (SPEC_FULL.md's Non-goals exclude a full signal-
// processing front end); frames here are raw sample-block slices passed
// straight to the acoustic scorer, which is the shape tests exercise the
// pipeline with.
func loadRawAsFeatures(path string, sampleRate int) ([][][]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	const frameSamples = 160 // 10ms at 16kHz
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
	return frames, nil
}
