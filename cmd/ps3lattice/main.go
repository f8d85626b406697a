// Command ps3lattice builds a word lattice from a decode, or rescales an
// existing lattice file at a different LM weight, and reports the best
// path and N-best list either way.
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
	fs := pflag.NewFlagSet("ps3lattice", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "path to decoder YAML config (required, mode: ngram or fsg)")
	rawPath := fs.StringP("raw", "r", "", "path to raw 16-bit PCM audio (decode mode)")
	inLatPath := fs.String("lattice-in", "", "path to an existing lattice text file (rescore mode)")
	outLatPath := fs.String("lattice-out", "", "path to write the lattice text file")
	lw := fs.Float64("lw", 0, "override the configured LM weight for rescoring (0 = use config)")
	nbest := fs.Int("nbest", 1, "number of N-best hypotheses to print")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "usage: ps3lattice -c config.yaml (-r input.raw | --lattice-in lat.txt) [--lattice-out lat.txt] [--lw 9.5] [--nbest 5]")
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

	var lat *sphinx.Lattice
	switch {
	case *inLatPath != "":
		f, err := os.Open(*inLatPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "lattice-in:", err)
			return 1
		}
		defer f.Close()
		lat, err = sphinx.ReadLatticeText(f, dec.Dict())
		if err != nil {
			fmt.Fprintln(os.Stderr, "lattice-in:", err)
			return 1
		}
	case *rawPath != "":
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
		lat, err = dec.Lattice()
		if err != nil {
			fmt.Fprintln(os.Stderr, "lattice:", err)
			return 1
		}
	default:
		fmt.Fprintln(os.Stderr, "need either --raw or --lattice-in")
		return 1
	}

	if *outLatPath != "" {
		f, err := os.Create(*outLatPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "lattice-out:", err)
			return 1
		}
		defer f.Close()
		if err := lat.WriteText(f, dec.Dict()); err != nil {
			fmt.Fprintln(os.Stderr, "lattice-out:", err)
			return 1
		}
	}

	weight := cfg.LMWeight
	if *lw != 0 {
		weight = *lw
	}

	words, score, err := sphinx.BestPath(lat, weight)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bestpath:", err)
		return 1
	}
	fmt.Printf("best: %v (score=%d)\n", wordsToText(dec, words), score)

	if *nbest > 1 {
		hyps, err := sphinx.NBest(lat, weight, *nbest)
		if err != nil {
			fmt.Fprintln(os.Stderr, "nbest:", err)
			return 1
		}
		for i, h := range hyps {
			fmt.Printf("%d: %v (score=%d)\n", i+1, wordsToText(dec, h.Words), h.Score)
		}
	}
	return 0
}

func wordsToText(dec *sphinx.Decoder, words []sphinx.WordID) []string {
	out := make([]string, len(words))
	for i, wid := range words {
		if w := dec.Dict().Word(wid); w != nil {
			out[i] = w.Text
		}
	}
	return out
}
