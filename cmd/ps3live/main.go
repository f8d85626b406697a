// Command ps3live streams microphone audio into the decoder and prints
// the final hypothesis when the utterance ends, the live counterpart of the
// teacher's sound-card capture path in src/audio.go.
package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/gordonklaus/portaudio"
	"github.com/spf13/pflag"

	sphinx "github.com/pocketvox/decoder/src"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := pflag.NewFlagSet("ps3live", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "path to decoder YAML config (required)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "usage: ps3live -c config.yaml")
		return 1
	}

	cfg, err := sphinx.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return 1
	}
	cfg.PartialHypEveryNFrames = 100

	dec, err := sphinx.NewDecoder(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init:", err)
		return 1
	}

	if err := portaudio.Initialize(); err != nil {
		fmt.Fprintln(os.Stderr, "portaudio init:", err)
		return 1
	}
	defer portaudio.Terminate()

	const frameSamples = 160
	buf := make([]int16, frameSamples)

	if err := dec.StartUtt(""); err != nil {
		fmt.Fprintln(os.Stderr, "start:", err)
		return 1
	}

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(cfg.SampleRate), len(buf), buf)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open stream:", err)
		return 1
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		fmt.Fprintln(os.Stderr, "start stream:", err)
		return 1
	}
	defer stream.Stop()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt)

	for {
		select {
		case <-sigc:
			if err := dec.EndUtt(); err != nil {
				fmt.Fprintln(os.Stderr, "end:", err)
				return 1
			}
			words, score, _ := dec.GetHyp()
			fmt.Printf("%v (score=%d)\n", words, score)
			return 0
		default:
		}

		if err := stream.Read(); err != nil {
			fmt.Fprintln(os.Stderr, "read:", err)
			return 1
		}
		vec := make([]float32, len(buf))
		for i, s := range buf {
			vec[i] = float32(s)
		}
		if err := dec.ProcessCep([][]float32{vec}); err != nil {
			fmt.Fprintln(os.Stderr, "process:", err)
			return 1
		}
	}
}
