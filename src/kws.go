package sphinx

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// KWSPhrase is one entry of a keyword-spotting list (§4.7): a word
// sequence to detect, and (SPEC_FULL.md §C.3) its own per-phrase
// detection threshold rather than one threshold shared across the whole
// list.
type KWSPhrase struct {
	Words     []WordID
	Text      string
	Threshold int32 // log-domain; a detection fires when score exceeds this
}

// LoadKWSList parses a keyword file: one phrase per line, either
// "phrase words here" (falling back to a caller-supplied default
// threshold) or "phrase words here /threshold/" with an explicit log
// threshold in the trailing slash-delimited field, matching the
// original's keyphrase-spotting list syntax extended per §C.3.
func LoadKWSList(r io.Reader, dict *Dictionary, defaultThreshold int32) ([]KWSPhrase, error) {
	scanner := bufio.NewScanner(r)
	var out []KWSPhrase
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		threshold := defaultThreshold
		if strings.HasSuffix(line, "/") {
			lastSlash := strings.LastIndex(line[:len(line)-1], "/")
			if lastSlash >= 0 {
				thStr := line[lastSlash+1 : len(line)-1]
				v, err := strconv.Atoi(thStr)
				if err != nil {
					return nil, &FormatError{Msg: "kws line " + strconv.Itoa(lineNo) + ": bad threshold " + thStr}
				}
				threshold = int32(v)
				line = strings.TrimSpace(line[:lastSlash])
			}
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		text := strings.Join(fields, " ")
		words := make([]WordID, 0, len(fields))
		for _, f := range fields {
			ids := dict.Lookup(f)
			if len(ids) == 0 {
				return nil, &DomainError{Msg: "kws line " + strconv.Itoa(lineNo) + ": word not in dictionary: " + f}
			}
			words = append(words, ids[0])
		}
		out = append(out, KWSPhrase{Words: words, Text: text, Threshold: threshold})
	}
	return out, scanner.Err()
}

// KWSDetection is one spotted occurrence: the phrase, the frame range it
// was spotted in, and its path score at detection (the raw score that
// exceeded the phrase's threshold, not the margin above it).
type KWSDetection struct {
	Phrase     *KWSPhrase
	StartFrame int
	EndFrame   int
	Score      int32
}

// KWSSpotter runs every configured phrase as an independent linear FSG
// built from its word sequence (§4.7), each with its own search state,
// and reports detections whenever a phrase's final state is reached with
// a score above its threshold. This reuses FsgSearch per phrase rather
// than inventing a parallel mechanism, matching the original's framing
// of keyword spotting as "an FSG is a special case a word list can
// build."
type KWSSpotter struct {
	phrases []KWSPhrase
	fsgs    []*FsgSearch
	enter   []int32 // running best score at phrase start, for this-run's StartFrame bookkeeping
	starts  []int
}

// NewKWSSpotter builds one single-path Fsg per phrase and wraps each in
// an FsgSearch.
func NewKWSSpotter(phrases []KWSPhrase, dict *Dictionary, sseq *SseqTable, tmats []*Tmat, cfg FwdTreeConfig, ssidFn SSIDFunc, tmatFn TmatFunc, nEmitFn NEmitFunc) *KWSSpotter {
	sp := &KWSSpotter{phrases: phrases}
	for _, ph := range phrases {
		fsg := NewFsg(len(ph.Words) + 1)
		fsg.Start = 0
		for i, w := range ph.Words {
			fsg.AddTransition(FsgStateID(i), FsgTransition{To: FsgStateID(i + 1), Word: w})
		}
		fsg.Final[FsgStateID(len(ph.Words))] = true
		sp.fsgs = append(sp.fsgs, NewFsgSearch(fsg, dict, sseq, tmats, cfg, ssidFn, tmatFn, nEmitFn))
		sp.starts = append(sp.starts, 0)
	}
	return sp
}

// StartUtterance restarts every phrase's detector so it can re-fire
// later in the same utterance (keyword spotting is not one-shot).
func (sp *KWSSpotter) StartUtterance() {
	for _, fsg := range sp.fsgs {
		fsg.StartUtterance()
	}
}

// ProcessFrame advances every phrase detector and returns any detections
// that crossed threshold this frame.
func (sp *KWSSpotter) ProcessFrame(acmod *AcMod, feat [][]float32) ([]KWSDetection, error) {
	var hits []KWSDetection
	for i := range sp.fsgs {
		fsg := sp.fsgs[i]
		if err := fsg.ProcessFrame(acmod, feat); err != nil {
			return nil, err
		}
		if idx := fsg.BestFinal(); idx != NoBP {
			e := fsg.bp.Entry(idx)
			if e != nil && e.Score > sp.phrases[i].Threshold {
				hits = append(hits, KWSDetection{
					Phrase:     &sp.phrases[i],
					StartFrame: sp.starts[i],
					EndFrame:   int(e.Frame),
					Score:      e.Score,
				})
				fsg.StartUtterance()
				sp.starts[i] = int(e.Frame) + 1
			}
		}
	}
	return hits, nil
}
