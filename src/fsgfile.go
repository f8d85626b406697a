package sphinx

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// ParseFsgText reads the original's textual FSG format: a header
//   FSG_BEGIN [name]
//   NUM_STATES n
//   START_STATE s
//   FINAL_STATE s
//   TRANSITION from to prob [word]
//   FSG_END
// Transitions without a trailing word are epsilon arcs. Probabilities
// are given as plain (not log) values in (0,1]; a TRANSITION line may
// omit the probability, defaulting to 1.0.
func ParseFsgText(r io.Reader, lm *LogMath, wordID func(string) (WordID, bool)) (*Fsg, error) {
	scanner := bufio.NewScanner(r)
	var fsg *Fsg
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "FSG_BEGIN":
			// name, if present, is informational only.
		case "NUM_STATES":
			if len(fields) != 2 {
				return nil, &FormatError{Msg: "fsg line " + strconv.Itoa(lineNo) + ": NUM_STATES needs one argument"}
			}
			n, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, &FormatError{Msg: "fsg line " + strconv.Itoa(lineNo) + ": bad state count"}
			}
			fsg = NewFsg(n)
		case "START_STATE":
			if fsg == nil {
				return nil, &FormatError{Msg: "fsg line " + strconv.Itoa(lineNo) + ": START_STATE before NUM_STATES"}
			}
			s, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, &FormatError{Msg: "fsg line " + strconv.Itoa(lineNo) + ": bad start state"}
			}
			fsg.Start = FsgStateID(s)
		case "FINAL_STATE":
			if fsg == nil {
				return nil, &FormatError{Msg: "fsg line " + strconv.Itoa(lineNo) + ": FINAL_STATE before NUM_STATES"}
			}
			s, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, &FormatError{Msg: "fsg line " + strconv.Itoa(lineNo) + ": bad final state"}
			}
			fsg.Final[FsgStateID(s)] = true
		case "TRANSITION":
			if fsg == nil {
				return nil, &FormatError{Msg: "fsg line " + strconv.Itoa(lineNo) + ": TRANSITION before NUM_STATES"}
			}
			if len(fields) < 3 {
				return nil, &FormatError{Msg: "fsg line " + strconv.Itoa(lineNo) + ": TRANSITION needs from/to"}
			}
			from, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, &FormatError{Msg: "fsg line " + strconv.Itoa(lineNo) + ": bad from-state"}
			}
			to, err := strconv.Atoi(fields[2])
			if err != nil {
				return nil, &FormatError{Msg: "fsg line " + strconv.Itoa(lineNo) + ": bad to-state"}
			}

			prob := 1.0
			word := NoWord
			rest := fields[3:]
			if len(rest) > 0 {
				if p, err := strconv.ParseFloat(rest[0], 64); err == nil {
					prob = p
					rest = rest[1:]
				}
			}
			if len(rest) > 0 {
				wid, ok := wordID(rest[0])
				if !ok {
					return nil, &DomainError{Msg: "fsg line " + strconv.Itoa(lineNo) + ": unknown word " + rest[0]}
				}
				word = wid
			}

			fsg.AddTransition(FsgStateID(from), FsgTransition{
				To:     FsgStateID(to),
				Word:   word,
				Weight: lm.FromProb(prob),
			})
		case "FSG_END":
			if fsg == nil {
				return nil, &FormatError{Msg: "fsg: FSG_END without a grammar body"}
			}
			return fsg, nil
		default:
			return nil, &FormatError{Msg: "fsg line " + strconv.Itoa(lineNo) + ": unrecognised keyword " + fields[0]}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &FormatError{Msg: "fsg: " + err.Error()}
	}
	return nil, &FormatError{Msg: "fsg: missing FSG_END"}
}
