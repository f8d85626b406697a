package sphinx

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// WordID identifies a dictionary entry.
type WordID int32

// NoWord marks an absent word reference (e.g. no alternate pronunciation,
// no right context yet resolved).
const NoWord WordID = -1

// PhoneID identifies a context-independent or context-expanded phone.
type PhoneID int32

// Word is a dictionary entry (§3 "Word"): a base word id, its
// pronunciation as a sequence of phone ids, whether it's a filler, and
// (SPEC_FULL.md §C.6) a chain of alternate pronunciations rather than a
// single link, since the original's dictionary format allows any number
// of "word(2)", "word(3)", ... variants.
type Word struct {
	ID     WordID
	Text   string
	Phones []PhoneID
	Filler bool

	// BaseID is ID for a base pronunciation, or the id of the word this
	// is an alternate pronunciation of. Equal to ID for base entries.
	BaseID WordID
	// Alternates lists every other pronunciation's WordID sharing this
	// word's base text; for an alternate this includes its base entry.
	Alternates []WordID
}

// Dictionary resolves words by text and by id, and tracks which phone
// alphabet entries are fillers (silence/noise words excluded from the
// lexicon tree per §4.4.1).
type Dictionary struct {
	words   []*Word
	byText  map[string][]WordID // base text -> every pronunciation's id
	phoneOf map[string]PhoneID
}

// NewDictionary builds an empty dictionary over the given phone alphabet
// (name -> id), populated by LoadText.
func NewDictionary(phoneOf map[string]PhoneID) *Dictionary {
	return &Dictionary{
		byText:  make(map[string][]WordID),
		phoneOf: phoneOf,
	}
}

// Word returns the dictionary entry for id, or nil if out of range.
func (d *Dictionary) Word(id WordID) *Word {
	if int(id) < 0 || int(id) >= len(d.words) {
		return nil
	}
	return d.words[id]
}

// NWords reports the number of dictionary entries, including alternates.
func (d *Dictionary) NWords() int { return len(d.words) }

// Lookup returns every pronunciation's WordID for the given base text
// (without a parenthesised alternate suffix).
func (d *Dictionary) Lookup(text string) []WordID {
	return d.byText[text]
}

// LoadText parses a pocketsphinx-style dictionary: one word per line,
// "WORD PH1 PH2 PH3 ...", with alternate pronunciations spelled
// "WORD(2) PH1 PH2 ...". Filler words come from a separate file sharing
// the same format (fillerFile semantics handled by the caller passing
// filler=true).
func (d *Dictionary) LoadText(r io.Reader, filler bool) error {
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";;") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return &FormatError{Msg: "dictionary line " + strconv.Itoa(lineNo) + " has no pronunciation"}
		}

		rawText := fields[0]
		baseText, isAlt := splitAlternate(rawText)

		phones := make([]PhoneID, 0, len(fields)-1)
		for _, ph := range fields[1:] {
			pid, ok := d.phoneOf[ph]
			if !ok {
				return &FormatError{Msg: "dictionary line " + strconv.Itoa(lineNo) + ": unknown phone " + ph}
			}
			phones = append(phones, pid)
		}

		id := WordID(len(d.words))
		w := &Word{
			ID:     id,
			Text:   rawText,
			Phones: phones,
			Filler: filler,
			BaseID: id,
		}

		if isAlt {
			baseIDs := d.byText[baseText]
			if len(baseIDs) == 0 {
				return &DomainError{Msg: "alternate pronunciation " + rawText + " has no base entry " + baseText}
			}
			base := baseIDs[0]
			w.BaseID = base
			for _, other := range baseIDs {
				d.words[other].Alternates = append(d.words[other].Alternates, id)
			}
			w.Alternates = append([]WordID{}, baseIDs...)
		}

		d.words = append(d.words, w)
		d.byText[baseText] = append(d.byText[baseText], id)
	}
	return scanner.Err()
}

// splitAlternate separates "WORD(2)" into ("WORD", true); plain "WORD"
// returns ("WORD", false).
func splitAlternate(text string) (string, bool) {
	open := strings.LastIndexByte(text, '(')
	if open < 0 || !strings.HasSuffix(text, ")") {
		return text, false
	}
	suffix := text[open+1 : len(text)-1]
	if _, err := strconv.Atoi(suffix); err != nil {
		return text, false
	}
	return text[:open], true
}

// AddWord implements §6.1's add_word: inserts a new dictionary entry at
// runtime from a text pronunciation, failing with a DomainError if any
// phone is unknown to the loaded phone set.
func (d *Dictionary) AddWord(text string, pronunciation []string) (WordID, error) {
	phones := make([]PhoneID, 0, len(pronunciation))
	for _, ph := range pronunciation {
		pid, ok := d.phoneOf[ph]
		if !ok {
			return NoWord, &DomainError{Msg: "add_word: unknown phone " + ph}
		}
		phones = append(phones, pid)
	}
	id := WordID(len(d.words))
	w := &Word{ID: id, Text: text, Phones: phones, BaseID: id}
	d.words = append(d.words, w)
	d.byText[text] = append(d.byText[text], id)
	return id, nil
}
