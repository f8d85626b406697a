package sphinx

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// NgramStateID is a finite-state language-model context handle, in the
// same spirit as fslm's StateId: it names "the last N-1 words", without
// the search layer needing to know how many words that is.
type NgramStateID uint32

// NoNgramState is the context that exists before any word has been
// consumed (the LM's start state).
const NoNgramState NgramStateID = 0

// NgramModel is the oracle spec.md §4.4.2/§2 treats opaquely:
// ngram_score(wid | ctx). It is implemented as a finite-state
// representation the way other_examples' kho-fslm package does —
// Score walks backoff arcs until it finds the requested word or
// bottoms out at the unigram state, accumulating backoff weight along
// the way, mirroring fslm.Model.NextI.
type NgramModel struct {
	lm *LogMath

	vocab    map[string]WordID
	words    []string
	bosID    WordID
	eosID    WordID

	// transitions[state] maps a word id to (nextState, weight). Entries
	// absent from a state's map fall back to that state's backoff arc.
	transitions []ngramState
}

type ngramState struct {
	arcs    map[WordID]ngramArc
	backoff NgramStateID
	bow     int32 // back-off weight, applied while walking up
}

type ngramArc struct {
	next   NgramStateID
	weight int32
}

// NewNgramModel creates an empty model ready for Builder-style population
// or for LoadDMP.
func NewNgramModel(lm *LogMath) *NgramModel {
	return &NgramModel{
		lm:    lm,
		vocab: make(map[string]WordID),
	}
}

// Start returns the model's start state (the context before any word).
func (m *NgramModel) Start() NgramStateID { return NoNgramState }

// WordID resolves a word's text to its LM-internal id, or (NoWord,
// false) if the word is out-of-vocabulary.
func (m *NgramModel) WordID(text string) (WordID, bool) {
	id, ok := m.vocab[text]
	return id, ok
}

// Score returns the next LM state after consuming word w from state p,
// and the log-probability of that transition (already combined with any
// back-off weights walked through), exactly the shape fslm.Model.NextI
// exposes. w not in the vocabulary scores as LogZero (an OOV).
func (m *NgramModel) Score(p NgramStateID, w WordID) (NgramStateID, int32) {
	var weight int32
	state := p
	for {
		st := m.transitions[state]
		if arc, ok := st.arcs[w]; ok {
			return arc.next, weight + arc.weight
		}
		if state == NoNgramState {
			return NoNgramState, LogZero
		}
		weight += st.bow
		state = st.backoff
	}
}

// AddTrigramPath is a convenience used by the fwdtree search's backpointer
// caching (§4.4.4): it resolves ngram_score(w | ctx1, ctx2) by walking
// the finite-state model from the start state through ctx2 then ctx1.
// Filler/absent context words are skipped, matching the original's
// trigram lookup falling back to bigram/unigram when the longer context
// isn't present.
func (m *NgramModel) AddTrigramPath(ctx1, ctx2, w WordID) int32 {
	state := m.Start()
	if ctx2 != NoWord {
		state, _ = m.Score(state, ctx2)
	}
	if ctx1 != NoWord {
		state, _ = m.Score(state, ctx1)
	}
	_, s := m.Score(state, w)
	return s
}

// Builder accumulates n-gram entries textually (ARPA-like: "word1 word2
// word3 logprob [backoff]") before Finalize bakes them into the
// finite-state transition table.
type Builder struct {
	lm    *LogMath
	order map[string]struct {
		weight  int32
		backoff int32
		hasBO   bool
	}
	vocab map[string]WordID
	words []string
}

// NewBuilder starts a fresh n-gram model under construction.
func NewBuilder(lm *LogMath) *Builder {
	return &Builder{
		lm: lm,
		order: make(map[string]struct {
			weight  int32
			backoff int32
			hasBO   bool
		}),
		vocab: make(map[string]WordID),
	}
}

func (b *Builder) internWord(w string) WordID {
	if id, ok := b.vocab[w]; ok {
		return id
	}
	id := WordID(len(b.words))
	b.vocab[w] = id
	b.words = append(b.words, w)
	return id
}

// AddEntry records one n-gram line: context words oldest-first followed
// by the predicted word, a log10 probability, and an optional log10
// back-off weight (0 if absent).
func (b *Builder) AddEntry(context []string, word string, log10Prob float64, log10Backoff float64, hasBackoff bool) {
	key := strings.Join(append(append([]string{}, context...), word), "\x1f")
	for _, c := range context {
		b.internWord(c)
	}
	wid := b.internWord(word)
	_ = wid
	b.order[key] = struct {
		weight  int32
		backoff int32
		hasBO   bool
	}{
		weight:  b.lm.FromLog10(log10Prob),
		backoff: b.lm.FromLog10(log10Backoff),
		hasBO:   hasBackoff,
	}
}

// Finalize builds the finite-state transition table from accumulated
// entries. Context lengths longer than 2 (trigram) collapse correctly
// because each distinct context prefix gets its own state, created on
// first reference, so the entries may be walked in any order.
func (b *Builder) Finalize(bosID, eosID WordID) *NgramModel {
	m := &NgramModel{
		lm:     b.lm,
		vocab:  b.vocab,
		words:  b.words,
		bosID:  bosID,
		eosID:  eosID,
	}

	// stateOf maps a context word-sequence (oldest-first) to its state.
	stateOf := map[string]NgramStateID{"": NoNgramState}
	m.transitions = append(m.transitions, ngramState{arcs: make(map[WordID]ngramArc)})

	stateFor := func(ctxKey string) NgramStateID {
		if s, ok := stateOf[ctxKey]; ok {
			return s
		}
		s := NgramStateID(len(m.transitions))
		m.transitions = append(m.transitions, ngramState{arcs: make(map[WordID]ngramArc)})
		stateOf[ctxKey] = s
		return s
	}

	for key, e := range b.order {
		parts := strings.Split(key, "\x1f")
		word := parts[len(parts)-1]
		context := parts[:len(parts)-1]

		fromKey := strings.Join(context, "\x1f")
		from := stateFor(fromKey)

		toKey := strings.Join(append(append([]string{}, context...), word), "\x1f")
		to := stateFor(toKey)

		wid := b.vocab[word]
		m.transitions[from].arcs[wid] = ngramArc{next: to, weight: e.weight}

		if e.hasBO {
			// back off by dropping the oldest context word.
			var backCtx []string
			if len(context) > 0 {
				backCtx = append(backCtx, context[1:]...)
				backCtx = append(backCtx, word)
			} else {
				backCtx = nil
			}
			backKey := strings.Join(backCtx, "\x1f")
			m.transitions[to].backoff = stateFor(backKey)
			m.transitions[to].bow = e.backoff
		}
	}
	return m
}

// LoadDMP reads a pocketsphinx-style binary DMP language model: a fixed
// header, a vocabulary block, then unigram/bigram/trigram score arrays.
// This is a reduced reader: it reads the magic, the vocabulary and the
// unigram block only; bigram and trigram records are not read, so the
// returned model backs every word off to its unigram. Fields are read with
// encoding/binary the way fslm's own gob/binary-based model loader does.
func LoadDMP(lm *LogMath, r io.Reader) (*NgramModel, error) {
	br := bufio.NewReader(r)

	var magic uint32
	if err := binary.Read(br, binary.LittleEndian, &magic); err != nil {
		return nil, &FormatError{Msg: "DMP: failed reading magic: " + err.Error()}
	}
	if magic != dmpMagicLE && magic != dmpMagicBE {
		return nil, &FormatError{Msg: "DMP: bad magic " + strconv.FormatUint(uint64(magic), 16)}
	}
	order := binary.LittleEndian
	if magic == dmpMagicBE {
		order = binary.BigEndian
	}

	var nWords uint32
	if err := binary.Read(br, order, &nWords); err != nil {
		return nil, &FormatError{Msg: "DMP: failed reading vocab size: " + err.Error()}
	}

	words := make([]string, nWords)
	vocab := make(map[string]WordID, nWords)
	for i := range words {
		var l uint32
		if err := binary.Read(br, order, &l); err != nil {
			return nil, &FormatError{Msg: "DMP: failed reading word length: " + err.Error()}
		}
		buf := make([]byte, l)
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, &FormatError{Msg: "DMP: failed reading word text: " + err.Error()}
		}
		words[i] = string(buf)
		vocab[words[i]] = WordID(i)
	}

	var nUnigram uint32
	if err := binary.Read(br, order, &nUnigram); err != nil {
		return nil, &FormatError{Msg: "DMP: failed reading unigram count: " + err.Error()}
	}
	if nUnigram != nWords {
		return nil, &FormatError{Msg: "DMP: unigram count does not match vocabulary size"}
	}

	m := &NgramModel{lm: lm, vocab: vocab, words: words}
	m.transitions = make([]ngramState, 1, 1+nUnigram)
	m.transitions[0] = ngramState{arcs: make(map[WordID]ngramArc, nUnigram)}

	for i := uint32(0); i < nUnigram; i++ {
		var prob, backoff int32
		if err := binary.Read(br, order, &prob); err != nil {
			return nil, &FormatError{Msg: "DMP: failed reading unigram prob: " + err.Error()}
		}
		if err := binary.Read(br, order, &backoff); err != nil {
			return nil, &FormatError{Msg: "DMP: failed reading unigram backoff: " + err.Error()}
		}
		state := NgramStateID(len(m.transitions))
		m.transitions = append(m.transitions, ngramState{arcs: make(map[WordID]ngramArc), backoff: NoNgramState, bow: backoff})
		m.transitions[0].arcs[WordID(i)] = ngramArc{next: state, weight: prob}
	}

	if bos, ok := vocab["<s>"]; ok {
		m.bosID = bos
	}
	if eos, ok := vocab["</s>"]; ok {
		m.eosID = eos
	}

	return m, nil
}

const (
	dmpMagicLE uint32 = 0x11223344
	dmpMagicBE uint32 = 0x44332211
)

// BOS / EOS return the model's sentence-boundary word ids.
func (m *NgramModel) BOS() WordID { return m.bosID }
func (m *NgramModel) EOS() WordID { return m.eosID }

// String renders a state for debugging.
func (s NgramStateID) String() string { return fmt.Sprintf("lmstate(%d)", uint32(s)) }
