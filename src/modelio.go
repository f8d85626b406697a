package sphinx

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// s3MagicLE/BE mark the endianness of a binary parameter file by which
// byte order the magic word following its "endhdr" line reads as, the
// same self-describing trick the original's bio.c uses instead of a
// config flag.
const (
	s3MagicLE int32 = 0x46424d53 // "SMBF" little-endian
	s3MagicBE int32 = 0x53424d46
)

// ParamHeader is the common preamble every sphinx3 binary parameter file
// (mean, var, mixw, tmat) starts with: a version string, a set of
// key-value comment fields, and a flag for whether a trailing checksum
// follows the data.
type ParamHeader struct {
	Version  string
	Comments map[string]string
	HasCheck bool
	ByteOrder binary.ByteOrder
}

// ReadParamHeader parses the textual header block shared by all sphinx3
// binary parameter files: a version line, "key value" comment lines, and
// a line consisting solely of "endhdr" terminating the block, the format
// bio.c's bio_readhdr documents.
func ReadParamHeader(r *bufio.Reader) (*ParamHeader, error) {
	h := &ParamHeader{Comments: make(map[string]string)}

	versionLine, err := r.ReadString('\n')
	if err != nil {
		return nil, &FormatError{Msg: "param header: failed reading version line: " + err.Error()}
	}
	h.Version = strings.TrimSpace(versionLine)

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, &FormatError{Msg: "param header: unexpected EOF before endhdr"}
		}
		line = strings.TrimSpace(line)
		if line == "endhdr" {
			break
		}
		fields := strings.SplitN(line, " ", 2)
		if len(fields) == 2 {
			h.Comments[fields[0]] = fields[1]
		}
	}

	var magic int32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, &FormatError{Msg: "param header: failed reading byte-order magic: " + err.Error()}
	}
	switch magic {
	case s3MagicLE:
		h.ByteOrder = binary.LittleEndian
	case s3MagicBE:
		h.ByteOrder = binary.BigEndian
	default:
		return nil, &FormatError{Msg: "param header: unrecognised byte-order magic"}
	}
	if chk, ok := h.Comments["chksum0"]; ok {
		h.HasCheck = chk != "no"
	}
	return h, nil
}

// ReadTmatFile loads a tmat binary file: header, the matrix count and
// the emitting-state count n, then per matrix n rows of n+1 [from][to]
// probabilities stored as float32, converted to the int32 internal log
// representation at load time (a probability <= 0 becomes WorstScore).
func ReadTmatFile(r io.Reader, lm *LogMath) ([]*Tmat, error) {
	br := bufio.NewReader(r)
	hdr, err := ReadParamHeader(br)
	if err != nil {
		return nil, err
	}

	var nTmat, nState int32
	if err := binary.Read(br, hdr.ByteOrder, &nTmat); err != nil {
		return nil, &FormatError{Msg: "tmat: failed reading count: " + err.Error()}
	}
	if err := binary.Read(br, hdr.ByteOrder, &nState); err != nil {
		return nil, &FormatError{Msg: "tmat: failed reading state count: " + err.Error()}
	}

	tmats := make([]*Tmat, nTmat)
	for t := int32(0); t < nTmat; t++ {
		prob := make([][]int32, nState)
		for i := range prob {
			prob[i] = make([]int32, nState+1)
			for j := range prob[i] {
				var p float32
				if err := binary.Read(br, hdr.ByteOrder, &p); err != nil {
					return nil, &FormatError{Msg: "tmat: failed reading probability: " + err.Error()}
				}
				if p <= 0 {
					prob[i][j] = WorstScore
				} else {
					prob[i][j] = lm.FromProb(float64(p))
				}
			}
		}
		tm, err := NewTmat(prob)
		if err != nil {
			return nil, err
		}
		tmats[t] = tm
	}
	return tmats, nil
}

// ReadMeanVar loads a single-codebook, single-density s3 mean/var file
// pair: each file shares the header format ReadParamHeader parses,
// followed by a count of codewords, a vector length, then that many
// float32 vectors.
func ReadMeanVar(meanPath, varPath string) ([][]float32, [][]float32, error) {
	means, err := readFloatVectors(meanPath)
	if err != nil {
		return nil, nil, err
	}
	vars, err := readFloatVectors(varPath)
	if err != nil {
		return nil, nil, err
	}
	if len(means) != len(vars) {
		return nil, nil, &FormatError{Msg: "mean/var: codeword counts disagree"}
	}
	return means, vars, nil
}

func readFloatVectors(path string) ([][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{Msg: "cannot open " + path + ": " + err.Error()}
	}
	defer f.Close()

	br := bufio.NewReader(f)
	hdr, err := ReadParamHeader(br)
	if err != nil {
		return nil, err
	}

	var nCodeword, vecLen int32
	if err := binary.Read(br, hdr.ByteOrder, &nCodeword); err != nil {
		return nil, &FormatError{Msg: path + ": failed reading codeword count: " + err.Error()}
	}
	if err := binary.Read(br, hdr.ByteOrder, &vecLen); err != nil {
		return nil, &FormatError{Msg: path + ": failed reading vector length: " + err.Error()}
	}

	out := make([][]float32, nCodeword)
	for c := range out {
		vec := make([]float32, vecLen)
		if err := binary.Read(br, hdr.ByteOrder, &vec); err != nil {
			return nil, &FormatError{Msg: path + ": failed reading vector: " + err.Error()}
		}
		out[c] = vec
	}
	return out, nil
}

// ReadMdef loads a model-definition text file mapping triphone names to
// senone-sequence ids, the format mdef_file.c parses: a header line
// "#MDEF" optionally followed by comment lines starting '#', a count
// block, then one phone-model row per line.
func ReadMdef(r io.Reader) (map[string]SenoneSeqID, map[string]PhoneID, error) {
	scanner := bufio.NewScanner(r)
	phoneOf := make(map[string]PhoneID)
	ssidOf := make(map[string]SenoneSeqID)

	inModels := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			if strings.HasPrefix(line, "# ciphone") {
				// nothing extra to do; data rows distinguish CI vs CD
				// by column count.
			}
			continue
		}
		if strings.HasPrefix(line, "0") && !inModels {
			inModels = true
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		name := fields[0]
		if _, exists := phoneOf[name]; !exists {
			phoneOf[name] = PhoneID(len(phoneOf))
		}
		ssidStr := fields[len(fields)-1]
		v, err := strconv.Atoi(ssidStr)
		if err != nil {
			continue
		}
		ssidOf[name] = SenoneSeqID(v)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, &FormatError{Msg: "mdef: " + err.Error()}
	}
	return ssidOf, phoneOf, nil
}

// MmapSendump memory-maps a sendump (quantized mixture weight) file
// read-only via golang.org/x/sys/unix, the way the original avoids
// copying its largest model file into heap memory. The caller is
// responsible for calling Munmap on the returned slice when done.
func MmapSendump(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ResourceExhaustionError{Msg: "sendump: " + err.Error()}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &ResourceExhaustionError{Msg: "sendump: stat failed: " + err.Error()}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, &ResourceExhaustionError{Msg: "sendump: mmap failed: " + err.Error()}
	}
	return data, nil
}

// UnmapSendump releases a mapping returned by MmapSendump.
func UnmapSendump(data []byte) error {
	return unix.Munmap(data)
}

// ParseSendump decodes a memory-mapped sendump buffer into the 8-bit
// quantized mixture weights the original stores to keep its largest
// model file small: a 256-entry log-probability expansion table followed
// by one byte per (senone, codeword) naming a row of that table. Only a
// single stream is decoded: the result always has NStreams 1, and blocks
// for further streams in a multi-stream file are not read.
func ParseSendump(data []byte, order binary.ByteOrder, lm *LogMath) (*SCMixtureWeights, error) {
	if len(data) < 8 {
		return nil, &FormatError{Msg: "sendump: buffer too small for header"}
	}
	nSenone := order.Uint32(data[0:4])
	nCodeword := order.Uint32(data[4:8])
	offset := 8

	table := make([]int32, 256)
	for i := range table {
		if offset+4 > len(data) {
			return nil, &FormatError{Msg: "sendump: truncated log-table"}
		}
		bits := order.Uint32(data[offset : offset+4])
		table[i] = lm.FromLn(float64(math.Float32frombits(bits)))
		offset += 4
	}

	weights := make([][][]int32, nSenone)
	for s := range weights {
		if offset+int(nCodeword) > len(data) {
			return nil, &FormatError{Msg: "sendump: truncated weight block"}
		}
		row := make([]int32, nCodeword)
		for c := range row {
			row[c] = table[data[offset+c]]
		}
		weights[s] = [][]int32{row}
		offset += int(nCodeword)
	}

	return &SCMixtureWeights{NSenones: int(nSenone), NStreams: 1, Weights: weights}, nil
}
