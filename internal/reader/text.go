package reader

import (
	"bufio"
	"fmt"
	"io"

	"github.com/naresrac/CNTK/internal/adapter"
	"github.com/pkg/errors"
	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer turns a line of text into token ids.
type Tokenizer interface {
	Encode(text string) []int
}

// TikToken is a Tokenizer backed by a tiktoken BPE encoding.
type TikToken struct {
	encoding *tiktoken.Tiktoken
	name     string
}

// NewTikToken loads the named encoding, e.g. "cl100k_base".
func NewTikToken(encodingName string) (*TikToken, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding %q: %w", encodingName, err)
	}
	return &TikToken{encoding: encoding, name: encodingName}, nil
}

// Encode implements Tokenizer.
func (t *TikToken) Encode(text string) []int {
	return t.encoding.Encode(text, nil, nil)
}

// Decode converts token ids back to text.
func (t *TikToken) Decode(tokens []int) string {
	return t.encoding.Decode(tokens)
}

// Name returns the encoding name.
func (t *TikToken) Name() string { return t.name }

// TextConfig configures a TextSource.
type TextConfig struct {
	// Features and Labels are the stream names. Labels hold the next token
	// of every feature step.
	Features string
	Labels   string
	// Vocab is the one-hot size; token ids are folded into it modulo Vocab.
	Vocab int
	// MaxSteps splits longer lines into chunks; continuation chunks are
	// marked as not starting a new sequence.
	MaxSteps int
}

type chunk struct {
	tokens []int // len(tokens) = steps + 1, the extra token is the last label
	start  bool
}

// TextSource serves next-token prediction data: every line is a sequence of
// one-hot token vectors with the following token as label.
type TextSource struct {
	cfg     TextConfig
	tok     Tokenizer
	scanner *bufio.Scanner
	pending []chunk
	eof     bool
}

// NewTextSource reads lines from r lazily.
func NewTextSource(r io.Reader, tok Tokenizer, cfg TextConfig) (*TextSource, error) {
	if tok == nil {
		return nil, errors.New("text source without tokenizer")
	}
	if cfg.Vocab <= 1 || cfg.MaxSteps <= 0 {
		return nil, errors.Errorf("text source needs vocab > 1 and max steps > 0, got %d and %d", cfg.Vocab, cfg.MaxSteps)
	}
	if cfg.Features == "" || cfg.Labels == "" || cfg.Features == cfg.Labels {
		return nil, errors.Errorf("text source needs two distinct stream names, got %q and %q", cfg.Features, cfg.Labels)
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	return &TextSource{cfg: cfg, tok: tok, scanner: scanner}, nil
}

// fill queues the chunks of the next usable line. Lines with fewer than two
// tokens carry no prediction and are skipped.
func (s *TextSource) fill() error {
	for len(s.pending) == 0 && !s.eof {
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return errors.Wrap(err, "reading text")
			}
			s.eof = true
			return nil
		}
		tokens := s.tok.Encode(s.scanner.Text())
		for start := 0; start+1 < len(tokens); start += s.cfg.MaxSteps {
			end := min(start+s.cfg.MaxSteps, len(tokens)-1)
			s.pending = append(s.pending, chunk{tokens: tokens[start : end+1], start: start == 0})
		}
	}
	return nil
}

// Next implements Source.
func (s *TextSource) Next(maxSamples int) (*Minibatch, error) {
	if maxSamples <= 0 {
		return nil, errors.Errorf("invalid minibatch size %d", maxSamples)
	}
	var (
		chunks []chunk
		steps  int
	)
	for {
		if err := s.fill(); err != nil {
			return nil, err
		}
		if len(s.pending) == 0 {
			break
		}
		next := s.pending[0]
		n := len(next.tokens) - 1
		if len(chunks) > 0 && steps+n > maxSamples {
			break
		}
		chunks = append(chunks, next)
		s.pending = s.pending[1:]
		steps += n
		if steps >= maxSamples {
			break
		}
	}
	if len(chunks) == 0 {
		return nil, io.EOF
	}
	if err := s.fill(); err != nil {
		return nil, err
	}

	features := &adapter.Value{Sequences: make([]adapter.Sequence, len(chunks))}
	labels := &adapter.Value{Sequences: make([]adapter.Sequence, len(chunks))}
	starts := make([]bool, len(chunks))
	for i, c := range chunks {
		n := len(c.tokens) - 1
		features.Sequences[i] = s.oneHot(c.tokens[:n])
		labels.Sequences[i] = s.oneHot(c.tokens[1:])
		starts[i] = c.start
	}
	return &Minibatch{
		Streams:    map[string]*adapter.Value{s.cfg.Features: features, s.cfg.Labels: labels},
		Starts:     starts,
		NumSamples: steps,
		EndOfSweep: s.eof && len(s.pending) == 0,
	}, nil
}

func (s *TextSource) oneHot(tokens []int) adapter.Sequence {
	v := s.cfg.Vocab
	out := make(adapter.Sequence, len(tokens)*v)
	for i, t := range tokens {
		out[i*v+((t%v)+v)%v] = 1
	}
	return out
}
