package usecase

import (
	"crypto/rand"
	"fmt"
	"io"

	"prepaid-subscription/internal/domain"
	"prepaid-subscription/internal/domain/model"
)

// CodeGenerator creates secure, random and human-readable subscription codes.
// Format: XXXX-XXXX-XXXX-XXXX
type CodeGenerator struct {
	rand io.Reader
}

// NewCodeGenerator uses crypto/rand when r is nil.
func NewCodeGenerator(r io.Reader) *CodeGenerator {
	if r == nil {
		r = rand.Reader
	}
	return &CodeGenerator{rand: r}
}

// Generate returns count distinct codes, none of which is in existing.
// Candidates colliding with existing or with the batch so far are redrawn.
func (g *CodeGenerator) Generate(count int, existing map[string]struct{}) ([]string, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: count must be positive", domain.ErrInvalidArgument)
	}

	batch := make(map[string]struct{}, count)
	out := make([]string, 0, count)
	draws := count*32 + 64
	for len(out) < count {
		if draws == 0 {
			return nil, domain.ErrCodeSpaceExhausted
		}
		draws--

		c, err := g.next()
		if err != nil {
			return nil, err
		}
		if _, taken := existing[c]; taken {
			continue
		}
		if _, taken := batch[c]; taken {
			continue
		}
		batch[c] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}

func (g *CodeGenerator) next() (string, error) {
	buffer := make([]byte, model.CodeRawLength)
	if _, err := io.ReadFull(g.rand, buffer); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	for i := range buffer {
		buffer[i] = model.CodeAlphabet[int(buffer[i])%len(model.CodeAlphabet)]
	}
	return model.FormatCode(string(buffer)), nil
}
