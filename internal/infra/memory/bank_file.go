package memory

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Scofield321/cipherford/internal/domain"
	"gopkg.in/yaml.v3"
)

// FileBankLoader reads the question bank from a YAML document of the form
//
//	questions:
//	  - id: q1
//	    question: ...
//	    options: [...]
//	    correct_answer: ...
type FileBankLoader struct {
	path string
}

func NewFileBankLoader(path string) *FileBankLoader {
	return &FileBankLoader{path: path}
}

type bankFile struct {
	Questions []domain.BankQuestion `yaml:"questions"`
}

func (l *FileBankLoader) LoadBank(_ context.Context) ([]domain.BankQuestion, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read bank file: %w", err)
	}
	return ParseBank(data)
}

// ParseBank decodes and validates a YAML question bank.
func ParseBank(data []byte) ([]domain.BankQuestion, error) {
	var doc bankFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse bank file: %w", err)
	}
	seen := make(map[string]struct{}, len(doc.Questions))
	for i, q := range doc.Questions {
		if strings.TrimSpace(q.ID) == "" {
			return nil, fmt.Errorf("bank question %d: id is required", i)
		}
		if _, dup := seen[q.ID]; dup {
			return nil, fmt.Errorf("bank question %q: duplicate id", q.ID)
		}
		seen[q.ID] = struct{}{}
		if strings.TrimSpace(q.Question) == "" || strings.TrimSpace(q.CorrectAnswer) == "" {
			return nil, fmt.Errorf("bank question %q: question and correct_answer are required", q.ID)
		}
	}
	return doc.Questions, nil
}
