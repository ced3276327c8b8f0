package diagnostics

import (
	"strings"
)

// Classification is the verdict on a backend failure code
type Classification int

const (
	// Fatal failures abort the current phase or script
	Fatal Classification = iota
	// Ignorable failures are recorded and processing continues
	Ignorable
)

func (c Classification) String() string {
	if c == Ignorable {
		return "ignorable"
	}
	return "fatal"
}

// ignorableCodes maps backend states that mean "object already exists"
var ignorableCodes = map[string]string{
	"X0Y32": "jar file already exists in schema",
	"42Y55": "table already exists in schema",
}

// Classify returns Ignorable for the fixed set of "already exists" codes
// (case-insensitive) and Fatal for everything else, including the empty code.
func Classify(code string) Classification {
	if code == "" {
		return Fatal
	}
	if _, ok := ignorableCodes[strings.ToUpper(code)]; ok {
		return Ignorable
	}
	return Fatal
}

// Describe returns the meaning of an ignorable code, or "" for other codes
func Describe(code string) string {
	return ignorableCodes[strings.ToUpper(code)]
}

// Classifier extends the fixed table with dialect-specific codes
type Classifier struct {
	extra map[string]bool
}

// NewClassifier creates a classifier that also treats extra codes as ignorable
func NewClassifier(extra ...string) *Classifier {
	c := &Classifier{extra: make(map[string]bool, len(extra))}
	for _, code := range extra {
		if code = strings.TrimSpace(code); code != "" {
			c.extra[strings.ToUpper(code)] = true
		}
	}
	return c
}

// Classify classifies a backend code
func (c *Classifier) Classify(code string) Classification {
	if Classify(code) == Ignorable {
		return Ignorable
	}
	if code != "" && c != nil && c.extra[strings.ToUpper(code)] {
		return Ignorable
	}
	return Fatal
}

// ClassifyError extracts the backend code of err and classifies it
func (c *Classifier) ClassifyError(err error) (Classification, string, int) {
	code, vendor := CodeOf(err)
	return c.Classify(code), code, vendor
}
