// Package intent loads intent grammars from YAML files and recognises
// utterances against them.
//
// An intent file holds one or more named grammars:
//
//	language: fra-Latn
//	intents:
//	  - name: curtains
//	    nodes:
//	      - kind: alternative
//	        choices:
//	          - {id: open, text: ouvrez}
//	          - {id: close, text: fermez}
//	      - kind: basic
//	        id: the
//	        text: les
//	      - kind: basic
//	        id: curtain
//	        text: rideaux
//
// Nodes are matched left to right. A node with children continues with its
// children before its next sibling.
package intent

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/phonomatch/pkg/grammar"
)

// NodeKind names a grammar node kind in intent files.
type NodeKind string

const (
	NodeBasic       NodeKind = "basic"
	NodeAlternative NodeKind = "alternative"
	NodeOptional    NodeKind = "optional"
	NodeParametric  NodeKind = "parametric"
	NodeEnd         NodeKind = "end"
)

// IsValid reports whether k is a known node kind.
func (k NodeKind) IsValid() bool {
	switch k {
	case NodeBasic, NodeAlternative, NodeOptional, NodeParametric, NodeEnd:
		return true
	}
	return false
}

// File is the top-level structure of an intent YAML file.
type File struct {
	// Language is the language the reference texts are written in. When set
	// it must agree with the converter the intents are compiled with.
	Language string `yaml:"language,omitempty"`

	Intents []Definition `yaml:"intents"`
}

// Definition describes one intent.
type Definition struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Budget overrides the recognizer's error budget for this intent when
	// positive.
	Budget float64 `yaml:"budget,omitempty" json:"budget,omitempty"`

	Nodes []NodeDef `yaml:"nodes" json:"nodes"`
}

// NodeDef describes one grammar node. Which fields apply depends on Kind:
//
//   - basic: ID and Text
//   - alternative: Choices
//   - optional: Forms
//   - parametric: Name and optionally MaxWords
//   - end: nothing
type NodeDef struct {
	Kind     NodeKind         `yaml:"kind" json:"kind"`
	ID       string           `yaml:"id,omitempty" json:"id,omitempty"`
	Text     string           `yaml:"text,omitempty" json:"text,omitempty"`
	Choices  []grammar.Choice `yaml:"choices,omitempty" json:"choices,omitempty"`
	Forms    []string         `yaml:"forms,omitempty" json:"forms,omitempty"`
	Name     string           `yaml:"name,omitempty" json:"name,omitempty"`
	MaxWords int              `yaml:"max_words,omitempty" json:"max_words,omitempty"`
	Children []NodeDef        `yaml:"children,omitempty" json:"children,omitempty"`
}

// LoadFile reads and parses an intent YAML file from disk.
func LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("intent: open %q: %w", path, err)
	}
	defer f.Close()

	file, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("intent: parse %q: %w", path, err)
	}
	return file, nil
}

// Decode parses intent YAML from r and validates it.
func Decode(r io.Reader) (*File, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("intent: decode yaml: %w", err)
	}
	if err := file.Validate(); err != nil {
		return nil, err
	}
	return &file, nil
}

// Validate checks every definition in the file and that intent names are
// unique. All problems are reported together.
func (f *File) Validate() error {
	var errs []error
	if len(f.Intents) == 0 {
		errs = append(errs, errors.New("intent: file defines no intents"))
	}
	seen := make(map[string]bool, len(f.Intents))
	for i, d := range f.Intents {
		if d.Name != "" && seen[d.Name] {
			errs = append(errs, fmt.Errorf("intent: intents[%d]: duplicate name %q", i, d.Name))
		}
		seen[d.Name] = true
		if err := d.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("intent: intents[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Validate checks a definition for required fields.
//
// Rules:
//   - Name must be non-empty.
//   - Budget must not be negative.
//   - There must be at least one node.
//   - Every node must satisfy the rules of its kind.
//
// Structural rules that depend on sibling order, such as two parametric
// nodes in a row, are checked when the intent is compiled.
func (d Definition) Validate() error {
	var errs []error
	if d.Name == "" {
		errs = append(errs, errors.New("name must not be empty"))
	}
	if d.Budget < 0 {
		errs = append(errs, fmt.Errorf("budget %v must not be negative", d.Budget))
	}
	if len(d.Nodes) == 0 {
		errs = append(errs, errors.New("nodes must not be empty"))
	}
	for i, n := range d.Nodes {
		errs = append(errs, n.validate(fmt.Sprintf("nodes[%d]", i))...)
	}
	return errors.Join(errs...)
}

func (n NodeDef) validate(path string) []error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(path+": "+format, args...))
	}

	switch n.Kind {
	case NodeBasic:
		if n.ID == "" {
			fail("basic node needs an id")
		}
		if n.Text == "" {
			fail("basic node needs a text")
		}
	case NodeAlternative:
		if len(n.Choices) == 0 {
			fail("alternative node needs choices")
		}
		for i, c := range n.Choices {
			if c.ID == "" || c.Text == "" {
				fail("choices[%d] needs an id and a text", i)
			}
		}
	case NodeOptional:
		if len(n.Forms) == 0 {
			fail("optional node needs forms")
		}
		for i, f := range n.Forms {
			if f == "" {
				fail("forms[%d] is empty", i)
			}
		}
	case NodeParametric:
		if n.Name == "" {
			fail("parametric node needs a name")
		}
		if n.MaxWords < 0 {
			fail("max_words %d must not be negative", n.MaxWords)
		}
	case NodeEnd:
		if len(n.Children) > 0 {
			fail("end node cannot have children")
		}
	default:
		fail("unknown kind %q", n.Kind)
	}

	for i, c := range n.Children {
		errs = append(errs, c.validate(fmt.Sprintf("%s.children[%d]", path, i))...)
	}
	return errs
}

// spec converts the definition of a single node to its grammar spec.
func (n NodeDef) spec(defaultMaxWords int) grammar.Spec {
	switch n.Kind {
	case NodeBasic:
		return grammar.Basic(n.ID, n.Text)
	case NodeAlternative:
		return grammar.Alternative(n.Choices...)
	case NodeOptional:
		return grammar.Optional(n.Forms...)
	case NodeParametric:
		var opts []grammar.ParamOption
		switch {
		case n.MaxWords > 0:
			opts = append(opts, grammar.WithMaxWords(n.MaxWords))
		case defaultMaxWords > 0:
			opts = append(opts, grammar.WithMaxWords(defaultMaxWords))
		}
		return grammar.Parametric(n.Name, opts...)
	default:
		return grammar.End()
	}
}
