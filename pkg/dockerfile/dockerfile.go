// Package dockerfile models a parsed Dockerfile as the ordered sequence
// of instructions the fingerprint engine and used-files resolution
// need. Parsing itself is delegated to buildkit's Dockerfile parser,
// the grammar the daemon applies at build time.
package dockerfile

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/moby/buildkit/frontend/dockerfile/parser"
)

// Opcodes interpreted semantically by the rest of the system; every
// other opcode still contributes to the fingerprint through its
// Instruction.Original line.
const (
	From = "from"
	Add  = "add"
	Copy = "copy"
)

// Instruction is one line of a Dockerfile: its lowercased opcode, its
// original source line (used verbatim as a fingerprint input), and its
// tokenised arguments.
type Instruction struct {
	Opcode   string
	Original string
	Args     []string
}

// File is the ordered sequence of instructions parsed from one Dockerfile.
type File struct {
	Instructions []Instruction
}

// Parse reads and parses the Dockerfile at path.
func Parse(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dockerfile %s: %w", path, err)
	}
	defer f.Close()
	return ParseReader(f)
}

// ParseReader parses a Dockerfile read from r.
func ParseReader(r io.Reader) (*File, error) {
	result, err := parser.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing dockerfile: %w", err)
	}

	instructions := make([]Instruction, 0, len(result.AST.Children))
	for _, node := range result.AST.Children {
		instructions = append(instructions, Instruction{
			Opcode:   strings.ToLower(node.Value),
			Original: node.Original,
			Args:     collectArgs(node),
		})
	}
	return &File{Instructions: instructions}, nil
}

// collectArgs walks the linked list of argument nodes that buildkit's
// parser attaches after the opcode node of an instruction line.
func collectArgs(node *parser.Node) []string {
	var args []string
	for n := node.Next; n != nil; n = n.Next {
		args = append(args, n.Value)
	}
	return args
}

// From returns the argument of the single FROM instruction. Its absence
// is a construction error handled by the caller.
func (f *File) From() (string, bool) {
	for _, instr := range f.Instructions {
		if instr.Opcode == From && len(instr.Args) > 0 {
			return instr.Args[0], true
		}
	}
	return "", false
}

// SourcePatterns returns the ADD/COPY source operands in instruction
// order: every argument of each ADD/COPY line except the last, which is
// the destination.
func (f *File) SourcePatterns() []string {
	var patterns []string
	for _, instr := range f.Instructions {
		if instr.Opcode != Add && instr.Opcode != Copy {
			continue
		}
		if len(instr.Args) < 2 {
			continue
		}
		patterns = append(patterns, instr.Args[:len(instr.Args)-1]...)
	}
	return patterns
}
