// Package sequence models stored command sequences as a decoded AST.
//
// A sequence body is a JSON document of nested nodes (kind/args/body). The
// scheduler decodes bodies into Node trees and hands them to the dispatcher;
// interpreting individual kinds is the command interpreter's business, not ours.
package sequence

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Node is one AST node of a command sequence.
type Node struct {
	Kind string         `json:"kind"`
	Args map[string]any `json:"args,omitempty"`
	Body []*Node        `json:"body,omitempty"`
}

var ErrEmptyBody = errors.New("sequence body is empty")

// Decode parses a raw sequence body into its AST.
// Trailing data after the document is rejected.
func Decode(raw []byte) (*Node, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrEmptyBody
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	var n Node
	if err := dec.Decode(&n); err != nil {
		return nil, fmt.Errorf("decode sequence: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, errors.New("decode sequence: trailing data")
		}
		return nil, fmt.Errorf("decode sequence: %w", err)
	}
	if n.Kind == "" {
		return nil, errors.New("decode sequence: missing kind")
	}
	return &n, nil
}

// SetLabel stamps the root node's label argument. The label travels with the
// dispatched AST so downstream logs and telemetry carry the sequence name.
func (n *Node) SetLabel(label string) {
	if n == nil {
		return
	}
	if n.Args == nil {
		n.Args = map[string]any{}
	}
	n.Args["label"] = label
}

// Label returns the root node's label argument, or "" when unset.
func (n *Node) Label() string {
	if n == nil || n.Args == nil {
		return ""
	}
	s, _ := n.Args["label"].(string)
	return s
}

// Walk calls fn for every node in depth-first order. It stops early when fn
// returns false.
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil || fn == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range n.Body {
		c.Walk(fn)
	}
}
