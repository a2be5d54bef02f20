package tree

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultMaxDepth bounds document nesting when a Parser has no explicit limit.
const DefaultMaxDepth = 64

// Format names a serialization of the tree document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks a format from a file extension, defaulting to JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// FormatFromContentType picks a format from an HTTP Content-Type, defaulting to JSON.
func FormatFromContentType(ct string) Format {
	ct = strings.ToLower(ct)
	if strings.Contains(ct, "yaml") {
		return FormatYAML
	}
	return FormatJSON
}

// ParseError reports a malformed tree document. Path locates the offending
// node using a JSONPath-like notation rooted at "$", e.g. "$.left.right".
type ParseError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return "parse tree: " + e.Reason
	}
	return fmt.Sprintf("parse tree at %s: %s", e.Path, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parser converts tree documents into immutable Nodes.
type Parser struct {
	// MaxDepth is the deepest allowed node, with the root at depth 0.
	// Zero means DefaultMaxDepth.
	MaxDepth int
}

// ParseJSON parses a JSON tree document with DefaultMaxDepth.
func ParseJSON(data []byte) (*Node, error) {
	return Parser{}.ParseJSON(data)
}

// ParseYAML parses a YAML tree document with DefaultMaxDepth.
func ParseYAML(data []byte) (*Node, error) {
	return Parser{}.ParseYAML(data)
}

// Parse dispatches on format.
func (p Parser) Parse(format Format, data []byte) (*Node, error) {
	switch format {
	case FormatYAML:
		return p.ParseYAML(data)
	case FormatJSON, "":
		return p.ParseJSON(data)
	default:
		return nil, &ParseError{Reason: fmt.Sprintf("unsupported format %q", format)}
	}
}

// ParseJSON decodes data and validates it as a tree. Numbers are decoded
// lazily so out-of-range thresholds surface as non-finite values rather than
// decoder failures.
func (p Parser) ParseJSON(data []byte) (*Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ParseError{Reason: "empty document"}
		}
		return nil, &ParseError{Reason: "invalid json: " + err.Error(), Err: err}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, &ParseError{Reason: "unexpected data after tree document"}
	}
	return p.build(doc)
}

// ParseYAML decodes data and validates it as a tree. YAML aliases are
// expanded during decoding, so a document reusing an anchor still yields a
// tree in which every node occupies exactly one position.
func (p Parser) ParseYAML(data []byte) (*Node, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Reason: "invalid yaml: " + err.Error(), Err: err}
	}
	return p.build(doc)
}

func (p Parser) build(doc any) (*Node, error) {
	if doc == nil {
		return nil, &ParseError{Reason: "empty document"}
	}
	return p.node(doc, "$", 0)
}

func (p Parser) maxDepth() int {
	if p.MaxDepth > 0 {
		return p.MaxDepth
	}
	return DefaultMaxDepth
}

func (p Parser) node(v any, path string, depth int) (*Node, error) {
	if depth > p.maxDepth() {
		return nil, &ParseError{Path: path, Reason: fmt.Sprintf("nesting exceeds maximum depth %d", p.maxDepth())}
	}
	obj, ok := asObject(v)
	if !ok {
		return nil, &ParseError{Path: path, Reason: "node must be an object"}
	}

	rawFeature, hasFeature := obj["feature"]
	rawLabel, hasLabel := obj["label"]
	_, hasLeft := obj["left"]
	_, hasRight := obj["right"]

	switch {
	case hasFeature && hasLabel:
		return nil, &ParseError{Path: path, Reason: "node has both feature and label"}
	case hasLabel:
		if hasLeft || hasRight {
			return nil, &ParseError{Path: path, Reason: "leaf node must not have children"}
		}
		return leafFromDoc(rawLabel, path)
	case hasFeature:
		return p.decisionFromDoc(obj, rawFeature, path, depth)
	default:
		return nil, &ParseError{Path: path, Reason: "node has neither feature nor label"}
	}
}

func leafFromDoc(raw any, path string) (*Node, error) {
	f, ok := asNumber(raw)
	if !ok || f != float64(int(f)) {
		return nil, &ParseError{Path: path, Reason: errInvalidLabel.Error()}
	}
	n, err := NewLeaf(Label(int(f)))
	if err != nil {
		return nil, &ParseError{Path: path, Reason: err.Error(), Err: err}
	}
	return n, nil
}

func (p Parser) decisionFromDoc(obj map[string]any, rawFeature any, path string, depth int) (*Node, error) {
	feature, ok := rawFeature.(string)
	if !ok || feature == "" {
		return nil, &ParseError{Path: path, Reason: errEmptyFeature.Error()}
	}

	rawThreshold, ok := obj["threshold"]
	if !ok {
		return nil, &ParseError{Path: path, Reason: "decision node is missing threshold"}
	}
	threshold, ok := asNumber(rawThreshold)
	if !ok || !isFinite(threshold) {
		return nil, &ParseError{Path: path, Reason: errNonFinite.Error()}
	}

	var gainRatio float64
	if raw, ok := obj["gain_ratio"]; ok && raw != nil {
		gainRatio, ok = asNumber(raw)
		if !ok || !isFinite(gainRatio) {
			return nil, &ParseError{Path: path, Reason: errNonFiniteRatio.Error()}
		}
	}

	children := [2]*Node{}
	for i, side := range [2]string{"left", "right"} {
		raw, ok := obj[side]
		if !ok || raw == nil {
			return nil, &ParseError{Path: path, Reason: "decision node is missing " + side + " child"}
		}
		child, err := p.node(raw, path+"."+side, depth+1)
		if err != nil {
			return nil, err
		}
		children[i] = child
	}

	n, err := newDecision(feature, threshold, gainRatio, children[0], children[1])
	if err != nil {
		return nil, &ParseError{Path: path, Reason: err.Error(), Err: err}
	}
	return n, nil
}

func asObject(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := strconv.ParseFloat(string(n), 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return 0, false
		}
		return f, true
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
