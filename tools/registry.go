// Package tools publishes the mutation and availability operations as named tools with flat,
// independently optional parameters. Results are JSON friendly; failures become an error object
// with a kind, a message and a corrective hint.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/cyp0633/davmutate/errs"
)

// ParamType names the JSON shape a parameter accepts.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeStrings ParamType = "string[]"
	TypeBool    ParamType = "boolean"
	TypeTime    ParamType = "datetime"
	TypeMinutes ParamType = "integer[]"
)

// Param describes one named parameter.
type Param struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Description string    `json:"description"`
	Required    bool      `json:"required,omitempty"`
}

// Metadata is the published description of a tool. Destructive tools delete or overwrite
// existing data; callers may ask for confirmation before invoking them.
type Metadata struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Params      []Param `json:"params"`
	Destructive bool    `json:"destructive"`
	ReadOnly    bool    `json:"read_only"`
}

// Handler runs a tool. The returned summary is a human-readable sentence.
type Handler func(ctx context.Context, args Args) (summary string, result any, err error)

// ErrorBody is the structured form of a failure.
type ErrorBody struct {
	Kind    errs.Kind `json:"kind"`
	Message string    `json:"message"`
	Hint    string    `json:"hint,omitempty"`
}

// Response is the outcome of an invocation.
type Response struct {
	OK       bool       `json:"ok"`
	Summary  string     `json:"summary,omitempty"`
	Result   any        `json:"result,omitempty"`
	Warnings []string   `json:"warnings,omitempty"`
	Error    *ErrorBody `json:"error,omitempty"`
}

type tool struct {
	meta    Metadata
	handler Handler
}

// Registry holds the published tools.
type Registry struct {
	tools  map[string]tool
	logger *slog.Logger
}

// ErrUnknownTool is returned by Lookup for names that were never registered.
var ErrUnknownTool = errors.New("unknown tool")

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registry{tools: make(map[string]tool), logger: logger}
}

// Register adds a tool. Registering a name twice panics.
func (r *Registry) Register(meta Metadata, handler Handler) {
	if _, dup := r.tools[meta.Name]; dup {
		panic(fmt.Sprintf("tools: %s registered twice", meta.Name))
	}
	r.tools[meta.Name] = tool{meta: meta, handler: handler}
}

// List returns the metadata of every tool sorted by name.
func (r *Registry) List() []Metadata {
	out := make([]Metadata, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns the metadata of one tool.
func (r *Registry) Lookup(name string) (Metadata, error) {
	t, ok := r.tools[name]
	if !ok {
		return Metadata{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return t.meta, nil
}

// Invoke decodes raw as a flat JSON object of named parameters and runs the tool. Failures are
// reported inside the Response; only an unknown tool name is returned as an error.
func (r *Registry) Invoke(ctx context.Context, name string, raw []byte) (*Response, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	args, err := parseArgs(raw, t.meta.Params)
	if err != nil {
		return failure(err), nil
	}

	summary, result, err := t.handler(ctx, args)
	if err != nil {
		r.logger.Info("tool failed", "tool", name, "kind", errs.KindOf(err), "error", err)
		return failure(err), nil
	}
	r.logger.Debug("tool succeeded", "tool", name)
	return &Response{OK: true, Summary: summary, Result: result, Warnings: warningsOf(result)}, nil
}

func failure(err error) *Response {
	return &Response{Error: &ErrorBody{Kind: errs.KindOf(err), Message: err.Error(), Hint: errs.Hint(err)}}
}

// parseArgs rejects unknown names and missing required parameters.
func parseArgs(raw []byte, params []Param) (Args, error) {
	args := Args{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, errs.Validation("", "arguments must be a JSON object: %v", err)
		}
	}
	known := make(map[string]Param, len(params))
	for _, p := range params {
		known[p.Name] = p
	}
	for name := range args {
		if _, ok := known[name]; !ok {
			return nil, errs.Validation(name, "is not a parameter of this tool")
		}
	}
	for _, p := range params {
		if !p.Required {
			continue
		}
		if v, ok := args[p.Name]; !ok || isNull(v) {
			return nil, errs.Validation(p.Name, "is required")
		}
	}
	return args, nil
}
