// Package toolregistry implements the passive tool container: a map from
// tool name to descriptor, populated by factories that run once at service
// initialization and never invoked again.
package toolregistry

import (
	"context"
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/judgehost/judgehost/internal/telemetry"
)

// Handler is a tool's implementation: argument object in, result value out.
// Handlers must be idempotent-safe for repeated dispatch of the same
// arguments unless documented otherwise.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Descriptor is the tool's stable, client-visible shape.
type Descriptor struct {
	Name        string
	Description string
	InputSchema map[string]any
	Domain      string
	Handler     Handler

	schema *jsonschema.Schema
}

// Factory constructs zero, one, or many Descriptors from the wired
// services map. Create returning nil, a *Descriptor, or a []*Descriptor are
// all valid; anything else is dropped silently.
type Factory struct {
	Name     string
	Requires []string
	Domain   string
	Create   func(services map[string]any) (any, error)
}

// Registry is a passive container: it never invokes handlers itself.
type Registry struct {
	factories []Factory
	tools     map[string]*Descriptor
	logger    telemetry.Logger
}

// New constructs an empty Registry.
func New(logger telemetry.Logger) *Registry {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Registry{tools: make(map[string]*Descriptor), logger: logger}
}

// RegisterFactory validates that the factory exposes a name and a create
// function and appends it to the insertion-ordered factory list.
func (r *Registry) RegisterFactory(f Factory) error {
	if f.Name == "" {
		return fmt.Errorf("toolregistry: factory must have a name")
	}
	if f.Create == nil {
		return fmt.Errorf("toolregistry: factory %q must have a create function", f.Name)
	}
	r.factories = append(r.factories, f)
	return nil
}

// CreateAll iterates factories in insertion order; for each factory whose
// required services are all present (truthy) in services, it calls Create
// and absorbs the result, silently skipping nils and unnamed entries and
// swallowing (but logging) factory-level panics or errors.
func (r *Registry) CreateAll(ctx context.Context, services map[string]any) {
	for _, f := range r.factories {
		if !requirementsMet(services, f.Requires) {
			continue
		}
		r.runFactory(ctx, f, services)
	}
}

func (r *Registry) runFactory(ctx context.Context, f Factory, services map[string]any) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error(ctx, "tool factory panicked", "factory", f.Name, "recover", rec)
		}
	}()
	result, err := f.Create(services)
	if err != nil {
		r.logger.Error(ctx, "tool factory failed", "factory", f.Name, "error", err.Error())
		return
	}
	r.absorb(ctx, result)
}

func (r *Registry) absorb(ctx context.Context, result any) {
	switch v := result.(type) {
	case nil:
		return
	case *Descriptor:
		r.add(ctx, v)
	case []*Descriptor:
		for _, d := range v {
			r.add(ctx, d)
		}
	}
}

func (r *Registry) add(ctx context.Context, d *Descriptor) {
	if d == nil || d.Name == "" {
		return
	}
	if len(d.InputSchema) > 0 {
		schema, err := compileSchema(d.Name, d.InputSchema)
		if err != nil {
			r.logger.Warn(ctx, "tool input schema failed to compile", "tool", d.Name, "error", err.Error())
		} else {
			d.schema = schema
		}
	}
	r.tools[d.Name] = d
}

// CreateByDomain filters the materialised tool set by the domain tag.
func (r *Registry) CreateByDomain(domain string) []*Descriptor {
	var out []*Descriptor
	for _, d := range r.tools {
		if d.Domain == domain {
			out = append(out, d)
		}
	}
	return out
}

// Get returns the descriptor for name.
func (r *Registry) Get(name string) (*Descriptor, bool) {
	d, ok := r.tools[name]
	return d, ok
}

// List returns every registered descriptor ordered by name, so tools/list
// is a pure function of the current registry contents.
func (r *Registry) List() []*Descriptor {
	out := make([]*Descriptor, 0, len(r.tools))
	for _, d := range r.tools {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ValidateInput validates args against the tool's compiled input schema, if
// one was supplied. A tool with no schema accepts any input object.
func (d *Descriptor) ValidateInput(args map[string]any) error {
	if d.schema == nil {
		return nil
	}
	return d.schema.Validate(args)
}

func requirementsMet(services map[string]any, requires []string) bool {
	for _, name := range requires {
		v, ok := services[name]
		if !ok || v == nil {
			return false
		}
	}
	return true
}

func compileSchema(name string, fragment map[string]any) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	url := "mem://tools/" + name
	if err := compiler.AddResource(url, fragment); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}
