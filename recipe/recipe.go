// Package recipe loads prompt pipelines from YAML files.
//
// A recipe names a model, an optional JSON Schema for its input, system and
// user templates, example exchanges and a correction template. Templates use
// text/template with the sprig function set and are rendered against the
// validated input map.
package recipe

import (
	"bytes"
	"context"
	"maps"
	"os"
	"text/template"

	"github.com/Masterminds/sprig"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/zoobzio/prompta"
)

// Input is the value every recipe pipeline accepts.
type Input = map[string]any

// Recipe is a prompt pipeline described in YAML.
type Recipe struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description,omitempty"`
	Model       string    `yaml:"model,omitempty"`
	Temperature float32   `yaml:"temperature,omitempty"`
	Schema      string    `yaml:"schema,omitempty"`
	System      string    `yaml:"system"`
	User        string    `yaml:"user"`
	Examples    []Example `yaml:"examples,omitempty"`
	Correction  string    `yaml:"correction,omitempty"`

	system     *template.Template
	user       *template.Template
	correction *template.Template
}

// Example is one sample input with the answer the model should have given.
type Example struct {
	Input     Input  `yaml:"input"`
	Assistant string `yaml:"assistant"`
}

// Validate checks a single example.
func (e Example) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Assistant, validation.Required),
	)
}

// Validate checks the recipe fields.
func (r *Recipe) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name, validation.Required),
		validation.Field(&r.User, validation.Required),
		validation.Field(&r.Temperature, validation.Min(float32(0)), validation.Max(float32(2))),
		validation.Field(&r.Examples),
	)
}

// Load reads and parses the recipe at path.
func Load(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read recipe %s", path)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "load recipe %s", path)
	}
	return r, nil
}

// Parse decodes a YAML recipe and compiles its templates.
func Parse(data []byte) (*Recipe, error) {
	var r Recipe
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrap(err, "decode recipe")
	}
	if err := r.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid recipe")
	}

	var err error
	if r.system, err = compile(r.Name+".system", r.System); err != nil {
		return nil, err
	}
	if r.user, err = compile(r.Name+".user", r.User); err != nil {
		return nil, err
	}
	if r.Correction != "" {
		if r.correction, err = compile(r.Name+".correction", r.Correction); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

func compile(name, text string) (*template.Template, error) {
	tmpl, err := template.New(name).Funcs(sprig.TxtFuncMap()).Parse(text)
	if err != nil {
		return nil, errors.Wrapf(err, "parse template %s", name)
	}
	return tmpl, nil
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", errors.Wrapf(err, "execute template %s", tmpl.Name())
	}
	return buf.String(), nil
}

// Template returns the recipe's prompt template.
func (r *Recipe) Template() prompta.Template[Input] {
	return prompta.Template[Input]{
		System: prompta.ComputedE(func(in Input) (string, error) { return render(r.system, in) }),
		User:   prompta.ComputedE(func(in Input) (string, error) { return render(r.user, in) }),
	}
}

// Options returns the per-call options carrying the recipe's model settings.
// Options passed after them take precedence.
func (r *Recipe) Options() []prompta.CallOption {
	var opts []prompta.CallOption
	if r.Model != "" {
		opts = append(opts, prompta.WithModel(r.Model))
	}
	if r.Temperature != 0 {
		opts = append(opts, prompta.WithTemperature(r.Temperature))
	}
	return opts
}

// Build assembles the recipe into a pipeline on client. The pipeline
// resolves to the raw result so callers can pick the blocks they need.
func (r *Recipe) Build(client *prompta.Client) (*prompta.Resolver[Input, *prompta.Result], error) {
	var prompted *prompta.Prompted[Input, Input]
	if r.Schema != "" {
		schema, err := prompta.SchemaFromJSON[Input](r.Schema)
		if err != nil {
			return nil, errors.Wrapf(err, "recipe %s", r.Name)
		}
		prompted = prompta.Define[Input](client).Input(schema).Prompt(r.Template())
	} else {
		prompted = prompta.Define[Input](client).Prompt(r.Template())
	}

	var stage prompta.ResolveStage[Input, Input] = prompted
	switch {
	case len(r.Examples) > 0 && r.correction != nil:
		stage = prompted.History(r.history).Correct(r.correct)
	case len(r.Examples) > 0:
		stage = prompted.History(r.history)
	case r.correction != nil:
		stage = prompted.Correct(r.correct)
	}

	return prompta.Resolve(stage, func(_ context.Context, rc *prompta.Context[Input, Input]) (*prompta.Result, error) {
		return rc.Result, nil
	}), nil
}

// history phrases every example with the live user template.
func (r *Recipe) history(ctx context.Context, hc *prompta.HistoryContext[Input, Input]) ([]prompta.HistoryEntry, error) {
	entries := make([]prompta.HistoryEntry, 0, len(r.Examples))
	for i, example := range r.Examples {
		prepared, err := hc.Prepare(ctx, example.Input)
		if err != nil {
			return nil, errors.Wrapf(err, "example %d", i)
		}
		user, err := hc.Promptify(hc.Template.User, prepared)
		if err != nil {
			return nil, errors.Wrapf(err, "example %d", i)
		}
		entries = append(entries, prompta.HistoryEntry{User: user, Assistant: example.Assistant})
	}
	return entries, nil
}

// correct appends the rendered correction as one more user turn. The
// template sees the input fields plus "error".
func (r *Recipe) correct(_ context.Context, cause error, attempted []prompta.Message, cc *prompta.CorrectionContext[Input, Input]) ([]prompta.Message, error) {
	data := make(Input, len(cc.Prepared)+1)
	maps.Copy(data, cc.Prepared)
	data["error"] = cause.Error()

	text, err := render(r.correction, data)
	if err != nil {
		return nil, err
	}
	return append(attempted, prompta.Message{Role: prompta.RoleUser, Content: text}), nil
}
