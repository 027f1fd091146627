package config

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// TypePolicy restricts which node types a document is allowed to use,
// independently of whether a type is registered at all. Patterns follow
// doublestar glob syntax (e.g. "nodes/*", "call"), letting an operator
// scope a deployment down to a subset of node types without recompiling.
type TypePolicy struct {
	Allow []string
	Deny  []string
}

// Check reports an error if typeName is excluded by the policy: denied
// patterns win over allowed ones, and a non-empty Allow list makes
// everything not matching it denied by default.
func (p TypePolicy) Check(typeName string) error {
	for _, pat := range p.Deny {
		if ok, _ := doublestar.Match(pat, typeName); ok {
			return fmt.Errorf("node type %q is denied by policy (matched %q)", typeName, pat)
		}
	}
	if len(p.Allow) == 0 {
		return nil
	}
	for _, pat := range p.Allow {
		if ok, _ := doublestar.Match(pat, typeName); ok {
			return nil
		}
	}
	return fmt.Errorf("node type %q is not allowed by policy", typeName)
}

// CompileWithPolicy behaves like Compile but additionally rejects any user
// node whose type fails the given TypePolicy before the graph is built, so
// a policy violation is reported with the same node-name/type context as
// any other semantic error.
func CompileWithPolicy(data []byte, format Format, implicits []ImplicitNode, policy TypePolicy) (*Compiled, error) {
	uc, err := parseUserConfig(data, format)
	if err != nil {
		return nil, err
	}
	for _, unc := range uc.Nodes {
		if err := policy.Check(unc.Type); err != nil {
			return nil, atNode(unc.Name, unc.Type, err.Error())
		}
	}
	return compile(uc, implicits)
}

// Schema is a precompiled JSON Schema used to validate a configuration
// document's shape before the full semantic compile runs, giving callers a
// cheap, structural rejection path (missing required fields, wrong types)
// ahead of node-type resolution.
type Schema struct {
	schema *jsonschema.Schema
}

// CompileSchema compiles a JSON Schema document (draft 2020-12 by default)
// for later use with CompileWithSchema.
func CompileSchema(url string, compiler *jsonschema.Compiler) (*Schema, error) {
	if compiler == nil {
		compiler = jsonschema.NewCompiler()
	}
	sch, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compiling configuration schema: %w", err)
	}
	return &Schema{schema: sch}, nil
}

// Validate checks a decoded (not raw-bytes) document against the schema.
func (s *Schema) Validate(doc any) error {
	if err := s.schema.Validate(doc); err != nil {
		return fmt.Errorf("configuration failed schema validation: %w", err)
	}
	return nil
}

// CompileWithSchema behaves like Compile but first validates the raw
// document's decoded shape against schema, a structural pre-check ahead of
// semantic compilation: a document that is valid JSON/YAML but fails the
// schema (missing required fields, wrong types) is rejected as a
// ParseError before any node type is even looked up. A nil schema skips
// the pre-check and behaves exactly like Compile.
func CompileWithSchema(data []byte, format Format, implicits []ImplicitNode, schema *Schema) (*Compiled, error) {
	if schema != nil {
		doc, err := decodeGeneric(data, format)
		if err != nil {
			return nil, &ParseError{Err: err}
		}
		if err := schema.Validate(doc); err != nil {
			return nil, &ParseError{Err: err}
		}
	}
	return Compile(data, format, implicits)
}
