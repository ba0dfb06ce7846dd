package mcpbridge

import "github.com/yosida95/uritemplate/v3"

// ToolSchema describes one tool exposed by an MCP server.
type ToolSchema struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// ResourceSchema describes one resource exposed by an MCP server. Exactly
// one of URI / Template is set.
type ResourceSchema struct {
	Name        string
	Description string
	URI         string
	Template    *uritemplate.Template

	// Vars lists the template's variable names in declaration order, used
	// by the client synthesiser to build the resource's argument record.
	Vars []string
}

// IsTemplate reports whether this resource must be addressed through
// variable substitution rather than a static URI.
func (r *ResourceSchema) IsTemplate() bool {
	return r.Template != nil
}

// newResourceSchema builds a ResourceSchema from a name/description and
// either a static uri or a uri template string (exactly one non-empty).
func newResourceSchema(name, description, uri, uriTemplate string) (ResourceSchema, error) {
	if uriTemplate == "" {
		return ResourceSchema{Name: name, Description: description, URI: uri}, nil
	}
	tmpl, err := uritemplate.New(uriTemplate)
	if err != nil {
		return ResourceSchema{}, err
	}
	return ResourceSchema{
		Name:        name,
		Description: description,
		Template:    tmpl,
		Vars:        tmpl.Varnames(),
	}, nil
}

// resolve substitutes each {var} in a template resource from args. Every
// variable in the template must be present in args or resolve fails.
func (r *ResourceSchema) resolve(args map[string]interface{}) (string, error) {
	if !r.IsTemplate() {
		return r.URI, nil
	}
	values := uritemplate.Values{}
	for _, name := range r.Vars {
		v, ok := args[name]
		if !ok {
			return "", missingResourceVarError(r.Name, name)
		}
		values.Set(name, uritemplate.String(stringify(v)))
	}
	return r.Template.Expand(values)
}

func stringify(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmtSprint(v)
}
