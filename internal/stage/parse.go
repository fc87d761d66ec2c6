package stage

import "fmt"

// ParseParams parses a decoded workflow_meta.yaml "params" map (generic
// map[string]any, as gopkg.in/yaml.v3 produces when unmarshalling into
// `any`) into the recursive ParamSpec tree of spec §4.7/§6. The marker key
// is spelled "c-l-a-s-s", matching values "File"/"Directory".
func ParseParams(raw map[string]any) (map[string]*ParamSpec, error) {
	out := make(map[string]*ParamSpec, len(raw))
	for k, v := range raw {
		p, err := parseNode(v)
		if err != nil {
			return nil, fmt.Errorf("params.%s: %w", k, err)
		}
		out[k] = p
	}
	return out, nil
}

func parseNode(v any) (*ParamSpec, error) {
	switch val := v.(type) {
	case map[string]any:
		if cls, ok := val["c-l-a-s-s"].(string); ok && (cls == "File" || cls == "Directory") {
			return parseInputSpec(cls, val)
		}
		children := make(map[string]*ParamSpec, len(val))
		for ck, cv := range val {
			cp, err := parseNode(cv)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", ck, err)
			}
			children[ck] = cp
		}
		return &ParamSpec{Children: children}, nil
	case []any:
		return &ParamSpec{List: val}, nil
	default:
		return &ParamSpec{Scalar: val}, nil
	}
}

func parseInputSpec(cls string, val map[string]any) (*ParamSpec, error) {
	p := &ParamSpec{Class: cls}

	if u, ok := val["url"]; ok {
		refs, err := parseURLRefs(u)
		if err != nil {
			return nil, fmt.Errorf("url: %w", err)
		}
		p.URL = append(p.URL, refs...)
	}
	if u, ok := val["secondary-urls"]; ok {
		refs, err := parseURLRefs(u)
		if err != nil {
			return nil, fmt.Errorf("secondary-urls: %w", err)
		}
		p.URL = append(p.URL, refs...)
	}
	if s, ok := val["preferred-name"].(string); ok {
		p.PreferredName = s
	}
	if s, ok := val["relative-dir"].(string); ok {
		p.RelativeDir = s
	}
	if s, ok := val["security-context"].(string); ok {
		p.SecurityContext = s
	}
	if s, ok := val["globExplode"].(string); ok {
		p.GlobExplode = s
	}
	if b, ok := val["autoFill"].(bool); ok {
		p.AutoFill = b
	}
	if b, ok := val["autoPrefix"].(bool); ok {
		p.AutoPrefix = b
	}
	if b, ok := val["cache"].(bool); ok {
		p.Cache = &b
	}
	return p, nil
}

func parseURLRefs(v any) ([]URLRef, error) {
	switch val := v.(type) {
	case string:
		return []URLRef{{URI: val}}, nil
	case map[string]any:
		ref, err := parseURLRefObject(val)
		if err != nil {
			return nil, err
		}
		return []URLRef{ref}, nil
	case []any:
		var out []URLRef
		for _, item := range val {
			switch iv := item.(type) {
			case string:
				out = append(out, URLRef{URI: iv})
			case map[string]any:
				ref, err := parseURLRefObject(iv)
				if err != nil {
					return nil, err
				}
				out = append(out, ref)
			default:
				return nil, fmt.Errorf("unrecognized url entry of type %T", item)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unrecognized url value of type %T", v)
	}
}

func parseURLRefObject(m map[string]any) (URLRef, error) {
	ref := URLRef{}
	if s, ok := m["uri"].(string); ok {
		ref.URI = s
	}
	if s, ok := m["security-context"].(string); ok {
		ref.SecurityContext = s
	}
	ref.Attributions = stringList(m["attributions"])
	ref.Licences = stringList(m["licences"])
	return ref, nil
}

func stringList(v any) []string {
	lst, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(lst))
	for _, item := range lst {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
