package stage

// ParamSpec is one node of the raw, not-yet-materialized input parameter
// tree (spec §4.7: "a recursive tree. Every leaf is either an atomic
// value, a list of atomic values, or an input spec (class ∈ {File,
// Directory})").
type ParamSpec struct {
	// Class is "File" or "Directory" for fetchable leaves, empty for
	// atomic scalar/list leaves (in which case Scalar/List is used).
	Class string

	Scalar any
	List   []any

	URL            []URLRef
	PreferredName  string
	RelativeDir    string
	AutoFill       bool
	AutoPrefix     bool
	Cache          *bool
	SecurityContext string
	GlobExplode    string

	Children map[string]*ParamSpec
}

// URLRef is one entry of a ParamSpec's url/secondary-urls list, in either
// its bare-string or object form.
type URLRef struct {
	URI             string
	SecurityContext string
	Attributions    []string
	Licences        []string
}

func (p *ParamSpec) isLeafContent() bool {
	return p.Class == "File" || p.Class == "Directory"
}

func (p *ParamSpec) cacheEnabled() bool {
	if p.Cache == nil {
		return true
	}
	return *p.Cache
}
