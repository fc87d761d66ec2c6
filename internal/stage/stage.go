// Package stage implements the Input Stager (C7): placeholder expansion,
// recursive param-tree traversal, fetch delegation to the cache handler,
// and name-hardened symlinking into the instance's input tree.
package stage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wfexsgo/core/internal/cache"
	"github.com/wfexsgo/core/internal/fetch"
	"github.com/wfexsgo/core/internal/model"
	"github.com/wfexsgo/core/internal/wferrors"
)

// Stager resolves a raw parameter tree into MaterializedInputs.
type Stager struct {
	Cache      *cache.Handler
	Fetchers   *fetch.Registry
	SecurityContexts map[string]fetch.SecurityContext
	OutputsDir string
	InputsDir  string
	ParanoidMode bool
	Log        *zap.Logger

	seq int64
}

// Stage resolves every leaf of root, in linear-key order, into a
// MaterializedInput.
func (s *Stager) Stage(ctx context.Context, root map[string]*ParamSpec, placeholders map[string]string) ([]model.MaterializedInput, error) {
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}

	for _, p := range root {
		applyPlaceholders(p, placeholders, log)
	}

	keys := make([]string, 0, len(root))
	for k := range root {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []model.MaterializedInput
	for _, k := range keys {
		results, err := s.stageNode(ctx, k, root[k])
		if err != nil {
			return nil, err
		}
		out = append(out, results...)
	}
	return out, nil
}

func (s *Stager) stageNode(ctx context.Context, linearKey string, p *ParamSpec) ([]model.MaterializedInput, error) {
	if !p.isLeafContent() {
		if len(p.Children) > 0 {
			var out []model.MaterializedInput
			keys := make([]string, 0, len(p.Children))
			for k := range p.Children {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				sub, err := s.stageNode(ctx, linearKeyJoin(linearKey, k), p.Children[k])
				if err != nil {
					return nil, err
				}
				out = append(out, sub...)
			}
			return out, nil
		}
		// Atomic scalar/list leaf: no fetch.
		mi := model.MaterializedInput{Name: linearKey}
		if p.List != nil {
			for _, v := range p.List {
				mi.Values = append(mi.Values, model.ParamValue{Kind: "scalar", Scalar: v})
			}
		} else {
			mi.Values = []model.ParamValue{{Kind: "scalar", Scalar: p.Scalar}}
		}
		return []model.MaterializedInput{mi}, nil
	}

	if p.AutoFill {
		return s.stageAutoFill(linearKey, p)
	}

	return s.stageFetch(ctx, linearKey, p)
}

// stageAutoFill resolves a File/Directory spec with autoFill=true against
// the outputs directory without fetching anything (spec §4.7 AutoFill).
func (s *Stager) stageAutoFill(linearKey string, p *ParamSpec) ([]model.MaterializedInput, error) {
	components := strings.ReplaceAll(linearKey, ".", string(filepath.Separator))
	var localPath string
	kind := model.KindFile
	if p.Class == "Directory" {
		kind = model.KindDirectory
		if p.AutoPrefix {
			localPath = filepath.Join(s.OutputsDir, components)
		} else {
			localPath = filepath.Join(s.OutputsDir, filepath.Base(components))
		}
		if err := os.MkdirAll(localPath, 0o755); err != nil {
			return nil, wferrors.NewSetupError("create autoFill directory", err)
		}
	} else {
		localPath = filepath.Join(s.OutputsDir, components)
		if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
			return nil, wferrors.NewSetupError("create autoFill parent directories", err)
		}
	}

	content := model.MaterializedContent{
		LocalPath: localPath,
		Kind:      kind,
	}
	return []model.MaterializedInput{{
		Name:   linearKey,
		Values: []model.ParamValue{{Kind: "content", Content: &content}},
	}}, nil
}

// stageFetch implements the Fetch procedure of spec §4.7 steps 1-4.
func (s *Stager) stageFetch(ctx context.Context, linearKey string, p *ParamSpec) ([]model.MaterializedInput, error) {
	mi := model.MaterializedInput{Name: linearKey}

	for i, u := range p.URL {
		secCtx := u.SecurityContext
		if secCtx == "" {
			secCtx = p.SecurityContext
		}
		if secCtx != "" {
			if _, ok := s.SecurityContexts[secCtx]; !ok {
				return nil, wferrors.NewConfigError(fmt.Sprintf("unknown security-context %q for %s", secCtx, linearKey), nil)
			}
		}

		content, err := s.fetchOne(ctx, linearKey, u, secCtx, p)
		if err != nil {
			return nil, err
		}

		if p.GlobExplode != "" && content.Kind == model.KindDirectory {
			exploded, err := s.explodeGlob(content, u.URI)
			if err != nil {
				return nil, err
			}
			values := make([]model.ParamValue, len(exploded))
			for j, c := range exploded {
				cc := c
				values[j] = model.ParamValue{Kind: "content", Content: &cc}
			}
			if i == 0 {
				mi.Values = values
			} else {
				mi.SecondaryInputs = values
			}
			continue
		}

		pv := model.ParamValue{Kind: "content", Content: &content}
		if i == 0 {
			mi.Values = append(mi.Values, pv)
		} else {
			mi.SecondaryInputs = append(mi.SecondaryInputs, pv)
		}
	}
	return []model.MaterializedInput{mi}, nil
}

func (s *Stager) fetchOne(ctx context.Context, linearKey string, u URLRef, secCtx string, p *ParamSpec) (model.MaterializedContent, error) {
	scheme, err := fetch.SchemeOf(u.URI)
	if err != nil {
		return model.MaterializedContent{}, err
	}
	fetcher, err := s.Fetchers.For(scheme)
	if err != nil {
		return model.MaterializedContent{}, err
	}
	if hf, ok := fetcher.(*fetch.HTTPFetcher); ok {
		hf.ContextName = secCtx
	}

	useCache := p.cacheEnabled() && !s.ParanoidMode
	var entry cache.Entry
	if useCache {
		entry, err = s.Cache.Fetch(ctx, cache.TypeInput, u.URI, fetcher, false)
	} else {
		dest := filepath.Join(s.InputsDir, ".direct", sanitizeComponent(linearKey))
		if mkErr := os.MkdirAll(dest, 0o755); mkErr != nil {
			return model.MaterializedContent{}, mkErr
		}
		entry, err = fetcher.Fetch(ctx, u.URI, dest)
	}
	if err != nil {
		return model.MaterializedContent{}, err
	}

	name := p.PreferredName
	if name == "" {
		name = filepath.Base(entry.LocalPath)
	}
	linkPath, err := s.placeInInputsDir(entry.LocalPath, name)
	if err != nil {
		return model.MaterializedContent{}, err
	}

	return model.MaterializedContent{
		LocalPath: linkPath,
		LicensedURI: model.LicensedURI{
			URI:             entry.ResolvedURI,
			Licences:        append(append([]string{}, u.Licences...), entry.Licences...),
			Attributions:    u.Attributions,
			SecurityContext: secCtx,
		},
		PrettyFilename: name,
		Kind:           entry.Kind,
		MetadataArray:  entry.MetadataChain,
	}, nil
}

// placeInInputsDir creates a symlink named name -> target inside
// s.InputsDir, applying name hardening and the jail check of spec §4.7
// step 3.
func (s *Stager) placeInInputsDir(target, name string) (string, error) {
	if err := os.MkdirAll(s.InputsDir, 0o755); err != nil {
		return "", err
	}

	candidate := name
	linkPath := filepath.Join(s.InputsDir, candidate)

	for {
		if existingTarget, err := os.Readlink(linkPath); err == nil {
			if existingTarget == target {
				return linkPath, nil
			}
			candidate = s.hardenedName(name)
			linkPath = filepath.Join(s.InputsDir, candidate)
			continue
		}
		if _, statErr := os.Lstat(linkPath); statErr == nil {
			// A plain file (not a symlink) already occupies this name.
			candidate = s.hardenedName(name)
			linkPath = filepath.Join(s.InputsDir, candidate)
			continue
		}
		break
	}

	if err := os.Symlink(target, linkPath); err != nil {
		return "", wferrors.NewSetupError("symlink input into place", err)
	}

	if !s.withinJail(linkPath) {
		hardPath := filepath.Join(s.InputsDir, s.hardenedName(filepath.Base(linkPath)))
		os.Remove(linkPath)
		if err := os.Symlink(target, hardPath); err != nil {
			return "", wferrors.NewSetupError("symlink input into place after jail violation", err)
		}
		return hardPath, nil
	}

	return linkPath, nil
}

func (s *Stager) hardenedName(name string) string {
	n := atomic.AddInt64(&s.seq, 1)
	return fmt.Sprintf("%03d_%s", n, filepath.Base(name))
}

// withinJail checks that linkPath itself (not the target its symlink
// resolves to) stays inside the realpath of s.InputsDir. Resolving the
// final symlink target would test where the content lives rather than
// where the link sits: cached inputs legitimately point outside
// InputsDir (into the cache's payload directory) without that being a
// traversal, while a hardened-away "../escape" preferred-name legitimately
// resolves back inside InputsDir and would otherwise slip the check.
func (s *Stager) withinJail(linkPath string) bool {
	jailReal, err := filepath.EvalSymlinks(s.InputsDir)
	if err != nil {
		return false
	}
	parentReal, err := filepath.EvalSymlinks(filepath.Dir(linkPath))
	if err != nil {
		return false
	}
	linkReal := filepath.Join(parentReal, filepath.Base(linkPath))
	rel, err := filepath.Rel(jailReal, linkReal)
	if err != nil {
		return false
	}
	return !strings.HasPrefix(rel, "..")
}

// explodeGlob implements spec §4.7 step 4: one MaterializedContent per
// entry of a materialized directory, with a URL derived by
// percent-encoding each path segment onto the original URI path.
func (s *Stager) explodeGlob(dirContent model.MaterializedContent, originalURI string) ([]model.MaterializedContent, error) {
	matches, err := filepath.Glob(filepath.Join(dirContent.LocalPath, "*"))
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(originalURI)
	if err != nil {
		base = &url.URL{Path: originalURI}
	}

	var out []model.MaterializedContent
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		kind := model.KindFile
		if info.IsDir() {
			kind = model.KindDirectory
		}
		segURL := *base
		segURL.Path = strings.TrimSuffix(base.Path, "/") + "/" + url.PathEscape(filepath.Base(m))
		out = append(out, model.MaterializedContent{
			LocalPath:      m,
			Kind:           kind,
			PrettyFilename: filepath.Base(m),
			LicensedURI:    model.LicensedURI{URI: segURL.String()},
		})
	}
	return out, nil
}

func sanitizeComponent(s string) string {
	return strings.NewReplacer("/", "_", "..", "_").Replace(s)
}
