// Package output implements the Output Resolver (C8): binds declared
// (or discovered) workflow outputs against the materialized outputs
// directory, via fillFrom, glob, or an engine's explicit per-output
// mapping, computing a content digest for every bound artifact.
package output

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/wfexsgo/core/internal/model"
)

// ExpectedOutput is one declared output binding (spec §6 "Output spec").
type ExpectedOutput struct {
	Class         model.ContentKind // File, Directory, or Value; empty infers File
	Glob          string
	FillFrom      string
	Cardinality   model.Cardinality
	PreferredName string
}

// Resolver binds ExpectedOutputs against outputsDir.
type Resolver struct {
	OutputsDir         string
	HasExplicitOutputs bool
	Log                *zap.Logger
}

// Resolve implements spec §4.8. When outputs is empty, outputs are
// discovered per the "no ExpectedOutputs declared at all" rule.
func (r *Resolver) Resolve(ctx context.Context, outputs map[string]*ExpectedOutput, inputs []model.MaterializedInput, explicit map[string]json.RawMessage) ([]model.MaterializedOutput, error) {
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}

	if len(outputs) == 0 {
		return r.discover(explicit)
	}

	names := make([]string, 0, len(outputs))
	for n := range outputs {
		names = append(names, n)
	}
	sort.Strings(names)

	var results []model.MaterializedOutput
	for _, name := range names {
		eo := outputs[name]
		mo, err := r.resolveOne(name, eo, inputs, explicit)
		if err != nil {
			return nil, err
		}
		if eo.Cardinality.Min >= 1 && len(mo.Values) == 0 {
			log.Warn("expected output yielded no matches", zap.String("name", name))
		}
		results = append(results, mo)
	}
	return results, nil
}

func (r *Resolver) resolveOne(name string, eo *ExpectedOutput, inputs []model.MaterializedInput, explicit map[string]json.RawMessage) (model.MaterializedOutput, error) {
	kind := eo.Class
	if kind == "" {
		kind = model.KindFile
	}
	mo := model.MaterializedOutput{
		Name:                name,
		Kind:                kind,
		ExpectedCardinality: eo.Cardinality,
		FilledFrom:          eo.FillFrom,
		Glob:                eo.Glob,
	}
	if mo.ExpectedCardinality == (model.Cardinality{}) {
		mo.ExpectedCardinality = model.ParseCardinality("1")
	}

	switch {
	case eo.FillFrom != "":
		values, err := r.fillFrom(eo.FillFrom, kind, inputs)
		if err != nil {
			return mo, err
		}
		mo.Values = values
	case eo.Glob != "":
		values, err := r.glob(eo.Glob, kind)
		if err != nil {
			return mo, err
		}
		mo.Values = values
	case r.HasExplicitOutputs:
		value, ok, err := r.explicitOne(name, kind, explicit)
		if err != nil {
			return mo, err
		}
		if ok {
			mo.Values = []model.MaterializedContent{value}
		}
	}
	return mo, nil
}

// fillFrom implements spec §4.8 mode 1: read filenames from a previously
// resolved input under the same linear key.
func (r *Resolver) fillFrom(linearKey string, kind model.ContentKind, inputs []model.MaterializedInput) ([]model.MaterializedContent, error) {
	var src *model.MaterializedInput
	for i := range inputs {
		if inputs[i].Name == linearKey {
			src = &inputs[i]
			break
		}
	}
	if src == nil {
		return nil, nil
	}

	var out []model.MaterializedContent
	for _, v := range src.Values {
		path, ok := filenameOf(v)
		if !ok {
			continue
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(r.OutputsDir, path)
		}
		content, err := r.materializePath(path, kind)
		if err != nil {
			continue
		}
		out = append(out, content)
	}
	return out, nil
}

func filenameOf(v model.ParamValue) (string, bool) {
	if v.Content != nil {
		return v.Content.LocalPath, true
	}
	if s, ok := v.Scalar.(string); ok {
		return s, true
	}
	return "", false
}

// glob implements spec §4.8 mode 2: a recursive glob under outputsDir,
// filtered by expected kind, with a digest computed per match.
//
// No pack example imports a third-party recursive-glob library directly
// (bmatcuk/doublestar appears only as an indirect transitive dependency of
// two pack repos, never directly imported); this walks stdlib
// filepath.WalkDir and matches each entry's relative path (or its base
// name) with filepath.Match via globMatch, which is
// the same direct-stdlib idiom the teacher uses for filesystem traversal
// throughout imgutil.go.
func (r *Resolver) glob(pattern string, kind model.ContentKind) ([]model.MaterializedContent, error) {
	var out []model.MaterializedContent
	err := filepath.WalkDir(r.OutputsDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if path == r.OutputsDir {
			return nil
		}
		rel, relErr := filepath.Rel(r.OutputsDir, path)
		if relErr != nil {
			return nil
		}
		if !globMatch(pattern, rel) {
			return nil
		}
		isDir := d.IsDir()
		if kind == model.KindDirectory && !isDir {
			return nil
		}
		if kind == model.KindFile && isDir {
			return nil
		}
		content, merr := r.materializePath(path, kind)
		if merr != nil {
			return nil
		}
		out = append(out, content)
		if isDir {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocalPath < out[j].LocalPath })
	return out, nil
}

// globMatch supports a leading "**/" wildcard (match at any depth) in
// addition to plain path.Match glob syntax on the remaining segments.
func globMatch(pattern, rel string) bool {
	if strings.HasPrefix(pattern, "**/") {
		suffix := strings.TrimPrefix(pattern, "**/")
		if ok, _ := filepath.Match(suffix, filepath.Base(rel)); ok {
			return true
		}
		return globMatch(suffix, rel)
	}
	if ok, _ := filepath.Match(pattern, rel); ok {
		return true
	}
	ok, _ := filepath.Match(pattern, filepath.Base(rel))
	return ok
}

// explicitOne implements spec §4.8 mode 3: translate a CWL-style output
// descriptor ({class, path, checksum, ...} or a bare scalar) verbatim.
func (r *Resolver) explicitOne(name string, kind model.ContentKind, explicit map[string]json.RawMessage) (model.MaterializedContent, bool, error) {
	raw, ok := explicit[name]
	if !ok {
		return model.MaterializedContent{}, false, nil
	}

	var descriptor struct {
		Class string `json:"class"`
		Path  string `json:"path"`
		Location string `json:"location"`
	}
	if err := json.Unmarshal(raw, &descriptor); err == nil && (descriptor.Path != "" || descriptor.Location != "") {
		path := descriptor.Path
		if path == "" {
			path = strings.TrimPrefix(descriptor.Location, "file://")
		}
		k := kind
		switch descriptor.Class {
		case "File":
			k = model.KindFile
		case "Directory":
			k = model.KindDirectory
		}
		content, err := r.materializePath(path, k)
		if err != nil {
			return model.MaterializedContent{}, false, err
		}
		return content, true, nil
	}

	var scalar any
	if err := json.Unmarshal(raw, &scalar); err != nil {
		return model.MaterializedContent{}, false, err
	}
	return model.MaterializedContent{
		Kind: model.KindValue,
		Text: fmt.Sprintf("%v", scalar),
		PrettyFilename: name,
	}, true, nil
}

// discover implements the "no ExpectedOutputs declared at all" rule: one
// entry per top-level outputsDir entry, or one per explicit-mapping key
// when the engine declares an explicit map.
func (r *Resolver) discover(explicit map[string]json.RawMessage) ([]model.MaterializedOutput, error) {
	var names []string
	if r.HasExplicitOutputs && len(explicit) > 0 {
		for k := range explicit {
			names = append(names, k)
		}
		sort.Strings(names)
		var out []model.MaterializedOutput
		for i, name := range names {
			outName := fmt.Sprintf("unnamed_output_%d", i)
			content, ok, err := r.explicitOne(name, model.KindFile, explicit)
			if err != nil {
				return nil, err
			}
			mo := model.MaterializedOutput{Name: outName, Synthetic: true, ExpectedCardinality: model.ParseCardinality("1")}
			if ok {
				mo.Values = []model.MaterializedContent{content}
				mo.Kind = content.Kind
			}
			out = append(out, mo)
		}
		return out, nil
	}

	entries, err := os.ReadDir(r.OutputsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []model.MaterializedOutput
	for i, e := range entries {
		path := filepath.Join(r.OutputsDir, e.Name())
		kind := model.KindFile
		if e.IsDir() {
			kind = model.KindDirectory
		}
		content, cerr := r.materializePath(path, kind)
		if cerr != nil {
			continue
		}
		out = append(out, model.MaterializedOutput{
			Name:                fmt.Sprintf("unnamed_output_%d", i),
			Kind:                kind,
			ExpectedCardinality: model.ParseCardinality("1"),
			Synthetic:           true,
			Values:              []model.MaterializedContent{content},
		})
	}
	return out, nil
}

// materializePath builds a MaterializedContent for path, computing its
// digest (file or directory-walk) or, for Value kind, reading its UTF-8
// text contents (spec §4.8).
func (r *Resolver) materializePath(path string, kind model.ContentKind) (model.MaterializedContent, error) {
	if kind == model.KindValue {
		data, err := os.ReadFile(path)
		if err != nil {
			return model.MaterializedContent{}, err
		}
		return model.MaterializedContent{
			Kind:           model.KindValue,
			Text:           string(data),
			PrettyFilename: filepath.Base(path),
		}, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return model.MaterializedContent{}, err
	}
	var sig string
	if info.IsDir() {
		sig, err = DigestDir(path)
	} else {
		sig, err = DigestFile(path)
	}
	if err != nil {
		return model.MaterializedContent{}, err
	}
	return model.MaterializedContent{
		LocalPath:      path,
		Kind:           kind,
		PrettyFilename: filepath.Base(path),
		Signature:      sig,
	}, nil
}

// DigestFile returns the sha256 content digest of a single file, as
// "sha256:<hex>".
func DigestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}

// DigestDir computes a directory-walk digest: the sha256 of the sorted
// "<relpath>\0<filedigest>\n" records of every regular file under dir.
// This is the synthetic content-addressed id the RO-Crate emitter (C11)
// reuses for generated-directory output entries (spec §4.11).
func DigestDir(dir string) (string, error) {
	var records []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, rerr := filepath.Rel(dir, path)
		if rerr != nil {
			return rerr
		}
		fd, derr := DigestFile(path)
		if derr != nil {
			return derr
		}
		records = append(records, rel+"\x00"+fd)
		return nil
	})
	if err != nil {
		return "", err
	}
	sort.Strings(records)
	h := sha256.New()
	for _, rec := range records {
		io.WriteString(h, rec)
		h.Write([]byte{'\n'})
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}
