package discovery

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"sigs.k8s.io/yaml"

	"github.com/opentalon/funchost/internal/description"
)

// Function documents in lookup order.
var DocumentNames = []string{"function.json", "function.yaml", "function.yml"}

const schemaURL = "https://funchost.local/schema/function.schema.json"

//go:embed function.schema.json
var schemaJSON []byte

var (
	schemaOnce     sync.Once
	schemaErr      error
	compiledSchema *jsonschema.Schema
)

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add function schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

// ErrNoSource is returned when a function folder has no detectable script.
var ErrNoSource = errors.New("no script file found")

// FolderError reports a function folder that could not be loaded.
type FolderError struct {
	Folder string
	Err    error
}

func (e *FolderError) Error() string {
	return fmt.Sprintf("function folder %s: %v", e.Folder, e.Err)
}

func (e *FolderError) Unwrap() error { return e.Err }

// LoadDir loads every function folder directly under root. A folder is a
// function when it holds a function document. Broken folders are reported
// and skipped; disabled functions are skipped silently. Results are sorted
// by folder name.
func LoadDir(root string) ([]description.FunctionFolderInfo, []error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, []error{fmt.Errorf("read script root: %w", err)}
	}
	var (
		folders []description.FunctionFolderInfo
		errs    []error
	)
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, ok, err := LoadFolder(root, e.Name())
		if err != nil {
			errs = append(errs, &FolderError{Folder: e.Name(), Err: err})
			continue
		}
		if ok {
			folders = append(folders, info)
		}
	}
	return folders, errs
}

// LoadFolder loads root/name. ok is false when the folder holds no function
// document or the function is disabled.
func LoadFolder(root, name string) (info description.FunctionFolderInfo, ok bool, err error) {
	dir := filepath.Join(root, name)
	docPath, err := findDocument(dir)
	if err != nil || docPath == "" {
		return info, false, err
	}
	cfg, err := ReadDocument(docPath)
	if err != nil {
		return info, false, err
	}
	if disabled, _ := cfg["disabled"].(bool); disabled {
		return info, false, nil
	}
	source, err := detectSource(dir, cfg)
	if err != nil {
		return info, false, err
	}
	return description.FunctionFolderInfo{
		Name:          name,
		Source:        filepath.Join(name, source),
		Configuration: cfg,
	}, true, nil
}

func findDocument(dir string) (string, error) {
	for _, n := range DocumentNames {
		p := filepath.Join(dir, n)
		st, err := os.Stat(p)
		if err == nil && !st.IsDir() {
			return p, nil
		}
		if err != nil && !os.IsNotExist(err) {
			return "", err
		}
	}
	return "", nil
}

// ReadDocument parses a json or yaml function document and validates it.
func ReadDocument(path string) (description.Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseDocument(data)
}

func ParseDocument(data []byte) (description.Configuration, error) {
	sch, err := loadSchema()
	if err != nil {
		return nil, err
	}
	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("convert yaml to json: %w", err)
	}
	var doc any
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return nil, fmt.Errorf("decode function document: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return nil, fmt.Errorf("invalid function document: %w", err)
	}
	cfg, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("function document must be an object")
	}
	return description.Configuration(cfg), nil
}

// detectSource picks the script file of a function folder: the document's
// source field, then run.*, then index.*, then the only other file.
func detectSource(dir string, cfg description.Configuration) (string, error) {
	if src, _ := cfg["source"].(string); src != "" {
		clean := filepath.Clean(filepath.FromSlash(src))
		if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("source %q must stay inside the function folder", src)
		}
		if _, err := os.Stat(filepath.Join(dir, clean)); err != nil {
			return "", fmt.Errorf("source %q: %w", src, err)
		}
		return clean, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || isDocument(e.Name()) || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	for _, stem := range []string{"run", "index"} {
		for _, f := range files {
			if strings.TrimSuffix(f, filepath.Ext(f)) == stem && filepath.Ext(f) != "" {
				return f, nil
			}
		}
	}
	if len(files) == 1 {
		return files[0], nil
	}
	if len(files) == 0 {
		return "", ErrNoSource
	}
	return "", fmt.Errorf("%w: ambiguous among %s", ErrNoSource, strings.Join(files, ", "))
}

func isDocument(name string) bool {
	for _, n := range DocumentNames {
		if name == n {
			return true
		}
	}
	return false
}
