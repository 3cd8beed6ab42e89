package sheetport

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"golang.org/x/text/language"

	"github.com/vk/sheetgridgo/internal/ref"
	"github.com/vk/sheetgridgo/internal/value"
)

// SpecName is the only document kind this package reads.
const SpecName = "fio"

// SpecVersion is the manifest revision this implementation writes; any
// manifest with the same major version is accepted.
const SpecVersion = "0.3.0"

// Document is the decoded top level of a manifest file.
type Document struct {
	Spec        string    `hcl:"spec"`
	SpecVersion string    `hcl:"spec_version"`
	Manifest    *Manifest `hcl:"manifest,block"`
	Ports       []*Port   `hcl:"port,block"`
}

// Manifest names the session and the workbook it binds to.
type Manifest struct {
	ID       string       `hcl:"id,optional"`
	Name     string       `hcl:"name,optional"`
	Workbook *WorkbookRef `hcl:"workbook,block"`
}

// WorkbookRef points at the backing workbook and its conventions.
type WorkbookRef struct {
	URI        string `hcl:"uri,optional"`
	Locale     string `hcl:"locale,optional"`
	DateSystem string `hcl:"date_system,optional"`
}

// Port declares one named binding between the outside world and a cell or
// group of cells.
type Port struct {
	ID       string       `hcl:"id,label"`
	Dir      string       `hcl:"dir"`
	Shape    string       `hcl:"shape,optional"` // "scalar" when omitted
	Location string       `hcl:"location,optional"`
	Schema   *SchemaBlock `hcl:"schema,block"`
	Fields   []*Field     `hcl:"field,block"`
	Default  *cty.Value   `hcl:"default,optional"`
}

// SchemaBlock types a scalar port and carries its constraints.
type SchemaBlock struct {
	Type string   `hcl:"type"`
	Min  *float64 `hcl:"min,optional"`
}

// Field is one member of a record-shaped port.
type Field struct {
	Name     string   `hcl:"name,label"`
	Type     string   `hcl:"type"`
	Location string   `hcl:"location"`
	Min      *float64 `hcl:"min,optional"`
}

const (
	DirIn  = "in"
	DirOut = "out"

	ShapeScalar = "scalar"
	ShapeRecord = "record"
)

func (p *Port) shape() string {
	if p.Shape == "" {
		return ShapeScalar
	}
	return p.Shape
}

// Issue is one manifest validation failure, addressed by a dotted path
// into the document.
type Issue struct {
	Path    string
	Message string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Path, i.Message)
}

// ValidationError aggregates every issue found in one pass, so callers see
// the whole picture instead of the first failure.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 1 {
		return fmt.Sprintf("invalid manifest: %s", e.Issues[0])
	}
	parts := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		parts[i] = is.String()
	}
	return fmt.Sprintf("invalid manifest (%d issues): %s", len(e.Issues), strings.Join(parts, "; "))
}

var portIDPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

var portTypes = map[string]struct{}{
	"number": {},
	"text":   {},
	"bool":   {},
	"any":    {},
}

// Validate checks the document's structure. It returns a *ValidationError
// listing every problem, or nil.
func (d *Document) Validate() error {
	var issues []Issue
	add := func(path, format string, args ...any) {
		issues = append(issues, Issue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if d.Spec != SpecName {
		add("spec", "want %q, got %q", SpecName, d.Spec)
	}
	if err := checkVersionCompatible(d.SpecVersion); err != nil {
		add("spec_version", "%v", err)
	}
	if d.Manifest == nil {
		add("manifest", "block is required")
	} else if d.Manifest.Workbook != nil {
		wbk := d.Manifest.Workbook
		if wbk.Locale != "" {
			if _, err := language.Parse(wbk.Locale); err != nil {
				add("manifest.workbook.locale", "not a BCP-47 tag: %v", err)
			}
		}
		if _, ok := value.ParseDateSystem(wbk.DateSystem); !ok {
			add("manifest.workbook.date_system", "want \"1900\" or \"1904\", got %q", wbk.DateSystem)
		}
	}

	seen := make(map[string]struct{}, len(d.Ports))
	for _, p := range d.Ports {
		path := "port." + p.ID
		if !portIDPattern.MatchString(p.ID) {
			add(path, "id must be lowercase and start with a letter")
		}
		if _, dup := seen[p.ID]; dup {
			add(path, "duplicate port id")
		}
		seen[p.ID] = struct{}{}

		if p.Dir != DirIn && p.Dir != DirOut {
			add(path+".dir", "want %q or %q, got %q", DirIn, DirOut, p.Dir)
		}
		if p.Default != nil && p.Dir == DirOut {
			add(path+".default", "defaults are only allowed on %q ports", DirIn)
		}

		switch p.shape() {
		case ShapeScalar:
			if len(p.Fields) > 0 {
				add(path, "scalar ports take no field blocks")
			}
			if p.Location == "" {
				add(path+".location", "scalar ports need a location")
			} else if _, err := ref.ParseCell(p.Location); err != nil {
				add(path+".location", "%v", err)
			}
			if p.Schema == nil {
				add(path+".schema", "scalar ports need a schema block")
			} else {
				checkSchemaType(add, path+".schema", p.Schema.Type, p.Schema.Min)
			}
		case ShapeRecord:
			if len(p.Fields) == 0 {
				add(path, "record ports need at least one field")
			}
			if p.Default != nil {
				add(path+".default", "defaults are only allowed on scalar ports")
			}
			fieldSeen := make(map[string]struct{}, len(p.Fields))
			for _, f := range p.Fields {
				fpath := path + ".field." + f.Name
				if _, dup := fieldSeen[f.Name]; dup {
					add(fpath, "duplicate field name")
				}
				fieldSeen[f.Name] = struct{}{}
				if _, err := ref.ParseCell(f.Location); err != nil {
					add(fpath+".location", "%v", err)
				}
				checkSchemaType(add, fpath, f.Type, f.Min)
			}
		default:
			add(path+".shape", "want %q or %q, got %q", ShapeScalar, ShapeRecord, p.Shape)
		}
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

func checkSchemaType(add func(string, string, ...any), path, typ string, min *float64) {
	if _, ok := portTypes[typ]; !ok {
		add(path+".type", "unknown type %q", typ)
	}
	if min != nil && typ != "number" {
		add(path+".min", "min only applies to number ports")
	}
}

// checkVersionCompatible accepts any version whose major component matches
// the implemented revision.
func checkVersionCompatible(v string) error {
	if v == "" {
		return fmt.Errorf("is required")
	}
	major, rest, _ := strings.Cut(v, ".")
	m, err := strconv.Atoi(major)
	if err != nil || rest == "" {
		return fmt.Errorf("malformed version %q", v)
	}
	wantMajor, _, _ := strings.Cut(SpecVersion, ".")
	want, _ := strconv.Atoi(wantMajor)
	if m != want {
		return fmt.Errorf("major version %d is incompatible with implemented %s", m, SpecVersion)
	}
	return nil
}

// PortByID resolves a declared port.
func (d *Document) PortByID(id string) (*Port, bool) {
	for _, p := range d.Ports {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}
