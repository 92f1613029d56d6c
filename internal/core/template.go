package core

// template.go loads schema templates from JSON, YAML or TOML documents.
//
// All three formats share one shape:
//
//	{"colunas": {"data_transacao": {"obrigatorio": true, "aliases": ["Data"],
//	  "tipo_dado": "DATE", "validacao": {"valores_permitidos": [...]}}}}
//
// Column declaration order is significant (it fixes finding order), so each
// decoder walks the "colunas" mapping in document order instead of going
// through a Go map.

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrTemplateNotFound is returned when a named template is not registered.
var ErrTemplateNotFound = errors.New("template not found")

var templateValidate = validator.New()

// columnDoc is the on-disk form of a column spec.
type columnDoc struct {
	Obrigatorio bool     `json:"obrigatorio" yaml:"obrigatorio" toml:"obrigatorio"`
	Aliases     []string `json:"aliases" yaml:"aliases" toml:"aliases"`
	TipoDado    string   `json:"tipo_dado" yaml:"tipo_dado" toml:"tipo_dado"`
	Validacao   *struct {
		ValoresPermitidos []string `json:"valores_permitidos" yaml:"valores_permitidos" toml:"valores_permitidos"`
	} `json:"validacao" yaml:"validacao" toml:"validacao"`
}

func (d columnDoc) spec(name string) ColumnSpec {
	spec := ColumnSpec{
		Name:     name,
		Required: d.Obrigatorio,
		Aliases:  d.Aliases,
		DataType: DataType(strings.ToUpper(strings.TrimSpace(d.TipoDado))),
	}
	if spec.DataType == "" {
		spec.DataType = TypeString
	}
	if d.Validacao != nil && len(d.Validacao.ValoresPermitidos) > 0 {
		spec.Validation = &ColumnValidation{AllowedValues: d.Validacao.ValoresPermitidos}
	}
	return spec
}

// LoadTemplate reads a template file. The format is chosen by extension and
// the template name is the file name without extension.
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return ParseTemplate(name, data, strings.TrimPrefix(ext, "."))
}

// ParseTemplate decodes a template document in the given format
// ("json", "yaml", "yml" or "toml") and validates it.
func ParseTemplate(name string, data []byte, format string) (*Template, error) {
	var (
		cols []ColumnSpec
		err  error
	)
	switch strings.ToLower(format) {
	case "json", "":
		cols, err = parseJSONColumns(data)
	case "yaml", "yml":
		cols, err = parseYAMLColumns(data)
	case "toml":
		cols, err = parseTOMLColumns(data)
	default:
		return nil, fmt.Errorf("unsupported template format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}

	tpl := &Template{Name: name, Columns: cols}
	if err := tpl.Validate(); err != nil {
		return nil, err
	}
	return tpl, nil
}

func parseJSONColumns(data []byte) ([]ColumnSpec, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	var cols []ColumnSpec
	found := false
	for dec.More() {
		key, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if key != "colunas" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, err
			}
			continue
		}
		found = true
		if err := expectDelim(dec, '{'); err != nil {
			return nil, fmt.Errorf("colunas: %w", err)
		}
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			name, ok := tok.(string)
			if !ok {
				return nil, fmt.Errorf("colunas: unexpected token %v", tok)
			}
			var doc columnDoc
			if err := dec.Decode(&doc); err != nil {
				return nil, fmt.Errorf("column %q: %w", name, err)
			}
			cols = append(cols, doc.spec(name))
		}
		if err := expectDelim(dec, '}'); err != nil {
			return nil, err
		}
	}
	if !found {
		return nil, errors.New(`missing "colunas"`)
	}
	return cols, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err == io.EOF {
		return errors.New("unexpected end of document")
	}
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func parseYAMLColumns(data []byte) ([]ColumnSpec, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, errors.New("empty document")
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, errors.New("top level must be a mapping")
	}

	for i := 0; i+1 < len(doc.Content); i += 2 {
		if doc.Content[i].Value != "colunas" {
			continue
		}
		colsNode := doc.Content[i+1]
		if colsNode.Kind != yaml.MappingNode {
			return nil, errors.New("colunas must be a mapping")
		}
		cols := make([]ColumnSpec, 0, len(colsNode.Content)/2)
		for j := 0; j+1 < len(colsNode.Content); j += 2 {
			name := colsNode.Content[j].Value
			var cd columnDoc
			if err := colsNode.Content[j+1].Decode(&cd); err != nil {
				return nil, fmt.Errorf("column %q: %w", name, err)
			}
			cols = append(cols, cd.spec(name))
		}
		return cols, nil
	}
	return nil, errors.New(`missing "colunas"`)
}

func parseTOMLColumns(data []byte) ([]ColumnSpec, error) {
	var doc struct {
		Colunas map[string]columnDoc `toml:"colunas"`
	}
	md, err := toml.Decode(string(data), &doc)
	if err != nil {
		return nil, err
	}
	if doc.Colunas == nil {
		return nil, errors.New(`missing "colunas"`)
	}

	// MetaData.Keys preserves definition order; map iteration does not.
	cols := make([]ColumnSpec, 0, len(doc.Colunas))
	seen := make(map[string]bool, len(doc.Colunas))
	for _, key := range md.Keys() {
		if len(key) < 2 || key[0] != "colunas" || seen[key[1]] {
			continue
		}
		seen[key[1]] = true
		cols = append(cols, doc.Colunas[key[1]].spec(key[1]))
	}
	return cols, nil
}

// Validate checks structural rules and alias consistency.
// Returns an error describing all problems found.
func (t *Template) Validate() error {
	var errs []string

	if err := templateValidate.Struct(t); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	canonical := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if canonical[c.Name] {
			errs = append(errs, fmt.Sprintf("column %q declared twice", c.Name))
		}
		canonical[c.Name] = true
	}

	owner := make(map[string]string)
	for _, c := range t.Columns {
		for _, a := range c.Aliases {
			if canonical[a] && a != c.Name {
				errs = append(errs, fmt.Sprintf("alias %q of %q shadows a canonical column", a, c.Name))
			}
			if prev, ok := owner[a]; ok && prev != c.Name {
				errs = append(errs, fmt.Sprintf("alias %q claimed by both %q and %q", a, prev, c.Name))
			}
			owner[a] = c.Name
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid template %s:\n  - %s", t.Name, strings.Join(errs, "\n  - "))
	}
	return nil
}

// Prompt renders the template as indented JSON using the document field names,
// preserving column order.
func (t *Template) Prompt() string {
	var buf bytes.Buffer
	buf.WriteString(`{"colunas":{`)
	for i, c := range t.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, _ := json.Marshal(c.Name)
		body, _ := json.Marshal(c)
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(body)
	}
	buf.WriteString("}}")

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return buf.String()
	}
	return out.String()
}
