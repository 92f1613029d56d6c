package core

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

// transacoesTemplate mirrors templates/transacoes.json.
func transacoesTemplate() *Template {
	return &Template{
		Name: "transacoes",
		Columns: []ColumnSpec{
			{Name: "data_transacao", Required: true, Aliases: []string{"Data", "data", "dt_transacao"}, DataType: TypeDate},
			{Name: "valor", Required: true, Aliases: []string{"Valor", "amount"}, DataType: TypeDecimal},
			{Name: "conta_origem", Required: true, Aliases: []string{"Conta", "account"}, DataType: TypeString},
			{Name: "descricao", DataType: TypeString},
			{Name: "tipo", DataType: TypeString, Validation: &ColumnValidation{
				AllowedValues: []string{"CREDITO", "DEBITO", "PIX"},
			}},
		},
	}
}

func columnNames(tpl *Template) []string {
	names := make([]string, len(tpl.Columns))
	for i, c := range tpl.Columns {
		names[i] = c.Name
	}
	return names
}

func TestParseTemplate_Formats(t *testing.T) {
	tests := []struct {
		name   string
		format string
		doc    string
	}{
		{
			name:   "json",
			format: "json",
			doc: `{
  "descricao": "ignored",
  "colunas": {
    "zeta": {"obrigatorio": true, "aliases": ["Z"], "tipo_dado": "date"},
    "alfa": {"tipo_dado": "DECIMAL"},
    "tipo": {"validacao": {"valores_permitidos": ["A", "B"]}}
  }
}`,
		},
		{
			name:   "yaml",
			format: "yaml",
			doc: `colunas:
  zeta:
    obrigatorio: true
    aliases: [Z]
    tipo_dado: date
  alfa:
    tipo_dado: DECIMAL
  tipo:
    validacao:
      valores_permitidos: [A, B]
`,
		},
		{
			name:   "toml",
			format: "toml",
			doc: `[colunas.zeta]
obrigatorio = true
aliases = ["Z"]
tipo_dado = "date"

[colunas.alfa]
tipo_dado = "DECIMAL"

[colunas.tipo.validacao]
valores_permitidos = ["A", "B"]
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl, err := ParseTemplate("t", []byte(tt.doc), tt.format)
			if err != nil {
				t.Fatalf("ParseTemplate: %v", err)
			}
			if got, want := columnNames(tpl), []string{"zeta", "alfa", "tipo"}; !reflect.DeepEqual(got, want) {
				t.Fatalf("columns = %v, want %v", got, want)
			}

			zeta := tpl.Columns[0]
			if !zeta.Required || zeta.DataType != TypeDate || !reflect.DeepEqual(zeta.Aliases, []string{"Z"}) {
				t.Errorf("zeta = %+v", zeta)
			}
			if tpl.Columns[1].DataType != TypeDecimal {
				t.Errorf("alfa type = %q, want DECIMAL", tpl.Columns[1].DataType)
			}
			tipo := tpl.Columns[2]
			if tipo.DataType != TypeString {
				t.Errorf("tipo type = %q, want STRING default", tipo.DataType)
			}
			if got := tipo.AllowedValues(); !reflect.DeepEqual(got, []string{"A", "B"}) {
				t.Errorf("tipo allowed = %v, want [A B]", got)
			}
		})
	}
}

func TestParseTemplate_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		doc     string
		wantMsg string
	}{
		{"missing colunas", "json", `{"outro": {}}`, `missing "colunas"`},
		{"no columns", "json", `{"colunas": {}}`, "invalid template"},
		{"alias shadows column", "json", `{"colunas": {"a": {"aliases": ["b"]}, "b": {}}}`, `alias "b" of "a" shadows`},
		{"alias claimed twice", "json", `{"colunas": {"a": {"aliases": ["x"]}, "b": {"aliases": ["x"]}}}`, `alias "x" claimed by both`},
		{"empty alias", "json", `{"colunas": {"a": {"aliases": [""]}}}`, "invalid template"},
		{"bad yaml", "yaml", "colunas: [1, 2", "parse template"},
		{"yaml colunas not mapping", "yaml", "colunas: [a]", "colunas must be a mapping"},
		{"unsupported format", "xml", "<colunas/>", "unsupported template format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTemplate("t", []byte(tt.doc), tt.format)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestLoadTemplate_NameFromFile(t *testing.T) {
	path := writeFile(t, "vendas.yaml", []byte("colunas:\n  id:\n    obrigatorio: true\n"))

	tpl, err := LoadTemplate(path)
	if err != nil {
		t.Fatalf("LoadTemplate: %v", err)
	}
	if tpl.Name != "vendas" {
		t.Errorf("Name = %q, want vendas", tpl.Name)
	}
}

func TestTemplate_Prompt(t *testing.T) {
	tpl := transacoesTemplate()
	prompt := tpl.Prompt()

	for _, want := range []string{`"colunas"`, `"obrigatorio": true`, `"tipo_dado": "DATE"`, `"valores_permitidos"`} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %s:\n%s", want, prompt)
		}
	}
	if strings.Index(prompt, "data_transacao") > strings.Index(prompt, "conta_origem") {
		t.Error("prompt does not keep column order")
	}

	// The prompt is itself a loadable template.
	back, err := ParseTemplate("back", []byte(prompt), "json")
	if err != nil {
		t.Fatalf("reparse prompt: %v", err)
	}
	if !reflect.DeepEqual(columnNames(back), columnNames(tpl)) {
		t.Errorf("reparsed columns = %v, want %v", columnNames(back), columnNames(tpl))
	}
}

func TestRegistry(t *testing.T) {
	dir := t.TempDir()
	writeTo := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	writeTo("transacoes.json", `{"colunas": {"valor": {"obrigatorio": true}}}`)
	writeTo("clientes.yaml", "colunas:\n  nome: {}\n")
	writeTo("README.md", "not a template")

	reg := NewRegistry("transacoes")
	n, err := reg.LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if n != 2 || reg.Count() != 2 {
		t.Errorf("loaded %d (count %d), want 2", n, reg.Count())
	}

	def, err := reg.Get("")
	if err != nil || def.Name != "transacoes" {
		t.Fatalf("Get(\"\") = %v, %v; want transacoes", def, err)
	}

	if _, err := reg.Get("nope"); !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("Get(nope) error = %v, want ErrTemplateNotFound", err)
	}

	all := reg.All()
	if len(all) != 2 || all[0].Name != "clientes" || all[1].Name != "transacoes" {
		t.Errorf("All() not sorted by name: %v", all)
	}

	if err := reg.Register(def); err == nil {
		t.Error("duplicate Register succeeded")
	}
}
