package entity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/guias-cli/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "entities.yaml", `
"12.345.678/0001-90":
  legal_name: Empresa Exemplo Ltda
  trade_name: Exemplo
  folder: exemplo
  prior_names:
    - Exemplo Comercio ME
"98765432000110":
  legal_name: Outra SA
`)

	d, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Len())

	e, ok := d.Resolve("12345678000190")
	require.True(t, ok)
	assert.Equal(t, "Empresa Exemplo Ltda", e.LegalName)
	assert.Equal(t, "Exemplo", e.TradeName)
	assert.Equal(t, "exemplo", e.Folder)
	assert.Equal(t, []string{"Exemplo Comercio ME"}, e.PriorNames)

	other, ok := d.Resolve("98.765.432/0001-10")
	require.True(t, ok)
	assert.Equal(t, "98765432000110", other.Folder)
}

func TestLoad_LegacyJSON(t *testing.T) {
	path := writeFile(t, "empresas.json", `{
  "12345678000190": {
    "razao_social": "Empresa Exemplo Ltda",
    "nome_fantasia": "Exemplo",
    "pasta": "Exemplo",
    "nomes_anteriores": ["Antiga Exemplo"]
  }
}`)

	d, err := Load(path)
	require.NoError(t, err)

	e, ok := d.Resolve("12.345.678/0001-90")
	require.True(t, ok)
	assert.Equal(t, "Empresa Exemplo Ltda", e.LegalName)
	assert.Equal(t, "Exemplo", e.Folder)
	assert.Equal(t, []string{"Antiga Exemplo"}, e.PriorNames)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "not: [valid"))
	require.Error(t, err)

	_, err = Load(writeFile(t, "short.yaml", `"1234": {legal_name: X}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid tax id")
}

func TestNew_DuplicateTaxID(t *testing.T) {
	_, err := New([]model.LegalEntity{
		{TaxID: "12.345.678/0001-90", LegalName: "A"},
		{TaxID: "12345678000190", LegalName: "B"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate tax id")
}

func TestResolve_NotFound(t *testing.T) {
	d, err := New([]model.LegalEntity{{TaxID: "12345678000190", LegalName: "A"}})
	require.NoError(t, err)

	_, ok := d.Resolve("11111111000111")
	assert.False(t, ok)
}

func TestResolve_IgnoresNames(t *testing.T) {
	d, err := New([]model.LegalEntity{{TaxID: "12345678000190", LegalName: "Empresa A", PriorNames: []string{"Empresa B"}}})
	require.NoError(t, err)

	_, ok := d.Resolve("Empresa B")
	assert.False(t, ok)
}

func TestAll_Sorted(t *testing.T) {
	d, err := New([]model.LegalEntity{
		{TaxID: "98765432000110"},
		{TaxID: "12345678000190"},
	})
	require.NoError(t, err)

	all := d.All()
	require.Len(t, all, 2)
	assert.Equal(t, "12345678000190", all[0].TaxID)
	assert.Equal(t, "98765432000110", all[1].TaxID)
}

func TestKnownName(t *testing.T) {
	e := model.LegalEntity{
		LegalName:  "Comércio São João Ltda",
		PriorNames: []string{"Mercearia Joao ME"},
	}
	assert.True(t, KnownName(e, "COMERCIO SAO JOAO LTDA."))
	assert.True(t, KnownName(e, "Mercearia João - ME"))
	assert.False(t, KnownName(e, "Outra Empresa"))
	assert.False(t, KnownName(e, ""))
}
