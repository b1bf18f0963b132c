// Package entity holds the read-only directory of registered companies.
package entity

import (
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/guias-cli/internal/extract"
	"github.com/sells-group/guias-cli/internal/model"
)

const taxIDLength = 14

// Directory maps normalized CNPJs to legal entities. It is immutable after
// construction and safe for concurrent use.
type Directory struct {
	entities map[string]model.LegalEntity
}

// entry is one value of the entities file. The Portuguese keys are accepted
// so files written for the previous organizer keep loading.
type entry struct {
	LegalName  string   `yaml:"legal_name"`
	TradeName  string   `yaml:"trade_name"`
	Folder     string   `yaml:"folder"`
	PriorNames []string `yaml:"prior_names"`

	RazaoSocial     string   `yaml:"razao_social"`
	NomeFantasia    string   `yaml:"nome_fantasia"`
	Pasta           string   `yaml:"pasta"`
	NomesAnteriores []string `yaml:"nomes_anteriores"`
}

func (e entry) entity(taxID string) model.LegalEntity {
	le := model.LegalEntity{
		TaxID:      taxID,
		LegalName:  firstNonEmpty(e.LegalName, e.RazaoSocial),
		TradeName:  firstNonEmpty(e.TradeName, e.NomeFantasia),
		Folder:     firstNonEmpty(e.Folder, e.Pasta, taxID),
		PriorNames: e.PriorNames,
	}
	if len(le.PriorNames) == 0 {
		le.PriorNames = e.NomesAnteriores
	}
	return le
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Load reads a YAML or JSON mapping of CNPJ to entity attributes.
func Load(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "entity: read %s", path)
	}

	var raw map[string]entry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrapf(err, "entity: parse %s", path)
	}

	entities := make([]model.LegalEntity, 0, len(raw))
	for key, e := range raw {
		entities = append(entities, e.entity(model.NormalizeTaxID(key)))
	}
	d, err := New(entities)
	if err != nil {
		return nil, eris.Wrapf(err, "entity: load %s", path)
	}
	return d, nil
}

// New builds a directory, rejecting malformed or repeated tax ids.
func New(entities []model.LegalEntity) (*Directory, error) {
	d := &Directory{entities: make(map[string]model.LegalEntity, len(entities))}
	for _, e := range entities {
		id := model.NormalizeTaxID(e.TaxID)
		if len(id) != taxIDLength {
			return nil, eris.Errorf("entity: invalid tax id %q", e.TaxID)
		}
		if _, dup := d.entities[id]; dup {
			return nil, eris.Errorf("entity: duplicate tax id %s", id)
		}
		e.TaxID = id
		if e.Folder == "" {
			e.Folder = id
		}
		d.entities[id] = e
	}
	return d, nil
}

// Resolve looks an entity up by tax id. Formatting characters in taxID are
// ignored; names are never consulted.
func (d *Directory) Resolve(taxID string) (model.LegalEntity, bool) {
	e, ok := d.entities[model.NormalizeTaxID(taxID)]
	return e, ok
}

// All returns the entities ordered by tax id.
func (d *Directory) All() []model.LegalEntity {
	out := make([]model.LegalEntity, 0, len(d.entities))
	for _, e := range d.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaxID < out[j].TaxID })
	return out
}

// Len returns the number of registered entities.
func (d *Directory) Len() int {
	return len(d.entities)
}

// KnownName reports whether name, once normalized, equals one of the
// entity's current or prior names.
func KnownName(e model.LegalEntity, name string) bool {
	n := extract.NormalizeName(name)
	if n == "" {
		return false
	}
	for _, candidate := range e.Names() {
		if extract.NormalizeName(candidate) == n {
			return true
		}
	}
	return false
}
