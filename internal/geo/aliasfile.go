package geo

import (
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// aliasFile is the on-disk shape of a locality alias overrides file.
type aliasFile struct {
	Aliases map[string][]string `yaml:"aliases"`
}

// LoadAliases merges alias overrides from a YAML file into the table.
// Entries extend the seed table; a canonical form that already exists
// gains the new aliases.
func (t *Table) LoadAliases(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "geo: read alias file %s", path)
	}

	var f aliasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return eris.Wrap(err, "geo: parse alias file")
	}

	t.merge(f.Aliases)
	zap.L().Info("geo: alias file loaded",
		zap.String("path", path),
		zap.Int("entries", len(f.Aliases)),
	)
	return nil
}

// WriteAliasFile writes alias entries as a YAML overrides file readable
// by LoadAliases. Alias lists are sorted so repeated imports produce
// identical files.
func WriteAliasFile(path string, entries map[string][]string) error {
	for _, aliases := range entries {
		sort.Strings(aliases)
	}

	data, err := yaml.Marshal(aliasFile{Aliases: entries})
	if err != nil {
		return eris.Wrap(err, "geo: marshal alias file")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "geo: write alias file %s", path)
	}
	return nil
}
