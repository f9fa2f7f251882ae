package enrich

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// scopeFile is the on-disk shape of a multi-owner scope list.
type scopeFile struct {
	Scopes []scopeEntry `yaml:"scopes"`
}

type scopeEntry struct {
	OwnerID int64 `yaml:"owner_id"`
	Limit   int   `yaml:"limit"`
	Force   bool  `yaml:"force"`
}

// LoadScopes reads a YAML scope file listing the owners to enrich:
//
//	scopes:
//	  - owner_id: 7
//	    limit: 200
//	  - owner_id: 9
//	    force: true
func LoadScopes(path string) ([]Scope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: read scope file %s", path)
	}

	var f scopeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "enrich: parse scope file %s", path)
	}
	if len(f.Scopes) == 0 {
		return nil, eris.Errorf("enrich: scope file %s lists no scopes", path)
	}

	scopes := make([]Scope, 0, len(f.Scopes))
	for _, e := range f.Scopes {
		if e.OwnerID == 0 {
			return nil, eris.Errorf("enrich: scope file %s has an entry without owner_id", path)
		}
		scopes = append(scopes, Scope{OwnerID: e.OwnerID, Limit: e.Limit, Force: e.Force})
	}
	return scopes, nil
}
