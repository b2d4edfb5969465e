package fuseops

import (
	"github.com/ohler55/ojg/oj"

	"github.com/groupfs/groupfs/internal/graphstore"
)

// statsJSON renders the virtual /_stats.json diagnostic file: current group
// and file counts, encoded with ojg instead of encoding/json.
func statsJSON(store *graphstore.Store) ([]byte, error) {
	groups, files, err := store.Stats()
	if err != nil {
		return nil, err
	}
	return oj.Marshal(map[string]int{"groups": groups, "files": files})
}
