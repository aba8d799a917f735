package config

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"

	"github.com/ganarchy/GAnarchy/internal/model"
)

// Export builds the federation export document: the subset of entries this
// instance is willing to republish. Only entries that are both federated
// and locally active qualify; a locally disabled entry is never exported
// no matter what its origin claimed.
//
// The output shape matches the config/repo-list schema, so another
// instance can consume it directly as a repo_list_srcs target. Marshaling
// is deterministic: go-toml emits map keys sorted.
func Export(baseURL, title string, entries []model.TrackingEntry) ([]byte, error) {
	doc := Document{
		BaseURL:  baseURL,
		Title:    title,
		Projects: map[string]map[string]map[string]Flags{},
	}

	for _, e := range entries {
		if !e.Active || !e.Federate {
			continue
		}
		commit := e.Key.Project.String()
		url := e.Key.URL.String()
		branch := model.DisplayBranch(e.Key.Branch)

		if doc.Projects[commit] == nil {
			doc.Projects[commit] = map[string]map[string]Flags{}
		}
		if doc.Projects[commit][url] == nil {
			doc.Projects[commit][url] = map[string]Flags{}
		}
		active := true
		doc.Projects[commit][url][branch] = Flags{Active: &active}
	}

	out, err := toml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal export document: %w", err)
	}
	return out, nil
}
