package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"unitledger/pkg/domain"
)

type unitView struct {
	ID      domain.UnitID      `json:"id" yaml:"id"`
	DNA     string             `json:"dna" yaml:"dna"`
	Owner   domain.AccountID   `json:"owner" yaml:"owner"`
	Parents *domain.ParentPair `json:"parents,omitempty" yaml:"parents,omitempty"`
}

type accountView struct {
	Account domain.AccountID `json:"account" yaml:"account"`
	Units   []domain.UnitID  `json:"units" yaml:"units"`
}

type lineageView struct {
	ID       domain.UnitID      `json:"id" yaml:"id"`
	Parents  *domain.ParentPair `json:"parents" yaml:"parents"`
	HasChild *bool              `json:"has_child,omitempty" yaml:"has_child,omitempty"`
	MateOf   *bool              `json:"mate_of,omitempty" yaml:"mate_of,omitempty"`
}

type transferView struct {
	ID   domain.UnitID    `json:"id" yaml:"id"`
	From domain.AccountID `json:"from" yaml:"from"`
	To   domain.AccountID `json:"to" yaml:"to"`
}

type backupView struct {
	Key     string `json:"key" yaml:"key"`
	Entries int    `json:"entries" yaml:"entries"`
	Size    int64  `json:"size_bytes,omitempty" yaml:"size_bytes,omitempty"`
}

func newUnitView(unit domain.Unit, owner domain.AccountID) unitView {
	return unitView{ID: unit.ID, DNA: hex.EncodeToString(unit.DNA[:]), Owner: owner}
}

// render writes v to w as indented JSON or YAML.
func render(w io.Writer, format string, v any) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}
