// Package merge combines freshly fetched enrichment data with the stored
// client record, deciding which fields to write and whether the record is
// worth keeping at all.
package merge

import (
	"strings"

	"github.com/leadfactor/enrich-cli/internal/model"
	"github.com/leadfactor/enrich-cli/internal/phone"
	"github.com/leadfactor/enrich-cli/pkg/lookup"
)

// Action is the persistence decision for a merged record.
type Action int

const (
	// ActionUpdate persists the merged field set.
	ActionUpdate Action = iota
	// ActionDelete removes the record: no usable data exists and none ever did.
	ActionDelete
)

// Decision is the outcome of merging one record.
type Decision struct {
	Action Action
	Update model.RecordUpdate
}

// Merge applies the merge rules to one record. result may be nil when the
// lookup failed or was skipped; reach may be nil when the reachability
// check could not run (numbers are then marked unreachable, which is the
// persisted default for "no information").
//
// A record that reaches Merge is considered processed: Checked is always
// set so the pipeline does not retry it forever.
func Merge(rec model.ClientRecord, result *lookup.Result, reach map[string]bool) Decision {
	upd := model.RecordUpdate{Checked: true}

	// New values win only when present; known values are never nulled out.
	if result != nil {
		if result.Name != "" {
			upd.Name = &result.Name
		}
		if result.BirthDate != "" {
			upd.BirthDate = &result.BirthDate
		}
		if result.Income != nil {
			upd.Income = result.Income
		}
		if result.Score != nil {
			upd.Score = result.Score
		}
	}

	// The stored phone field is rebuilt from the original candidate list:
	// numbers already on the record first, then numbers the lookup found.
	// Expanded variants exist only for the reachability query and are
	// never persisted.
	var raws []string
	if rec.Phone != nil {
		raws = append(raws, phone.SplitField(*rec.Phone)...)
	}
	if result != nil {
		raws = append(raws, result.Phones...)
	}

	if field := annotate(raws, reach); field != "" {
		upd.Phone = &field
	}

	hasName := upd.Name != nil || rec.HasName()
	if upd.Phone == nil && !hasName && !rec.HasPhone() {
		return Decision{Action: ActionDelete}
	}

	return Decision{Action: ActionUpdate, Update: upd}
}

// annotate renders the deduplicated original candidates as "digits mark"
// tokens. A number is marked reachable when any of its variants checked
// reachable; absent information defaults to the unreachable mark.
func annotate(raws []string, reach map[string]bool) string {
	seen := make(map[string]struct{})
	var tokens []string
	for _, raw := range raws {
		d := phone.Digits(raw)
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}

		mark := model.UnreachableMark
		for _, v := range phone.Variants(d) {
			if reach[v] {
				mark = model.ReachableMark
				break
			}
		}
		tokens = append(tokens, d+" "+mark)
	}
	return strings.Join(tokens, ", ")
}
