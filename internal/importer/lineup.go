package importer

import (
	"github.com/chravel/chravel-import/internal/importer/aiextract"
	"github.com/chravel/chravel-import/internal/importer/dedupe"
	"github.com/chravel/chravel-import/internal/model"
)

// NormalizeNames trims, drops empties, removes case-insensitive duplicates
// keeping the first casing seen, and sorts alphabetically.
func NormalizeNames(names []string) []string {
	return dedupe.UniqueNames(names)
}

// Names maps an extraction response onto a lineup. When the service sent
// sessions instead of names, their speakers are used.
func (m *Mapper) Names(resp *aiextract.Response, format model.SourceFormat) model.LineupResult {
	raw := resp.Names
	if len(raw) == 0 {
		for _, s := range resp.Sessions {
			raw = append(raw, s.Speakers...)
		}
	}

	result := model.LineupResult{
		Names:        NormalizeNames(raw),
		Errors:       append([]string{}, resp.RecordErrors...),
		SourceFormat: format,
	}
	if format == model.FormatURL {
		result.NamesFound = resp.Found(model.KindLineup)
	}
	result.IsValid = len(result.Names) > 0
	if !result.IsValid {
		result.Errors = append(result.Errors, noItemsMessage("names", format))
	}
	return result
}
