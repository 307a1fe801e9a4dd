package normalizer

import "github.com/FACorreiaa/expense-importer/internal/domain/import/repository"

// CarryOver copies the user's decisions from prior rows onto freshly parsed
// rows with the same row index: the skip flag is kept and recorded edits are
// re-applied. Prior rows without a counterpart are dropped.
func (p *Processor) CarryOver(prior, rows []repository.ParsedRow) {
	if len(prior) == 0 {
		return
	}

	byIndex := make(map[int]*repository.ParsedRow, len(prior))
	for i := range prior {
		byIndex[prior[i].RowIndex] = &prior[i]
	}

	for i := range rows {
		prev, ok := byIndex[rows[i].RowIndex]
		if !ok {
			continue
		}
		rows[i].Skipped = prev.Skipped
		if prev.Overrides != nil {
			p.ApplyUpdate(&rows[i], *prev.Overrides)
		}
	}
}
