package balances

import (
	"sort"

	"github.com/ledgercore/ledgercore/internal/gl/shared"
)

// LineAmount is the minimal view of a journal line needed for delta
// computation.
type LineAmount struct {
	AccountCode string
	DebitMinor  int64
	CreditMinor int64
}

// Delta is the balance effect of one entry on a single (account, currency)
// pair.
type Delta struct {
	AccountCode string
	Currency    string
	DebitMinor  int64
	CreditMinor int64
}

// ComputeDeltas groups an entry's lines by account code, folding multiple
// lines on the same account into one delta. The entry carries a single
// currency, so account code alone keys the grouping. Output is sorted by
// account code for deterministic ordering.
func ComputeDeltas(lines []LineAmount, currency string) ([]Delta, error) {
	if len(lines) == 0 {
		return nil, shared.ErrTooFewLines
	}

	byAccount := make(map[string]*Delta, len(lines))
	for _, line := range lines {
		d, ok := byAccount[line.AccountCode]
		if !ok {
			d = &Delta{AccountCode: line.AccountCode, Currency: currency}
			byAccount[line.AccountCode] = d
		}
		d.DebitMinor += line.DebitMinor
		d.CreditMinor += line.CreditMinor
	}

	deltas := make([]Delta, 0, len(byAccount))
	for _, d := range byAccount {
		deltas = append(deltas, *d)
	}
	sort.Slice(deltas, func(i, j int) bool {
		return deltas[i].AccountCode < deltas[j].AccountCode
	})
	return deltas, nil
}
