package consistency

import (
	"fmt"
	"sort"

	"libraengage/internal/domain"
	"libraengage/internal/engagement"
)

// DefaultChecks are the invariants every healthy store satisfies.
func DefaultChecks() []Check {
	zero := Threshold{Operator: "==", Value: 0}
	return []Check{
		{
			Name:        "multiple_open_records",
			Description: "items with more than one checkout record lacking a return date",
			Threshold:   zero,
			Measure:     multipleOpenRecords,
		},
		{
			Name:        "open_record_not_last",
			Description: "items whose open checkout record is not the last in the log",
			Threshold:   zero,
			Measure:     openRecordNotLast,
		},
		{
			Name:        "loan_flag_mismatch",
			Description: "patrons whose open-loan flag disagrees with the items' open records",
			Threshold:   zero,
			Measure:     loanFlagMismatch,
		},
		{
			Name:        "negative_counters",
			Description: "ledger rows with a negative counter",
			Threshold:   zero,
			Measure:     negativeCounters,
		},
		{
			Name:        "ledger_replay_mismatch",
			Description: "ledger rows that differ from the replayed event feed",
			Threshold:   zero,
			Measure:     ledgerReplayMismatch,
		},
	}
}

func multipleOpenRecords(s *Snapshot) (float64, []string) {
	var bad []string
	for _, item := range s.Items {
		if n := item.OpenRecordCount(); n > 1 {
			bad = append(bad, fmt.Sprintf("item %s has %d open records", item.Barcode, n))
		}
	}
	return float64(len(bad)), bad
}

func openRecordNotLast(s *Snapshot) (float64, []string) {
	var bad []string
	for _, item := range s.Items {
		for i, rec := range item.CheckoutHistory {
			if rec.IsOpen() && i != len(item.CheckoutHistory)-1 {
				bad = append(bad, fmt.Sprintf("item %s open record %s is at position %d of %d", item.Barcode, rec.ID, i+1, len(item.CheckoutHistory)))
			}
		}
	}
	return float64(len(bad)), bad
}

func loanFlagMismatch(s *Snapshot) (float64, []string) {
	open := make(map[string][]string)
	for _, item := range s.Items {
		for _, rec := range item.CheckoutHistory {
			if rec.IsOpen() {
				open[rec.BorrowerBarcode] = append(open[rec.BorrowerBarcode], item.Barcode)
			}
		}
	}

	var bad []string
	for _, p := range s.Patrons {
		items := open[p.Barcode]
		switch {
		case len(items) > 1:
			bad = append(bad, fmt.Sprintf("patron %s holds %d items %v", p.Barcode, len(items), items))
		case p.HasOpenLoan && len(items) == 0:
			bad = append(bad, fmt.Sprintf("patron %s is flagged as borrowing but no item is open", p.Barcode))
		case !p.HasOpenLoan && len(items) == 1:
			bad = append(bad, fmt.Sprintf("patron %s holds item %s but is not flagged", p.Barcode, items[0]))
		case p.HasOpenLoan && p.CurrentItem != items[0]:
			bad = append(bad, fmt.Sprintf("patron %s current item is %s but holds %s", p.Barcode, p.CurrentItem, items[0]))
		}
	}
	return float64(len(bad)), bad
}

func negativeCounters(s *Snapshot) (float64, []string) {
	var bad []string
	for _, row := range s.Activity {
		c := row.Counters()
		if c.BooksCheckedOut < 0 || c.BooksReturned < 0 || c.ClassesAttended < 0 ||
			c.SummariesSubmitted < 0 || c.SummariesApproved < 0 || c.TotalPoints < 0 {
			bad = append(bad, fmt.Sprintf("row %s/%s has negative counters %+v", row.PatronBarcode, row.Period(), c))
		}
	}
	return float64(len(bad)), bad
}

func ledgerReplayMismatch(s *Snapshot) (float64, []string) {
	replayed := engagement.Replay(s.Events)
	rows := make(map[engagement.Key]domain.ActivityDelta, len(s.Activity))
	for _, row := range s.Activity {
		rows[engagement.Key{PatronBarcode: row.PatronBarcode, Period: row.Period()}] = row.Counters()
	}

	var bad []string
	for key, got := range rows {
		want, ok := replayed[key]
		if !ok {
			bad = append(bad, fmt.Sprintf("row %s/%s has no events", key.PatronBarcode, key.Period))
			continue
		}
		if got != want {
			bad = append(bad, fmt.Sprintf("row %s/%s is %+v, events sum to %+v", key.PatronBarcode, key.Period, got, want))
		}
	}
	for key := range replayed {
		if _, ok := rows[key]; !ok {
			bad = append(bad, fmt.Sprintf("events for %s/%s have no row", key.PatronBarcode, key.Period))
		}
	}
	sort.Strings(bad)
	return float64(len(bad)), bad
}
