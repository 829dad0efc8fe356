package journal

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

var csvHeader = []string{
	"trade_id", "instrument", "side", "size", "entry_price", "stop_loss", "take_profit",
	"risk_pct", "rule_set", "open_time", "exit_price", "close_time", "realized_pct", "outcome", "reason",
}

// WriteCSV writes trades with a header row. Open trades leave the
// settlement columns empty.
func WriteCSV(w io.Writer, trades []TradeRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, t := range trades {
		row := []string{
			t.TradeID,
			t.Instrument,
			string(t.Side),
			t.Size.String(),
			t.EntryPrice.String(),
			t.StopLoss.String(),
			t.TakeProfit.String(),
			f(t.RiskPct),
			t.RuleSet,
			t.OpenTime.Format(time.RFC3339),
			"", "", "",
			string(t.Outcome),
			t.Reason,
		}
		if t.ExitPrice != nil {
			row[10] = t.ExitPrice.String()
		}
		if t.CloseTime != nil {
			row[11] = t.CloseTime.Format(time.RFC3339)
		}
		if t.RealizedPct != nil {
			row[12] = f(*t.RealizedPct)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
