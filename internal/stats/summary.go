package stats

import (
	"gonum.org/v1/gonum/stat"
)

// Summary aggregates the reports of one run. Only reports with at least one
// finished game contribute to the rate statistics; each is weighted by its
// game count.
type Summary struct {
	Reports       int     `json:"reports"`
	Games         int     `json:"games"`
	Win0Mean      float64 `json:"win0_mean"`
	Win0Std       float64 `json:"win0_std"`
	Win1Mean      float64 `json:"win1_mean"`
	Win1Std       float64 `json:"win1_std"`
	TieMean       float64 `json:"tie_mean"`
	FinalWin0     float64 `json:"final_win0"`
	FinalWin1     float64 `json:"final_win1"`
	FinalTie      float64 `json:"final_tie"`
	FinalRewShape float64 `json:"final_rew_shape"`
}

func Summarize(rows []ReportRow) Summary {
	summary := Summary{Reports: len(rows)}
	if len(rows) > 0 {
		summary.FinalRewShape = rows[len(rows)-1].Coefficient
	}

	var win0, win1, tie, weights []float64
	for _, row := range rows {
		summary.Games += row.Total
		if row.Total == 0 {
			continue
		}
		win0 = append(win0, row.Win0)
		win1 = append(win1, row.Win1)
		tie = append(tie, row.Tie)
		weights = append(weights, float64(row.Total))
		summary.FinalWin0, summary.FinalWin1, summary.FinalTie = row.Win0, row.Win1, row.Tie
	}
	if len(weights) == 0 {
		return summary
	}
	summary.Win0Mean, summary.Win0Std = meanStd(win0, weights)
	summary.Win1Mean, summary.Win1Std = meanStd(win1, weights)
	summary.TieMean = stat.Mean(tie, weights)
	return summary
}

func meanStd(x, weights []float64) (float64, float64) {
	if len(x) < 2 {
		return stat.Mean(x, weights), 0
	}
	return stat.MeanStdDev(x, weights)
}
