package domain

// VarroaThresholdPct is the Varroa share of a stage above which the hive is
// considered infected.
const VarroaThresholdPct = 5.0

// ZeroToleranceDiseases mark the hive infected on any detection.
var ZeroToleranceDiseases = []DiseaseKey{LarvaFoulbrood, LarvaChalkbrood, ImagoDWV}

// DiseaseTotals holds summed detection counts per disease key over a batch.
type DiseaseTotals map[DiseaseKey]int64

type Assessment struct {
	LarvaTotal     int64
	ImagoTotal     int64
	LarvaVarroaPct float64
	ImagoVarroaPct float64
	Totals         DiseaseTotals
	HasDisease     bool
}

// Ratio returns count as a percentage of total, 0 when total is 0.
func Ratio(count, total int64) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(count) / float64(total)
}

// Assess decides whether a batch shows disease.
func Assess(totals DiseaseTotals, larvaTotal, imagoTotal int64) Assessment {
	if totals == nil {
		totals = DiseaseTotals{}
	}
	a := Assessment{
		LarvaTotal:     larvaTotal,
		ImagoTotal:     imagoTotal,
		LarvaVarroaPct: Ratio(totals[LarvaVarroa], larvaTotal),
		ImagoVarroaPct: Ratio(totals[ImagoVarroa], imagoTotal),
		Totals:         totals,
	}

	a.HasDisease = a.LarvaVarroaPct > VarroaThresholdPct || a.ImagoVarroaPct > VarroaThresholdPct
	for _, k := range ZeroToleranceDiseases {
		if totals[k] > 0 {
			a.HasDisease = true
		}
	}
	return a
}
