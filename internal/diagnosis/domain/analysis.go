package domain

import "fmt"

type LarvaCounts struct {
	Normal     int64
	Varroa     int64
	Foulbrood  int64
	Chalkbrood int64
}

type ImagoCounts struct {
	Normal int64
	Varroa int64
	DWV    int64
}

// AnalysisResult is what the analysis service reports for one photo.
type AnalysisResult struct {
	Larva              LarvaCounts
	Imago              ImagoCounts
	AnnotatedObjectKey string
}

// DiseaseCount is a positive detection count for one disease key.
type DiseaseCount struct {
	Key   DiseaseKey
	Count int64
}

func (r *AnalysisResult) LarvaTotal() int64 {
	return r.Larva.Normal + r.Larva.Varroa + r.Larva.Foulbrood + r.Larva.Chalkbrood
}

func (r *AnalysisResult) ImagoTotal() int64 {
	return r.Imago.Normal + r.Imago.Varroa + r.Imago.DWV
}

// DiseaseCounts returns the detections with a count above zero, in
// ReportableDiseases order.
func (r *AnalysisResult) DiseaseCounts() []DiseaseCount {
	all := []DiseaseCount{
		{LarvaVarroa, r.Larva.Varroa},
		{LarvaFoulbrood, r.Larva.Foulbrood},
		{LarvaChalkbrood, r.Larva.Chalkbrood},
		{ImagoVarroa, r.Imago.Varroa},
		{ImagoDWV, r.Imago.DWV},
	}
	out := all[:0]
	for _, dc := range all {
		if dc.Count > 0 {
			out = append(out, dc)
		}
	}
	return out
}

func (r *AnalysisResult) Validate() error {
	if r.AnnotatedObjectKey == "" {
		return fmt.Errorf("annotated image key is empty")
	}
	counts := []int64{
		r.Larva.Normal, r.Larva.Varroa, r.Larva.Foulbrood, r.Larva.Chalkbrood,
		r.Imago.Normal, r.Imago.Varroa, r.Imago.DWV,
	}
	for _, c := range counts {
		if c < 0 {
			return fmt.Errorf("negative count %d", c)
		}
	}
	return nil
}
