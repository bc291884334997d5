package domain

import "time"

// PhotoStatus is the lifecycle state of an original photo.
type PhotoStatus string

const (
	PhotoWaiting    PhotoStatus = "WAITING"
	PhotoAnalyzing  PhotoStatus = "ANALYZING"
	PhotoSuccess    PhotoStatus = "SUCCESS"
	PhotoFail       PhotoStatus = "FAIL"
	PhotoUnreceived PhotoStatus = "UNRECEIVED"
)

// predecessors lists, for every status, the statuses it may be entered from.
var predecessors = map[PhotoStatus][]PhotoStatus{
	PhotoAnalyzing:  {PhotoWaiting},
	PhotoSuccess:    {PhotoAnalyzing},
	PhotoFail:       {PhotoAnalyzing},
	PhotoUnreceived: {PhotoWaiting},
}

// AllowedPredecessors returns the statuses a photo must be in to move to next.
// Repositories use it as the guard of conditional updates.
func AllowedPredecessors(next PhotoStatus) []PhotoStatus {
	return predecessors[next]
}

func (s PhotoStatus) CanTransitionTo(next PhotoStatus) bool {
	for _, from := range predecessors[next] {
		if from == s {
			return true
		}
	}
	return false
}

func (s PhotoStatus) IsTerminal() bool {
	return s == PhotoSuccess || s == PhotoFail || s == PhotoUnreceived
}

func (s PhotoStatus) Valid() bool {
	switch s {
	case PhotoWaiting, PhotoAnalyzing, PhotoSuccess, PhotoFail, PhotoUnreceived:
		return true
	}
	return false
}

type Stage string

const (
	StageLarva Stage = "LARVA"
	StageImago Stage = "IMAGO"
)

type DiseaseName string

const (
	DiseaseVarroa     DiseaseName = "VARROA"
	DiseaseFoulbrood  DiseaseName = "FOULBROOD"
	DiseaseChalkbrood DiseaseName = "CHALKBROOD"
	DiseaseDWV        DiseaseName = "DWV"
)

// DiseaseKey identifies a disease at a development stage.
type DiseaseKey struct {
	Name  DiseaseName
	Stage Stage
}

func (k DiseaseKey) String() string {
	return string(k.Name) + "/" + string(k.Stage)
}

var (
	LarvaVarroa     = DiseaseKey{DiseaseVarroa, StageLarva}
	LarvaFoulbrood  = DiseaseKey{DiseaseFoulbrood, StageLarva}
	LarvaChalkbrood = DiseaseKey{DiseaseChalkbrood, StageLarva}
	ImagoVarroa     = DiseaseKey{DiseaseVarroa, StageImago}
	ImagoDWV        = DiseaseKey{DiseaseDWV, StageImago}
)

// ReportableDiseases are the (disease, stage) pairs the analysis service reports.
var ReportableDiseases = []DiseaseKey{
	LarvaVarroa,
	LarvaFoulbrood,
	LarvaChalkbrood,
	ImagoVarroa,
	ImagoDWV,
}

type Disease struct {
	ID    int64
	Name  DiseaseName
	Stage Stage
}

func (d Disease) Key() DiseaseKey {
	return DiseaseKey{Name: d.Name, Stage: d.Stage}
}

// Diagnosis is one diagnosis batch of a beehive. Aggregate counts stay nil
// until the batch is finalized.
type Diagnosis struct {
	ID          int64
	BeehiveID   int64
	CreatedAt   time.Time
	ImagoCount  *int64
	LarvaCount  *int64
	FinalizedAt *time.Time
}

func (d Diagnosis) Finalized() bool {
	return d.FinalizedAt != nil
}

// OriginalPhoto is a photo uploaded for a diagnosis, joined with the storage
// state of its file.
type OriginalPhoto struct {
	ID          int64
	DiagnosisID int64
	FileID      int64
	ObjectKey   string
	FileStored  bool
	Status      PhotoStatus
}

type AnalyzedPhoto struct {
	ID              int64
	OriginalPhotoID int64
	DiagnosisID     int64
	FileID          int64
	ImagoCount      int64
	LarvaCount      int64
}

type AnalyzedPhotoDisease struct {
	ID              int64
	AnalyzedPhotoID int64
	DiseaseID       int64
	Count           int64
}

type Beehive struct {
	ID         int64
	ApiaryID   int64
	OwnerID    int64
	Name       string
	IsInfected bool
}
