package http

import "time"

type CreateDiagnosisRequest struct {
	Photos []PhotoUploadRequest `json:"photos" binding:"required,min=1,dive"`
}

type PhotoUploadRequest struct {
	Filename     string `json:"filename" binding:"required"`
	ContentType  string `json:"contentType"`
	ExpectedSize int64  `json:"expectedSize" binding:"gte=0"`
}

// Slot statuses of CreateDiagnosisResponse.
const (
	SlotIssued = 0
	SlotNoURL  = 1
)

type UploadSlotResponse struct {
	PhotoID      int64     `json:"photoId"`
	Filename     string    `json:"filename"`
	Status       int       `json:"status"`
	PreSignedURL string    `json:"preSignedUrl,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

type CreateDiagnosisResponse struct {
	DiagnosisID int64                `json:"diagnosisId"`
	Photos      []UploadSlotResponse `json:"photos"`
}

type PhotoStatusResponse struct {
	PhotoID      int64  `json:"photoId"`
	Status       string `json:"status"`
	AnnotatedURL string `json:"annotatedUrl,omitempty"`
}

type DiagnosisStatusResponse struct {
	DiagnosisID int64                 `json:"diagnosisId"`
	BeehiveID   int64                 `json:"beehiveId"`
	Status      int                   `json:"status"`
	Finalized   bool                  `json:"finalized"`
	ImagoCount  *int64                `json:"imagoCount,omitempty"`
	LarvaCount  *int64                `json:"larvaCount,omitempty"`
	Photos      []PhotoStatusResponse `json:"photos"`
}

type BatchStateResponse struct {
	DiagnosisID int64 `json:"diagnosisId"`
	Status      int   `json:"status"`
}
