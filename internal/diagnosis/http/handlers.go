package http

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/worldbeesion/beecareful-backend/internal/auth"
	"github.com/worldbeesion/beecareful-backend/internal/diagnosis/service"
)

const maxStatusIDs = 100

// CreateDiagnosis opens a diagnosis and returns one presigned upload URL per photo
func (h *Handler) CreateDiagnosis(c *gin.Context) {
	beehiveID, ok := pathID(c, "beehiveId")
	if !ok {
		return
	}

	var body CreateDiagnosisRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	uploads := make([]service.PhotoUpload, 0, len(body.Photos))
	for _, p := range body.Photos {
		uploads = append(uploads, service.PhotoUpload{
			Filename:     p.Filename,
			ContentType:  p.ContentType,
			ExpectedSize: p.ExpectedSize,
		})
	}

	created, err := h.diagnoses.CreateDiagnosis(c.Request.Context(), auth.MemberID(c), beehiveID, uploads)
	if err != nil {
		h.writeError(c, err, "create diagnosis")
		return
	}

	resp := CreateDiagnosisResponse{DiagnosisID: created.DiagnosisID, Photos: make([]UploadSlotResponse, 0, len(created.Slots))}
	for _, s := range created.Slots {
		status := SlotIssued
		if s.URL == "" {
			status = SlotNoURL
		}
		resp.Photos = append(resp.Photos, UploadSlotResponse{
			PhotoID:      s.PhotoID,
			Filename:     s.Filename,
			Status:       status,
			PreSignedURL: s.URL,
			ExpiresAt:    s.ExpiresAt,
		})
	}
	c.JSON(http.StatusCreated, resp)
}

// GetStatus returns per photo progress of a diagnosis
func (h *Handler) GetStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	st, err := h.diagnoses.GetStatus(c.Request.Context(), auth.MemberID(c), id)
	if err != nil {
		h.writeError(c, err, "get diagnosis status")
		return
	}

	resp := DiagnosisStatusResponse{
		DiagnosisID: st.DiagnosisID,
		BeehiveID:   st.BeehiveID,
		Status:      int(st.State),
		Finalized:   st.Finalized,
		ImagoCount:  st.ImagoCount,
		LarvaCount:  st.LarvaCount,
		Photos:      make([]PhotoStatusResponse, 0, len(st.Photos)),
	}
	for _, p := range st.Photos {
		resp.Photos = append(resp.Photos, PhotoStatusResponse{
			PhotoID:      p.PhotoID,
			Status:       string(p.Status),
			AnnotatedURL: p.AnnotatedURL,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// GetBatchStates returns the batch state of every requested diagnosis the
// member can see. ids is a comma separated list.
func (h *Handler) GetBatchStates(c *gin.Context) {
	ids, err := parseIDs(c.Query("ids"))
	if err != nil || len(ids) == 0 || len(ids) > maxStatusIDs {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids must list between 1 and " + strconv.Itoa(maxStatusIDs) + " diagnosis ids"})
		return
	}

	states, err := h.diagnoses.GetBatchStates(c.Request.Context(), auth.MemberID(c), ids)
	if err != nil {
		h.writeError(c, err, "get diagnosis statuses")
		return
	}

	resp := make([]BatchStateResponse, 0, len(states))
	for id, st := range states {
		resp = append(resp, BatchStateResponse{DiagnosisID: id, Status: int(st)})
	}
	sort.Slice(resp, func(i, j int) bool { return resp[i].DiagnosisID < resp[j].DiagnosisID })
	c.JSON(http.StatusOK, gin.H{"diagnoses": resp})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func parseIDs(raw string) ([]int64, error) {
	var ids []int64
	seen := map[int64]bool{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, strconv.ErrSyntax
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}
