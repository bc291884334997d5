package domain

// BatchState summarizes the photo statuses of a diagnosis for clients.
type BatchState int

const (
	BatchInProgress BatchState = 0
	BatchDone       BatchState = 1
	BatchFailed     BatchState = 2
)

func (b BatchState) String() string {
	switch b {
	case BatchInProgress:
		return "IN_PROGRESS"
	case BatchDone:
		return "DONE"
	case BatchFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// SummarizeBatch: any FAIL or UNRECEIVED wins, then any WAITING or ANALYZING.
func SummarizeBatch(statuses []PhotoStatus) BatchState {
	inProgress := false
	for _, s := range statuses {
		switch s {
		case PhotoFail, PhotoUnreceived:
			return BatchFailed
		case PhotoWaiting, PhotoAnalyzing:
			inProgress = true
		}
	}
	if inProgress {
		return BatchInProgress
	}
	return BatchDone
}

// Dispatchable reports whether the photo can be handed to an analysis worker.
func (p OriginalPhoto) Dispatchable() bool {
	return p.Status == PhotoWaiting && p.FileStored
}

// settled reports whether the photo no longer blocks the batch from starting.
func (p OriginalPhoto) settled() bool {
	return p.FileStored || p.Status.IsTerminal()
}

// ReadyForAnalysis reports whether every photo of the batch is stored (or was
// given up on) and at least one of them still waits for analysis.
func ReadyForAnalysis(photos []OriginalPhoto) bool {
	if len(photos) == 0 {
		return false
	}
	dispatchable := false
	for _, p := range photos {
		if !p.settled() {
			return false
		}
		if p.Dispatchable() {
			dispatchable = true
		}
	}
	return dispatchable
}

// RecoverableRun reports whether a diagnosis can be run again after its run
// was lost: every photo is settled and at least one was or can be analyzed.
// A batch that was entirely given up on is not recoverable.
func RecoverableRun(photos []OriginalPhoto) bool {
	analyzable := false
	for _, p := range photos {
		if !p.settled() {
			return false
		}
		switch {
		case p.Dispatchable(), p.Status == PhotoSuccess, p.Status == PhotoFail:
			analyzable = true
		}
	}
	return analyzable
}
