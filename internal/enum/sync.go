package enum

type SyncResult string

const (
	SyncResultSynced  SyncResult = "synced"
	SyncResultSkipped SyncResult = "skipped"
	SyncResultError   SyncResult = "error"
)

func (t SyncResult) String() string {
	return string(t)
}

type SyncPhase string

const (
	PhaseEnumeratingFolders SyncPhase = "enumerating_folders"
	PhaseSyncingFolder      SyncPhase = "syncing_folder"
	PhaseDateFallback       SyncPhase = "date_fallback"
	PhaseCompleted          SyncPhase = "completed"
)

func (t SyncPhase) String() string {
	return string(t)
}

type QuarantineReason string

const (
	QuarantineRemoteDeleted QuarantineReason = "remote_deleted"
)

func (t QuarantineReason) String() string {
	return string(t)
}
