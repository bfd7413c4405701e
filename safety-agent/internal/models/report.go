package models

// Evidence 一次事故采集到的证据（照片 + 录音）
type Evidence struct {
	Photos [][]byte
	Audio  []byte
}

// BranchKind 证据分支类型
type BranchKind string

const (
	BranchPhotos BranchKind = "photos"
	BranchAudio  BranchKind = "audio"
)

// BranchResult 单个采集分支的结果（Photos 或 Audio 二选一）
type BranchResult struct {
	Kind   BranchKind
	Photos [][]byte
	Audio  []byte
}

// IncidentReport 上传到采集服务器的事故报告
// ID 非空时作为 X-Incident-ID 请求头发送，便于服务端去重
type IncidentReport struct {
	ID        string
	Timestamp float64 // Unix 秒
	Location  Location
	Photos    [][]byte
	Audio     []byte
}

// NewIncidentReport 由证据构建报告，证据为空时照片/录音保持为空
func NewIncidentReport(id string, timestamp float64, loc Location, ev Evidence) IncidentReport {
	return IncidentReport{
		ID:        id,
		Timestamp: timestamp,
		Location:  loc,
		Photos:    ev.Photos,
		Audio:     ev.Audio,
	}
}
