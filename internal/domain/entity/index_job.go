package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobType 任务类型
type JobType string

const (
	JobTypeIndexBuild   JobType = "index_build"
	JobTypeIndexRebuild JobType = "index_rebuild"
)

// JobStatus 任务状态
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IndexJob 异步索引构建任务
type IndexJob struct {
	ID           string          `json:"id" gorm:"primaryKey;type:varchar(64)"`
	FileID       string          `json:"file_id" gorm:"type:varchar(64);index"`
	JobType      JobType         `json:"job_type" gorm:"type:varchar(32)"`
	Status       JobStatus       `json:"status" gorm:"type:varchar(16);index"`
	BatchSize    int             `json:"batch_size"`
	OutputResult json.RawMessage `json:"output_result,omitempty" gorm:"type:jsonb"`
	ErrorMessage string          `json:"error_message,omitempty" gorm:"type:text"`
	RetryCount   int             `json:"retry_count"`
	Progress     int             `json:"progress"` // 任务进度 (0-100)
	DurationMs   int             `json:"duration_ms,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// TableName gorm 表名
func (IndexJob) TableName() string { return "index_jobs" }

// NewIndexJob 创建新任务
func NewIndexJob(fileID string, recreate bool, batchSize int) *IndexJob {
	jobType := JobTypeIndexBuild
	if recreate {
		jobType = JobTypeIndexRebuild
	}
	return &IndexJob{
		ID:        uuid.NewString(),
		FileID:    fileID,
		JobType:   jobType,
		Status:    JobStatusPending,
		BatchSize: batchSize,
		CreatedAt: time.Now(),
	}
}

// Recreate 是否为重建任务
func (j *IndexJob) Recreate() bool {
	return j.JobType == JobTypeIndexRebuild
}

// Start 开始执行任务
func (j *IndexJob) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.CompletedAt = nil
	j.ErrorMessage = ""
}

// Complete 完成任务
func (j *IndexJob) Complete(result json.RawMessage) {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.OutputResult = result
	j.Progress = 100
	j.CompletedAt = &now
	if j.StartedAt != nil {
		j.DurationMs = int(now.Sub(*j.StartedAt).Milliseconds())
	}
}

// Fail 任务失败
func (j *IndexJob) Fail(errMsg string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.CompletedAt = &now
	if j.StartedAt != nil {
		j.DurationMs = int(now.Sub(*j.StartedAt).Milliseconds())
	}
}

// Retry 重试任务
func (j *IndexJob) Retry() {
	j.RetryCount++
	j.Status = JobStatusPending
	j.StartedAt = nil
	j.CompletedAt = nil
	j.ErrorMessage = ""
}

// CanRetry 检查是否可以重试
func (j *IndexJob) CanRetry(maxRetries int) bool {
	return j.RetryCount < maxRetries && j.Status == JobStatusFailed
}

// UpdateProgress 更新任务进度
func (j *IndexJob) UpdateProgress(progress int) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	j.Progress = progress
}
