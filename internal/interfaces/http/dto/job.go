// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"encoding/json"
	"time"

	"chem-rag-api/internal/domain/entity"
)

// JobResponse 索引任务响应
type JobResponse struct {
	ID          string          `json:"job_id"`
	FileID      string          `json:"file_id"`
	JobType     string          `json:"job_type"`
	Status      string          `json:"status"`
	BatchSize   int             `json:"batch_size"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorMsg    string          `json:"error_msg,omitempty"`
	RetryCount  int             `json:"retry_count"`
	Progress    int             `json:"progress"`
	DurationMs  int             `json:"duration_ms,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// JobListResponse 任务列表响应
type JobListResponse struct {
	Jobs []*JobResponse `json:"jobs"`
}

// ToJobResponse 将领域实体转换为响应 DTO
func ToJobResponse(j *entity.IndexJob) *JobResponse {
	if j == nil {
		return nil
	}
	return &JobResponse{
		ID:          j.ID,
		FileID:      j.FileID,
		JobType:     string(j.JobType),
		Status:      string(j.Status),
		BatchSize:   j.BatchSize,
		Result:      j.OutputResult,
		ErrorMsg:    j.ErrorMessage,
		RetryCount:  j.RetryCount,
		Progress:    j.Progress,
		DurationMs:  j.DurationMs,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

// ToJobListResponse 转换任务列表
func ToJobListResponse(jobs []*entity.IndexJob) *JobListResponse {
	out := &JobListResponse{Jobs: make([]*JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		out.Jobs = append(out.Jobs, ToJobResponse(j))
	}
	return out
}
