package indexing

import (
	"context"
	"encoding/json"
	"errors"

	"chem-rag-api/internal/domain/entity"
	"chem-rag-api/internal/infrastructure/messaging"
	apperrors "chem-rag-api/pkg/errors"
	"chem-rag-api/pkg/logger"
)

// ErrAsyncUnavailable 未配置任务队列
var ErrAsyncUnavailable = apperrors.New(apperrors.CodeServiceUnavailable, "async index build is not available")

// EnqueueBuild 创建索引任务并发布到 Redis Stream，由 job-worker 异步执行
func (s *Service) EnqueueBuild(ctx context.Context, fileID string, recreate bool, batchSize int) (*entity.IndexJob, error) {
	if s.publisher == nil || s.jobs == nil {
		return nil, ErrAsyncUnavailable
	}
	if _, err := s.document(ctx, fileID); err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = s.batchSize
	}

	job := entity.NewIndexJob(fileID, recreate, batchSize)
	ctx = logger.WithContext(logger.WithFileID(ctx, fileID), logger.JobIDKey, job.ID)

	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to create index job")
	}

	msgID, err := s.publisher.PublishIndexBuild(ctx, &messaging.IndexBuildMessage{
		JobID:     job.ID,
		FileID:    fileID,
		Recreate:  recreate,
		BatchSize: batchSize,
	})
	if err != nil {
		job.Fail(err.Error())
		if uerr := s.jobs.Update(ctx, job); uerr != nil {
			logger.Warn(ctx, "failed to mark job failed", "error", uerr)
		}
		return nil, apperrors.Wrap(err, apperrors.CodeCacheError, "failed to enqueue index job")
	}

	logger.Info(ctx, "index job enqueued", "message_id", msgID, "recreate", recreate)
	return job, nil
}

// GetJob 查询任务
func (s *Service) GetJob(ctx context.Context, jobID string) (*entity.IndexJob, error) {
	if s.jobs == nil {
		return nil, ErrAsyncUnavailable
	}
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load job")
	}
	if job == nil {
		return nil, apperrors.ErrJobNotFound.WithDetail(jobID)
	}
	return job, nil
}

// ListJobs 文件最近的索引任务
func (s *Service) ListJobs(ctx context.Context, fileID string, limit int) ([]*entity.IndexJob, error) {
	if s.jobs == nil {
		return nil, ErrAsyncUnavailable
	}
	jobs, err := s.jobs.ListByFile(ctx, fileID, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to list jobs")
	}
	return jobs, nil
}

// permanent 重试也无法成功的错误
func permanent(err error) bool {
	return errors.Is(err, apperrors.ErrNoSegments) ||
		errors.Is(err, apperrors.ErrDocumentNotFound) ||
		errors.Is(err, apperrors.ErrInvalidParam)
}

// HandleIndexBuild job-worker 的消息处理器。
// 返回 error 时消息留在 pending 等待重试，永久性错误只记录任务失败并确认消息。
func (s *Service) HandleIndexBuild(ctx context.Context, msg *messaging.Message) error {
	var payload messaging.IndexBuildMessage
	if err := msg.UnmarshalPayload(&payload); err != nil {
		logger.Warn(ctx, "invalid index build payload", "message_id", msg.ID, "error", err)
		return nil
	}
	ctx = logger.WithContext(logger.WithFileID(ctx, payload.FileID), logger.JobIDKey, payload.JobID)

	job, err := s.jobs.GetByID(ctx, payload.JobID)
	if err != nil {
		return err
	}
	if job == nil {
		// 任务记录丢失时按消息内容补建
		job = entity.NewIndexJob(payload.FileID, payload.Recreate, payload.BatchSize)
		job.ID = payload.JobID
		if err := s.jobs.Create(ctx, job); err != nil {
			return err
		}
	}
	if job.Status == entity.JobStatusCompleted {
		logger.Info(ctx, "index job already completed, skipping")
		return nil
	}

	job.Start()
	if err := s.jobs.Update(ctx, job); err != nil {
		return err
	}

	res, buildErr := s.BuildIndex(ctx, payload.FileID, payload.Recreate, payload.BatchSize)
	if buildErr == nil {
		out, _ := json.Marshal(res)
		job.Complete(out)
		if err := s.jobs.Update(ctx, job); err != nil {
			logger.Warn(ctx, "failed to record job completion", "error", err)
		}
		logger.Info(ctx, "index job completed", "vectors", res.EmbeddedCount, "duration_ms", job.DurationMs)
		return nil
	}

	job.Fail(buildErr.Error())
	retry := !permanent(buildErr) && job.CanRetry(s.maxRetries)
	if retry {
		job.Retry()
		job.ErrorMessage = buildErr.Error()
	}
	if err := s.jobs.Update(ctx, job); err != nil {
		logger.Warn(ctx, "failed to record job failure", "error", err)
	}

	logger.Error(ctx, "index job failed", buildErr, "retry", retry, "retry_count", job.RetryCount)
	if permanent(buildErr) {
		return nil
	}
	return buildErr
}
