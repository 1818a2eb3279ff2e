package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"termin/internal/database"
	"termin/internal/domain"
	"termin/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	TaskCalendar = "calendar"
	TaskMeeting  = "meeting"
)

// SyncWorker replays failed external propagation. Tasks are persisted in the
// sync_queue table; Redis carries the hot queue when available so tasks are
// picked up without polling.
type SyncWorker struct {
	db            *database.DB
	calendar      domain.CalendarAdapter
	meetings      domain.MeetingAdapter
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.SyncTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

// NewSyncWorker builds a worker with sane defaults.
func NewSyncWorker(db *database.DB, calendar domain.CalendarAdapter, meetings domain.MeetingAdapter, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *SyncWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 1 * time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}

	return &SyncWorker{
		db:            db,
		calendar:      calendar,
		meetings:      meetings,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan models.SyncTask, models.WorkerQueueSize),
		redisQueueKey: "sync:queue",
		deadLetterKey: "sync:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        logger,
	}
}

// EnqueueTask persists the task and schedules it via redis or the in-memory
// queue. The appointment snapshot travels in the payload for diagnostics;
// processing always re-reads the current record.
func (w *SyncWorker) EnqueueTask(ctx context.Context, taskType, token string, appt *models.Appointment) error {
	if taskType != TaskCalendar && taskType != TaskMeeting {
		return fmt.Errorf("unknown task type: %s", taskType)
	}
	if token == "" {
		return errors.New("token is required")
	}

	payloadBytes, err := json.Marshal(appt)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	syncTask := models.SyncTask{
		TaskType:  taskType,
		Token:     token,
		Payload:   string(payloadBytes),
		Status:    "pending",
		CreatedAt: time.Now(),
	}

	if err := w.db.CreateSyncTask(ctx, &syncTask); err != nil {
		return fmt.Errorf("persist sync task: %w", err)
	}

	// Redis first so a waiting worker picks it up immediately.
	if w.redis != nil {
		if err := w.pushRedis(ctx, syncTask); err != nil {
			w.logger.Warn().Err(err).Msg("redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- syncTask:
	default:
		w.logger.Warn().Int64("task_id", syncTask.ID).Msg("in-memory queue full, task left to polling")
	}

	return nil
}

// Start launches the main loop; stops when ctx is done.
func (w *SyncWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("sync worker started")
	defer w.logger.Info().Msg("sync worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		tasks, err := w.db.GetPendingSyncTasks(ctx, w.batchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("fetch pending sync tasks failed")
			time.Sleep(w.pollInterval)
			continue
		}
		if len(tasks) == 0 {
			time.Sleep(w.pollInterval)
			continue
		}

		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

func (w *SyncWorker) tryLocalQueue() (models.SyncTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.SyncTask{}, false
	}
}

func (w *SyncWorker) tryRedis(ctx context.Context) (models.SyncTask, bool) {
	if w.redis == nil {
		return models.SyncTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, redis.Nil) {
			return models.SyncTask{}, false
		}
		w.logger.Error().Err(err).Msg("redis BRPOP error")
		return models.SyncTask{}, false
	}
	if len(res) != 2 {
		return models.SyncTask{}, false
	}
	var task models.SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode redis task failed")
		return models.SyncTask{}, false
	}
	return task, true
}

func (w *SyncWorker) processTask(ctx context.Context, task *models.SyncTask) {
	appt, err := w.db.GetAppointmentByToken(ctx, task.Token)
	if errors.Is(err, database.ErrNotFound) {
		// Appointment was deleted; nothing left to sync.
		w.complete(ctx, task)
		return
	}
	if err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.replay(ctx, task.TaskType, appt); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.db.SetSyncStatus(ctx, appt.Token, task.TaskType, models.SyncOK); err != nil {
		w.logger.Error().Err(err).Str("token", appt.Token).Msg("clear sync status failed")
	}
	w.complete(ctx, task)
}

// replay re-applies the current appointment state to one external provider.
func (w *SyncWorker) replay(ctx context.Context, taskType string, appt *models.Appointment) error {
	switch taskType {
	case TaskCalendar:
		if w.calendar == nil || !w.calendar.IsConfigured() {
			return nil
		}
		if appt.Status == models.StatusCancelled {
			if appt.CalendarEventID == "" {
				return nil
			}
			return w.calendar.DeleteEvent(ctx, appt.CalendarEventID)
		}
		if appt.CalendarEventID == "" {
			eventID, err := w.calendar.CreateEvent(ctx, appt)
			if err != nil {
				return err
			}
			appt.CalendarEventID = eventID
			return w.db.SetExternalRefs(ctx, appt.Token, appt)
		}
		return w.calendar.UpdateEvent(ctx, appt.CalendarEventID, appt)

	case TaskMeeting:
		if w.meetings == nil || !w.meetings.IsConfigured() {
			return nil
		}
		if appt.Status == models.StatusCancelled {
			if appt.ZoomMeetingID == "" {
				return nil
			}
			return w.meetings.CancelMeeting(ctx, appt.ZoomMeetingID)
		}
		if appt.ZoomMeetingID == "" {
			meeting, err := w.meetings.CreateMeeting(ctx, appt)
			if err != nil {
				return err
			}
			appt.ZoomMeetingID = meeting.ID
			appt.ZoomJoinURL = meeting.JoinURL
			appt.ZoomPassword = meeting.Password
			return w.db.SetExternalRefs(ctx, appt.Token, appt)
		}
		return w.meetings.UpdateMeeting(ctx, appt.ZoomMeetingID, appt)

	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}
}

func (w *SyncWorker) complete(ctx context.Context, task *models.SyncTask) {
	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, "completed", "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark completed failed")
	}
}

func (w *SyncWorker) retryOrFail(ctx context.Context, task *models.SyncTask, cause error) {
	attempt := task.RetryCount + 1
	if attempt >= w.retryPolicy.MaxRetries {
		if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, "failed", cause.Error(), nil); err != nil {
			w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark failed failed")
		}
		w.pushDeadLetter(ctx, task)
		return
	}

	nextTime := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, "retry", cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark retry failed")
	}
}

func (w *SyncWorker) pushRedis(ctx context.Context, task models.SyncTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *SyncWorker) pushDeadLetter(ctx context.Context, task *models.SyncTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("encode deadletter failed")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("deadletter push failed")
	}
}
