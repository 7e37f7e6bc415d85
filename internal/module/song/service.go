package song

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/memora-music/server/internal/module/paywall"
	"github.com/memora-music/server/internal/module/song/provider"
	"github.com/memora-music/server/internal/module/song/task"
	apperrors "github.com/memora-music/server/internal/shared/errors"
	"github.com/memora-music/server/internal/utils/metrics"
)

// Gater is the song module's view of the paywall.
type Gater interface {
	CreationStatus(ctx context.Context, identity paywall.Identity) paywall.Decision
	ResolveFreeUsage(ctx context.Context, identity paywall.Identity) (*paywall.Usage, error)
	HasUnlimitedAccess(ctx context.Context, identity paywall.Identity) (bool, *paywall.Credit)
	ConsumeCredit(ctx context.Context, transactionID string) (paywall.ConsumeResult, error)
	SyncUsageRecords(records []paywall.UsageRecord, newCount int, opts paywall.SyncOptions)
	CreateUsageRecord(ctx context.Context, identity paywall.Identity, count int) error
}

// Archiver stores generated audio for long-term retention.
type Archiver interface {
	Archive(ctx context.Context, key string, body io.Reader, contentType string) error
}

// Service orchestrates song generation behind the paywall.
type Service struct {
	repo     Repository
	gate     Gater
	music    provider.MusicClient
	lyrics   provider.LyricsClient
	tasks    *task.Store
	archiver Archiver
	logger   *zap.Logger
	http     *http.Client
}

// NewService creates the song service. archiver may be nil when no
// object storage is configured.
func NewService(repo Repository, gate Gater, music provider.MusicClient, lyrics provider.LyricsClient, tasks *task.Store, archiver Archiver, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		gate:     gate,
		music:    music,
		lyrics:   lyrics,
		tasks:    tasks,
		archiver: archiver,
		logger:   logger,
		http:     &http.Client{Timeout: 60 * time.Second},
	}
}

// GenerateResult is returned when a generation task is accepted.
type GenerateResult struct {
	TaskID string
	Title  string
	Lyrics string
}

// GenerateInput describes the requested song.
type GenerateInput struct {
	Recipient string
	Occasion  string
	Style     string
	Details   string
	Title     string
	Lyrics    string
	Tags      []string
}

// GeneratePreview gates the request, generates lyrics when none were
// supplied, and starts an asynchronous music generation task.
func (s *Service) GeneratePreview(ctx context.Context, input GenerateInput, identity paywall.Identity) (*GenerateResult, error) {
	decision := s.gate.CreationStatus(ctx, identity)
	if !decision.IsFree && !decision.HasUnlimitedAccess {
		metrics.RecordSongGeneration("blocked")
		return nil, apperrors.QuotaExceeded(paywall.MsgNextSongPaid)
	}

	// Snapshot usage now; it is settled once, when the task completes.
	gate := task.Gate{Identity: identity}
	if usage, err := s.gate.ResolveFreeUsage(ctx, identity); err == nil {
		gate.Records = usage.Records
		gate.FreeSongsUsed = usage.MaxFreeSongs
		gate.UsageResolved = true
	} else {
		s.logger.Warn("usage snapshot failed, settling will be skipped",
			zap.Error(err))
	}
	if decision.HasUnlimitedAccess {
		if ok, credit := s.gate.HasUnlimitedAccess(ctx, identity); ok {
			gate.Unlimited = true
			gate.CreditTransactionID = credit.TransactionID
		}
	}

	title, lyrics := input.Title, input.Lyrics
	if lyrics == "" {
		generated, err := s.lyrics.GenerateLyrics(ctx, provider.LyricsBrief{
			Recipient: input.Recipient,
			Occasion:  input.Occasion,
			Style:     input.Style,
			Details:   input.Details,
		})
		if err != nil {
			metrics.RecordSongGeneration("failed")
			return nil, apperrors.Unavailable("Não foi possível gerar a letra. Tente novamente.", err)
		}
		lyrics = generated.Lyrics
		if title == "" {
			title = generated.Title
		}
	}

	taskID, err := s.music.StartGeneration(ctx, provider.GenerationRequest{
		Title:  title,
		Lyrics: lyrics,
		Style:  input.Style,
		Tags:   input.Tags,
	})
	if err != nil {
		metrics.RecordSongGeneration("failed")
		return nil, apperrors.Unavailable("Serviço de geração indisponível. Tente novamente.", err)
	}

	s.tasks.Put(&task.Task{
		ID:     taskID,
		Status: task.StatusPending,
		Title:  title,
		Style:  input.Style,
		Lyrics: lyrics,
		Gate:   gate,
	})

	metrics.RecordSongGeneration("started")
	s.logger.Info("generation task started",
		zap.String("task_id", taskID),
		zap.String("user_id", identity.UserID))

	return &GenerateResult{TaskID: taskID, Title: title, Lyrics: lyrics}, nil
}

// StatusResult is the state of a generation task.
type StatusResult struct {
	TaskID    string
	Status    task.Status
	Title     string
	Lyrics    string
	AudioURLs []string
	Error     string
}

// CheckStatus polls the provider for an unfinished task and settles
// usage exactly once on completion.
func (s *Service) CheckStatus(ctx context.Context, taskID string) (*StatusResult, error) {
	current, ok := s.tasks.Get(taskID)
	if !ok {
		return nil, ErrTaskNotFound
	}

	if current.Status == task.StatusCompleted || current.Status == task.StatusFailed {
		return statusOf(current), nil
	}

	result, err := s.music.CheckTask(ctx, taskID)
	if err != nil {
		return nil, apperrors.Unavailable("Não foi possível consultar o status da geração.", err)
	}

	switch result.State {
	case provider.TaskCompleted:
		s.completeTask(taskID, result.AudioURLs)
	case provider.TaskFailed:
		s.tasks.Update(taskID, func(t *task.Task) {
			t.Status = task.StatusFailed
			t.Error = result.Error
		})
	default:
		s.tasks.Update(taskID, func(t *task.Task) {
			t.Status = task.StatusProcessing
		})
	}

	current, _ = s.tasks.Get(taskID)
	return statusOf(current), nil
}

func statusOf(t task.Task) *StatusResult {
	return &StatusResult{
		TaskID:    t.ID,
		Status:    t.Status,
		Title:     t.Title,
		Lyrics:    t.Lyrics,
		AudioURLs: t.AudioURLs,
		Error:     t.Error,
	}
}

// completeTask marks the task completed and settles it at most once,
// even under concurrent status polls.
func (s *Service) completeTask(taskID string, audioURLs []string) {
	var settle bool
	var snapshot task.Task
	s.tasks.Update(taskID, func(t *task.Task) {
		t.Status = task.StatusCompleted
		t.AudioURLs = audioURLs
		if !t.Settled {
			t.Settled = true
			settle = true
		}
		snapshot = *t
	})
	if !settle {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	songID := s.persistSong(ctx, snapshot)
	s.settleUsage(ctx, snapshot.Gate)

	if s.archiver != nil && len(audioURLs) > 0 {
		go s.archiveAudio(taskID, songID, audioURLs[0])
	}
}

// persistSong stores the completed song and returns its id, or an
// empty string when the write failed.
func (s *Service) persistSong(ctx context.Context, t task.Task) string {
	record := &Song{
		TaskID: t.ID,
		Title:  t.Title,
		Lyrics: t.Lyrics,
		Style:  t.Style,
	}
	if t.Style != "" {
		record.Tags = []string{t.Style}
	}
	if len(t.AudioURLs) > 0 {
		record.AudioURL = t.AudioURLs[0]
	}
	if t.Gate.Identity.UserID != "" {
		userID := t.Gate.Identity.UserID
		record.UserID = &userID
	}
	if len(t.Gate.Identity.DeviceIDs) > 0 {
		deviceID := t.Gate.Identity.DeviceIDs[0]
		record.DeviceID = &deviceID
	}

	if err := s.repo.Create(ctx, record); err != nil {
		s.logger.Error("persist song failed",
			zap.String("task_id", t.ID),
			zap.Error(err))
		return ""
	}
	return record.ID
}

// settleUsage consumes a paid credit for unlimited users, or bumps the
// free counter across all matched records for everyone else. A first
// song from an untracked device creates its usage record here.
func (s *Service) settleUsage(ctx context.Context, gate task.Gate) {
	if gate.Unlimited && gate.CreditTransactionID != "" {
		result, err := s.gate.ConsumeCredit(ctx, gate.CreditTransactionID)
		if err != nil {
			s.logger.Error("credit consumption failed",
				zap.String("transaction_id", gate.CreditTransactionID),
				zap.Error(err))
			return
		}
		if !result.Success {
			s.logger.Warn("credit already consumed",
				zap.String("transaction_id", gate.CreditTransactionID))
		}
		return
	}

	// Without a usage snapshot nothing is written; the snapshot
	// failure was already logged when the task started.
	if !gate.UsageResolved {
		return
	}

	if len(gate.Records) == 0 {
		if err := s.gate.CreateUsageRecord(ctx, gate.Identity, gate.FreeSongsUsed+1); err != nil {
			s.logger.Error("usage record creation failed",
				zap.Strings("device_ids", gate.Identity.DeviceIDs),
				zap.Error(err))
		}
		return
	}

	s.gate.SyncUsageRecords(gate.Records, gate.FreeSongsUsed+1, paywall.SyncOptions{
		UserID:     gate.Identity.UserID,
		LastUsedIP: gate.Identity.ClientIP,
	})
}

// archiveAudio downloads the preview audio, stores a durable copy and
// records the storage key on the song row.
func (s *Service) archiveAudio(taskID, songID, audioURL string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		s.logger.Warn("archive request build failed", zap.Error(err))
		return
	}
	resp, err := s.http.Do(req)
	if err != nil {
		s.logger.Warn("archive download failed",
			zap.String("task_id", taskID),
			zap.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		s.logger.Warn("archive download failed",
			zap.String("task_id", taskID),
			zap.Int("status", resp.StatusCode))
		return
	}

	key := fmt.Sprintf("songs/%s/preview.mp3", taskID)
	if err := s.archiver.Archive(ctx, key, resp.Body, "audio/mpeg"); err != nil {
		s.logger.Warn("archive upload failed",
			zap.String("task_id", taskID),
			zap.Error(err))
		return
	}

	if songID == "" {
		return
	}
	if err := s.repo.SetArchiveKey(ctx, songID, key); err != nil {
		s.logger.Warn("archive key persist failed",
			zap.String("song_id", songID),
			zap.String("key", key),
			zap.Error(err))
	}
}

// ListSongs lists persisted songs for the identity.
func (s *Service) ListSongs(ctx context.Context, identity paywall.Identity) ([]Song, error) {
	return s.repo.ListByIdentity(ctx, identity.UserID, identity.DeviceIDs)
}
