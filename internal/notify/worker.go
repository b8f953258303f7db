package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
)

// Sender delivers one text message to a chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Opener decrypts sealed payloads.
type Opener interface {
	Open(sealed []byte) ([]byte, error)
}

// MessageWorker sends MessageArgs jobs. Attempt n is retried after 2^n
// seconds; after MaxAttempts the failure is only logged.
type MessageWorker struct {
	river.WorkerDefaults[MessageArgs]
	sender Sender
	opener Opener
	log    *slog.Logger
}

func NewMessageWorker(sender Sender, opener Opener, log *slog.Logger) *MessageWorker {
	if log == nil {
		log = slog.Default()
	}
	return &MessageWorker{sender: sender, opener: opener, log: log}
}

func (w *MessageWorker) Work(ctx context.Context, job *river.Job[MessageArgs]) error {
	args := job.Args

	text := args.Text
	if len(args.SealedText) > 0 {
		if w.opener == nil {
			return w.giveUp(job, errors.New("sealed message but no opener configured"))
		}
		plain, err := w.opener.Open(args.SealedText)
		if err != nil {
			return w.giveUp(job, fmt.Errorf("open sealed text: %w", err))
		}
		text = text + "\n" + string(plain)
	}

	err := w.sender.Send(ctx, args.ChatID, text)
	if err == nil {
		return nil
	}
	var perm *PermanentError
	if errors.As(err, &perm) {
		return w.giveUp(job, err)
	}
	if job.Attempt >= job.MaxAttempts {
		w.log.Error("message delivery failed, giving up", "chat_id", args.ChatID, "attempts", job.Attempt, "error", err)
	}
	return fmt.Errorf("send message to %d: %w", args.ChatID, err)
}

// NextRetry overrides River's default backoff.
func (w *MessageWorker) NextRetry(job *river.Job[MessageArgs]) time.Time {
	return time.Now().Add(Backoff(job.Attempt))
}

// Backoff returns 2^attempt seconds.
func Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 10 {
		attempt = 10
	}
	return time.Duration(1<<attempt) * time.Second
}

func (w *MessageWorker) giveUp(job *river.Job[MessageArgs], err error) error {
	w.log.Error("message delivery cancelled", "chat_id", job.Args.ChatID, "attempt", job.Attempt, "error", err)
	return river.JobCancel(err)
}
