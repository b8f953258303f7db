// Package notify delivers chat messages to account holders through River
// jobs, so a delivery survives restarts and is retried with backoff.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/shopspring/decimal"

	"github.com/RezaTaheri01/telegram-store-bot/internal/models"
)

// MaxAttempts bounds delivery attempts per message.
const MaxAttempts = 4

// MessageArgs is one chat message. SealedText is an encrypted suffix
// (an item payload) that is only opened by the worker at send time.
type MessageArgs struct {
	ChatID     int64  `json:"chat_id"`
	Text       string `json:"text"`
	SealedText []byte `json:"sealed_text,omitempty"`
}

func (MessageArgs) Kind() string { return "telegram_message" }

func (MessageArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: MaxAttempts}
}

// Inserter enqueues jobs (satisfied by *river.Client).
type Inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// LanguageSource resolves the account's chat language.
type LanguageSource interface {
	Language(ctx context.Context, accountID int64) (string, error)
}

// Queue builds localized messages and enqueues them.
type Queue struct {
	inserter  Inserter
	languages LanguageSource
	log       *slog.Logger
}

func NewQueue(inserter Inserter, languages LanguageSource, log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}
	return &Queue{inserter: inserter, languages: languages, log: log}
}

// DepositCredited tells the account holder their balance went up by amount.
func (q *Queue) DepositCredited(ctx context.Context, accountID int64, amount decimal.Decimal, unit string) error {
	text := render(q.language(ctx, accountID), msgCharged, amount.StringFixed(2), unit)
	return q.enqueue(ctx, MessageArgs{ChatID: accountID, Text: text})
}

// ItemDelivered sends the purchased item's sealed payload to the buyer.
func (q *Queue) ItemDelivered(ctx context.Context, accountID int64, product *models.Product, sealed []byte) error {
	lang := q.language(ctx, accountID)
	text := render(lang, msgDelivered, product.DisplayName(lang))
	return q.enqueue(ctx, MessageArgs{ChatID: accountID, Text: text, SealedText: sealed})
}

func (q *Queue) enqueue(ctx context.Context, args MessageArgs) error {
	if _, err := q.inserter.Insert(ctx, args, nil); err != nil {
		return fmt.Errorf("enqueue message for %d: %w", args.ChatID, err)
	}
	return nil
}

func (q *Queue) language(ctx context.Context, accountID int64) string {
	if q.languages == nil {
		return models.LangEnglish
	}
	lang, err := q.languages.Language(ctx, accountID)
	if err != nil {
		q.log.Warn("account language lookup failed", "account_id", accountID, "error", err)
		return models.LangEnglish
	}
	return lang
}
