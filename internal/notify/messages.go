package notify

import (
	"fmt"

	"github.com/RezaTaheri01/telegram-store-bot/internal/models"
)

type messageKey int

const (
	msgCharged messageKey = iota
	msgDelivered
)

var catalog = map[string][2]string{
	models.LangEnglish: {
		msgCharged:   "Your account has been successfully charged %s %s",
		msgDelivered: "Successful\n%s",
	},
	models.LangFarsi: {
		msgCharged:   "حساب شما با موفقیت به مقدار %s %s شارژ شد",
		msgDelivered: "موفقیت ‌آمیز\n%s",
	},
}

// render formats key in lang, falling back to English.
func render(lang string, key messageKey, args ...any) string {
	texts, ok := catalog[lang]
	if !ok {
		texts = catalog[models.LangEnglish]
	}
	return fmt.Sprintf(texts[key], args...)
}
