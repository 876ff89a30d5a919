// Package messages holds the user-facing texts of the bot in every
// supported language.
package messages

import (
	"fmt"
	"strings"
)

// Supported languages
const (
	LangRU = "ru"
	LangEN = "en"

	DefaultLang = LangRU
)

// Key identifies a message template
type Key string

const (
	FreeLimitReached      Key = "free_limit_reached"
	LiteTextLimitReached  Key = "lite_text_limit_reached"
	LitePhotoLimitReached Key = "lite_photo_limit_reached"
	UnknownKind           Key = "unknown_kind"

	StatusPro  Key = "status_pro"
	StatusLite Key = "status_lite"
	StatusFree Key = "status_free"

	Welcome         Key = "welcome"
	Help            Key = "help"
	RefLink         Key = "ref_link"
	ReferrerLinked  Key = "referrer_linked"
	PromoUsage      Key = "promo_usage"
	PromoActivated  Key = "promo_activated"
	PromoRepeated   Key = "promo_repeated"
	PromoUnknown    Key = "promo_unknown"
	OptedIn         Key = "opted_in"
	OptedOut        Key = "opted_out"
	VoiceOn         Key = "voice_on"
	VoiceOff        Key = "voice_off"
	LangChanged     Key = "lang_changed"
	LangUsage       Key = "lang_usage"
	Checkout        Key = "checkout"
	CheckoutNoURL   Key = "checkout_no_url"
	PaymentGranted  Key = "payment_granted"
	ReferralReward  Key = "referral_reward"
	Cooldown        Key = "cooldown"
	RetryLater      Key = "retry_later"
	BookmarkSaved   Key = "bookmark_saved"
	BookmarkNothing Key = "bookmark_nothing"
	BookmarksEmpty  Key = "bookmarks_empty"
	BookmarksHeader Key = "bookmarks_header"
	HistoryCleared  Key = "history_cleared"
)

var catalog = map[string]map[Key]string{
	LangRU: {
		FreeLimitReached: "🚫 Бесплатные лимиты закончились.\n\n" +
			"Оформите подписку, чтобы продолжить:\n" +
			"• LITE — %[1]s / %[5]d дней (до %[3]d текстовых и до %[4]d фото-решений в месяц)\n" +
			"• PRO — %[2]s / %[5]d дней (безлимит + приоритет)\n" +
			"Команды: /buy_lite или /buy_pro",
		LiteTextLimitReached: "🚫 Достигнут лимит LITE по текстовым запросам: %d/%d за месяц.\n\n" +
			"Продлите LITE на следующий месяц или перейдите на PRO (безлимит).\n" +
			"Команды: /buy_lite или /buy_pro",
		LitePhotoLimitReached: "🚫 Достигнут лимит LITE по решениям с фото: %d/%d за месяц.\n\n" +
			"Продлите LITE на следующий месяц или перейдите на PRO (безлимит).\n" +
			"Команды: /buy_lite или /buy_pro",
		UnknownKind: "Неизвестный тип запроса.",

		StatusPro: "📦 План: PRO (активен до %s)\n" +
			"Текстовые запросы: безлимит (использовано %d)\n" +
			"Решения по фото: безлимит (использовано %d)",
		StatusLite: "📦 План: LITE (активен до %s)\n" +
			"Текстовые запросы: %d/%d\n" +
			"Решения по фото: %d/%d",
		StatusFree: "📦 План: FREE\n" +
			"Текстовые запросы: %d/%d\n" +
			"Решения по фото: %d/%d\n\n" +
			"Обновите план: /buy_lite или /buy_pro",

		Welcome:         "👋 Привет! Я помогу с домашним заданием. Пришлите вопрос текстом или фото задачи.\n\n/status — ваш план и лимиты\n/ref — пригласить друзей",
		Help:            "Команды:\n/status — план и лимиты\n/buy_lite, /buy_pro — подписка\n/promo КОД — промокод\n/ref — реферальная ссылка\n/voice_on, /voice_off — озвучка\n/lang ru|en — язык\n/save — сохранить последний ответ\n/bookmarks — закладки\n/reset — очистить историю\n/optout, /optin — рассылки",
		RefLink:         "🔗 Ваша ссылка: %s\nПриглашено: %d, оплатили: %d.\nЗа каждые %d оплативших друзей — %d мес. PRO в подарок.",
		ReferrerLinked:  "Вы пришли по приглашению друга. Добро пожаловать!",
		PromoUsage:      "Использование: /promo КОД",
		PromoActivated:  "🎉 Промокод активирован! PRO до %s.",
		PromoRepeated:   "Этот промокод уже активирован. PRO до %s.",
		PromoUnknown:    "Промокод не найден.",
		OptedIn:         "Вы подписаны на рассылку.",
		OptedOut:        "Вы отписались от рассылки.",
		VoiceOn:         "🔊 Озвучка ответов включена.",
		VoiceOff:        "🔇 Озвучка ответов выключена.",
		LangChanged:     "Язык изменён.",
		LangUsage:       "Использование: /lang ru или /lang en",
		Checkout:        "Оплата %s: %s\nСсылка: %s",
		CheckoutNoURL:   "Оплата %s: %s\nНомер заказа: %s",
		PaymentGranted:  "✅ Оплата получена! План %s активен до %s.",
		ReferralReward:  "🎁 %d ваших друзей оформили подписку! PRO продлён до %s.",
		Cooldown:        "⏳ Подождите пару секунд перед следующим запросом.",
		RetryLater:      "Произошла ошибка. Попробуйте ещё раз чуть позже.",
		BookmarkSaved:   "🔖 Сохранено в закладки.",
		BookmarkNothing: "Пока нечего сохранять.",
		BookmarksEmpty:  "Закладок пока нет.",
		BookmarksHeader: "🔖 Ваши закладки:",
		HistoryCleared:  "История диалога очищена.",
	},
	LangEN: {
		FreeLimitReached: "🚫 Your free limits are used up.\n\n" +
			"Subscribe to continue:\n" +
			"• LITE — %[1]s / %[5]d days (up to %[3]d text and %[4]d photo solutions a month)\n" +
			"• PRO — %[2]s / %[5]d days (unlimited + priority)\n" +
			"Commands: /buy_lite or /buy_pro",
		LiteTextLimitReached: "🚫 LITE text limit reached: %d/%d this month.\n\n" +
			"Renew LITE next month or upgrade to PRO (unlimited).\n" +
			"Commands: /buy_lite or /buy_pro",
		LitePhotoLimitReached: "🚫 LITE photo limit reached: %d/%d this month.\n\n" +
			"Renew LITE next month or upgrade to PRO (unlimited).\n" +
			"Commands: /buy_lite or /buy_pro",
		UnknownKind: "Unknown request type.",

		StatusPro: "📦 Plan: PRO (active until %s)\n" +
			"Text requests: unlimited (used %d)\n" +
			"Photo solutions: unlimited (used %d)",
		StatusLite: "📦 Plan: LITE (active until %s)\n" +
			"Text requests: %d/%d\n" +
			"Photo solutions: %d/%d",
		StatusFree: "📦 Plan: FREE\n" +
			"Text requests: %d/%d\n" +
			"Photo solutions: %d/%d\n\n" +
			"Upgrade: /buy_lite or /buy_pro",

		Welcome:         "👋 Hi! I help with homework. Send a question as text or a photo of the task.\n\n/status — your plan and limits\n/ref — invite friends",
		Help:            "Commands:\n/status — plan and limits\n/buy_lite, /buy_pro — subscribe\n/promo CODE — redeem a promo code\n/ref — referral link\n/voice_on, /voice_off — voice replies\n/lang ru|en — language\n/save — bookmark the last answer\n/bookmarks — bookmarks\n/reset — clear history\n/optout, /optin — announcements",
		RefLink:         "🔗 Your link: %s\nInvited: %d, paid: %d.\nEvery %d paying friends earn you %d month(s) of PRO.",
		ReferrerLinked:  "You joined via a friend's invite. Welcome!",
		PromoUsage:      "Usage: /promo CODE",
		PromoActivated:  "🎉 Promo code activated! PRO until %s.",
		PromoRepeated:   "This promo code is already active. PRO until %s.",
		PromoUnknown:    "Promo code not found.",
		OptedIn:         "You are subscribed to announcements.",
		OptedOut:        "You unsubscribed from announcements.",
		VoiceOn:         "🔊 Voice replies enabled.",
		VoiceOff:        "🔇 Voice replies disabled.",
		LangChanged:     "Language changed.",
		LangUsage:       "Usage: /lang ru or /lang en",
		Checkout:        "Payment for %s: %s\nLink: %s",
		CheckoutNoURL:   "Payment for %s: %s\nOrder id: %s",
		PaymentGranted:  "✅ Payment received! Plan %s is active until %s.",
		ReferralReward:  "🎁 %d of your friends subscribed! PRO extended until %s.",
		Cooldown:        "⏳ Please wait a couple of seconds before the next request.",
		RetryLater:      "Something went wrong. Please try again a bit later.",
		BookmarkSaved:   "🔖 Saved to bookmarks.",
		BookmarkNothing: "Nothing to save yet.",
		BookmarksEmpty:  "No bookmarks yet.",
		BookmarksHeader: "🔖 Your bookmarks:",
		HistoryCleared:  "Conversation history cleared.",
	},
}

// Supported reports whether lang has a catalog
func Supported(lang string) bool {
	_, ok := catalog[normalize(lang)]
	return ok
}

// Get formats the template for key in lang, falling back to DefaultLang.
func Get(lang string, key Key, args ...interface{}) string {
	tmpl, ok := catalog[normalize(lang)][key]
	if !ok {
		tmpl, ok = catalog[DefaultLang][key]
		if !ok {
			return string(key)
		}
	}
	if len(args) == 0 {
		return tmpl
	}
	return fmt.Sprintf(tmpl, args...)
}

func normalize(lang string) string {
	return strings.ToLower(strings.TrimSpace(lang))
}
