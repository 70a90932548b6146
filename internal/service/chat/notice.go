package chat

import (
	"fmt"
	"time"

	"github.com/zhouzirui/med-chat/backend/internal/analysis/failure"
)

// Assistant-role texts appended to the transcript when an exchange fails.
const (
	ConnectionErrorReply = "عذراً، حدث خطأ في الاتصال بالخادم. يرجى التحقق من اتصالك بالإنترنت والمحاولة مرة أخرى."
	QuotaReply           = "عذراً، حدثت مشكلة في معالجة طلبك بسبب قيود الاعتمادات أو حد الرموز. يرجى تقصير سؤالك أو المحاولة مرة أخرى لاحقاً."
	RequestFailedReply   = "عذراً، حدث خطأ في معالجة طلبك. يرجى المحاولة مرة أخرى."
	ResponseFailedReply  = "عذراً، حدث خطأ في معالجة الاستجابة. يرجى المحاولة مرة أخرى."
)

const (
	rejectionNoticeTTL = 7 * time.Second
	defaultNoticeTTL   = 5 * time.Second
)

// Notice is a transient, auto-dismissing alert carrying a diagnostic excerpt.
type Notice struct {
	Kind        failure.Kind  `json:"kind"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Status      int           `json:"status,omitempty"`
	Duration    time.Duration `json:"-"`
	DurationMs  int64         `json:"durationMs"`
}

func newNotice(kind failure.Kind, status int, title, description string, ttl time.Duration) *Notice {
	return &Notice{
		Kind:        kind,
		Title:       title,
		Description: description,
		Status:      status,
		Duration:    ttl,
		DurationMs:  ttl.Milliseconds(),
	}
}

func transportNotice(err error) *Notice {
	description := "حدث خطأ غير متوقع أثناء الاتصال بالخادم"
	if err != nil && err.Error() != "" {
		description = err.Error()
	}
	return newNotice(failure.Transport, 0, "فشل الاتصال بالخادم.", description, defaultNoticeTTL)
}

func rejectionNotice(kind failure.Kind, ev failure.Evidence) *Notice {
	if kind == failure.QuotaOrLimit {
		return newNotice(kind, ev.Status,
			"خطأ في الاعتمادات أو حد الرموز",
			"تم تجاوز حد الاعتمادات أو الرموز المسموح بها. سنحاول تقليل حجم الطلب.",
			rejectionNoticeTTL)
	}

	description := fmt.Sprintf("تفاصيل: %s...", failure.Excerpt(ev.Body, 100))
	if ev.HasMessage() {
		description = failure.Excerpt(ev.Message, 150)
	}
	return newNotice(kind, ev.Status, fmt.Sprintf("خطأ في الاتصال: %d", ev.Status), description, rejectionNoticeTTL)
}

func malformedNotice(kind failure.Kind, ev failure.Evidence) *Notice {
	reason := "لم يتم العثور على محتوى الرسالة في الاستجابة"
	if kind == failure.QuotaOrLimit {
		reason = "تم تجاوز حد الاعتمادات أو الرموز المسموح بها"
	}
	return newNotice(kind, ev.Status,
		"حدث خطأ في الرد من الذكاء الاصطناعي.",
		fmt.Sprintf("%s: %s...", reason, failure.Excerpt(ev.Body, 100)),
		defaultNoticeTTL)
}

func rejectionReply(kind failure.Kind) string {
	if kind == failure.QuotaOrLimit {
		return QuotaReply
	}
	return RequestFailedReply
}

func malformedReply(kind failure.Kind, ev failure.Evidence) string {
	switch {
	case kind == failure.QuotaOrLimit:
		return QuotaReply
	case ev.HasMessage():
		return RequestFailedReply
	default:
		return ResponseFailedReply
	}
}
