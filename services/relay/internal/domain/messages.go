package domain

import "net/http"

// User-facing replies. The chat surface is Arabic (Egyptian dialect).
const (
	MsgInvalidMessage   = "عذراً، لم أستطع فهم رسالتك. حاول مرة أخرى."
	MsgInvalidRequest   = "عذراً، لم أستطع فهم طلبك. حاول مرة أخرى."
	MsgTimeout          = "عذراً، استغرق الرد وقتاً أطول من المتوقع. حاول مرة أخرى."
	MsgUnreachable      = "عذراً، الخدمة غير متاحة حالياً. يرجى المحاولة مرة أخرى لاحقاً."
	MsgNotFound         = "عذراً، خدمة الدردشة غير متاحة حالياً. يرجى التواصل مع الدعم الفني."
	MsgTooManyRequests  = "عذراً، كثرة الطلبات. انتظر قليلاً ثم حاول مرة أخرى."
	MsgServerError      = "عذراً، الخدمة غير متاحة حالياً. حاول مرة أخرى لاحقاً."
	MsgConnectionError  = "عذراً، حدث خطأ في الاتصال. حاول مرة أخرى."
	MsgInternal         = "عذراً، حدث خطأ في معالجة طلبك. حاول مرة أخرى لاحقاً."
	MsgStrictFallback   = "أهلاً بك! عذراً، كان هناك خطأ في المعالجة. حاول مرة أخرى."
	MsgMethodNotAllowed = "عذراً، هذه الطريقة غير مسموحة."
	MsgProcessing       = "جاري معالجة طلبك... سأرد عليك في لحظات."
	MsgSessionRequired  = "Session ID is required"
)

// FriendlyFallbacks replace an empty reply on UI-facing routes.
var FriendlyFallbacks = []string{
	"أهلاً بك! عذراً للانتظار. إيه اللي تحب تطلبه من المطعم؟",
	"مرحباً! أنا مُجيب وجاهز أساعدك في طلبك. إيه اللي نقدر نعمله لك؟",
	"أهلاً وسهلاً! نورت المطعم. قول لي عايز تطلب إيه وهاساعدك.",
	"حياك الله! أنا هنا عشان آخذ أوردرك. إيه اللي تحب تاكله النهاردة؟",
}

// MessageForStatus maps a non-2xx upstream status to its reply.
func MessageForStatus(code int) string {
	switch {
	case code == http.StatusNotFound:
		return MsgNotFound
	case code == http.StatusTooManyRequests:
		return MsgTooManyRequests
	case code >= 500:
		return MsgServerError
	default:
		return MsgConnectionError
	}
}

// MessageForKind maps a failure kind to its reply.
func MessageForKind(kind ErrorKind) string {
	switch kind {
	case KindValidation:
		return MsgInvalidMessage
	case KindTimeout:
		return MsgTimeout
	case KindConnection:
		return MsgUnreachable
	case KindUpstreamHTTP:
		return MsgConnectionError
	default:
		return MsgInternal
	}
}
