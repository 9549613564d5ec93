package retry

import "strings"

// Class is the retry classification of a failure message.
type Class int

const (
	ClassUnknown Class = iota
	ClassRetryable
	ClassPermanent
)

func (c Class) String() string {
	switch c {
	case ClassRetryable:
		return "retryable"
	case ClassPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Checked before retryablePatterns.
var permanentPatterns = []string{
	"not found",
	"404",
	"private",
	"unavailable",
	"removed",
	"deleted",
	"blocked",
	"age restricted",
	"age-restricted",
	"geo restricted",
	"copyright",
	"members only",
	"available to members",
	"sign in",
	"login required",
	"invalid url",
	"unsupported url",
}

var retryablePatterns = []string{
	"timeout",
	"timed out",
	"read timeout",
	"write timeout",
	"connection reset",
	"connection refused",
	"connection error",
	"temporary failure",
	"429",
	"too many requests",
	"503",
	"service unavailable",
	"network",
	"ssl error",
}

// Classify maps an error message to a Class by case-insensitive substring
// match. Permanent patterns win over retryable ones.
func Classify(msg string) Class {
	if msg == "" {
		return ClassUnknown
	}
	lower := strings.ToLower(msg)
	for _, p := range permanentPatterns {
		if strings.Contains(lower, p) {
			return ClassPermanent
		}
	}
	for _, p := range retryablePatterns {
		if strings.Contains(lower, p) {
			return ClassRetryable
		}
	}
	return ClassUnknown
}

// ClassifyError classifies err.Error(); nil is Unknown.
func ClassifyError(err error) Class {
	if err == nil {
		return ClassUnknown
	}
	return Classify(err.Error())
}
