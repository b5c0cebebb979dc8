package service

import "github.com/branchline/api/internal/enum"

// Badge is the dashboard presentation of an order status.
type Badge struct {
	Label string `json:"label"`
	Tone  string `json:"tone"`
}

const (
	ToneDefault  = "default"
	ToneWarning  = "warning"
	ToneInfo     = "info"
	ToneSuccess  = "success"
	ToneCritical = "critical"
)

var statusBadges = map[enum.OrderStatus]Badge{
	enum.OrderStatusPending:   {Label: "Pending", Tone: ToneWarning},
	enum.OrderStatusPreparing: {Label: "Preparing", Tone: ToneInfo},
	enum.OrderStatusReady:     {Label: "Ready", Tone: ToneSuccess},
	enum.OrderStatusCompleted: {Label: "Completed", Tone: ToneSuccess},
	enum.OrderStatusCancelled: {Label: "Cancelled", Tone: ToneCritical},
}

var arabicLabels = map[enum.OrderStatus]string{
	enum.OrderStatusPending:   "معلق",
	enum.OrderStatusPreparing: "قيد التحضير",
	enum.OrderStatusReady:     "جاهز",
	enum.OrderStatusCompleted: "مكتمل",
	enum.OrderStatusCancelled: "ملغي",
}

// StatusBadge maps a status to its label and tone. Unknown values render as-is.
func StatusBadge(status string) Badge {
	if b, ok := statusBadges[enum.OrderStatus(status)]; ok {
		return b
	}
	return Badge{Label: status, Tone: ToneDefault}
}

// ArabicLabel returns the Arabic label for status, or status itself when unknown.
func ArabicLabel(status string) string {
	if l, ok := arabicLabels[enum.OrderStatus(status)]; ok {
		return l
	}
	return status
}

// LocalizedBadge is StatusBadge with the label translated for lang ("ar" or default English).
func LocalizedBadge(status, lang string) Badge {
	b := StatusBadge(status)
	if lang == "ar" {
		b.Label = ArabicLabel(status)
	}
	return b
}
