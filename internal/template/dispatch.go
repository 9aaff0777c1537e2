package template

import (
	"fmt"

	"github.com/fitreserve/mailroom/internal/db"
)

// Renderer turns a typed data bag into a complete HTML document. It
// errors when handed the wrong data type for its email type.
type Renderer func(data any) (string, error)

func typed[T any](name string, fn func(T) (string, error)) Renderer {
	return func(data any) (string, error) {
		v, ok := data.(T)
		if !ok {
			return "", fmt.Errorf("%s: unexpected data type %T", name, data)
		}
		return fn(v)
	}
}

// renderers is the closed dispatch table from email type to renderer.
// Types with no template (contact_form, other) deliver caller-supplied
// HTML and have no entry.
var renderers = map[db.EmailType]Renderer{
	db.TypeBookingConfirmation: typed("booking_confirmation", RenderBookingConfirmation),
	db.TypeBookingReminder:     typed("booking_reminder", RenderBookingReminder),
	db.TypeEventReminder:       typed("event_reminder", RenderBookingReminder),
	db.TypePaymentReceipt:      typed("payment_receipt", RenderPaymentReceipt),
	db.TypePaymentFailed:       typed("payment_failed", RenderPaymentFailed),
	db.TypePartnerApproval:     typed("partner_approval", RenderPartnerApproval),
	db.TypePartnerRejection:    typed("partner_rejection", RenderPartnerRejection),
	db.TypeAdminAlert:          typed("admin_alert", RenderAdminAlert),
	db.TypeVerification:        typed("verification", RenderVerification),
	db.TypeWelcome:             typed("welcome", RenderWelcome),
	db.TypePromotional:         typed("promotional", RenderPromotional),
}

// ForType looks up the renderer for an email type.
func ForType(t db.EmailType) (Renderer, bool) {
	r, ok := renderers[t]
	return r, ok
}
