// Package template renders complete HTML email documents from typed
// data. Renderers are pure apart from the layout footer timestamp: no
// store access, no network, Thai-locale formatting throughout.
package template

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"time"
)

var funcMap = htmltemplate.FuncMap{
	"thaiDate":     FormatThaiDate,
	"thaiDateTime": FormatThaiDateTime,
	"baht":         FormatBaht,
}

var bodyTmpls = htmltemplate.Must(htmltemplate.New("bodies").Funcs(funcMap).Parse(`
{{define "booking_confirmation"}}
<h1 style="margin:0 0 16px;font-size:20px;color:#111827;">ยืนยันการจองเรียบร้อยแล้ว</h1>
<p style="color:#374151;">สวัสดีคุณ{{.CustomerName}}</p>
<p style="color:#374151;">การจองของคุณได้รับการยืนยันแล้ว รายละเอียดดังนี้</p>
<table role="presentation" width="100%" cellpadding="6" cellspacing="0" style="background-color:#f9fafb;border-radius:6px;color:#374151;font-size:14px;">
<tr><td>หมายเลขการจอง</td><td align="right"><strong>{{.BookingNumber}}</strong></td></tr>
<tr><td>ยิม</td><td align="right">{{.GymName}}</td></tr>
<tr><td>แพ็กเกจ</td><td align="right">{{.PackageName}}</td></tr>
<tr><td>เริ่มใช้งาน</td><td align="right">{{thaiDate .StartDate}}</td></tr>
<tr><td>สิ้นสุด</td><td align="right">{{thaiDate .EndDate}}</td></tr>
<tr><td>ยอดชำระ</td><td align="right"><strong>{{baht .Amount}}</strong></td></tr>
</table>
<p style="color:#374151;">แสดงหมายเลขการจองที่เคาน์เตอร์ยิมในวันแรกที่เข้าใช้บริการ</p>
{{end}}

{{define "booking_reminder"}}
<h1 style="margin:0 0 16px;font-size:20px;color:#111827;">แจ้งเตือนการจองของคุณ</h1>
<p style="color:#374151;">สวัสดีคุณ{{.CustomerName}}</p>
<p style="color:#374151;">การจอง <strong>{{.BookingNumber}}</strong> ที่ {{.GymName}} จะเริ่มในวันที่ {{thaiDate .StartDate}}</p>
<p style="color:#374151;">อย่าลืมเตรียมตัวให้พร้อม แล้วพบกันที่ยิม!</p>
{{end}}

{{define "payment_receipt"}}
<h1 style="margin:0 0 16px;font-size:20px;color:#111827;">ใบเสร็จรับเงิน</h1>
<p style="color:#374151;">เราได้รับการชำระเงินของคุณเรียบร้อยแล้ว</p>
<table role="presentation" width="100%" cellpadding="6" cellspacing="0" style="background-color:#f9fafb;border-radius:6px;color:#374151;font-size:14px;">
<tr><td>เลขที่ใบเสร็จ</td><td align="right"><strong>{{.ReceiptNumber}}</strong></td></tr>
<tr><td>หมายเลขการจอง</td><td align="right">{{.BookingNumber}}</td></tr>
<tr><td>ช่องทางชำระ</td><td align="right">{{.PaymentMethod}}</td></tr>
<tr><td>วันที่ชำระ</td><td align="right">{{thaiDateTime .PaidAt}}</td></tr>
<tr><td>จำนวนเงิน</td><td align="right"><strong>{{baht .Amount}}</strong></td></tr>
</table>
{{end}}

{{define "payment_failed"}}
<h1 style="margin:0 0 16px;font-size:20px;color:#b91c1c;">การชำระเงินไม่สำเร็จ</h1>
<p style="color:#374151;">การชำระเงินจำนวน <strong>{{baht .Amount}}</strong> สำหรับการจอง <strong>{{.BookingNumber}}</strong> ไม่สำเร็จ</p>
{{if .Reason}}<p style="color:#374151;">สาเหตุ: {{.Reason}}</p>{{end}}
<p style="color:#374151;">กรุณาลองชำระอีกครั้ง หรือเปลี่ยนช่องทางการชำระเงิน การจองจะถูกยกเลิกหากไม่ชำระภายใน 24 ชั่วโมง</p>
{{end}}

{{define "partner_approval"}}
<h1 style="margin:0 0 16px;font-size:20px;color:#111827;">ใบสมัครพาร์ทเนอร์ได้รับการอนุมัติ</h1>
<p style="color:#374151;">สวัสดีคุณ{{.PartnerName}}</p>
<p style="color:#374151;">ยินดีด้วย! ใบสมัครสำหรับ <strong>{{.GymName}}</strong> ได้รับการอนุมัติแล้ว คุณสามารถเข้าสู่ระบบเพื่อจัดการยิมและแพ็กเกจของคุณได้ทันที</p>
{{end}}

{{define "partner_rejection"}}
<h1 style="margin:0 0 16px;font-size:20px;color:#111827;">ผลการพิจารณาใบสมัครพาร์ทเนอร์</h1>
<p style="color:#374151;">สวัสดีคุณ{{.PartnerName}}</p>
<p style="color:#374151;">ขออภัย ใบสมัครสำหรับ <strong>{{.GymName}}</strong> ยังไม่ผ่านการพิจารณาในครั้งนี้</p>
{{if .Reason}}<p style="color:#374151;">เหตุผล: {{.Reason}}</p>{{end}}
<p style="color:#374151;">คุณสามารถแก้ไขข้อมูลและยื่นใบสมัครใหม่ได้ตลอดเวลา</p>
{{end}}

{{define "admin_alert"}}
<h1 style="margin:0 0 16px;font-size:20px;color:#b91c1c;">[{{.Severity}}] {{.Title}}</h1>
<p style="color:#374151;">{{.Description}}</p>
{{if .Details}}
<table role="presentation" width="100%" cellpadding="6" cellspacing="0" style="background-color:#f9fafb;border-radius:6px;color:#374151;font-size:13px;">
{{range $k, $v := .Details}}<tr><td>{{$k}}</td><td align="right">{{$v}}</td></tr>{{end}}
</table>
{{end}}
<p style="color:#6b7280;font-size:13px;">เหตุการณ์เมื่อ {{thaiDateTime .OccurredAt}}</p>
{{end}}

{{define "verification"}}
<h1 style="margin:0 0 16px;font-size:20px;color:#111827;">รหัสยืนยันของคุณ</h1>
<p style="color:#374151;">ใช้รหัสด้านล่างเพื่อยืนยันอีเมลของคุณ</p>
<p style="text-align:center;">
<span style="display:inline-block;background-color:#f3f4f6;border-radius:8px;padding:12px 32px;font-size:28px;letter-spacing:8px;font-weight:bold;color:#111827;">{{.Code}}</span>
</p>
<p style="color:#6b7280;font-size:13px;">รหัสหมดอายุใน {{.ExpiresMinutes}} นาที หากคุณไม่ได้ขอรหัสนี้ กรุณาเพิกเฉยต่ออีเมลฉบับนี้</p>
{{end}}

{{define "welcome"}}
<h1 style="margin:0 0 16px;font-size:20px;color:#111827;">ยินดีต้อนรับสู่ FitReserve</h1>
<p style="color:#374151;">สวัสดีคุณ{{.CustomerName}}</p>
<p style="color:#374151;">บัญชีของคุณพร้อมใช้งานแล้ว ค้นหายิมใกล้บ้าน เปรียบเทียบแพ็กเกจ และจองได้ในไม่กี่คลิก</p>
{{end}}

{{define "promotional"}}
<h1 style="margin:0 0 16px;font-size:20px;color:#111827;">{{.Title}}</h1>
<div style="color:#374151;">{{.BodyHTML}}</div>
{{if .CTAURL}}
<p style="text-align:center;margin-top:24px;">
<a href="{{.CTAURL}}" style="display:inline-block;background-color:#16a34a;color:#ffffff;text-decoration:none;border-radius:6px;padding:12px 32px;font-weight:bold;">{{.CTAText}}</a>
</p>
{{end}}
{{end}}
`))

func renderBody(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := bodyTmpls.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func render(name, title string, data any) (string, error) {
	body, err := renderBody(name, data)
	if err != nil {
		return "", err
	}
	return renderLayout(title, body)
}

// BookingConfirmationData feeds the booking confirmation template.
type BookingConfirmationData struct {
	CustomerName  string
	BookingNumber string
	GymName       string
	PackageName   string
	StartDate     time.Time
	EndDate       time.Time
	Amount        float64
}

// RenderBookingConfirmation produces the booking confirmation document.
func RenderBookingConfirmation(data BookingConfirmationData) (string, error) {
	return render("booking_confirmation", "ยืนยันการจอง", data)
}

// BookingReminderData feeds booking and event reminder templates.
type BookingReminderData struct {
	CustomerName  string
	BookingNumber string
	GymName       string
	StartDate     time.Time
}

// RenderBookingReminder produces the booking reminder document.
func RenderBookingReminder(data BookingReminderData) (string, error) {
	return render("booking_reminder", "แจ้งเตือนการจอง", data)
}

// PaymentReceiptData feeds the payment receipt template.
type PaymentReceiptData struct {
	ReceiptNumber string
	BookingNumber string
	PaymentMethod string
	PaidAt        time.Time
	Amount        float64
}

// RenderPaymentReceipt produces the payment receipt document.
func RenderPaymentReceipt(data PaymentReceiptData) (string, error) {
	return render("payment_receipt", "ใบเสร็จรับเงิน", data)
}

// PaymentFailedData feeds the payment failure template.
type PaymentFailedData struct {
	BookingNumber string
	Amount        float64
	Reason        string
}

// RenderPaymentFailed produces the payment failure document.
func RenderPaymentFailed(data PaymentFailedData) (string, error) {
	return render("payment_failed", "การชำระเงินไม่สำเร็จ", data)
}

// PartnerApplicationData feeds partner approval and rejection templates.
// Reason is used only by the rejection template.
type PartnerApplicationData struct {
	PartnerName string
	GymName     string
	Reason      string
}

// RenderPartnerApproval produces the partner approval document.
func RenderPartnerApproval(data PartnerApplicationData) (string, error) {
	return render("partner_approval", "ใบสมัครได้รับการอนุมัติ", data)
}

// RenderPartnerRejection produces the partner rejection document.
func RenderPartnerRejection(data PartnerApplicationData) (string, error) {
	return render("partner_rejection", "ผลการพิจารณาใบสมัคร", data)
}

// AdminAlertData feeds the operational alert template.
type AdminAlertData struct {
	Title       string
	Severity    string
	Description string
	Details     map[string]string
	OccurredAt  time.Time
}

// RenderAdminAlert produces the admin alert document.
func RenderAdminAlert(data AdminAlertData) (string, error) {
	return render("admin_alert", data.Title, data)
}

// VerificationData feeds the OTP template.
type VerificationData struct {
	Code           string
	ExpiresMinutes int
}

// RenderVerification produces the email verification (OTP) document.
func RenderVerification(data VerificationData) (string, error) {
	return render("verification", "รหัสยืนยันอีเมล", data)
}

// WelcomeData feeds the welcome template.
type WelcomeData struct {
	CustomerName string
}

// RenderWelcome produces the welcome document.
func RenderWelcome(data WelcomeData) (string, error) {
	return render("welcome", "ยินดีต้อนรับสู่ FitReserve", data)
}

// PromotionalData feeds the promotional template. BodyHTML is trusted
// marketing content authored in the admin dashboard.
type PromotionalData struct {
	Title    string
	BodyHTML htmltemplate.HTML
	CTAText  string
	CTAURL   string
}

// RenderPromotional produces the promotional document.
func RenderPromotional(data PromotionalData) (string, error) {
	return render("promotional", data.Title, data)
}
