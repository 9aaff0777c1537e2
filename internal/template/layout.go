package template

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"time"
)

// layoutTmpl is the shared chrome every email shares: brand header,
// content card, footer with the send timestamp.
var layoutTmpl = htmltemplate.Must(htmltemplate.New("layout").Parse(`<!DOCTYPE html>
<html lang="th">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Title}}</title>
</head>
<body style="margin:0;padding:0;background-color:#f4f5f7;font-family:'Helvetica Neue',Helvetica,Arial,sans-serif;">
<table role="presentation" width="100%" cellpadding="0" cellspacing="0" style="background-color:#f4f5f7;padding:24px 0;">
<tr><td align="center">
<table role="presentation" width="600" cellpadding="0" cellspacing="0" style="max-width:600px;width:100%;">
<tr>
<td style="background-color:#16a34a;border-radius:8px 8px 0 0;padding:20px 32px;">
<span style="color:#ffffff;font-size:22px;font-weight:bold;">FitReserve</span>
</td>
</tr>
<tr>
<td style="background-color:#ffffff;padding:32px;">
{{.Body}}
</td>
</tr>
<tr>
<td style="background-color:#f9fafb;border-radius:0 0 8px 8px;padding:20px 32px;color:#6b7280;font-size:12px;line-height:1.6;">
อีเมลฉบับนี้ส่งโดยระบบอัตโนมัติ กรุณาอย่าตอบกลับ<br>
FitReserve — จองยิมและแพ็กเกจฟิตเนสทั่วประเทศ<br>
ส่งเมื่อ {{.SentAt}}
</td>
</tr>
</table>
</td></tr>
</table>
</body>
</html>
`))

type layoutData struct {
	Title  string
	Body   htmltemplate.HTML
	SentAt string
}

// renderLayout wraps an already-rendered body fragment in the shared
// document chrome. The footer timestamp is the one deliberate impurity
// in this package.
func renderLayout(title string, body string) (string, error) {
	var buf bytes.Buffer
	err := layoutTmpl.Execute(&buf, layoutData{
		Title:  title,
		Body:   htmltemplate.HTML(body),
		SentAt: FormatThaiDateTime(time.Now()),
	})
	if err != nil {
		return "", fmt.Errorf("render layout: %w", err)
	}
	return buf.String(), nil
}
