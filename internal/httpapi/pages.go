package httpapi

import (
	"fmt"
	"html"
)

const pageShell = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>WhatsApp Session</title>
<style>
body { font-family: sans-serif; text-align: center; margin-top: 3em; }
img { border: 1px solid #ccc; padding: 8px; }
p { color: #444; }
</style>
%s
</head>
<body>
%s
</body>
</html>`

func renderQRPage(dataURL string) string {
	refresh := `<meta http-equiv="refresh" content="30">`
	body := fmt.Sprintf(`<h2>Scan the QR code with WhatsApp</h2>
<img src="%s" alt="QR code" width="256" height="256">
<p>Open WhatsApp on your phone, go to Linked Devices and scan.
The code rotates; this page refreshes automatically.</p>`, dataURL)
	return fmt.Sprintf(pageShell, refresh, body)
}

func renderReadyPage() string {
	body := `<h2>Already authenticated</h2>
<p>The WhatsApp session is connected. You can start messaging.</p>`
	return fmt.Sprintf(pageShell, "", body)
}

func renderErrorPage(err error) string {
	body := fmt.Sprintf(`<h2>Connection failed</h2>
<p>%s</p>
<p>Reload this page to try again.</p>`, html.EscapeString(err.Error()))
	return fmt.Sprintf(pageShell, "", body)
}
