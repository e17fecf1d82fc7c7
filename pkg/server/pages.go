package server

import (
	"html/template"
	"net/http"
)

// pageData feeds the callback result template. Display data only; the
// session identifier and token never appear in a page.
type pageData struct {
	Title          string
	Heading        string
	Message        string
	Username       string
	InstallationID int64
	HasUserToken   bool
	Notice         string
}

// callbackPage is the single template behind every browser-facing result
// page of the install and OAuth flow.
const callbackPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body { font-family: -apple-system, "Segoe UI", sans-serif; background: #f6f8fa; margin: 0; }
main { max-width: 480px; margin: 12vh auto; background: #fff; border: 1px solid #d1d9e0; border-radius: 6px; padding: 32px; }
h1 { font-size: 1.4em; margin-top: 0; }
code { background: #f6f8fa; padding: 2px 6px; border-radius: 4px; }
.notice { color: #9a6700; background: #fff8c5; border-radius: 4px; padding: 8px 12px; }
</style>
</head>
<body>
<main>
<h1>{{.Heading}}</h1>
<p>{{.Message}}</p>
{{if .Username}}<p>Signed in as <strong>{{.Username}}</strong>.</p>{{end}}
{{if .InstallationID}}<p>Installation <code>{{.InstallationID}}</code> is linked to this account.</p>{{end}}
{{if .HasUserToken}}<p>A user access token is stored with your session.</p>{{end}}
{{if .Notice}}<p class="notice">{{.Notice}}</p>{{end}}
</main>
</body>
</html>
`

var pageTmpl = template.Must(template.New("callback").Parse(callbackPage))

// errorPage builds page data for a failed flow.
func errorPage(title, message string) *pageData {
	return &pageData{
		Title:   title,
		Heading: title,
		Message: message,
	}
}

// degradedPage builds page data for an authenticated user whose session
// could not be stored.
func degradedPage(username, message string) *pageData {
	return &pageData{
		Title:    "Signed in, session unavailable",
		Heading:  "Signed in, session unavailable",
		Message:  message,
		Username: username,
	}
}

// renderPage writes a result page with the given status.
func (s *service) renderPage(w http.ResponseWriter, status int, data *pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)

	if err := pageTmpl.Execute(w, data); err != nil {
		s.log.WithError(err).Error("Failed to render page")
	}
}
