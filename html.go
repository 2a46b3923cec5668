package identity

import (
	"html/template"
	"log/slog"
	"net/http"
)

// Minimal server-rendered pages. Page rendering is a presentation concern
// the rest of the application owns; these built-ins exist so the auth
// surface works standalone and so tests can drive the real forms.

var pageTmpl = template.Must(template.New("pages").Parse(`
{{define "head"}}<!DOCTYPE html>
<html>
<head><title>{{.}}</title></head>
<body>{{end}}

{{define "foot"}}</body>
</html>{{end}}

{{define "errors"}}{{if .}}<ul class="validation-errors">
{{range .}}<li>{{.}}</li>
{{end}}</ul>{{end}}{{end}}

{{define "home"}}{{template "head" "Taskora"}}
<h1>Taskora</h1>
{{if .Session}}<p>Signed in as {{.Session.Email}}.</p>
<form method="POST" action="/auth/logout"><button type="submit">Log out</button></form>
{{else}}<p><a href="/auth/login">Log in</a> or <a href="/auth/register">Register</a></p>
{{end}}{{template "foot"}}{{end}}

{{define "register"}}{{template "head" "Register"}}
<h1>Register</h1>
{{template "errors" .Errors}}
<form method="POST" action="/auth/register">
	<label>Email: <input type="email" name="email" value="{{.Email}}" required></label>
	<label>Password: <input type="password" name="password" required></label>
	<button type="submit">Register</button>
</form>
{{template "foot"}}{{end}}

{{define "login"}}{{template "head" "Log in"}}
<h1>Log in</h1>
{{if .Message}}<p class="message">{{.Message}}</p>{{end}}
{{template "errors" .Errors}}
<form method="POST" action="/auth/login{{if .CallbackURL}}?callbackURL={{.CallbackURL}}{{end}}">
	<label>Email: <input type="email" name="email" value="{{.Email}}" required></label>
	<label>Password: <input type="password" name="password" required></label>
	<label><input type="checkbox" name="rememberMe"> Remember me</label>
	<button type="submit">Log in</button>
</form>
{{range .Providers}}<p><a href="/auth/external/{{.}}">Log in with {{.}}</a></p>
{{end}}{{template "foot"}}{{end}}

{{define "users"}}{{template "head" "Users"}}
<h1>Users</h1>
{{if .Message}}<p class="message">{{.Message}}</p>{{end}}
<table>
<tr><th>Email</th><th></th></tr>
{{range .Emails}}<tr>
	<td>{{.}}</td>
	<td><a href="/admin/users/grant?email={{.}}">Grant admin</a>
	 <a href="/admin/users/revoke?email={{.}}">Revoke admin</a></td>
</tr>
{{end}}</table>
{{template "foot"}}{{end}}

{{define "forbidden"}}{{template "head" "Forbidden"}}
<h1>Forbidden</h1>
<p>You are signed in but do not have permission to view this page.</p>
{{template "foot"}}{{end}}
`))

type homeData struct {
	Session *Session
}

type registerData struct {
	Email  string
	Errors []string
}

type loginData struct {
	Email       string
	Message     string
	CallbackURL string
	Errors      []string
	Providers   []string
}

type usersData struct {
	Emails  []string
	Message string
}

func renderPage(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTmpl.ExecuteTemplate(w, name, data); err != nil {
		slog.Warn("error rendering page", "page", name, "err", err)
	}
}
