package identity

import (
	"net/http"

	"github.com/gorilla/mux"
)

// App wires the auth flows, the session manager and the authorization
// middleware into one HTTP surface.
type App struct {
	Store      Store
	Session    *SessionManager
	Local      *LocalAuth
	External   *ExternalAuth
	Admin      *RoleAdministration
	Middleware *Middleware
}

// NewApp assembles an App around a credential store and session manager,
// with every component on its defaults.
func NewApp(store Store, session *SessionManager) *App {
	external := &ExternalAuth{Store: store, Session: session}
	app := &App{
		Store:    store,
		Session:  session,
		External: external,
		Local: &LocalAuth{
			Store:     store,
			Session:   session,
			Providers: external.ProviderNames,
		},
		Admin:      &RoleAdministration{Store: store},
		Middleware: &Middleware{Session: session},
	}
	return app
}

// Handler returns the full route table wrapped in session loading:
//
//	GET/POST /auth/register                      anonymous
//	GET/POST /auth/login                         anonymous
//	POST     /auth/logout                        any
//	GET      /auth/external/{provider}           anonymous
//	GET      /auth/external/{provider}/callback  anonymous
//	GET      /admin/users                        admin role
//	GET      /admin/users/grant                  admin role
//	GET      /admin/users/revoke                 admin role
//	GET      /                                   any
func (a *App) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/auth/register", a.Local.HandleRegisterForm).Methods(http.MethodGet)
	r.HandleFunc("/auth/register", a.Local.HandleRegister).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", a.Local.HandleLoginForm).Methods(http.MethodGet)
	r.HandleFunc("/auth/login", a.Local.HandleLogin).Methods(http.MethodPost)
	r.HandleFunc("/auth/logout", a.Local.HandleLogout).Methods(http.MethodPost)

	r.HandleFunc("/auth/external/{provider}", a.External.HandleStart).Methods(http.MethodGet)
	r.HandleFunc("/auth/external/{provider}/callback", a.External.HandleCallback).Methods(http.MethodGet)

	requireAdmin := a.Middleware.RequireRole(RoleAdmin)
	r.Handle("/admin/users", requireAdmin(http.HandlerFunc(a.Admin.HandleList))).Methods(http.MethodGet)
	r.Handle("/admin/users/grant", requireAdmin(http.HandlerFunc(a.Admin.HandleGrant))).Methods(http.MethodGet)
	r.Handle("/admin/users/revoke", requireAdmin(http.HandlerFunc(a.Admin.HandleRevoke))).Methods(http.MethodGet)

	r.HandleFunc("/", a.handleHome).Methods(http.MethodGet)

	return a.Session.LoadAndSave(r)
}

func (a *App) handleHome(w http.ResponseWriter, r *http.Request) {
	renderPage(w, http.StatusOK, "home", &homeData{Session: a.Session.Current(r)})
}
