// Package identity is the identity and access-control subsystem of the
// Taskora task tracker: local password registration and login, federated
// login through external providers with account auto-creation and linking,
// session establishment, and role-based authorization.
//
// # Architecture
//
// User: an account, identified by a user ID. The email address doubles as
// the login name and is unique across the store (case-insensitive).
//
// ExternalLogin: a durable link between a (provider, subject key) pair and
// one local user. A returning federated user is resolved through this link
// and signed in without a password.
//
// Session: server-recognized proof of authentication carrying the user's
// role claims and a persistence (remember-me) flag. Claims are a snapshot
// taken at sign-in time; role changes take effect on the next sign-in.
//
// # Basic Usage
//
// Pick a credential store and wire the app:
//
//	import (
//	    "github.com/taskora/identity"
//	    "github.com/taskora/identity/oauth2"
//	    gormstore "github.com/taskora/identity/stores/gorm"
//	)
//
//	store := gormstore.New(db)
//	sessions := identity.NewSessionManager(jwtSecret)
//	app := identity.NewApp(store, sessions)
//	app.External.Register(oauth2.NewGoogle(clientID, clientSecret, callbackURL))
//	http.ListenAndServe(":8080", app.Handler())
//
// The app mounts the full HTTP surface: /auth/register, /auth/login,
// /auth/logout, /auth/external/{provider} and its callback, and the
// admin-only /admin/users listing with grant/revoke endpoints.
//
// # Store Implementations
//
// stores/memory is an in-memory store suitable for development and tests.
// stores/gorm persists users, external logins and role grants in explicit
// SQL join tables and enforces the uniqueness invariants at the schema
// level. Passwords are hashed with bcrypt inside the stores and never leave
// them.
//
// # Authorization
//
// Protected operations declare a required role through Middleware.RequireRole.
// An anonymous caller is redirected to the login page; an authenticated
// caller without the role gets a 403. The two refusals are deliberately
// distinct.
package identity
