// Command server hosts the Taskora identity surface: registration, login,
// external-provider login and the admin user listing.
package main

import (
	"log"
	"net/http"

	"github.com/caarlos0/env/v11"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/taskora/identity"
	"github.com/taskora/identity/oauth2"
	gormstore "github.com/taskora/identity/stores/gorm"
)

type Config struct {
	Addr         string `env:"ADDR" envDefault:":8080"`
	DatabasePath string `env:"DATABASE_PATH" envDefault:"identity.db"`
	BaseURL      string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// Used to sign auth token cookies. The default is only for local
	// development.
	JWTSecretKey string `env:"JWT_SECRET_KEY" envDefault:"DevOnlyJWTSecretKey123456"`

	GoogleClientID     string `env:"OAUTH2_GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"OAUTH2_GOOGLE_CLIENT_SECRET"`
	GithubClientID     string `env:"OAUTH2_GITHUB_CLIENT_ID"`
	GithubClientSecret string `env:"OAUTH2_GITHUB_CLIENT_SECRET"`

	// Granted the admin role at startup so the first deployment has an
	// administrator. Must already be registered.
	BootstrapAdminEmail string `env:"BOOTSTRAP_ADMIN_EMAIL"`
}

func main() {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatal("error parsing config: ", err)
	}

	db, err := gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("error opening database: ", err)
	}
	if err := gormstore.AutoMigrate(db); err != nil {
		log.Fatal("error migrating database: ", err)
	}

	store := gormstore.New(db)
	app := identity.NewApp(store, identity.NewSessionManager(cfg.JWTSecretKey))

	if cfg.GoogleClientID != "" {
		app.External.Register(oauth2.NewGoogle(cfg.GoogleClientID, cfg.GoogleClientSecret,
			cfg.BaseURL+"/auth/external/google/callback"))
	}
	if cfg.GithubClientID != "" {
		app.External.Register(oauth2.NewGithub(cfg.GithubClientID, cfg.GithubClientSecret,
			cfg.BaseURL+"/auth/external/github/callback"))
	}

	if cfg.BootstrapAdminEmail != "" {
		if user, err := store.FindByEmail(cfg.BootstrapAdminEmail); err != nil {
			log.Println("bootstrap admin not found: ", cfg.BootstrapAdminEmail)
		} else if err := store.AddRole(user.ID, identity.RoleAdmin); err != nil {
			log.Fatal("error granting bootstrap admin role: ", err)
		}
	}

	log.Println("Listening on ", cfg.Addr)
	log.Fatal(http.ListenAndServe(cfg.Addr, app.Handler()))
}
