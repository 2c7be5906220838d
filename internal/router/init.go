package router

import (
	"github.com/okisetiawan/authflow/internal/application"
	handlers "github.com/okisetiawan/authflow/internal/interface/http"
	"github.com/okisetiawan/authflow/internal/router/modules"
	"github.com/okisetiawan/authflow/pkg/helpers"
)

// Deps carries the constructed collaborators the modules need. Everything is
// built once in cmd/main.go and handed down explicitly so tests can swap in
// doubles.
type Deps struct {
	Svc      *application.Service
	Sessions *helpers.SessionManager
	Cookies  *helpers.CookieManager
}

// InitModules initializes all application modules and registers them with the
// router registry. Called once during startup.
func InitModules(r *Registry, deps Deps) {
	h := handlers.NewAuthHandler(deps.Svc, deps.Svc.Logger, deps.Cookies)
	r.Add(modules.NewAuthModule(h, deps.Svc, deps.Sessions))
}
