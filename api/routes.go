package api

import (
	"net/http"
	"path"
	"strings"

	"gitlab.com/NebulousLabs/errors"
)

// indexFile is the name of the frontend's entry page.
const indexFile = "index.html"

// buildHTTPRoutes registers the http routes with the httprouter.
func (api *API) buildHTTPRoutes() {
	api.staticRouter.GET("/", api.WithMetrics("/", api.rootGET))
	api.staticRouter.HEAD("/", api.WithMetrics("/", api.rootGET))
	api.staticRouter.GET("/config", api.WithMetrics("/config", api.configGET))
	api.staticRouter.GET("/health", api.WithMetrics("/health", api.healthGET))
	api.staticRouter.HEAD("/health", api.WithMetrics("/health", api.healthGET))
	api.staticRouter.GET("/info", api.WithMetrics("/info", api.infoGET))
	api.staticRouter.GET("/metrics", api.WithMetrics("/metrics", api.metricsGET))
	api.staticRouter.POST("/create-checkout-session", api.WithMetrics("/create-checkout-session", api.checkoutSessionPOST))
	api.staticRouter.POST("/webhook", api.WithMetrics("/webhook", api.webhookPOST))

	// Everything else is looked up in the public directory.
	api.staticRouter.NotFound = api.withMetricsHandler(routeStatic, staticHandler(api.staticConfig.PublicDir))
	api.staticRouter.MethodNotAllowed = api.withMetricsHandler(routeMethodNotAllowed, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		api.WriteError(w, errors.New(http.StatusText(http.StatusMethodNotAllowed)), http.StatusMethodNotAllowed)
	}))
}

// staticHandler serves GET and HEAD requests from dir. Any other request is
// not found. An empty dir serves nothing.
func staticHandler(dir string) http.Handler {
	if dir == "" {
		return http.NotFoundHandler()
	}
	root := http.Dir(dir)
	files := http.FileServer(root)
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet && req.Method != http.MethodHead {
			http.NotFound(w, req)
			return
		}
		// http.FileServer redirects index pages to their directory and
		// "/" belongs to the liveness route.
		if strings.HasSuffix(req.URL.Path, "/"+indexFile) {
			serveFile(w, req, root, req.URL.Path)
			return
		}
		files.ServeHTTP(w, req)
	})
}

// serveFile writes the file at name within root without any redirects.
func serveFile(w http.ResponseWriter, req *http.Request, root http.FileSystem, name string) {
	f, err := root.Open(path.Clean("/" + name))
	if err != nil {
		http.NotFound(w, req)
		return
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil || fi.IsDir() {
		http.NotFound(w, req)
		return
	}
	http.ServeContent(w, req, fi.Name(), fi.ModTime(), f)
}
