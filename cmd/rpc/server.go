package rpc

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/units"
	"github.com/julienschmidt/httprouter"
	"github.com/millpond-labs/millpond/app"
	"github.com/millpond-labs/millpond/fsm"
	"github.com/millpond-labs/millpond/lib"
	"github.com/millpond-labs/millpond/lib/crypto"
	"github.com/rs/cors"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
)

const (
	colon = ":"

	SoftwareVersion = "0.0.0-alpha"
	ContentType     = "Content-Type"
	ApplicationJSON = "application/json; charset=utf-8"

	// cap on concurrent connections per listener so a client flood cannot exhaust file descriptors
	maxOpenConnections = 1000

	explorerStaticDir = "web/explorer"
)

// Server represents a millpond RPC server with configuration options.
type Server struct {
	// millpond node engine
	app *app.App

	// millpond node configuration
	config lib.Config

	logger lib.LoggerI
}

// NewServer constructs and returns a new millpond RPC server
func NewServer(a *app.App, config lib.Config, logger lib.LoggerI) *Server {
	return &Server{
		app:    a,
		config: config,
		logger: logger,
	}
}

// Start initializes the millpond RPC servers
func (s *Server) Start() {
	// Serve the query and admin APIs concurrently; either listener failing takes the node down
	go func() {
		var g errgroup.Group
		g.Go(func() error { return s.startRPC(createRouter(s), s.config.RPCPort) })
		g.Go(func() error { return s.startRPC(createAdminRouter(s), s.config.AdminPort) })
		s.logger.Fatal(g.Wait().Error())
	}()

	if s.config.Headless {
		return
	}

	// Start an in-process HTTP server for the pool explorer
	s.startStaticFileServers()
}

// startRPC starts an RPC server with the provided router and port
func (s *Server) startRPC(router *httprouter.Router, port string) error {

	// Create CORS policy
	cor := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS", "POST"},
	})

	// Create a default timeout for HTTP requests
	timeout := time.Duration(s.config.TimeoutS) * time.Second

	// Open the listener and cap its concurrent connections
	ln, err := net.Listen("tcp", colon+port)
	if err != nil {
		return err
	}

	// Start RPC server
	s.logger.Infof("Starting RPC server at 0.0.0.0:%s", port)
	return (&http.Server{
		Addr:    colon + port,
		Handler: cor.Handler(http.TimeoutHandler(router, timeout, ErrServerTimeout().Error())),
	}).Serve(netutil.LimitListener(ln, maxOpenConnections))
}

// submitEnvelope routes a signed envelope to the engine and writes the hash as the http response
func (s *Server) submitEnvelope(w http.ResponseWriter, envelope *fsm.Envelope) (ok bool) {

	// Marshal the envelope to its wire format
	bz, er := envelope.MarshalBinary()
	if er != nil {
		write(w, lib.ErrMarshal(er), http.StatusBadRequest)
		return
	}

	// Send envelope to the engine queue
	if err := s.app.HandleEnvelope(bz); err != nil {
		write(w, err, http.StatusBadRequest)
		return
	}

	// Write envelope hash to http response
	write(w, crypto.HashString(bz), http.StatusOK)
	return true
}

// readOnlyState is a helper function to safely execute a callback against the last committed state
func (s *Server) readOnlyState(w http.ResponseWriter, callback func(state *fsm.StateMachine) lib.ErrorI) {
	// Create an independent view over the committed version
	state, err := s.app.ReadOnlyFSM()
	if err != nil {
		write(w, ErrNewFSM(err), http.StatusInternalServerError)
		return
	}

	// Discard state, ensuring proper cleanup is performed
	defer state.Discard()

	// Execute the provided callback function with the read-only state
	if err = callback(state); err != nil {
		write(w, err, http.StatusBadRequest)
	}
}

// stateParams is a helper function to unmarshal request parameters and execute a callback against a read-only state
func (s *Server) stateParams(w http.ResponseWriter, r *http.Request, ptr any, callback func(state *fsm.StateMachine) (any, lib.ErrorI)) {
	// Unmarshal request parameters
	if ok := unmarshal(w, r, ptr); !ok {
		return
	}

	s.readOnlyState(w, func(state *fsm.StateMachine) lib.ErrorI {
		p, err := callback(state)
		if err != nil {
			write(w, err, http.StatusBadRequest)
			return nil
		}
		write(w, p, http.StatusOK)
		return nil
	})
}

// logsHandler writes the millpond logfile
func logsHandler(s *Server) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {

		// Construct the full file path to the millpond log file
		filePath := filepath.Join(s.config.DataDirPath, lib.LogDirectory, lib.LogFileName)

		// Read the entire contents of the log file and split by newlines
		f, _ := os.ReadFile(filePath)
		split := bytes.Split(f, []byte("\n"))

		// Prepare a slice to hold the reversed lines
		var flipped []byte

		// Iterate over the lines in reverse order
		for i := len(split) - 1; i >= 0; i-- {
			// Append each line to the `flipped` slice followed by a newline character
			flipped = append(append(flipped, split[i]...), []byte("\n")...)
		}

		// Write the reversed lines to the HTTP response
		if _, err := w.Write(flipped); err != nil {
			s.logger.Error(err.Error())
		}
	}
}

// logHandler serves as a middleware that logs incoming RPC calls for debugging purposes.
type logHandler struct {
	path string
	h    httprouter.Handle
}

// Handle
func (h logHandler) Handle(resp http.ResponseWriter, req *http.Request, p httprouter.Params) {
	// Uncomment the line below to enable endpoint path logging for debugging.
	// logger.Debug(h.path)

	// Call the actual handler function with the response, request, and parameters.
	h.h(resp, req, p)
}

//go:embed all:web/explorer
var explorerFS embed.FS

// startStaticFileServers starts a file server for the pool explorer
func (s *Server) startStaticFileServers() {
	s.logger.Infof("Starting Pool Explorer 🔍️ http://localhost:%s ⬅️", s.config.ExplorerPort)
	s.runStaticFileServer(explorerFS, explorerStaticDir, s.config.ExplorerPort, s.config)
}

// runStaticFileServer creates a web server serving static files
func (s *Server) runStaticFileServer(fileSys fs.FS, dir, port string, conf lib.Config) {
	// Attempt to get a sub-filesystem rooted at the specified directory
	distFS, err := fs.Sub(fileSys, dir)
	if err != nil {
		s.logger.Error(fmt.Sprintf("an error occurred running the static file server for %s: %s", dir, err.Error()))
		return
	}

	// Create a new ServeMux to handle incoming HTTP requests
	mux := http.NewServeMux()

	// Define a handler function for the root path
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// serve `index.html` with dynamic config injection
		if r.URL.Path == "/" || r.URL.Path == "/index.html" {

			// Construct the file path for `index.html`
			filePath := path.Join(dir, "index.html")

			// Read the content of `index.html` into a byte slice
			htmlBytes, e := fs.ReadFile(fileSys, filePath)
			if e != nil {
				http.NotFound(w, r)
				return
			}

			// Inject the configuration into the HTML file content
			injectedHTML := injectConfig(string(htmlBytes), conf)

			// Set the response header as HTML and write the injected content to the response
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(injectedHTML))
			return
		}

		// For all other requests, serve the files directly from the file system
		http.FileServer(http.FS(distFS)).ServeHTTP(w, r)
	})

	// Start the HTTP server in a new goroutine and listen on the specified port
	go func() {
		// Log a fatal error if the server fails to start
		s.logger.Fatal(http.ListenAndServe(fmt.Sprintf(":%s", port), mux).Error())
	}()
}

// injectConfig() injects the config.json into the HTML file
func injectConfig(html string, config lib.Config) string {
	script := fmt.Sprintf(`<script>
		window.__CONFIG__ = {
            rpcURL: "%s",
            adminRPCURL: "%s"
        };
	</script>`, config.RPCUrl, config.AdminRPCUrl)

	// inject the script just before </head>
	return strings.Replace(html, "</head>", script+"</head>", 1)
}

// unmarshal reads request body and unmarshals it into ptr
func unmarshal(w http.ResponseWriter, r *http.Request, ptr interface{}) bool {
	bz, err := io.ReadAll(io.LimitReader(r.Body, int64(units.MB)))
	if err != nil {
		write(w, err, http.StatusBadRequest)
		return false
	}
	defer func() { _ = r.Body.Close() }()
	if err = json.Unmarshal(bz, ptr); err != nil {
		write(w, err, http.StatusBadRequest)
		return false
	}
	return true
}

// write marshaled payload to w
func write(w http.ResponseWriter, payload interface{}, code int) {
	w.Header().Set(ContentType, ApplicationJSON)
	w.WriteHeader(code)

	// Marshal and indent the payload
	bz, _ := json.MarshalIndent(payload, "", "  ")
	_, _ = w.Write(bz)
}
