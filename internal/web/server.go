package web

import (
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/example/teeswap/internal/auth"
	"github.com/example/teeswap/internal/brs"
	"github.com/example/teeswap/internal/clubs"
	"github.com/example/teeswap/internal/crypto"
	"github.com/example/teeswap/internal/db"
	"github.com/example/teeswap/internal/jobs"
	"github.com/example/teeswap/internal/players"
)

//go:embed templates/*.html
var fs embed.FS

// Server is the operator-facing surface: account login, job management,
// and the two lookup APIs the job form needs (club slugs and member IDs).
type Server struct {
	Auth  *auth.Store
	Jobs  *jobs.Repo
	Clubs *clubs.Resolver
	Creds *crypto.AEAD
	Log   *logrus.Logger

	PortalBaseURL string
}

type tmplData struct {
	Title string
	User  int64
	Flash string
	Jobs  []jobs.Job
}

func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	r.HandleFunc("/login", s.handleLogin).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/logout", s.handleLogout)

	r.Handle("/", s.Auth.RequireAuth(http.HandlerFunc(s.handleHome))).Methods(http.MethodGet)
	r.Handle("/jobs/new", s.Auth.RequireAuth(http.HandlerFunc(s.handleJobNew))).Methods(http.MethodGet)
	r.Handle("/jobs/create", s.Auth.RequireAuth(http.HandlerFunc(s.handleJobCreate))).Methods(http.MethodPost)
	r.Handle("/jobs/{id:[0-9]+}/toggle", s.Auth.RequireAuth(http.HandlerFunc(s.handleJobToggle))).Methods(http.MethodPost)
	r.Handle("/jobs/{id:[0-9]+}/delete", s.Auth.RequireAuth(http.HandlerFunc(s.handleJobDelete))).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.Handle("/clubs/search", s.Auth.RequireAuth(http.HandlerFunc(s.handleClubSearch))).Methods(http.MethodGet)
	api.Handle("/players/search", s.Auth.RequireAuth(http.HandlerFunc(s.handlePlayerSearch))).Methods(http.MethodPost)

	return r
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	js, err := s.Jobs.ListByUser(r.Context(), uid)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.render(w, "templates/jobs.html", tmplData{Title: "Jobs", User: uid, Jobs: js})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		s.render(w, "templates/login.html", tmplData{Title: "Login"})
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	username := strings.TrimSpace(r.FormValue("username"))
	id, err := s.Auth.Authenticate(r.Context(), username, r.FormValue("password"))
	if err != nil {
		s.render(w, "templates/login.html", tmplData{Title: "Login", Flash: "Invalid username/password"})
		return
	}
	if err := s.Auth.SetSession(w, r, id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	if username == "" || password == "" {
		http.Error(w, "username and password required", http.StatusBadRequest)
		return
	}
	if err := s.Auth.CreateUser(r.Context(), username, password); err != nil {
		s.render(w, "templates/login.html", tmplData{Title: "Login", Flash: "Registration failed"})
		return
	}
	id, err := s.Auth.Authenticate(r.Context(), username, password)
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	_ = s.Auth.SetSession(w, r, id)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.Auth.ClearSession(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (s *Server) handleJobNew(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	s.render(w, "templates/new_job.html", tmplData{Title: "New Job", User: uid})
}

func (s *Server) handleJobCreate(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	atoi := func(field string, def int) int {
		n, err := strconv.Atoi(strings.TrimSpace(r.FormValue(field)))
		if err != nil {
			return def
		}
		return n
	}

	p := jobs.Params{
		ClubSlug:      strings.TrimSpace(r.FormValue("club_slug")),
		CourseID:      strings.TrimSpace(r.FormValue("course_id")),
		Username:      strings.TrimSpace(r.FormValue("username")),
		Password:      r.FormValue("password"),
		TargetDate:    strings.TrimSpace(r.FormValue("target_date")),
		Earliest:      strings.TrimSpace(r.FormValue("earliest")),
		Latest:        strings.TrimSpace(r.FormValue("latest")),
		CurrentTime:   strings.TrimSpace(r.FormValue("current_time")),
		RequiredSeats: atoi("required_seats", 4),
		AcceptAtLeast: r.FormValue("accept_at_least") != "",
		PlayerIDs:     splitCSV(r.FormValue("player_ids")),
		PollSeconds:   atoi("poll_seconds", 20),
		MaxMinutes:    atoi("max_minutes", 120),
	}
	if err := p.Validate(); err != nil {
		s.render(w, "templates/new_job.html", tmplData{Title: "New Job", User: uid, Flash: err.Error()})
		return
	}

	userEnc, err := s.Creds.EncryptToString(p.Username)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	passEnc, err := s.Creds.EncryptToString(p.Password)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	j := jobs.Job{
		UserID:        uid,
		ClubSlug:      p.ClubSlug,
		CourseID:      p.CourseID,
		UsernameEnc:   userEnc,
		PasswordEnc:   passEnc,
		TargetDate:    p.TargetDate,
		Earliest:      p.Earliest,
		Latest:        p.Latest,
		CurrentTime:   p.CurrentTime,
		RequiredSeats: p.RequiredSeats,
		AcceptAtLeast: p.AcceptAtLeast,
		PlayerIDs:     p.PlayerIDs,
		PollSeconds:   p.PollSeconds,
		MaxMinutes:    p.MaxMinutes,
	}
	if _, err := s.Jobs.Create(r.Context(), j); err != nil {
		s.Log.Errorf("create job: %v", err)
		s.render(w, "templates/new_job.html", tmplData{Title: "New Job", User: uid, Flash: "Failed to create job"})
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleJobToggle(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	j, err := s.Jobs.GetForUser(r.Context(), id, uid)
	if err != nil {
		if db.IsNotFound(err) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	next := jobs.StatusStopped
	if j.Status == jobs.StatusStopped {
		next = jobs.StatusActive
	}
	if err := s.Jobs.SetStatus(r.Context(), j.ID, next); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleJobDelete(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err := s.Jobs.Delete(r.Context(), id, uid); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleClubSearch(w http.ResponseWriter, r *http.Request) {
	results, err := s.Clubs.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.Log.Errorf("club search: %v", err)
		writeJSON(w, map[string]any{"results": []clubs.Club{}})
		return
	}
	if results == nil {
		results = []clubs.Club{}
	}
	writeJSON(w, map[string]any{"results": results})
}

// handlePlayerSearch logs into the portal with the member credentials from
// the request body and queries the club's autocomplete. Credentials travel
// in the body, never the URL.
func (s *Server) handlePlayerSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	club := strings.TrimSpace(r.URL.Query().Get("club"))
	date := strings.TrimSpace(r.URL.Query().Get("date"))

	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if q == "" || club == "" || body.Username == "" || body.Password == "" {
		writeJSON(w, map[string]any{"results": []players.Player{}})
		return
	}
	if date == "" {
		date = time.Now().AddDate(0, 0, 7).Format("2006/01/02")
	}

	client := brs.NewClient(s.PortalBaseURL, club)
	if err := client.Login(r.Context(), body.Username, body.Password); err != nil {
		writeJSON(w, map[string]any{"results": []players.Player{}, "error": "portal login failed"})
		return
	}
	results, err := players.Search(r.Context(), client, date, q)
	if err != nil {
		writeJSON(w, map[string]any{"results": []players.Player{}, "error": err.Error()})
		return
	}
	if results == nil {
		results = []players.Player{}
	}
	writeJSON(w, map[string]any{"results": results})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (s *Server) render(w http.ResponseWriter, name string, data tmplData) {
	t, err := template.ParseFS(fs, "templates/base.html", name)
	if err != nil {
		http.Error(w, "template error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.ExecuteTemplate(w, "base", data); err != nil {
		s.Log.Errorf("render %s: %v", name, err)
	}
}

// Start serves h until ctx is done, then shuts down gracefully.
func Start(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	return srv.ListenAndServe()
}
