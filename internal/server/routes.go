package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - Sick leave records
	mux.HandleFunc("/api/sick-leaves", s.handleSickLeavesRoute) // GET (list), POST (submit form)
	mux.HandleFunc("/api/sick-leaves/", s.handleSickLeaveRoutes) // /{id}, /{id}/answers, /{id}/pdf, /{id}/pdf/jobs, /{id}/email

	// API routes - Artifacts
	mux.HandleFunc("/api/download/pdf/", s.app.ArtifactHandler.DownloadHandler)
	mux.HandleFunc("/api/cache/pdf/", s.app.ArtifactHandler.InvalidateHandler)
	mux.HandleFunc("/api/cache/stats", s.app.ArtifactHandler.CacheStatsHandler)

	// API routes - Jobs
	mux.HandleFunc("/api/jobs", s.app.JobHandler.ListJobsHandler)
	mux.HandleFunc("/api/jobs/pause", s.app.JobHandler.PauseHandler)
	mux.HandleFunc("/api/jobs/resume", s.app.JobHandler.ResumeHandler)
	mux.HandleFunc("/api/jobs/", s.app.JobHandler.GetJobHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.Handle("/metrics", s.app.Metrics.Handler())

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleSickLeavesRoute routes /api/sick-leaves requests (list and submit)
func (s *Server) handleSickLeavesRoute(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{
		"GET":  s.app.SickLeaveHandler.ListHandler,
		"POST": s.app.SickLeaveHandler.CreateHandler,
	})
}

// handleSickLeaveRoutes routes /api/sick-leaves/{id} and its subresources
func (s *Server) handleSickLeaveRoutes(w http.ResponseWriter, r *http.Request) {
	const prefix = "/api/sick-leaves/"

	// Order matters: "/pdf/jobs" must be tried before "/pdf"
	handled := RouteByPathSuffix(w, r, prefix, []PathSuffixRouter{
		{Suffix: "/pdf/jobs", Method: "POST", Handler: s.app.ArtifactHandler.QueuePDFHandler},
		{Suffix: "/pdf", Method: "GET", Handler: s.app.ArtifactHandler.GeneratePDFHandler},
		{Suffix: "/email", Method: "POST", Handler: s.app.ArtifactHandler.QueueEmailHandler},
		{Suffix: "/answers", Method: "POST", Handler: s.app.SickLeaveHandler.AnswersHandler},
	})
	if handled {
		return
	}

	// GET /api/sick-leaves/{id}
	if len(r.URL.Path) > len(prefix) {
		s.app.SickLeaveHandler.GetHandler(w, r)
		return
	}

	http.Error(w, "Not found", http.StatusNotFound)
}
