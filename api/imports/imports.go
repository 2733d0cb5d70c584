package imports

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"

	"DebtPortfolioSaas/api"
	middlewares "DebtPortfolioSaas/api/middlewares"
)

func StartImportsService(pool *pgxpool.Pool) {
	store := NewStore(pool)
	objects := NewObjectStore()
	runner := NewPipelineRunner(store, objects)

	router := mux.NewRouter()
	router.HandleFunc("/imports/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Imports Service is healthy"))
	})

	router.Handle("/imports/upload",
		middlewares.PortfolioAccessMiddleware(pool)(UploadImport(store, objects))).Methods("POST")
	router.HandleFunc("/imports/commit", CommitImport(store, runner)).Methods("POST")

	router.HandleFunc("/imports/jobs", ListJobsHandler(store)).Methods("GET")
	router.HandleFunc("/imports/jobs/{id}", GetJobHandler(store)).Methods("GET")
	router.HandleFunc("/imports/jobs/{id}/cancel", CancelJobHandler(store)).Methods("POST")
	router.HandleFunc("/imports/jobs/{id}/resume", ResumeJobHandler(store, runner)).Methods("POST")
	router.HandleFunc("/imports/jobs/{id}", DeleteJobHandler(store, objects)).Methods("DELETE")

	router.HandleFunc("/imports/templates", ListTemplatesHandler(store)).Methods("GET")
	router.HandleFunc("/imports/templates", CreateTemplateHandler(store)).Methods("POST")
	router.HandleFunc("/imports/templates/{id}", UpdateTemplateHandler(store)).Methods("PUT")
	router.HandleFunc("/imports/templates/{id}", DeleteTemplateHandler(store)).Methods("DELETE")

	api.LogInfo("Imports Service started on :7143")
	if err := http.ListenAndServe(":7143", router); err != nil {
		log.Fatalf("Imports Service failed: %v", err)
	}
}
