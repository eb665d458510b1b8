package main

import (
	"fmt"
	"log"
	"net/http"

	"autodidact/config"
	"autodidact/db"
	"autodidact/handlers"
	"autodidact/services"
	"autodidact/services/llm"
	"autodidact/services/refindex"
	"autodidact/services/sessionlog"
	"autodidact/services/tutor"

	"github.com/gorilla/mux"
)

func main() {
	cfg := config.Load()

	if cfg.DatabaseURL == "" {
		log.Fatal("DB_URL environment variable is required")
	}

	llmClient, err := llm.NewClient(cfg.LLMProvider, cfg.OpenAIAPIKey, cfg.AnthropicAPIKey)
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}

	if err := db.EnsureSchema(cfg.DatabaseURL); err != nil {
		log.Fatalf("Failed to ensure database schema: %v", err)
	}

	nodeRepo, err := db.NewPostgresNodeRepository(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize node database: %v", err)
	}
	defer nodeRepo.Close()

	projectRepo, err := db.NewPostgresProjectRepository(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize project database: %v", err)
	}
	defer projectRepo.Close()

	sessionRepo, err := db.NewPostgresSessionRepository(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize session database: %v", err)
	}
	defer sessionRepo.Close()

	// Reference retrieval is optional; without Pinecone the tutor teaches
	// from general knowledge.
	var refs tutor.ReferenceRetriever
	if cfg.PineconeAPIKey != "" {
		refService, err := refindex.NewService(cfg.PineconeAPIKey, cfg.OpenAIAPIKey, cfg.PineconeIndexName)
		if err != nil {
			log.Fatalf("Failed to initialize reference index service: %v", err)
		}
		refs = refService
	} else {
		log.Printf("[WARN] PINECONE_API_KEY not set, reference retrieval disabled")
	}

	journal := sessionlog.NewLogger(cfg.SessionLogDir)

	engine := tutor.NewService(llmClient, nodeRepo, projectRepo, sessionRepo, journal, refs)
	manager := tutor.NewManager(engine, sessionRepo)
	sessionHandler := handlers.NewSessionHandler(manager)

	graphService := services.NewGraphService(nodeRepo)
	graphHandler := handlers.NewGraphHandler(graphService)

	router := mux.NewRouter()

	router.Use(corsMiddleware)
	router.Use(jsonMiddleware)

	router.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("OPTIONS")

	sessionHandler.RegisterRoutes(router)
	graphHandler.RegisterRoutes(router)

	router.HandleFunc("/health", healthCheckHandler).Methods("GET")

	addr := ":" + cfg.Port
	fmt.Printf("Server starting on port %s\n", cfg.Port)

	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Expose-Headers", "*")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "healthy"}`))
}
