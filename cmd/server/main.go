// cmd/server/main.go
package main

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/blanks/internal/auth"
	"github.com/jason-s-yu/blanks/internal/config"
	"github.com/jason-s-yu/blanks/internal/deck"
	"github.com/jason-s-yu/blanks/internal/handlers"
	"github.com/jason-s-yu/blanks/internal/journal"
	"github.com/jason-s-yu/blanks/internal/lobby"
	"github.com/jason-s-yu/blanks/internal/middleware"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := auth.Init(); err != nil {
		log.Fatalf("auth init: %v", err)
	}

	j, err := journal.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("journal: %v", err)
	}
	defer j.Close()

	catalog := deck.NewClient(cfg.DeckCatalogURL, cfg.DeckFetchTimeout)

	store := lobby.NewStore(catalog, j, lobby.Options{
		GracePeriod: cfg.GracePeriod,
		MinPlayers:  cfg.MinPlayers,
	}, logger)

	srv := handlers.NewServer(store, logger)

	r := chi.NewRouter()
	r.Use(middleware.LogMiddleware(logger))

	r.Post("/lobby/create", handlers.CreateLobbyHandler(srv))
	r.Post("/lobby/join", handlers.JoinLobbyHandler(srv))
	r.Get("/lobby/list", handlers.ListLobbiesHandler(srv))
	r.Get("/lobby/ws/{code}", handlers.LobbyWSHandler(srv))

	logger.Infof("Running on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, r); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
