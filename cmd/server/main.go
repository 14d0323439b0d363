// cmd/server/main.go
package main

import (
	"log"
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/quangdm/xizach/internal/auth"
	"github.com/quangdm/xizach/internal/cache"
	"github.com/quangdm/xizach/internal/database"
	"github.com/quangdm/xizach/internal/handlers"
	"github.com/quangdm/xizach/internal/middleware"
)

func main() {
	auth.Init()
	database.ConnectDB()
	if err := cache.ConnectRedis(); err != nil {
		log.Printf("redis unavailable, round history disabled: %v", err)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	mux := http.NewServeMux()

	// user endpoints
	mux.HandleFunc("/user/create", handlers.CreateUserHandler)
	mux.HandleFunc("/user/login", handlers.LoginHandler)
	mux.HandleFunc("/user/me", handlers.MeHandler)
	mux.HandleFunc("/user/history", handlers.HistoryHandler)

	rs := handlers.NewRoomServer()

	// room endpoints
	mux.Handle("/room/create", middleware.LogMiddleware(logger)(http.HandlerFunc(
		rs.CreateRoomHandler,
	)))
	mux.Handle("/room/list", middleware.LogMiddleware(logger)(http.HandlerFunc(
		rs.ListRoomsHandler,
	)))

	// room websocket
	mux.Handle("/room/ws/", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.RoomWSHandler(logger, rs),
	)))

	// admin endpoints
	mux.Handle("/admin/transfer", middleware.LogMiddleware(logger)(http.HandlerFunc(
		rs.AdminTransferHandler,
	)))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
