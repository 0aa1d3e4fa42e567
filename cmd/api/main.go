package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"town-desk/api/router"
	"town-desk/config"
	"town-desk/db"
	_ "town-desk/docs"
	"town-desk/eventbus"
)

// @title           Town Desk API
// @version         1.0
// @description     Ops API for the local news content pipeline
// @BasePath        /api/v1
func main() {
	config.InitApp()
	cfg := config.GetConfig()
	if err := db.Init(context.Background()); err != nil {
		log.Fatal(err)
	}

	bus, err := eventbus.NewKafkaEventBus(eventbus.GetBrokers())
	if err != nil {
		log.Fatal(err)
	}
	defer bus.Close()

	r := router.New(cfg, bus)

	addr := os.Getenv("API_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	if err := r.Run(addr); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
