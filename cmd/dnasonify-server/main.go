package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"

	"github.com/cbegin/dnasonify-go"
	"github.com/cbegin/dnasonify-go/internal/api"
)

func main() {
	var (
		port        = flag.Int("port", 8080, "listen port")
		configPath  = flag.String("config", "", "YAML or JSON config holding the session defaults")
		maxSessions = flag.Int("max-sessions", 64, "maximum concurrent sessions (0 = unbounded)")
	)
	flag.Parse()

	cfg := dnasonify.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = dnasonify.LoadConfig(*configPath); err != nil {
			log.Fatal(err)
		}
	}

	reg := api.NewRegistry(cfg, *maxSessions)
	defer reg.Close()

	router := gin.Default()
	api.Register(router, reg)
	if err := router.Run(fmt.Sprintf(":%d", *port)); err != nil {
		log.Fatal(err)
	}
}
