package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"

	"github.com/labstack/echo/v4"
	"github.com/loykin/sasswatch"
)

// embedded_http_echo: mount the sasswatch API inside an existing Echo server.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := sasswatch.DefaultConfig()
	if base := os.Getenv("API_BASE"); base != "" {
		cfg.BasePath = base
	}
	svc, err := sasswatch.New(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer svc.Close()

	e := echo.New()
	h := svc.Handler()
	e.Any(cfg.BasePath, echo.WrapHandler(h))
	e.Any(cfg.BasePath+"/*", echo.WrapHandler(h))

	go func() {
		<-ctx.Done()
		_ = e.Shutdown(context.Background())
	}()

	log.Println("starting echo server on :8080 with base", cfg.BasePath)
	if err := e.Start(":8080"); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
