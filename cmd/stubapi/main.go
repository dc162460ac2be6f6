package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"

	"github.com/jmcveigh/portfolio-auth/internal/config"
	"github.com/jmcveigh/portfolio-auth/stubserver"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error running stub api: %s\n", err)
	}
	log.Printf("Stub api stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName() + " Stub")

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	handler, err := stubserver.New(stubserver.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("stubserver.New: %w", err)
	}

	server := &http.Server{Addr: c.GetPort(), Handler: handler}
	go listenAndServe(server)
	waitForStopSignal()
	return shutdown(server)
}

func listenAndServe(server *http.Server) error {
	log.Printf("Stub api listening on %s\n", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
