package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Version is set at build time via -ldflags
var Version = "dev"

var (
	configFile  = flag.String("config", "", "Path to configuration file (defaults apply when empty)")
	trainFile   = flag.String("train", "", "Timeslot export JSON to train on")
	predictFile = flag.String("predict", "", "Timeslot export JSON to score")
	outputFile  = flag.String("output", "", "Output file for combined results or plots (default stdout)")
	plotRoom    = flag.String("plot", "", "Render a day-profile plot for the given room after scoring")
	plotFormat  = flag.String("plot-format", "png", "Plot output format: png or svg")
	httpMode    = flag.Bool("http", false, "Run HTTP serving mode")
	httpPort    = flag.Int("http-port", 8080, "HTTP server port (default 8080)")
)

func main() {
	flag.Parse()
	fmt.Printf("roomsense version: %s\n", Version)

	app := NewApp()
	app.ApplyOptions(AppOptions{
		ConfigFile:  *configFile,
		TrainFile:   *trainFile,
		PredictFile: *predictFile,
		OutputFile:  *outputFile,
		PlotRoom:    *plotRoom,
		PlotFormat:  *plotFormat,
		HttpPort:    *httpPort,
		HttpMode:    *httpMode,
	})

	if err := app.Setup(); err != nil {
		log.Fatalf("Setup failed: %v", err)
	}

	if app.HttpMode {
		runServe(app)
		return
	}

	if app.TrainFile == "" && app.PredictFile == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if app.TrainFile != "" {
		if err := app.RunTrainFile(ctx); err != nil {
			log.Fatalf("Training failed: %v", err)
		}
	}

	if app.PredictFile != "" {
		if err := app.RunPredictFile(ctx); err != nil {
			log.Fatalf("Prediction failed: %v", err)
		}
	}

	if app.PlotRoom != "" {
		if err := app.RunPlot(); err != nil {
			log.Fatalf("Plot failed: %v", err)
		}
	}
}

// runServe starts the HTTP server and blocks until interrupted.
func runServe(app *App) {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", app.HttpPort),
		Handler:      newHTTPServer(app),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on :%d", app.HttpPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
