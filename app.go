package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/kwv/roomsense/occupancy"
)

// App encapsulates the application state and dependencies
type App struct {
	Config    *occupancy.Config
	Holder    *occupancy.Holder
	Store     *occupancy.Store
	Publisher *occupancy.Publisher

	// CLI Flags (effectively dependencies)
	ConfigFile  string
	TrainFile   string
	PredictFile string
	OutputFile  string
	PlotRoom    string
	PlotFormat  string
	HttpPort    int
	HttpMode    bool

	mu         sync.RWMutex
	lastScored map[string]occupancy.ScoredTable
}

// AppOptions carries parsed CLI flags into the App.
type AppOptions struct {
	ConfigFile  string
	TrainFile   string
	PredictFile string
	OutputFile  string
	PlotRoom    string
	PlotFormat  string
	HttpPort    int
	HttpMode    bool
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		Holder:     occupancy.NewHolder(),
		lastScored: make(map[string]occupancy.ScoredTable),
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.TrainFile = opts.TrainFile
	a.PredictFile = opts.PredictFile
	a.OutputFile = opts.OutputFile
	a.PlotRoom = opts.PlotRoom
	a.PlotFormat = opts.PlotFormat
	a.HttpPort = opts.HttpPort
	a.HttpMode = opts.HttpMode
}

// Setup loads configuration and connects the optional collaborators
// (Redis store, MQTT publisher). Both are disabled when unconfigured.
func (a *App) Setup() error {
	if a.ConfigFile != "" {
		config, err := occupancy.LoadConfig(a.ConfigFile)
		if err != nil {
			return err
		}
		a.Config = config
	} else {
		a.Config = occupancy.DefaultConfig()
	}

	if a.Config.Redis.Addr != "" {
		store, err := occupancy.NewStore(a.Config.Redis)
		if err != nil {
			return fmt.Errorf("setting up store: %w", err)
		}
		a.Store = store
	}

	client, err := occupancy.InitMQTT(a.Config.MQTT)
	if err != nil {
		return fmt.Errorf("setting up MQTT: %w", err)
	}
	a.Publisher = occupancy.NewPublisher(client, a.Config.MQTT.TopicPrefix)

	return nil
}

// newRunID labels one train or predict batch for persistence and logs.
func newRunID() string {
	return "RUN-" + time.Now().Format("2006-01-02-15-04")
}

// RunTrainFile trains a fresh registry from a timeslot export file and
// swaps it in as current.
func (a *App) RunTrainFile(ctx context.Context) error {
	rooms, err := a.loadRooms(a.TrainFile)
	if err != nil {
		return err
	}
	log.Printf("Training on %d rooms from %s", len(rooms), a.TrainFile)

	report, err := a.Train(ctx, rooms)
	if err != nil {
		return err
	}
	log.Printf("Training complete: %d rooms scored, %d failed", len(report.Scored), len(report.Failed))
	return nil
}

// Train builds a registry from the given rooms, swaps it in as current,
// and publishes the run outcome. Used by both the CLI and the HTTP route.
func (a *App) Train(ctx context.Context, rooms map[string][]occupancy.Timeslot) (*occupancy.RunReport, error) {
	runID := newRunID()
	registry := occupancy.NewRegistry(a.Config)

	report, err := registry.Train(ctx, rooms)
	if err != nil {
		return nil, fmt.Errorf("training %s: %w", runID, err)
	}

	a.Holder.Swap(registry)
	a.rememberScored(report)

	a.publishRun(runID, "trained", report)
	return report, nil
}

// RunPredictFile scores a timeslot export file against the current
// registry, combines originals with scores, and delivers the flat table
// to the output file and, when configured, the store.
func (a *App) RunPredictFile(ctx context.Context) error {
	registry := a.Holder.Current()
	if registry == nil {
		return fmt.Errorf("no trained model available; run training first")
	}

	rooms, err := a.loadRooms(a.PredictFile)
	if err != nil {
		return err
	}
	log.Printf("Predicting %d rooms from %s", len(rooms), a.PredictFile)

	runID := newRunID()
	report, err := registry.Predict(ctx, rooms)
	if err != nil {
		return fmt.Errorf("predicting %s: %w", runID, err)
	}
	a.rememberScored(report)

	combined := occupancy.CombineFrames(rooms, report.Scored)

	if a.Store != nil {
		if err := a.Store.PushCombined(ctx, runID, combined); err != nil {
			return err
		}
		log.Printf("Pushed %d combined rows as %s", len(combined), runID)
	}
	a.publishRun(runID, "predicted", report)

	return a.writeCombined(combined)
}

// RunPlot renders the last scored table for one room to the output file.
func (a *App) RunPlot() error {
	scored, ok := a.LastScored(a.PlotRoom)
	if !ok {
		return fmt.Errorf("no scored data for room %s; run a batch first", a.PlotRoom)
	}

	out := a.OutputFile
	if out == "" {
		out = a.PlotRoom + "-plot." + a.PlotFormat
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("creating plot file: %w", err)
	}
	defer f.Close()

	renderer := occupancy.NewPlotRenderer(a.Config.Plots, a.Config.Heuristics.Night)
	switch a.PlotFormat {
	case "svg":
		err = renderer.RenderSVG(f, a.PlotRoom, scored)
	default:
		err = renderer.RenderPNG(f, a.PlotRoom, scored)
	}
	if err != nil {
		return err
	}
	log.Printf("Wrote plot for %s to %s", a.PlotRoom, out)
	return nil
}

// LastScored returns the most recent scored table for a room.
func (a *App) LastScored(room string) (occupancy.ScoredTable, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	t, ok := a.lastScored[room]
	return t, ok
}

func (a *App) rememberScored(report *occupancy.RunReport) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for room, scored := range report.Scored {
		a.lastScored[room] = scored
	}
}

func (a *App) publishRun(runID, phase string, report *occupancy.RunReport) {
	if a.Publisher == nil || !a.Publisher.Enabled() {
		return
	}
	if err := a.Publisher.PublishReport(report); err != nil {
		log.Printf("Error publishing room summaries: %v", err)
	}
	err := a.Publisher.PublishRunStatus(occupancy.RunStatus{
		RunID:  runID,
		Phase:  phase,
		Rooms:  len(report.Scored),
		Failed: len(report.Failed),
	})
	if err != nil {
		log.Printf("Error publishing run status: %v", err)
	}
}

func (a *App) loadRooms(path string) (map[string][]occupancy.Timeslot, error) {
	rows, err := occupancy.ParseTimeslotFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return occupancy.GroupByRoom(rows), nil
}

func (a *App) writeCombined(combined []occupancy.CombinedRow) error {
	if a.OutputFile == "" {
		enc := json.NewEncoder(os.Stdout)
		return enc.Encode(combined)
	}

	f, err := os.Create(a.OutputFile)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	if err := enc.Encode(combined); err != nil {
		return fmt.Errorf("writing combined output: %w", err)
	}
	log.Printf("Wrote %d combined rows to %s", len(combined), a.OutputFile)
	return nil
}
