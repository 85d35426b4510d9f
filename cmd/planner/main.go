package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/dsgvo/journeyplanner/internal/api"
	"github.com/dsgvo/journeyplanner/internal/cache"
	"github.com/dsgvo/journeyplanner/internal/calendar"
	"github.com/dsgvo/journeyplanner/internal/config"
	"github.com/dsgvo/journeyplanner/internal/geo"
	"github.com/dsgvo/journeyplanner/internal/graph"
	"github.com/dsgvo/journeyplanner/internal/ingest/gtfsfeed"
	"github.com/dsgvo/journeyplanner/internal/ingest/osm"
	"github.com/dsgvo/journeyplanner/internal/itinerary"
	"github.com/dsgvo/journeyplanner/internal/routing"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML config file")
	build := flag.Bool("build", false, "Build the graph from the configured inputs")
	restore := flag.Bool("restore", false, "Restore the graph from the configured output file")
	save := flag.Bool("save", false, "Save the built graph to the configured output file (requires --build)")
	serve := flag.Bool("serve", false, "Plan the journey given by four positional lat/lng arguments, then serve the HTTP API")
	listen := flag.String("listen", ":8080", "HTTP listen address for --serve")
	date := flag.String("date", "20240115", "Query date for --serve, YYYYMMDD")
	timeOfDay := flag.String("time", "12:00:00", "Query departure time for --serve, HH:MM:SS")
	allowReopen := flag.Bool("allow-reopen", false, "Strict-optimality search mode: never finalize a node on pop")
	useCache := flag.Bool("cache", false, "Enable the Redis plan cache (requires a reachable Redis)")
	flag.Parse()

	if *build == *restore {
		fmt.Fprintln(os.Stderr, "Usage: planner --config=<path> (--build [--save] | --restore) [--serve <from_lat> <from_lng> <to_lat> <to_lng>]")
		flag.PrintDefaults()
		os.Exit(2)
	}
	if *save && !*build {
		log.Fatalf("--save requires --build")
	}
	if *serve && flag.NArg() != 4 {
		log.Fatalf("--serve requires four positional arguments: <from_lat> <from_lng> <to_lat> <to_lng>")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var store *graph.Store
	if *build {
		store, err = buildGraph(cfg)
		if err != nil {
			log.Fatalf("Build failed: %v", err)
		}
		if *save {
			log.Printf("Saving graph to %s...", cfg.Build.Output)
			if err := store.Save(cfg.Build.Output); err != nil {
				log.Fatalf("Save failed: %v", err)
			}
			log.Println("✓ Graph saved")
		}
	} else {
		log.Printf("Restoring graph from %s...", cfg.Build.Output)
		store, err = graph.Load(cfg.Build.Output)
		if err != nil {
			log.Fatalf("Restore failed: %v", err)
		}
		log.Printf("✓ Graph restored (%d nodes)", store.NodeCount())
	}

	if !*serve {
		return
	}

	if *useCache {
		if _, err := cache.GetClient(); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer cache.Close()
		log.Println("✓ Redis connection established")
	}

	if err := planOnce(store, cfg, flag.Args(), *date, *timeOfDay, *allowReopen); err != nil {
		log.Fatalf("Routing failed: %v", err)
	}

	server := api.NewServer(store, *allowReopen, cfg.DefaultRouting, *useCache)
	app := server.NewApp()
	log.Printf("Listening on %s", *listen)
	if err := app.Listen(*listen); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}

func buildGraph(cfg *config.Config) (*graph.Store, error) {
	b := graph.NewBuilder()
	inputs := cfg.OrderedInputs()

	for i, in := range inputs {
		path, err := config.LocalPath(in.URL)
		if err != nil {
			return nil, err
		}

		switch in.Ingestor {
		case config.IngestorOSM:
			log.Printf("Step %d/%d: Ingesting street network from %s...", i+1, len(inputs), path)
			source, err := osm.OpenFixture(path)
			if err != nil {
				return nil, err
			}
			report, err := osm.Ingest(b, source)
			if err != nil {
				return nil, err
			}
			log.Printf("  %d/%d ways accepted, %d nodes, %d edges, %d unknown node refs skipped",
				report.WaysAccepted, report.WaysConsidered, report.NodesMaterialized, report.EdgesEmitted, report.UnknownNodeRefs)

		case config.IngestorGTFS:
			log.Printf("Step %d/%d: Ingesting GTFS feed from %s...", i+1, len(inputs), path)
			feed, err := gtfsfeed.ParseZip(path)
			if err != nil {
				return nil, err
			}
			result, err := gtfsfeed.Ingest(b, feed)
			if err != nil {
				return nil, err
			}
			r := result.Report
			log.Printf("  %d/%d stops accepted (%d missing fields, %d no street node, %d too far), %d transit edges",
				r.StopsAccepted, r.StopsConsidered, r.StopsSkippedMissingFields,
				r.StopsNoNearbyStreetNode, r.StopsTooFarFromStreetNode, r.TransitEdgesEmitted)
		}
	}

	store := b.Build()
	log.Printf("✓ Graph built (%d nodes)", store.NodeCount())
	return store, nil
}

// planOnce runs the query given on the command line and prints the
// itinerary, proving the graph is routable before the listener starts.
func planOnce(store *graph.Store, cfg *config.Config, args []string, dateArg, timeArg string, allowReopen bool) error {
	coords := make([]float64, 4)
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return fmt.Errorf("positional argument %d is not a coordinate: %q", i+1, a)
		}
		coords[i] = v
	}

	year, month, day, err := gtfsfeed.ParseDate(dateArg)
	if err != nil {
		return err
	}
	d := calendar.DaysSinceEpoch(year, month, day)
	weekday := calendar.WeekdayForDate(d)
	startTime, err := gtfsfeed.ParseTimeToSeconds(timeArg)
	if err != nil {
		return err
	}

	from, _, ok := store.NearestStreetNode(geo.LatLng{Lat: coords[0], Lng: coords[1]})
	if !ok {
		return fmt.Errorf("no street node near the origin")
	}
	to, _, ok := store.NearestStreetNode(geo.LatLng{Lat: coords[2], Lng: coords[3]})
	if !ok {
		return fmt.Errorf("no street node near the destination")
	}

	router := routing.NewRouter(store, allowReopen)
	result, err := router.Search(context.Background(), from, to, uint32(startTime), d, weekday, routing.Params{
		WalkingSpeedMMPerS:   cfg.DefaultRouting.WalkingSpeedMMPerS,
		EstimatorSpeedMMPerS: cfg.DefaultRouting.EstimatorSpeedMMPerS,
	})
	if err != nil {
		return err
	}
	legs, err := itinerary.Reconstruct(store, result)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(legs, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	log.Printf("✓ Planned %d-leg itinerary, arrival at %ds", len(legs), result.ArrivalTime)
	return nil
}
