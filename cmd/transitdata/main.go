package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	lib "github.com/theoremus-urban-solutions/transitdata"
	"github.com/theoremus-urban-solutions/transitdata/catalog"
	"github.com/theoremus-urban-solutions/transitdata/config"
	"github.com/theoremus-urban-solutions/transitdata/internal/logging"
	"github.com/theoremus-urban-solutions/transitdata/network"
	"github.com/theoremus-urban-solutions/transitdata/store"
)

func main() {
	mode := flag.String("mode", "oneshot", "oneshot|daemon|plan|catalog|evaluate")
	configPath := flag.String("config", "", "config file (default: config.yml or ./data/config.yml)")
	feedName := flag.String("feed", "", "feed name or key from config.feeds[]")
	only := flag.String("only", "", "limit the run to one dataset: gtfs|realtime|lodes")
	verbose := flag.Bool("verbose", false, "debug logging")
	designPath := flag.String("design", "", "design file for -mode=evaluate")
	reportPath := flag.String("report", "", "YAML report to append evaluations to")
	resultsPath := flag.String("results", "", "JSON result list to convert into -report")
	overwrite := flag.Bool("overwrite", false, "reset the report header before writing")
	flag.Parse()

	logging.InitLogging()
	logging.SetVerbose(*verbose)

	if *mode == "evaluate" {
		if err := evaluate(*designPath, *reportPath, *resultsPath, *overwrite); err != nil {
			logging.Errorf("evaluate: %v", err)
			os.Exit(1)
		}
		return
	}

	var err error
	if *configPath != "" {
		err = config.LoadFromFile(*configPath)
	} else {
		err = config.LoadAppConfig()
	}
	if err != nil {
		logging.Errorf("config: %v", err)
		os.Exit(1)
	}
	cfg := &config.Config

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := lib.OpenStore(ctx, cfg.Storage)
	if err != nil {
		logging.Errorf("storage: %v", err)
		os.Exit(1)
	}

	if *mode == "catalog" {
		if err := printCatalog(ctx, cfg, st); err != nil {
			logging.Errorf("catalog: %v", err)
			os.Exit(1)
		}
		return
	}

	runner, err := lib.NewRunner(ctx, cfg, st)
	if err != nil {
		logging.Errorf("runner: %v", err)
		os.Exit(1)
	}
	opts := lib.RunOptions{Feed: *feedName, Only: *only}

	switch *mode {
	case "oneshot":
		run, err := runner.Run(ctx, opts)
		if err != nil {
			logging.Errorf("run %s: %v", run.ID, err)
			os.Exit(1)
		}
	case "plan":
		results, err := runner.Plan(ctx, opts)
		if err != nil {
			logging.Errorf("plan: %v", err)
			os.Exit(1)
		}
		for _, r := range results {
			if r.Err != nil {
				fmt.Printf("%-8s %-40s %v\n", r.Status, r.Job, r.Err)
				continue
			}
			fmt.Printf("%-8s %-40s %s %s\n", r.Status, r.Job, r.Key, r.Detail)
		}
	case "daemon":
		server := lib.NewServer(ctx, runner, cfg.Server.Port, opts)
		go lib.HandleGracefulShutdown(server, cancel)
		server.Start()

		interval := time.Duration(cfg.Run.IntervalMinutes) * time.Minute
		if err := lib.NewScheduler(runner, interval, opts).Start(ctx); err != nil {
			logging.Errorf("scheduler: %v", err)
			os.Exit(1)
		}
	default:
		logging.Errorf("unknown mode %q", *mode)
		os.Exit(2)
	}
}

func printCatalog(ctx context.Context, cfg *config.AppConfig, st store.Store) error {
	m, err := store.LoadManifest(ctx, st)
	if err != nil {
		return err
	}
	return catalog.RenderReadme(os.Stdout, catalog.Merge(catalog.Default(), cfg.Catalog.Datasets), m.Artifacts())
}

func evaluate(designPath, reportPath, resultsPath string, overwrite bool) error {
	if resultsPath != "" {
		if reportPath == "" {
			return errors.New("-results needs -report")
		}
		n, err := network.ConvertResults(resultsPath, reportPath, overwrite)
		if err != nil {
			return err
		}
		logging.Infof("converted %d results into %s", n, reportPath)
		return nil
	}
	if designPath == "" {
		return errors.New("-design is required")
	}

	f, err := network.LoadDesignFile(designPath)
	if err != nil {
		return err
	}
	d, strategy, err := f.Build()
	if err != nil {
		return err
	}
	if err := d.AssignBuses(strategy); err != nil {
		return err
	}

	ev, err := d.Evaluate(0)
	if err != nil {
		return err
	}
	names, counts := d.Fleet.Counts()
	fleet := make([]string, len(names))
	for i := range names {
		fleet[i] = fmt.Sprintf("%dx %s", counts[i], names[i])
	}
	fmt.Printf("demand:        %s\n", d.DemandProfileName())
	fmt.Printf("fleet:         %s\n", strings.Join(fleet, ", "))
	fmt.Printf("avg tt/hop:    %.4f\n", ev.AvgTravelTime)
	fmt.Printf("avg discomfort:%.4f\n", ev.AvgDiscomfort)
	fmt.Printf("avg transfers: %.4f\n", ev.AvgTransfers)
	fmt.Printf("avg hops:      %.4f\n", ev.AvgHops)
	fmt.Printf("emissions:     %v\n", ev.Emissions)
	fmt.Printf("capital cost:  %d\n", ev.CapitalCost)
	fmt.Printf("operational:   %d\n", ev.OperationalCost)
	for _, od := range d.ODFlows {
		fmt.Printf("satisfied %d->%d: %d of %d\n", od.Origin, od.Destination, ev.Satisfied[fmt.Sprintf("%d_%d", od.Origin, od.Destination)], od.Flow)
	}

	if reportPath == "" {
		return nil
	}
	entry, err := network.NewReportEntry(d, 0)
	if err != nil {
		return err
	}
	model, err := network.WriteReport(reportPath, entry, overwrite)
	if err != nil {
		return err
	}
	logging.Infof("wrote %s to %s", model, reportPath)
	return nil
}
