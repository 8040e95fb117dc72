// Command stereomap builds occupancy grid maps from recorded stereo
// disparity logs and localises recorded observations against them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"

	"github.com/banshee-data/stereogrid/internal/config"
	"github.com/banshee-data/stereogrid/internal/monitoring"
	"github.com/banshee-data/stereogrid/internal/stereo/disparitylog"
	"github.com/banshee-data/stereogrid/internal/stereo/geometry"
	"github.com/banshee-data/stereogrid/internal/stereo/grid"
	"github.com/banshee-data/stereogrid/internal/stereo/mapdb"
	"github.com/banshee-data/stereogrid/internal/stereo/metagrid"
	"github.com/banshee-data/stereogrid/internal/stereo/posepub"
	"github.com/banshee-data/stereogrid/internal/stereo/sensormodel"
	"github.com/banshee-data/stereogrid/internal/stereo/visualiser"
	"github.com/banshee-data/stereogrid/internal/version"
)

var (
	configFile  = flag.String("config", "", "Engine config JSON (default: config/engine.defaults.json)")
	logDir      = flag.String("log", "", "Disparity log directory to map from")
	observeDir  = flag.String("observe", "", "Disparity log to localise (localise mode, default: -log)")
	pathFile    = flag.String("path", "", "Path JSON (default: <log>/path.json)")
	dbFile      = flag.String("db", "stereogrid.db", "SQLite map database")
	mode        = flag.String("mode", "map", "map or localise")
	sessionName = flag.String("session", "default", "Map session name")
	fromDB      = flag.Bool("from-db", false, "Localise against the latest stored map session instead of replaying -log")
	plotDir     = flag.String("plots", "", "Write plots and an HTML report to this directory")
	outFile     = flag.String("out", "", "Write the localisation log as JSON lines")
	startRecord = flag.Int("start", 0, "Skip this many records of the observed log (localise mode)")
	useMQTT     = flag.Bool("mqtt", false, "Publish localised poses to the configured MQTT broker")
	headHeight  = flag.Float64("head-height", 250, "Camera height above the body position in mm")
	logLevel    = flag.String("log-level", "ops", "Engine log level: off, ops, diag or trace")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String("stereomap"))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Printf("interrupted")
			os.Exit(130)
		}
		log.Fatalf("stereomap: %v", err)
	}
}

func loadConfig() (*config.EngineConfig, error) {
	if *configFile == "" {
		return config.MustLoadDefaultConfig(), nil
	}
	return config.LoadEngineConfig(*configFile)
}

func setLogLevel(level string) error {
	s, err := monitoring.StreamsForLevel(level, os.Stderr)
	if err != nil {
		return err
	}
	sensormodel.SetLogWriters(s.Ops, s.Diag, s.Trace)
	grid.SetLogWriters(s.Ops, s.Diag, s.Trace)
	metagrid.SetLogWriters(s.Ops, s.Diag, s.Trace)
	return nil
}

func run(ctx context.Context) error {
	if *mode != "map" && *mode != "localise" {
		return fmt.Errorf("unknown mode %q (want map or localise)", *mode)
	}
	if *logDir == "" {
		return fmt.Errorf("-log is required")
	}
	if err := setLogLevel(*logLevel); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	model, err := sensormodel.ConfigFromEngine(cfg).Build()
	if err != nil {
		return err
	}
	mcfg := metagrid.ConfigFromEngine(cfg)
	robot := geometry.SingleCameraGeometry(cfg.GetBaselineMM(), *headHeight)
	buf, err := metagrid.New(mcfg, model, robot)
	if err != nil {
		return err
	}

	rp, err := disparitylog.NewReplayer(*logDir)
	if err != nil {
		monitoring.Logf("no disparity log, continuing without observations: %v", err)
	}
	defer rp.Close()

	pf := *pathFile
	if pf == "" {
		pf = filepath.Join(*logDir, disparitylog.PathFile)
	}
	path, err := disparitylog.LoadPath(pf)
	if err != nil {
		monitoring.Logf("no path, continuing without grid centres: %v", err)
	}
	buf.SetPath(path)
	log.Printf("%s: %d records over %d path samples, %d grid centres",
		*logDir, rp.TotalRecords(), len(path), len(buf.GridCentres()))

	db, err := mapdb.Open(*dbFile)
	if err != nil {
		return err
	}
	defer db.Close()

	params := map[string]interface{}{
		"log":          *logDir,
		"cell_size_mm": mcfg.Grid.CellSizeMM,
		"dimension":    mcfg.Grid.DimensionCells,
		"spacing":      mcfg.SpacingFactor,
	}

	if *mode == "map" {
		return runMap(ctx, buf, rp, path, db, params)
	}
	return runLocalise(ctx, cfg, buf, rp, db, params)
}

func runMap(ctx context.Context, buf *metagrid.Buffer, rp *disparitylog.Replayer, path []r3.Vector, db *mapdb.MapDB, params map[string]interface{}) error {
	session, err := db.CreateSession(*sessionName, "map", params)
	if err != nil {
		return err
	}
	buf.SetArchive(db, session.ID)

	for i, pos := range path {
		if err := ctx.Err(); err != nil {
			return err
		}
		buf.MoveToNextLocalGrid(pos)
		recs, err := rp.Observations(i)
		if err != nil {
			monitoring.Logf("path sample %d: mapping %d readable records: %v", i, len(recs), err)
		}
		for _, rec := range recs {
			if o, ok := buf.Observe(rec); ok {
				buf.Map(o)
			}
		}
	}
	if err := buf.Archive(); err != nil {
		return err
	}
	centres, err := db.TileCentres(session.ID)
	if err != nil {
		return err
	}
	log.Printf("map session %s: %d grids stored, %d swaps", session.ID, len(centres), buf.Swaps())
	return writeReport(buf, nil)
}

func runLocalise(ctx context.Context, cfg *config.EngineConfig, buf *metagrid.Buffer, rp *disparitylog.Replayer, db *mapdb.MapDB, params map[string]interface{}) error {
	if *fromDB {
		mapSession, err := db.LatestSession(*sessionName, "map")
		if err != nil {
			return fmt.Errorf("no stored map session %q: %w", *sessionName, err)
		}
		buf.SetRestore(db, mapSession.ID)
		params["map_session"] = mapSession.ID
	} else if rp != nil {
		buf.SetSource(rp)
	}

	obs := rp
	if *observeDir != "" && *observeDir != *logDir {
		var err error
		if obs, err = disparitylog.NewReplayer(*observeDir); err != nil {
			monitoring.Logf("no observed log, nothing to localise: %v", err)
		}
		defer obs.Close()
		params["observe"] = *observeDir
	}
	if *startRecord > 0 {
		if err := obs.Seek(*startRecord); err != nil {
			return err
		}
		params["start"] = *startRecord
	}

	session, err := db.CreateSession(*sessionName, "localise", params)
	if err != nil {
		return err
	}

	if *useMQTT {
		broker := cfg.GetMQTTBroker()
		if broker == "" {
			return fmt.Errorf("-mqtt needs mqtt_broker in the engine config")
		}
		runID := obs.Header().RunID
		pub, disconnect, err := posepub.Connect(broker, "stereomap-"+uuid.NewString()[:8], cfg.GetMQTTTopic(), runID)
		if err != nil {
			return err
		}
		defer disconnect()
		buf.SetPublisher(pub)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, i, err := obs.ReadRecord()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			monitoring.Logf("path sample %d: skipping unreadable record: %v", i, err)
			continue
		}
		entry, err := buf.LocaliseRecord(i, rec)
		if err != nil {
			monitoring.Logf("path sample %d: %v", i, err)
			continue
		}
		if err := db.InsertLocalisation(session.ID, toRecord(entry)); err != nil {
			return err
		}
	}

	entries := buf.Log()
	matched := 0
	for _, e := range entries {
		if e.Matched {
			matched++
		}
	}
	log.Printf("localise session %s: %d/%d matched, %d swaps, max correction %.0fmm",
		session.ID, matched, len(entries), buf.Swaps(), metagrid.MaxCorrection(entries))

	if *outFile != "" {
		f, err := os.Create(*outFile)
		if err != nil {
			return err
		}
		if err := buf.WriteLog(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return writeReport(buf, entries)
}

func toRecord(e metagrid.LogEntry) mapdb.LocalisationRecord {
	r := mapdb.LocalisationRecord{
		PathIndex: e.PathIndex,
		GridIndex: e.GridIndex,
		OffsetX:   e.Offset.X,
		OffsetY:   e.Offset.Y,
		OffsetPan: e.Offset.Pan,
		Swapped:   e.Swapped,
	}
	if e.Matched {
		s := e.Score
		r.Score = &s
	}
	return r
}

func writeReport(buf *metagrid.Buffer, entries []metagrid.LogEntry) error {
	if *plotDir == "" {
		return nil
	}
	if err := os.MkdirAll(*plotDir, 0755); err != nil {
		return err
	}
	active := buf.Active()
	rays := active.Model().Rays
	if err := visualiser.PlotRayModel(rays, active.CellSizeMM(), []int{rays.MinDisparity, 10, 20, 40, rays.MaxDisparity}, filepath.Join(*plotDir, "ray_model.png")); err != nil {
		return err
	}
	if len(entries) > 0 {
		if _, err := visualiser.PlotLocalisation(entries, *plotDir); err != nil {
			return err
		}
	}
	f, err := os.Create(filepath.Join(*plotDir, "report.html"))
	if err != nil {
		return err
	}
	defer f.Close()
	if err := visualiser.RenderReport(f, []*grid.OccupancyGrid{buf.Grid(0), buf.Grid(1)}, entries, 0.6); err != nil {
		return err
	}
	log.Printf("wrote plots to %s", *plotDir)
	return nil
}
