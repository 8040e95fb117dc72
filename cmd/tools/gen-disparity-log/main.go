// Command gen-disparity-log writes a synthetic disparity log of a robot
// driving down a textured corridor.
package main

import (
	"flag"
	"log"
	"time"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/stereogrid/internal/config"
	"github.com/banshee-data/stereogrid/internal/stereo/disparitylog"
	"github.com/banshee-data/stereogrid/internal/stereo/geometry"
	"github.com/banshee-data/stereogrid/internal/stereo/sensormodel"
	"github.com/banshee-data/stereogrid/internal/stereo/synthetic"
)

func main() {
	output := flag.String("o", "corridor-log", "output directory")
	samples := flag.Int("n", 100, "number of path samples")
	step := flag.Float64("step", 50, "distance between samples in mm")
	width := flag.Float64("width", 1200, "corridor width in mm")
	noise := flag.Float64("noise", 0.25, "disparity noise in pixels")
	seed := flag.Int64("seed", 1, "noise seed")
	configFile := flag.String("config", "", "engine config JSON for the camera model")
	flag.Parse()

	cfg := config.MustLoadDefaultConfig()
	if *configFile != "" {
		var err error
		if cfg, err = config.LoadEngineConfig(*configFile); err != nil {
			log.Fatalf("load config: %v", err)
		}
	}
	cam := sensormodel.ConfigFromEngine(cfg).Camera
	robot := geometry.SingleCameraGeometry(cam.BaselineMM, 250)

	length := float64(*samples-1) * *step
	path := synthetic.StraightPath(r3.Vector{}, 0, length, *step)
	gen := synthetic.NewGenerator(
		synthetic.Corridor(length+cfg.GetMaxMappingRangeMM(), *width, 1000, 100),
		cam, robot, cfg.GetMaxMappingRangeMM(), *seed)
	gen.NoisePixels = *noise

	rec, err := disparitylog.NewRecorder(*output)
	if err != nil {
		log.Fatalf("create recorder: %v", err)
	}
	if err := gen.Run(rec, path, 0, time.Now().UnixNano(), int64(100*time.Millisecond)); err != nil {
		rec.Close()
		log.Fatalf("record: %v", err)
	}
	if err := rec.Close(); err != nil {
		log.Fatalf("close: %v", err)
	}
	log.Printf("wrote %d records over %d path samples to %s", rec.RecordCount(), len(path), *output)
}
