// Command onnxtag tags a single image with a model directory and prints one
// tag per line.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/stevecastle/wallkit/appconfig"
	"github.com/stevecastle/wallkit/logging"
	"github.com/stevecastle/wallkit/onnxtag"
)

func main() {
	var (
		modelDir   string
		imagePath  string
		threshold  float64
		ortLibPath string
		verbose    bool
	)

	flag.StringVar(&modelDir, "model-dir", os.Getenv("WALLKIT_MODEL_DIR"), "Directory holding "+onnxtag.ModelFile+" and "+onnxtag.LabelsFile)
	flag.StringVar(&imagePath, "image", "", "Path to the input image")
	flag.Float64Var(&threshold, "threshold", appconfig.DefaultThreshold, "Minimum probability for a tag")
	flag.StringVar(&ortLibPath, "ort", "", "Path to the onnxruntime shared library (or ONNXRUNTIME_SHARED_LIBRARY_PATH)")
	flag.BoolVar(&verbose, "v", false, "Debug logging")
	flag.Parse()

	level := "warn"
	if verbose {
		level = "debug"
	}
	logging.Setup(level)

	if modelDir == "" || imagePath == "" {
		fmt.Fprintln(os.Stderr, "Error: --model-dir and --image are required")
		flag.Usage()
		os.Exit(2)
	}
	if threshold <= 0 || threshold > 1 {
		fmt.Fprintln(os.Stderr, "Error: --threshold must be in (0, 1]")
		os.Exit(2)
	}

	m, err := onnxtag.Load(onnxtag.Options{ModelDir: modelDir, SharedLibraryPath: ortLibPath})
	if err != nil {
		log.Fatal().Err(err).Msg("load model")
	}
	defer m.Close()
	log.Debug().Int("labels", len(m.Labels())).Str("model_dir", modelDir).Msg("model loaded")

	tags, err := m.Tag(imagePath, threshold)
	if err != nil {
		m.Close()
		log.Fatal().Err(err).Str("image", imagePath).Msg("tag image")
	}
	for _, t := range tags {
		fmt.Println(t)
	}
}
