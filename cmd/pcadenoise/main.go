package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"time"

	"github.com/pbnjay/memory"

	"pcadenoise/internal/logging"
	"pcadenoise/internal/models"
	"pcadenoise/internal/rest"
	"pcadenoise/pkg/config"
	"pcadenoise/pkg/denoise"
	"pcadenoise/pkg/imageio"
	"pcadenoise/pkg/metrics"
	"pcadenoise/pkg/noise"
	"pcadenoise/pkg/pca"
	"pcadenoise/pkg/visualization"
)

func main() {
	// Parse command line arguments
	inputPath := flag.String("input", "", "Grayscale or color image to denoise")
	outputPath := flag.String("output", "denoised.png", "Output image (png, jpg, tif or bmp)")
	configPath := flag.String("config", "pcadenoise.yaml", "YAML configuration file")
	patchSide := flag.Int("patch", 8, "Patch side length in pixels")
	overlap := flag.Int("overlap", -1, "Minimum patch overlap (negative: half the patch side)")
	global := flag.Bool("global", true, "One PCA for the whole image instead of one per tile")
	tiles := flag.Int("tiles", 4, "Number of tiles in local mode")
	thresholdKind := flag.String("threshold", "soft", "Shrinkage operator: hard or soft")
	shrinkKind := flag.String("shrink", "visu", "Threshold estimator: visu or bayes")
	sigma := flag.Float64("sigma", 0, "Noise standard deviation (<= 0: estimate)")
	blend := flag.String("blend", "last", "Overlap blending: last or average")
	numCores := flag.Int("cores", runtime.NumCPU(), "Number of tiles processed concurrently")
	addNoise := flag.Float64("add-noise", 0, "Add Gaussian noise of this sigma before denoising")
	seed := flag.Uint64("seed", 1, "Seed for -add-noise")
	referencePath := flag.String("reference", "", "Clean reference image for quality metrics")
	panelsDir := flag.String("panels", "", "Directory for comparison and eigenpatch panels")
	serve := flag.Bool("serve", false, "Serve the HTTP API instead of processing a file")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration to -config and exit")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			logging.Fatalf("Failed to write configuration: %v\n", err)
		}
		logging.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logging.Fatalf("Failed to load configuration: %v\n", err)
	}

	// Flags given on the command line override the configuration file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "patch":
			cfg.Processing.PatchSide = *patchSide
		case "overlap":
			cfg.Processing.MinOverlap = *overlap
		case "global":
			cfg.Processing.Global = *global
		case "tiles":
			cfg.Processing.TileCount = *tiles
		case "cores":
			cfg.Processing.NumCores = *numCores
		case "threshold":
			cfg.Threshold.Kind = *thresholdKind
		case "shrink":
			cfg.Threshold.Shrink = *shrinkKind
		case "sigma":
			cfg.Threshold.Sigma = *sigma
		case "blend":
			cfg.Threshold.Blend = *blend
		}
	})

	logging.SetVerbose(cfg.Output.Verbose)
	if cfg.Output.LogFile != "" {
		if err := logging.AlsoToFile(cfg.Output.LogFile); err != nil {
			logging.Fatalf("Failed to open log file: %v\n", err)
		}
	}
	defer logging.Close()

	if *serve {
		if err := rest.Serve(cfg); err != nil {
			logging.Fatalf("Server failed: %v\n", err)
		}
		return
	}

	if *inputPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	mode, err := imageio.ParseGrayscale(cfg.Output.Grayscale)
	if err != nil {
		logging.Fatalf("Invalid configuration: %v\n", err)
	}
	params, err := cfg.Params()
	if err != nil {
		logging.Fatalf("Invalid configuration: %v\n", err)
	}
	params.Progress = func(completed, total int, message string) {
		logging.Debugf("[%d/%d] %s\n", completed, total, message)
	}
	params.Warning = func(err error) {
		logging.Printf("Warning: %v\n", err)
	}

	logging.Println("================================")
	logging.Println("PATCH-BASED PCA IMAGE DENOISING")
	logging.Println("================================")
	logging.Debugf("Physical memory is %d MB, using up to %d cores\n", memory.TotalMemory()/1024/1024, params.NumCores)

	input, err := imageio.Load(*inputPath, mode)
	if err != nil {
		logging.Fatalf("Failed to load input: %v\n", err)
	}
	logging.Printf("Loaded %s (%dx%d)\n", *inputPath, input.Width, input.Height)

	if *addNoise > 0 {
		input, err = noise.AddGaussian(input, *addNoise, *seed)
		if err != nil {
			logging.Fatalf("Failed to add noise: %v\n", err)
		}
		logging.Printf("Added Gaussian noise with sigma %.2f (seed %d)\n", *addNoise, *seed)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	scope := "global"
	if !params.Global {
		scope = fmt.Sprintf("local, %d tiles", params.TileCount)
	}
	logging.Printf("Denoising with %dx%d patches (%s, %s/%s, blend %s)...\n",
		params.PatchSide, params.PatchSide, scope, params.Threshold, params.Shrink, params.Blend)

	denoiser := denoise.NewDenoiser(params)
	startTime := time.Now()
	output, err := denoiser.Denoise(ctx, input)
	if err != nil {
		logging.Fatalf("Denoising failed: %v\n", err)
	}
	processingTime := time.Since(startTime)

	if err := imageio.Save(*outputPath, output); err != nil {
		logging.Fatalf("Failed to save output: %v\n", err)
	}
	logging.Printf("\nDenoising completed in %.2f seconds!\n", processingTime.Seconds())
	logging.Printf("Output saved to: %s\n\n", *outputPath)

	for i, r := range denoiser.Reports() {
		if r.Skipped {
			logging.Debugf("Region %d at (%d,%d) %dx%d: skipped, smaller than a patch\n", i, r.PosX, r.PosY, r.Width, r.Height)
			continue
		}
		logging.Debugf("Region %d at (%d,%d) %dx%d: %d patches, sigma %.3f, lambda %.3f\n",
			i, r.PosX, r.PosY, r.Width, r.Height, r.Patches, r.Sigma, r.Lambda)
	}

	if *referencePath != "" {
		printMetrics(*referencePath, mode, input, output)
	}

	if *panelsDir != "" {
		var basis *pca.Basis
		for _, b := range denoiser.Bases() {
			if b != nil {
				basis = b
				break
			}
		}
		viewer := visualization.NewViewer(input, output, basis, params.PatchSide)
		if err := viewer.SavePanels(*panelsDir); err != nil {
			logging.Printf("Warning: failed to save panels: %v\n", err)
		} else {
			logging.Printf("Panels saved to: %s\n\n", *panelsDir)
		}
	}

	if params.SaveIntermediaryResults {
		logging.Println("Intermediary results saved to:")
		logging.Printf("%s\n", params.IntermediaryDir)
		logging.Println("- 01_input: Input image")
		if !params.Global {
			logging.Println("- 02_tiles: Tiles before denoising")
			logging.Println("- 04_denoised_tiles: Tiles after denoising")
		}
		logging.Println("- 03_eigenvalues: zstd-compressed eigenvalue spectra")
		logging.Println("- 05_output: Denoised image")
	}
}

// printMetrics compares input and output against a clean reference image
func printMetrics(referencePath string, mode imageio.Grayscale, input, output *models.PixelGrid) {
	reference, err := imageio.Load(referencePath, mode)
	if err != nil {
		logging.Printf("Warning: failed to load reference: %v\n", err)
		return
	}
	before, err := metrics.Compare(reference, input)
	if err != nil {
		logging.Printf("Warning: %v\n", err)
		return
	}
	after, err := metrics.Compare(reference, output)
	if err != nil {
		logging.Printf("Warning: %v\n", err)
		return
	}

	logging.Printf("Validation Metrics against %s:\n", referencePath)
	logging.Printf("=======================================\n")
	logging.Printf("%-6s %12s %12s\n", "", "input", "denoised")
	logging.Printf("%-6s %12.3f %12.3f\n", "MSE", before.MSE, after.MSE)
	logging.Printf("%-6s %12.3f %12.3f\n", "RMSE", before.RMSE, after.RMSE)
	logging.Printf("%-6s %12.3f %12.3f\n", "PSNR", before.PSNR, after.PSNR)
	logging.Printf("%-6s %12.4f %12.4f\n", "SSIM", before.SSIM, after.SSIM)
	if before.MSE > 0 {
		logging.Printf("MSE reduction: %.2f%%\n\n", 100*(1-after.MSE/before.MSE))
	}
}
