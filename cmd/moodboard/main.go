package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	"github.com/ivlev/moodboard/internal/analyzer"
	"github.com/ivlev/moodboard/internal/config"
	"github.com/ivlev/moodboard/internal/delivery"
	"github.com/ivlev/moodboard/internal/dimension"
	"github.com/ivlev/moodboard/internal/discovery"
	"github.com/ivlev/moodboard/internal/encoder"
	"github.com/ivlev/moodboard/internal/engine"
	"github.com/ivlev/moodboard/internal/layout"
	"github.com/ivlev/moodboard/internal/loader"
	"github.com/ivlev/moodboard/internal/renderer"
	"github.com/ivlev/moodboard/internal/scene"
	"github.com/ivlev/moodboard/internal/source"
	"github.com/ivlev/moodboard/internal/system"
	"github.com/ivlev/moodboard/internal/telemetry"
)

var inputExts = []string{".json", ".yaml", ".yml", ".png", ".jpg", ".jpeg", ".webp", ".pdf"}

func main() {
	os.Exit(run())
}

// run returns the process exit code, so deferred cleanup (open PDF
// surfaces, telemetry flush) runs on failures too.
func run() int {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Printf("[-] Config error: %v", err)
		return 1
	}

	inputPtr := flag.String("input", cfg.InputPath, "Scene file (.json/.yaml), image or PDF to export (default: newest file in input/)")
	recordsPtr := flag.String("records", "", "Image records file (.yaml/.json) for the gallery flow")
	queryPtr := flag.String("query", "", "Gallery flow: search records by words in title/category")
	categoryPtr := flag.String("category", "", "Gallery flow: pick records of one category")
	countPtr := flag.Int("count", 9, "Gallery flow: number of images")
	pagePtr := flag.Int("page", 1, "PDF page to capture (1-based)")
	outputPtr := flag.String("output", cfg.OutputDir, "Output directory")
	formatPtr := flag.String("format", "png", "Format: png, jpeg, webp, pdf, json")
	qualityPtr := flag.String("quality", "standard", "Quality: high, standard, compressed")
	templatePtr := flag.String("template", "", "Social template (see -templates)")
	widthPtr := flag.Int("width", 0, "Custom width (with -height)")
	heightPtr := flag.Int("height", 0, "Custom height (with -width)")
	bgPtr := flag.String("bg", "", "Background color, e.g. #ffffff")
	watermarkPtr := flag.Bool("watermark", false, "Stamp a watermark in the bottom-right corner")
	titlePtr := flag.String("title", "", "Title (file name, PDF properties, gallery heading)")
	descPtr := flag.String("description", "", "Description (second PDF page)")
	authorPtr := flag.String("author", "", "Author")
	tagsPtr := flag.String("tags", "", "Comma separated tags")
	statsPtr := flag.Bool("stats", cfg.ShowStats, "Print a performance report")
	listPtr := flag.Bool("templates", false, "List social templates and exit")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	presets := config.DefaultPresets()
	if cfg.PresetsPath != "" {
		presets, err = config.LoadPresets(cfg.PresetsPath)
		if err != nil {
			log.Printf("[-] Presets error: %v", err)
			return 1
		}
	}
	resolver := dimension.NewResolver(presets)

	if *listPtr {
		for _, name := range resolver.Templates() {
			d, _ := resolver.Resolve(dimension.Template(name), dimension.Dimensions{})
			fmt.Printf("%-16s %dx%d\n", name, d.Width, d.Height)
		}
		return 0
	}

	format, err := encoder.ParseFormat(*formatPtr)
	if err != nil {
		log.Printf("[-] %v", err)
		return 1
	}

	dims := dimension.Original()
	switch {
	case *templatePtr != "":
		dims = dimension.Template(*templatePtr)
	case *widthPtr != 0 || *heightPtr != 0:
		dims = dimension.Custom(*widthPtr, *heightPtr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := telemetry.Init(ctx, telemetry.Settings{
		Endpoint:       cfg.OTELEndpoint,
		Insecure:       cfg.OTELInsecure,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.BuildVersion,
	})
	if err != nil {
		log.Printf("[-] Telemetry error: %v", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	focus, err := analyzer.New(cfg.CropFocus)
	if err != nil {
		log.Printf("[-] %v", err)
		return 1
	}

	baseDir := "."
	src, closeSrc, title, err := openSource(ctx, *inputPtr, *recordsPtr, *queryPtr, *categoryPtr, *countPtr, *pagePtr, *titlePtr, &baseDir)
	if err != nil {
		log.Printf("[-] Source error: %v", err)
		return 1
	}
	defer closeSrc()

	fetcher := loader.New(loader.Options{
		RatePerSecond: cfg.FetchRate,
		MaxBytes:      cfg.MaxImageBytes,
		UserAgent:     cfg.UserAgent,
		BaseDir:       baseDir,
	})
	rasterizer := renderer.New(renderer.Options{
		Loader:       fetcher,
		Pool:         system.NewImagePool(),
		Guard:        system.NewMemoryGuard(cfg.MemoryHeadroom),
		Logger:       logger,
		Workers:      cfg.Workers,
		ImageTimeout: cfg.ImageTimeout,
		Watermark:    renderer.Watermark{Text: cfg.WatermarkText, URL: cfg.WatermarkURL},
		Focus:        focus,
	})
	sink := delivery.NewDirSink(*outputPtr)

	exporter, err := engine.New(engine.Options{
		Resolver:          resolver,
		Rasterizer:        rasterizer,
		Sink:              sink,
		Logger:            logger,
		DefaultBackground: cfg.DefaultBg,
	})
	if err != nil {
		log.Printf("[-] %v", err)
		return 1
	}
	exporter.Subscribe(func(p engine.Progress) {
		if p.Stage == engine.StageError {
			fmt.Printf("[!] %3d%% %s\n", p.Percent, p.Message)
			return
		}
		line := fmt.Sprintf("[>] %3d%% %s", p.Percent, p.Message)
		if p.Detail != "" {
			line += " (" + p.Detail + ")"
		}
		fmt.Println(line)
	})

	w, h := src.Size()
	fmt.Println("--- [MOOD BOARD EXPORT] ---")
	fmt.Printf("[*] Source: %s | %dx%d | Images: %d\n", describeInput(*inputPtr, *recordsPtr), w, h, src.ImageCount())
	fmt.Printf("[*] Format: %s | Quality: %s | Size: %s\n", format, *qualityPtr, dims)
	fmt.Println("---------------------------")

	if !exporter.IsFormatSupported(format) {
		fmt.Printf("[!] %s is not available in this build\n", format)
	}

	meta := &encoder.Metadata{
		Title:       title,
		Description: *descPtr,
		Author:      *authorPtr,
		Tags:        splitTags(*tagsPtr),
	}
	res := exporter.Run(ctx, src, engine.Request{
		Format:     format,
		Quality:    dimension.Quality(*qualityPtr),
		Dimensions: dims,
		Metadata:   meta,
		Background: *bgPtr,
		Watermark:  *watermarkPtr,
	})

	if len(res.SkippedImages) > 0 {
		fmt.Printf("[!] Skipped %d of %d images: %s\n", len(res.SkippedImages), res.ImagesTotal, strings.Join(res.SkippedImages, ", "))
	}
	if *statsPtr {
		printReport(ctx, cfg, res)
	}
	if !res.Success {
		log.Printf("[-] Export failed (%s): %s", res.ErrorKind, res.Message)
		return 1
	}

	fmt.Printf("[+++] Done! %s (%s, %dx%d)\n", sink.Path(res.Filename), humanize.Bytes(uint64(res.ByteSize)), res.Dimensions.Width, res.Dimensions.Height)
	return 0
}

// openSource picks the render source: a gallery built from records, a scene
// file, or a captured image/PDF surface. baseDir is set to the directory
// relative image paths resolve against.
func openSource(ctx context.Context, input, records, query, category string, count, page int, title string, baseDir *string) (renderer.Source, func(), string, error) {
	noop := func() {}

	if records != "" {
		finder, err := discovery.LoadStatic(records)
		if err != nil {
			return nil, noop, "", err
		}
		recs, err := findRecords(ctx, finder, query, category, count)
		if err != nil {
			return nil, noop, "", err
		}
		if title == "" {
			title = strings.TrimSpace(query + " " + category)
		}
		board, err := layout.NewGallery().Build(title, recs)
		if err != nil {
			return nil, noop, "", err
		}
		*baseDir = filepath.Dir(records)
		fmt.Printf("[*] Gallery: %d images from %s\n", len(recs), records)
		return renderer.FromScene(board), noop, title, nil
	}

	if input == "" {
		os.MkdirAll("input", 0755)
		latest, err := system.FindLatest("input", inputExts...)
		if err != nil {
			return nil, noop, "", fmt.Errorf("%w. Put a scene, image or PDF into input/", err)
		}
		input = latest
		fmt.Printf("[*] Selected file: %s\n", input)
	}
	*baseDir = filepath.Dir(input)

	switch strings.ToLower(filepath.Ext(input)) {
	case ".json", ".yaml", ".yml":
		s, err := scene.ReadFile(input)
		if err != nil {
			return nil, noop, "", err
		}
		if title == "" {
			title = s.Name
		}
		return renderer.FromScene(s), noop, title, nil
	case ".pdf":
		surface, err := source.OpenPDF(input, page-1)
		if err != nil {
			return nil, noop, "", err
		}
		return renderer.FromSurface(surface), func() { surface.Close() }, orBase(title, input), nil
	default:
		surface, err := source.OpenImage(input)
		if err != nil {
			return nil, noop, "", err
		}
		return renderer.FromSurface(surface), func() { surface.Close() }, orBase(title, input), nil
	}
}

func findRecords(ctx context.Context, f discovery.Finder, query, category string, count int) ([]scene.ImageRecord, error) {
	if category != "" && query == "" {
		return f.ImagesByCategory(ctx, category, count)
	}
	return f.SearchImages(ctx, strings.TrimSpace(query+" "+category), count)
}

func orBase(title, path string) string {
	if title != "" {
		return title
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func describeInput(input, records string) string {
	if records != "" {
		return records
	}
	if input == "" {
		return "input/"
	}
	return input
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func printReport(ctx context.Context, cfg config.Config, res engine.Result) {
	t := res.Timings
	report := fmt.Sprintf(
		"--- [PERFORMANCE REPORT] ---\n"+
			"Build: %s\n"+
			"Export: %s\n"+
			"Total Time: %.2fs\n"+
			"Prepare: %.2fs\n"+
			"Rasterize: %.2fs\n"+
			"Encode: %.2fs\n"+
			"Deliver: %.2fs\n"+
			"Images: %d loaded, %d skipped\n"+
			"Output: %s (%dx%d px)\n",
		cfg.BuildVersion, res.ExportID, t.Total.Seconds(), t.Prepare.Seconds(), t.Process.Seconds(),
		t.Encode.Seconds(), t.Deliver.Seconds(), res.ImagesTotal-len(res.SkippedImages), len(res.SkippedImages),
		humanize.Bytes(uint64(res.ByteSize)), res.Pixels.Width, res.Pixels.Height,
	)
	if mem, err := system.ReadMemoryStats(ctx); err == nil {
		report += fmt.Sprintf("Memory: %s free of %s (%.0f%% used)\n",
			humanize.Bytes(mem.Available), humanize.Bytes(mem.Total), mem.UsedPercent)
	}
	report += "----------------------------\n"
	fmt.Print(report)

	logEntry := fmt.Sprintf("[%s] Build: %s | Format: %s | Success: %t | Total: %.2fs | Bytes: %d\n",
		time.Now().Format("2006-01-02 15:04:05"),
		cfg.BuildVersion,
		res.Format,
		res.Success,
		t.Total.Seconds(),
		res.ByteSize,
	)
	f, err := os.OpenFile("benchmark.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		f.WriteString(logEntry)
		f.Close()
	} else {
		fmt.Printf("[!] Could not write benchmark.log: %v\n", err)
	}
}
