package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/Yicong-Lin-213/AilyCart/internal/extraction"
	"github.com/Yicong-Lin-213/AilyCart/internal/geometry"
	"github.com/Yicong-Lin-213/AilyCart/internal/ledger"
	"github.com/Yicong-Lin-213/AilyCart/internal/pipeline"
	"github.com/Yicong-Lin-213/AilyCart/internal/server"
	"github.com/Yicong-Lin-213/AilyCart/internal/session"
	"github.com/Yicong-Lin-213/AilyCart/internal/storage"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("ailycart")
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		dbPath         = fs.StringLong("db", "ailycart.db", "Database file path")
		storagePath    = fs.StringLong("storage", "./receipts", "Local storage directory path")
		storageBackend = fs.StringLong("storage-backend", "local", "Object storage: 'local' or 's3'")
		bucket         = fs.StringLong("bucket", pipeline.DefaultBucket, "Bucket for processed receipt images")
		publicURL      = fs.StringLong("public-url", "", "Public base URL of local storage (default http://localhost:<port>/public)")
		s3Endpoint     = fs.StringLong("s3-endpoint", "", "S3-compatible endpoint, e.g. https://<project>.supabase.co/storage/v1/s3")
		s3Region       = fs.StringLong("s3-region", "auto", "S3 region")
		s3AccessKey    = fs.StringLong("s3-access-key", "", "S3 access key ID")
		s3SecretKey    = fs.StringLong("s3-secret-key", "", "S3 secret access key")
		s3PublicBase   = fs.StringLong("s3-public-base", "", "Public base URL for S3 objects, e.g. https://<project>.supabase.co/storage/v1/object/public")
		extractionURL  = fs.StringLong("extraction-url", "http://localhost:8000", "Receipt extraction service base URL")
		timeout        = fs.DurationLong("timeout", pipeline.DefaultTimeout, "Timeout for each upload and analysis step")
		targetWidth    = fs.IntLong("target-width", geometry.DefaultTargetWidth, "Width processed images are resized to")
		jpegQuality    = fs.IntLong("jpeg-quality", geometry.DefaultJPEGQuality, "JPEG quality of processed images (1-100)")
		authUser       = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		displayName    = fs.StringLong("display-name", "", "Name used in the greeting")
		voiceFeedback  = fs.BoolLong("voice-feedback", "Enable voice feedback for the profile")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("AILYCART"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := ledger.NewBoltLedger(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize storage based on backend
	var (
		store   storage.Storage
		objects server.Objects
	)
	switch *storageBackend {
	case "local":
		base := *publicURL
		if base == "" {
			base = fmt.Sprintf("http://localhost:%d/public", *port)
		}
		slog.Info("Initializing local storage...", "path", *storagePath, "public_url", base)
		local, err := storage.NewLocalStorage(*storagePath, base)
		if err != nil {
			slog.Error("Failed to initialize storage", "error", err)
			os.Exit(1)
		}
		store, objects = local, local
	case "s3":
		if *s3AccessKey == "" || *s3SecretKey == "" || *s3PublicBase == "" {
			slog.Error("S3 storage requires --s3-access-key, --s3-secret-key and --s3-public-base")
			os.Exit(1)
		}
		slog.Info("Initializing S3 storage...", "endpoint", *s3Endpoint, "region", *s3Region)
		store, err = storage.NewS3Storage(context.Background(), storage.S3Config{
			Endpoint:      *s3Endpoint,
			Region:        *s3Region,
			AccessKey:     *s3AccessKey,
			SecretKey:     *s3SecretKey,
			PublicBaseURL: *s3PublicBase,
		})
		if err != nil {
			slog.Error("Failed to initialize storage", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid storage backend", "backend", *storageBackend, "valid", "local or s3")
		os.Exit(1)
	}

	// Initialize extraction client
	slog.Info("Initializing extraction client...", "url", *extractionURL)
	analyzer, err := extraction.NewClient(*extractionURL, *timeout)
	if err != nil {
		slog.Error("Failed to initialize extraction client", "error", err)
		os.Exit(1)
	}

	orchestrator := pipeline.NewOrchestrator(
		geometry.NewTransformer(*targetWidth, *jpegQuality),
		store,
		analyzer,
		pipeline.Config{Bucket: *bucket, Timeout: *timeout},
	)

	// Initialize session
	gate := session.NewToggleGate(false)
	notices := session.NewNoticeLog()
	sess := session.New(orchestrator, gate, notices, db, pipeline.Profile{
		DisplayName:   *displayName,
		VoiceFeedback: *voiceFeedback,
	})
	defer sess.Close()

	// Initialize server
	basicAuth := server.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	srv := server.NewServer(server.Deps{
		Session:    sess,
		Notices:    notices,
		Permission: gate,
		Receipts:   db,
		Objects:    objects,
	}, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := srv.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "session_id", sess.ID())
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
