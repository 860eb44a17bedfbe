package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"fall-detection/alert"
	"fall-detection/db"
	"fall-detection/detections"
	"fall-detection/fall"
	"fall-detection/models"
	"fall-detection/utils"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"github.com/mdobak/go-xerrors"
)

type apiError struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode JSON response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiError{Message: message})
}

func setCORS(w http.ResponseWriter, methods string) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Allow-Methods", methods)
	w.Header().Set("Access-Control-Allow-Credentials", "true")
}

func loadFallConfig() fall.Config {
	cfg, err := fall.LoadConfig(utils.GetEnv("FALL_CONFIG_PATH"))
	if err != nil {
		log.Fatalf("failed to load fall config: %v", err)
	}
	return cfg
}

// analysisErrorStatus maps an analysis error to an HTTP status and message.
func analysisErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, errInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, fall.ErrSourceUnavailable):
		return http.StatusNotFound, "unable to open source"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "analysis cancelled"
	default:
		return http.StatusInternalServerError, "analysis failed"
	}
}

func analyzeVideo(videoPath, recordingPath, outputDir, recordPath string, annotate, storeRun bool) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	logger := utils.GetLogger()

	printBanner(os.Stdout)

	input := videoPath
	if recordingPath != "" {
		input = recordingPath
		videoPath = ""
	}
	if _, err := os.Stat(input); err != nil {
		fmt.Printf("Error: file not found: %s\n", input)
		fmt.Println("\nPlease provide a valid video path.")
		return
	}

	dispatcher, err := alert.NewDispatcherFromEnv(ctx)
	if err != nil {
		log.Fatalf("invalid alert configuration: %v", err)
	}
	defer dispatcher.Close()

	var store db.DBClient
	if storeRun {
		store, err = db.NewDBClient()
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer store.Close()
	}

	if err := utils.CreateFolder(outputDir); err != nil {
		logger.ErrorContext(ctx, "failed to create output directory", slog.Any("error", xerrors.New(err)))
		return
	}

	progress := &progressPrinter{w: os.Stdout, every: 30}
	opts := analysisOptions{
		recordPath: recordPath,
		onStart: func(total int) {
			progress.total = total
			fmt.Printf("Total frames: %d\n", total)
		},
		observers: []fall.FrameObserver{progress},
	}
	annotatePath := filepath.Join(outputDir, "detected_falls.mp4")
	if annotate && videoPath != "" {
		opts.annotatePath = annotatePath
	}

	fmt.Printf("\nAnalyzing: %s\n", input)
	if opts.annotatePath != "" {
		fmt.Printf("Output will be saved to: %s\n", annotatePath)
	}

	a := newAnalyzer(loadFallConfig(), dispatcher, store)
	an, err := a.detect(ctx, models.AnalyzeRequest{VideoPath: videoPath, RecordingPath: recordingPath}, opts)
	if an == nil {
		logger.ErrorContext(ctx, "analysis failed", slog.Any("error", xerrors.New(err)))
		fmt.Println("Error processing video")
		os.Exit(1)
	}
	if err != nil {
		logger.WarnContext(ctx, "analysis interrupted, reporting partial results", slog.Any("error", err))
	}

	printResults(os.Stdout, an.Result)
	if an.Result.TotalFalls > 0 && dispatcher.Mode() == alert.ModeAfterRun {
		printSection(os.Stdout, "SENDING ALERT")
	}
	run := a.complete(context.WithoutCancel(ctx), an)

	resultsPath := detections.ResultsPath(outputDir)
	if err := detections.SaveResults(resultsPath, an.Result); err != nil {
		logger.ErrorContext(ctx, "failed to save results", slog.Any("error", xerrors.New(err)))
	} else {
		fmt.Printf("Results saved to %s\n", resultsPath)
	}

	printMetrics(os.Stdout, an.Result)

	fmt.Println("\nProcessing complete!")
	if opts.annotatePath != "" {
		fmt.Printf("Annotated video saved to: %s\n", opts.annotatePath)
	}
	if recordPath != "" && videoPath != "" {
		fmt.Printf("Landmark recording saved to: %s\n", recordPath)
	}
	if store != nil {
		fmt.Printf("Run stored with id %s\n", run.ID)
	}
}

func testAlert() {
	ctx := context.Background()
	dispatcher, err := alert.NewDispatcherFromEnv(ctx)
	if err != nil {
		log.Fatalf("invalid alert configuration: %v", err)
	}
	defer dispatcher.Close()

	fmt.Println("Sending test alert...")
	if !dispatcher.Test(ctx) {
		fmt.Println("Test alert could not be delivered")
		os.Exit(1)
	}
}

func newAnalyzeHandler(a *analyzer) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		setCORS(w, "POST, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var req models.AnalyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.ErrorContext(ctx, "failed to parse request body", slog.Any("error", err))
			writeJSONError(w, http.StatusBadRequest, "invalid request payload")
			return
		}

		started := time.Now()
		an, err := a.detect(ctx, req, analysisOptions{})
		if err != nil {
			status, message := analysisErrorStatus(err)
			logger.ErrorContext(ctx, "analysis failed",
				slog.String("videoPath", req.VideoPath),
				slog.String("recordingPath", req.RecordingPath),
				slog.Any("error", xerrors.New(err)),
			)
			writeJSONError(w, status, message)
			return
		}

		run := a.complete(ctx, an)
		logger.InfoContext(ctx, "analysis complete",
			slog.String("runID", run.ID),
			slog.Int("frames", an.Result.TotalFrames),
			slog.Int("falls", an.Result.TotalFalls),
			slog.Duration("took", time.Since(started)),
		)

		writeJSON(w, http.StatusOK, models.AnalyzeResponse{
			RunID:     run.ID,
			RunResult: an.Result,
			Summary:   an.Result.Summary,
		})
	}
}

func newRunsHandler(store db.DBClient) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		setCORS(w, "GET, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				writeJSONError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = parsed
		}

		runs, err := store.ListRuns(limit)
		if err != nil {
			logger.ErrorContext(ctx, "failed to list runs", slog.Any("error", xerrors.New(err)))
			writeJSONError(w, http.StatusInternalServerError, "failed to load runs")
			return
		}
		if runs == nil {
			runs = []models.Run{}
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

func newRunHandler(store db.DBClient) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		setCORS(w, "GET, DELETE, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/runs/"), "/")
		if id == "" {
			writeJSONError(w, http.StatusBadRequest, "run id is required")
			return
		}

		switch r.Method {
		case http.MethodGet:
			run, err := store.GetRun(id)
			if errors.Is(err, db.ErrRunNotFound) {
				writeJSONError(w, http.StatusNotFound, "run not found")
				return
			}
			if err != nil {
				logger.ErrorContext(ctx, "failed to load run", slog.String("runID", id), slog.Any("error", xerrors.New(err)))
				writeJSONError(w, http.StatusInternalServerError, "failed to load run")
				return
			}
			writeJSON(w, http.StatusOK, run)
		case http.MethodDelete:
			err := store.DeleteRun(id)
			if errors.Is(err, db.ErrRunNotFound) {
				writeJSONError(w, http.StatusNotFound, "run not found")
				return
			}
			if err != nil {
				logger.ErrorContext(ctx, "failed to delete run", slog.String("runID", id), slog.Any("error", xerrors.New(err)))
				writeJSONError(w, http.StatusInternalServerError, "failed to delete run")
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

func newMux(a *analyzer, socketServer http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	if socketServer != nil {
		mux.Handle("/socket.io/", socketServer)
	}
	mux.HandleFunc("/api/video/analyze", newAnalyzeHandler(a))
	mux.HandleFunc("/api/runs", newRunsHandler(a.store))
	mux.HandleFunc("/api/runs/", newRunHandler(a.store))
	mux.Handle("/", http.FileServer(http.Dir("static")))
	return mux
}

func serve(protocol, port string) {
	protocol = strings.ToLower(protocol)
	var allowOriginFunc = func(r *http.Request) bool {
		return true
	}

	ctx := context.Background()
	dispatcher, err := alert.NewDispatcherFromEnv(ctx)
	if err != nil {
		log.Fatalf("invalid alert configuration: %v", err)
	}
	defer dispatcher.Close()

	store, err := db.NewDBClient()
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer store.Close()

	a := newAnalyzer(loadFallConfig(), dispatcher, store)
	controller := newSocketController(a)

	server := socketio.NewServer(&engineio.Options{
		PingTimeout:  60 * time.Second,
		PingInterval: 25 * time.Second,
		Transports: []transport.Transport{
			&websocket.Transport{
				CheckOrigin: allowOriginFunc,
			},
			&polling.Transport{
				CheckOrigin: allowOriginFunc,
			},
		},
	})

	server.OnConnect("/", func(socket socketio.Conn) error {
		socket.SetContext("")
		log.Printf("CONNECTED: %s, remote addr: %s\n", socket.ID(), socket.RemoteAddr())
		return nil
	})

	server.OnEvent("/", "analyzeVideo", func(socket socketio.Conn, msg string) {
		log.Printf("analyzeVideo received from %s: %s\n", socket.ID(), msg)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("panic in handleAnalyzeVideo for socket %s: %v\n", socket.ID(), r)
					socket.Emit("analysisError", map[string]string{"message": "internal server error during processing"})
				}
			}()
			controller.handleAnalyzeVideo(socket, msg)
		}()
	})

	server.OnError("/", func(s socketio.Conn, e error) {
		log.Println("meet error:", e)
	})

	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		log.Printf("Socket disconnected - ID: %s, Reason: %s\n", s.ID(), reason)
	})

	go func() {
		if err := server.Serve(); err != nil {
			log.Fatalf("socketio listen error: %s\n", err)
		}
	}()
	defer server.Close()

	serveHTTP(protocol == "https", port, newMux(a, server))
}

func serveHTTP(serveHTTPS bool, port string, handler http.Handler) {
	if serveHTTPS {
		httpsAddr := ":" + port
		httpsServer := &http.Server{
			Addr: httpsAddr,
			TLSConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			Handler: handler,
		}

		certKey := utils.GetEnv("CERT_KEY")
		certFile := utils.GetEnv("CERT_FILE")
		if certKey == "" || certFile == "" {
			log.Fatal("Missing cert")
		}

		log.Printf("Starting HTTPS server on %s\n", httpsAddr)
		if err := httpsServer.ListenAndServeTLS(certFile, certKey); err != nil {
			log.Fatalf("HTTPS server ListenAndServeTLS: %v", err)
		}
		return
	}

	log.Printf("Starting HTTP server on port %v", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatalf("HTTP server ListenAndServe: %v", err)
	}
}
