package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"fall-detection/utils"

	"github.com/joho/godotenv"
	"github.com/mdobak/go-xerrors"
)

const defaultVideoPath = "videos/test_fall.mp4"

func usage() {
	fmt.Println("Expected 'analyze', 'serve' or 'test-alert' subcommand")
	os.Exit(1)
}

func main() {
	_ = godotenv.Load()

	outputDir := utils.GetEnv("OUTPUT_DIR", "output")
	err := utils.CreateFolder(outputDir)
	if err != nil {
		logger := utils.GetLogger()
		err := xerrors.New(err)
		ctx := context.Background()
		logger.ErrorContext(ctx, "Failed create output dir.", slog.Any("error", err))
	}

	if len(os.Args) < 2 {
		usage()
	}

	switch os.Args[1] {
	case "analyze":
		analyzeCmd := flag.NewFlagSet("analyze", flag.ExitOnError)
		output := analyzeCmd.String("output", outputDir, "Directory for the annotated video and results")
		recording := analyzeCmd.String("recording", "", "Analyze a landmark recording instead of a video")
		record := analyzeCmd.String("record", "", "Write the detected landmarks of the video to this recording")
		noVideo := analyzeCmd.Bool("no-video", false, "Skip writing the annotated video")
		store := analyzeCmd.Bool("store", utils.GetEnvBool("STORE_RUNS", false), "Store the run in the database (default from STORE_RUNS)")
		analyzeCmd.Parse(os.Args[2:])

		videoPath := defaultVideoPath
		if analyzeCmd.NArg() > 0 {
			videoPath = analyzeCmd.Arg(0)
		}
		analyzeVideo(videoPath, *recording, *output, *record, !*noVideo, *store)
	case "serve":
		serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
		protocol := serveCmd.String("proto", "http", "Protocol to use (http or https)")
		port := serveCmd.String("p", "5000", "Port to use")
		serveCmd.Parse(os.Args[2:])
		serve(*protocol, *port)
	case "test-alert":
		testAlert()
	default:
		usage()
	}
}
