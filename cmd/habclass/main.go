// habclass runs the live classification loop: webcam frames are classified
// at a fixed interval and the verdict drives the LED controller over serial.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gocv.io/x/gocv"

	"github.com/habproj/go-hab/internal/config"
	"github.com/habproj/go-hab/internal/log"
	"github.com/habproj/go-hab/pkg/camera"
	"github.com/habproj/go-hab/pkg/classify"
	"github.com/habproj/go-hab/pkg/dispatch"
	"github.com/habproj/go-hab/pkg/link"
	"github.com/habproj/go-hab/pkg/web"
)

func main() {
	cameraID := flag.Int("camera", 0, "Camera ID (0 is usually the built-in webcam)")
	modelPath := flag.String("model", config.DefaultModelPath, "Path to the ONNX model file")
	labelsPath := flag.String("labels", config.DefaultLabelsPath, "Path to the labels file")
	interval := flag.Duration("interval", config.DefaultInterval, "Interval between predictions")
	noFPS := flag.Bool("no-fps", false, "Do not display FPS on screen")
	noDevice := flag.Bool("no-device", false, "Disable the serial device entirely")
	port := flag.String("port", "", "Serial port (e.g. /dev/ttyUSB0, COM3); empty auto-detects")
	baud := flag.Int("baud", config.DefaultBaudRate, "Baud rate for serial communication")
	allowDegraded := flag.Bool("allow-degraded", false, "Keep running when the device is absent or not responding")
	webAddr := flag.String("web", "", "Status server listen address (e.g. :8080); empty disables")
	debug := flag.Bool("debug", false, "Enable debug logging")

	flag.Parse()
	config.LoadDotenv()
	if *debug {
		log.Init("debug")
	} else {
		log.Init(config.Env("HAB_LOG_LEVEL", "info"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()
	}()

	clf, err := classify.New(classify.Config{
		ModelPath:  *modelPath,
		LabelsPath: *labelsPath,
	})
	if err != nil {
		log.Fatal("failed to load model", "error", err)
	}
	defer clf.Close()
	log.Info("model loaded", "path", *modelPath)

	var lnk dispatch.DeviceLink
	if !*noDevice {
		lnk = link.New(link.Config{
			Port:          config.Env("HAB_PORT", *port),
			BaudRate:      *baud,
			Timeout:       config.EnvDuration("HAB_LINK_TIMEOUT", config.DefaultLinkTimeout),
			RequireDevice: !*allowDegraded,
		})
	}
	disp, err := dispatch.New(lnk, dispatch.Config{
		RequireDevice: !*noDevice && !*allowDegraded,
		AllowDegraded: *allowDegraded,
	})
	if err != nil {
		log.Fatal("device not available (use -allow-degraded or -no-device to run without it)", "error", err)
	}
	defer disp.Close()

	cam, err := camera.Open(*cameraID)
	if err != nil {
		log.Fatal("failed to open camera", "error", err)
	}
	defer cam.Close()

	var status *web.Server
	if *webAddr != "" {
		status = web.NewServer(*webAddr)
		go func() {
			if err := status.Start(); err != nil {
				log.Error("status server stopped", "error", err)
			}
		}()
		defer status.Shutdown()
	}

	fmt.Println("HAB classifier running. Press 'q' to quit.")
	runLoop(ctx, cam, clf, disp, status, loopOptions{
		interval:   *interval,
		displayFPS: !*noFPS,
		linkInfo: func() (string, string, bool) {
			if l, ok := lnk.(*link.Link); ok && l != nil {
				return disp.LinkState().String(), l.PortPath(), disp.Degraded()
			}
			return link.StateDisconnected.String(), "", true
		},
	})
}

type loopOptions struct {
	interval   time.Duration
	displayFPS bool
	linkInfo   func() (state, port string, degraded bool)
}

// runLoop drives the camera, classifier and dispatcher until ctx is done or
// the user quits. The dispatcher is called once per prediction cycle.
func runLoop(ctx context.Context, cam *camera.Camera, clf *classify.Classifier,
	disp *dispatch.Dispatcher, status *web.Server, opts loopOptions) {

	window := gocv.NewWindow("HAB Classifier")
	defer window.Close()

	frame := gocv.NewMat()
	defer frame.Close()

	var (
		lastPrediction = classify.Prediction{Label: "Waiting..."}
		lastPredictAt  time.Time
		fps            float64
		frameCount     int
		fpsStart       = time.Now()
	)

	for ctx.Err() == nil {
		if err := cam.Read(&frame); err != nil {
			log.Error("frame read failed", "error", err)
			return
		}

		frameCount++
		if elapsed := time.Since(fpsStart); elapsed >= time.Second {
			fps = float64(frameCount) / elapsed.Seconds()
			fpsStart = time.Now()
			frameCount = 0
		}

		if time.Since(lastPredictAt) >= opts.interval {
			pred, err := clf.Classify(frame)
			if err != nil {
				log.Warn("classification failed", "error", err)
			} else {
				lastPrediction = pred
				lastPredictAt = time.Now()
				result, err := disp.Dispatch(dispatch.Classification{
					Label:      pred.Label,
					Confidence: pred.Confidence,
				})
				if err != nil {
					log.Error("dispatch failed", "error", err)
					return
				}
				log.Debug("cycle", "label", pred.Label,
					"confidence", pred.Confidence, "result", result)
			}

			if status != nil {
				stats := disp.Stats()
				state, port, degraded := opts.linkInfo()
				status.SetStatus(web.Status{
					LinkState:   state,
					Port:        port,
					Degraded:    degraded,
					Label:       lastPrediction.Label,
					Confidence:  lastPrediction.Confidence,
					LastCommand: stats.LastCommand,
					Sent:        stats.Sent,
					Suppressed:  stats.Suppressed,
					Skipped:     stats.Skipped,
					FPS:         fps,
					UpdatedAt:   time.Now(),
				})
			}
		}

		annotate(&frame, lastPrediction, fps, opts.displayFPS)

		window.IMShow(frame)
		if key := window.WaitKey(1); key == 'q' {
			return
		}
	}
}

// annotate draws the prediction, confidence and FPS onto the frame.
func annotate(frame *gocv.Mat, pred classify.Prediction, fps float64, showFPS bool) {
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	black := color.RGBA{A: 255}

	y := 30
	put := func(text string) {
		size := gocv.GetTextSize(text, gocv.FontHersheySimplex, 0.6, 2)
		gocv.Rectangle(frame, image.Rect(10, y-25, 10+size.X, y+5), black, -1)
		gocv.PutText(frame, text, image.Pt(10, y), gocv.FontHersheySimplex, 0.6, white, 2)
		y += 40
	}

	put(fmt.Sprintf("Prediction: %s", pred.Label))
	put(fmt.Sprintf("Confidence: %.2f", pred.Confidence))
	if showFPS {
		put(fmt.Sprintf("FPS: %.1f", fps))
	}
}
