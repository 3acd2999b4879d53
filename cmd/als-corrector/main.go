// Command als-corrector reads the ambient light sensor behind the display,
// removes the light emitted by the panel and publishes corrected lux to MQTT.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sweeney/als-corrector/internal/backlight"
	"github.com/sweeney/als-corrector/internal/calib"
	"github.com/sweeney/als-corrector/internal/correction"
	"github.com/sweeney/als-corrector/internal/gate"
	"github.com/sweeney/als-corrector/internal/metrics"
	"github.com/sweeney/als-corrector/internal/mqtt"
	"github.com/sweeney/als-corrector/internal/screen"
	"github.com/sweeney/als-corrector/internal/sensor"
	"github.com/sweeney/als-corrector/internal/status"
	"github.com/sweeney/als-corrector/internal/store"
	"github.com/sweeney/als-corrector/internal/web"
)

const clientID = "als-corrector"

type options struct {
	poll            time.Duration
	iioDir          string
	auxChannel      string
	readyPin        int
	backlightDir    string
	persistDir      string
	defaultsPath    string
	overridePath    string
	hbr             bool
	capture         string
	grabRect        string
	captureInterval time.Duration
	broker          string
	heartbeat       time.Duration
	minDelta        float64
	httpAddr        string
	dbPath          string
	printConfig     bool
	verbose         bool
}

func main() {
	var o options
	flag.DurationVar(&o.poll, "poll", 100*time.Millisecond, "Sensor polling interval")
	flag.StringVar(&o.iioDir, "iio", sensor.DefaultIIODir, "IIO device directory of the light sensor")
	flag.StringVar(&o.auxChannel, "aux-channel", sensor.DefaultAuxChannel, "Auxiliary IIO channel used for gain estimation")
	flag.IntVar(&o.readyPin, "ready-pin", -1, "GPIO line of the sensor data-ready interrupt (-1 reads every tick)")
	flag.StringVar(&o.backlightDir, "backlight", backlight.DefaultDir, "Backlight sysfs directory")
	flag.StringVar(&o.persistDir, "persist", calib.DefaultPersistDir, "Factory calibration directory (empty to skip)")
	flag.StringVar(&o.defaultsPath, "defaults", calib.DefaultsPath, "JSON calibration defaults (empty to skip)")
	flag.StringVar(&o.overridePath, "override", "/etc/als-corrector/override.env", "Calibration override file (empty to skip)")
	flag.BoolVar(&o.hbr, "hbr", false, "Sensor is the high brightness range variant")
	flag.StringVar(&o.capture, "capture", "file:/run/als-corrector/screenshot.png", `Screen color source ("file:PATH" or "ws://host/path")`)
	flag.StringVar(&o.grabRect, "grab-rect", "", "Screen area above the sensor as x0,y0,x1,y1 (empty for whole screen)")
	flag.DurationVar(&o.captureInterval, "capture-interval", 0, "Minimum interval between screen captures (0 captures on demand)")
	flag.StringVar(&o.broker, "broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	flag.DurationVar(&o.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	flag.Float64Var(&o.minDelta, "min-delta", 1, "Minimum lux change before a reading is republished")
	flag.StringVar(&o.httpAddr, "http", ":80", "HTTP status address (empty to disable)")
	flag.StringVar(&o.dbPath, "db", "", "SQLite file for the correction history (empty to disable)")
	flag.BoolVar(&o.printConfig, "print-config", false, "Print the effective calibration as JSON and exit")
	flag.BoolVar(&o.verbose, "verbose", false, "Log every engine decision")

	flag.Parse()

	if err := run(o); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(o options) error {
	cfg, err := calibration(o).Load()
	if err != nil {
		log.Printf("calibration: %v", err)
	}

	provider, closer, err := newProvider(o.capture, o.grabRect, o.captureInterval)
	if err != nil {
		return fmt.Errorf("init capture: %w", err)
	}
	if closer != nil {
		defer closer.Close()
	}

	engineOpts := []correction.Option{}
	if provider != nil {
		engineOpts = append(engineOpts, correction.WithProvider(metrics.TimedProvider(provider)))
	}
	if o.verbose {
		engineOpts = append(engineOpts, correction.WithTrace(log.Printf))
	}
	engine, err := correction.New(cfg, engineOpts...)
	if err != nil {
		log.Printf("config: %v", err)
	}

	// Print config mode
	if o.printConfig {
		b, err := json.MarshalIndent(calib.Export(engine.Config()), "", "  ")
		if err != nil {
			return fmt.Errorf("encode config: %w", err)
		}
		fmt.Println(string(b))
		return nil
	}

	// Initialize sensor
	var ready sensor.ReadyLine
	if o.readyPin >= 0 {
		line, err := sensor.OpenReadyLine(sensor.DefaultChip, o.readyPin)
		if err != nil {
			return fmt.Errorf("init data-ready line: %w", err)
		}
		ready = line
	}
	reader := sensor.NewIIOReader(o.iioDir, o.auxChannel, ready)
	defer reader.Close()

	// Initialize MQTT
	publisher, err := mqtt.NewRealPublisher(o.broker, clientID)
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	var history *store.Store
	if o.dbPath != "" {
		history, err = store.Open(o.dbPath)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer history.Close()
		log.Printf("recording corrections to %s (run %s)", o.dbPath, history.RunID())
	}

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:      o.poll.Milliseconds(),
		HeartbeatMs: o.heartbeat.Milliseconds(),
		MinDelta:    o.minDelta,
		Broker:      o.broker,
		HTTPAddr:    o.httpAddr,
		Capture:     o.capture,
		HBR:         engine.Config().HBR,
		DBPath:      o.dbPath,
	})
	tracker.SetMQTTConnected(publisher.IsConnected())
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP status server
	if o.httpAddr != "" {
		var h web.History
		if history != nil {
			h = history
		}
		srv := web.New(o.httpAddr, tracker, h)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", o.httpAddr)
	}

	log.Printf("started: poll=%v capture=%s broker=%s heartbeat=%v min-delta=%v hbr=%v",
		o.poll, o.capture, o.broker, o.heartbeat, o.minDelta, engine.Config().HBR)

	ticker := time.NewTicker(o.poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)

	d := &daemon{
		reader:     reader,
		backlight:  backlight.NewSysfs(o.backlightDir),
		engine:     engine,
		publisher:  publisher,
		mqttStatus: publisher,
		tracker:    tracker,
		minDelta:   o.minDelta,
		heartbeat:  o.heartbeat,
	}
	if history != nil {
		d.history = history
	}
	return d.runLoop(time.Now, ticker.C, sigCh)
}

// calibration builds the layered loader: JSON defaults, factory persist
// files, the panel's max brightness, then the override file.
func calibration(o options) calib.Layered {
	var sources []calib.Source
	if o.defaultsPath != "" {
		sources = append(sources, calib.JSONFile{Path: o.defaultsPath})
	}
	if o.persistDir != "" {
		sources = append(sources, calib.PersistDir{Dir: o.persistDir})
	}
	if o.backlightDir != "" {
		sources = append(sources, calib.BacklightMax{Dir: o.backlightDir})
	}
	if o.overridePath != "" {
		sources = append(sources, calib.EnvFile{Path: o.overridePath})
	}
	return calib.Layered{HBR: o.hbr, Sources: sources}
}

// newProvider parses the -capture flag. A nil provider means every
// recomputation is dropped as CAPTURE_UNAVAILABLE.
func newProvider(capture, rect string, interval time.Duration) (correction.ScreenColorProvider, io.Closer, error) {
	var (
		provider correction.ScreenColorProvider
		closer   io.Closer
	)
	switch {
	case capture == "":
		return nil, nil, nil
	case strings.HasPrefix(capture, "file:"):
		var area image.Rectangle
		if rect != "" {
			r, err := screen.ParseRect(rect)
			if err != nil {
				return nil, nil, err
			}
			area = r
		}
		provider = &screen.AreaCapture{
			Grab: screen.FileGrabber(strings.TrimPrefix(capture, "file:")),
			Rect: area,
		}
	case strings.HasPrefix(capture, "ws://"), strings.HasPrefix(capture, "wss://"):
		c := &screen.WSClient{URL: capture}
		provider, closer = c, c
	default:
		return nil, nil, fmt.Errorf("unsupported capture source %q", capture)
	}

	if interval > 0 {
		provider = &screen.Cached{Source: provider, MinInterval: interval}
	}
	return provider, closer, nil
}

// recorder persists processed events.
type recorder interface {
	Record(ev correction.Event, brightness float64, out correction.Outcome, now time.Time) error
}

// daemon holds the collaborators of the run loop.
type daemon struct {
	reader     sensor.Reader
	backlight  backlight.Reader
	engine     *correction.Engine
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	history    recorder
	minDelta   float64
	heartbeat  time.Duration

	gate        *gate.Gate
	captureDown bool
}

func (d *daemon) runLoop(now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	d.gate = gate.New(d.minDelta, now())

	for {
		select {
		case s := <-sig:
			if s == syscall.SIGUSR1 {
				log.Printf("received %v, forcing screen sample", s)
				d.engine.ForceUpdate()
				continue
			}
			d.shutdown(s, now())
			return nil

		case <-tick:
			t := now()
			d.step(t)

			if hbData := d.gate.CheckHeartbeat(t, d.heartbeat); hbData != nil {
				d.publishHeartbeat(hbData)
			}

			if d.tracker != nil && d.mqttStatus != nil {
				d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
			}
		}
	}
}

// step processes one sensor poll.
func (d *daemon) step(t time.Time) {
	ev, ok, err := d.reader.Read()
	if err != nil {
		log.Printf("sensor read error: %v", err)
		metrics.SensorErrors.Inc()
		return
	}
	if !ok {
		return
	}

	brightness, err := d.backlight.Brightness()
	if err != nil {
		log.Printf("backlight read error: %v", err)
		metrics.SensorErrors.Inc()
		return
	}

	out := d.engine.Process(ev, brightness, t)
	metrics.Record(ev, brightness, out)
	d.logCapture(out)

	if d.history != nil {
		if err := d.history.Record(ev, brightness, out, t); err != nil {
			log.Printf("history error: %v", err)
		}
	}

	if d.gate.Process(out) {
		r := mqtt.Reading{Timestamp: t, Lux: out.Value, Raw: ev.Raw, Reason: out.Reason}
		if err := d.publisher.Publish(r); err != nil {
			log.Printf("publish error: %v", err)
		}
	}

	if d.tracker != nil {
		d.tracker.Update(ev, brightness, out, d.engine.State(), d.engine.Stats(), t)
	}
}

// logCapture logs capture failures once per outage.
func (d *daemon) logCapture(out correction.Outcome) {
	switch {
	case out.Reason == correction.ReasonCaptureUnavailable && !d.captureDown:
		d.captureDown = true
		log.Printf("screen capture unavailable: %v", out.Err)
	case out.Recompute != nil && d.captureDown:
		d.captureDown = false
		log.Printf("screen capture recovered")
	}
}

func (d *daemon) publishHeartbeat(hbData *gate.HeartbeatData) {
	log.Printf("heartbeat: uptime=%v published=%d suppressed=%d",
		hbData.Uptime, hbData.Counts.Published, hbData.Counts.Suppressed)

	hbEvent := mqtt.SystemEvent{
		Timestamp: hbData.Timestamp,
		Event:     "HEARTBEAT",
	}
	if d.tracker != nil {
		if d.mqttStatus != nil {
			d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
		}
		// Refresh network info for heartbeat
		if net := readNetworkInfo(); net != nil {
			d.tracker.SetNetwork(net)
		}
		hbEvent.RawPayload = status.FormatStatusEvent(d.tracker.Snapshot(), "HEARTBEAT", "")
	}
	if err := d.publisher.PublishSystem(hbEvent); err != nil {
		log.Printf("heartbeat publish error: %v", err)
	}
}

func (d *daemon) shutdown(s os.Signal, t time.Time) {
	log.Printf("received %v, shutting down", s)
	signalName := "UNKNOWN"
	if s == syscall.SIGINT {
		signalName = "SIGINT"
	} else if s == syscall.SIGTERM {
		signalName = "SIGTERM"
	}
	event := mqtt.SystemEvent{
		Timestamp: t,
		Event:     "SHUTDOWN",
		Reason:    signalName,
		Retained:  true,
	}
	if d.tracker != nil {
		if d.mqttStatus != nil {
			d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
		}
		event.RawPayload = status.FormatStatusEvent(d.tracker.Snapshot(), "SHUTDOWN", signalName)
	}
	if err := d.publisher.PublishSystem(event); err != nil {
		log.Printf("failed to publish shutdown event: %v", err)
	} else {
		log.Printf("published shutdown event")
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
