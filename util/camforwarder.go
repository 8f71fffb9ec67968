package util

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"
)

// FrameHandler receives one JPEG snapshot from a camera.
type FrameHandler func(camera string, frame []byte)

type CamForwarder struct {
	Cameras   []CamForwarderCamera `mapstructure:"cameras"`
	Frequency int64                `mapstructure:"frequency"`
	Workers   int64                `mapstructure:"workers"`
	Enabled   bool                 `mapstructure:"enabled"`

	handler FrameHandler
	client  *http.Client
	queue   chan CamForwarderCamera
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type CamForwarderCamera struct {
	Url  string `mapstructure:"snap_url"`
	Name string `mapstructure:"name"`
}

func (c CamForwarderCamera) label() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Url
}

// MakeCamForwarder loads the cam_forwarder config section. Frames fetched by
// the workers are handed to handler.
func (cf *CamForwarder) MakeCamForwarder(handler FrameHandler) {
	err := Config.UnmarshalKey("cam_forwarder", cf)
	if err != nil {
		Logger.Error().Msgf("Error loading cam_forwarder config: %v", err)
	}
	if cf.Workers < 1 {
		cf.Workers = 1
	}
	if cf.Frequency < 1 {
		cf.Frequency = 1
	}
	cf.handler = handler
	cf.client = &http.Client{Timeout: time.Duration(cf.Frequency) * time.Second}
	cf.queue = make(chan CamForwarderCamera, cf.Workers*4)
}

// Start launches the workers and the polling ticker. It does nothing when the
// forwarder is disabled.
func (cf *CamForwarder) Start() {
	if !cf.Enabled {
		Logger.Debug().Msg("cam forwarder disabled")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	cf.cancel = cancel
	for i := 0; i < int(cf.Workers); i++ {
		cf.wg.Add(1)
		go cf.worker(ctx)
	}
	cf.wg.Add(1)
	go cf.poll(ctx)
	Logger.Info().Msgf("cam forwarder polling %d cameras every %ds", len(cf.Cameras), cf.Frequency)
}

// Stop halts polling and waits for in-flight fetches.
func (cf *CamForwarder) Stop() {
	if cf.cancel == nil {
		return
	}
	cf.cancel()
	cf.wg.Wait()
	cf.cancel = nil
}

func (cf *CamForwarder) poll(ctx context.Context) {
	defer cf.wg.Done()
	ticker := time.NewTicker(time.Duration(cf.Frequency) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, c := range cf.Cameras {
				select {
				case cf.queue <- c:
				default:
					Logger.Warn().Msgf("cam forwarder queue full, skipping %v", c.label())
				}
			}
		}
	}
}

func (cf *CamForwarder) worker(ctx context.Context) {
	defer cf.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-cf.queue:
			cf.processJob(ctx, job)
		}
	}
}

func (cf *CamForwarder) processJob(ctx context.Context, job CamForwarderCamera) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.Url, nil)
	if err != nil {
		Logger.Warn().Msgf("Unable to get pic from %v: %v", job.Url, err.Error())
		return
	}
	req.Header.Set("Accept", "*/*")
	resp, err := cf.client.Do(req)
	if err != nil {
		Logger.Warn().Msgf("Unable to get pic from %v: %v", job.Url, err.Error())
		return
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			Logger.Error().Msgf("Error closing response body: %v", closeErr)
		}
	}()
	if resp.StatusCode > 299 || resp.StatusCode < 200 {
		Logger.Warn().Msgf("non-2xx code received from camera: %d", resp.StatusCode)
		return
	}
	if resp.Header.Get("Content-Type") != "image/jpeg" {
		Logger.Warn().Msgf("Invalid image mimetype for %v: %v", job.Url, resp.Header.Get("Content-Type"))
		return
	}
	img, err := io.ReadAll(resp.Body)
	if err != nil {
		Logger.Warn().Msgf("Error reading image data from %v: %v", job.Url, err)
		return
	}
	if cf.handler != nil {
		cf.handler(job.label(), img)
	}
}
