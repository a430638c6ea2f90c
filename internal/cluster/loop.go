package cluster

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Publisher hands an encoded frame to the transport. Implementations must not
// modify buf after Publish returns.
type Publisher interface {
	Publish(buf []byte)
}

// FrameSource yields encoded frames received from the master, one per call.
type FrameSource interface {
	ReadFrame() ([]byte, error)
	Close() error
}

// MasterFrame runs one master frame: PreSync, Encode, hand-off to the
// transport, then draw. Control mutations that land after Encode are picked
// up by the next frame.
func MasterFrame(app *App, now time.Time, pub Publisher) {
	app.PreSync(now)
	buf := app.Encode()
	if pub != nil {
		pub.Publish(buf)
	}
	app.Draw()
}

// RenderFrame applies one received frame and draws it. A framing error is
// returned before anything is drawn.
func RenderFrame(app *App, buf []byte) error {
	if err := app.Decode(buf); err != nil {
		return err
	}
	app.Draw()
	return nil
}

// Loop drives master frames at a fixed rate.
type Loop struct {
	App       *App
	Publisher Publisher
	Interval  time.Duration
}

// NewLoop returns a loop running rate frames per second. A non-positive rate
// falls back to 60.
func NewLoop(app *App, pub Publisher, rate int) *Loop {
	if rate <= 0 {
		rate = 60
	}
	return &Loop{App: app, Publisher: pub, Interval: time.Second / time.Duration(rate)}
}

// Run blocks, producing one frame per tick until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.Interval)
	defer ticker.Stop()

	log.Printf("frame loop started at %v per frame", l.Interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("frame loop stopping")
			return ctx.Err()
		case now := <-ticker.C:
			MasterFrame(l.App, now, l.Publisher)
		}
	}
}

// Receive reads frames from src and renders each one until ctx is cancelled
// or src fails. A framing error ends the loop and is returned wrapped, so the
// caller can match it with errors.Is(err, codec.ErrFraming) and stop.
func Receive(ctx context.Context, app *App, src FrameSource) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			src.Close()
		case <-stop:
		}
	}()

	for {
		buf, err := src.ReadFrame()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read frame: %w", err)
		}
		if err := RenderFrame(app, buf); err != nil {
			return fmt.Errorf("frame %d: %w", app.Stats().Frames+1, err)
		}
	}
}

