package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"peerchat/internal/domain"
	"peerchat/internal/services/session"
)

const eventBuffer = 64

// runChat prints session events and sends stdin lines until the session
// ends. It returns why the session ended.
func runChat(ctx context.Context, s *session.Session, q *session.EventQueue, in io.Reader, out io.Writer) error {
	var mu sync.Mutex
	printf := func(format string, a ...any) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, format, a...)
	}

	g, gctx := errgroup.WithContext(ctx)

	if appCtx != nil && appCtx.Config.MetricsAddr != "" {
		serveMetrics(g, appCtx.Config.MetricsAddr, appCtx.MetricsHandler(), s.Done(), printf)
	}

	g.Go(func() error {
		for {
			select {
			case ev := <-q.Events():
				printEvent(printf, ev)
				if ev.Kind == session.EventDisconnected {
					return nil
				}
			case <-s.Done():
				for {
					select {
					case ev := <-q.Events():
						printEvent(printf, ev)
					default:
						return nil
					}
				}
			}
		}
	})

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-s.Done():
				return
			}
		}
	}()

	g.Go(func() error {
		for {
			select {
			case <-s.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return s.Close()
				}
				handleLine(gctx, g, s, strings.TrimSpace(line), printf)
			}
		}
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return s.Wait()
}

func handleLine(ctx context.Context, g *errgroup.Group, s *session.Session, line string, printf func(string, ...any)) {
	switch {
	case line == "":
	case line == "/quit":
		_ = s.Close()
	case line == "/file" || strings.HasPrefix(line, "/file "):
		path := strings.TrimSpace(strings.TrimPrefix(line, "/file"))
		if path == "" {
			printf("! usage: /file <path>\n")
			return
		}
		done := s.SendFileAsync(ctx, path)
		g.Go(func() error {
			if err := <-done; err != nil {
				printf("! sending %s failed: %v\n", path, err)
			}
			return nil
		})
	default:
		err := s.SendText(line)
		switch {
		case errors.Is(err, session.ErrNotConnected):
			printf("! not connected yet\n")
		case err != nil:
			printf("! send failed: %v\n", err)
		}
	}
}

func printEvent(printf func(string, ...any), ev session.Event) {
	switch ev.Kind {
	case session.EventConnected:
		printf("* Connected to %s\n", ev.Peer)
	case session.EventDisconnected:
		if ev.Err != nil {
			printf("* Disconnected: %v\n", ev.Err)
			return
		}
		printf("* Disconnected\n")
	case session.EventText:
		m := ev.Message
		printf("[%s] %s: %s\n", m.Time.Format("15:04:05"), m.Sender, m.Text)
	case session.EventFile:
		f := ev.File
		if f.Direction == domain.DirectionReceived {
			printf("* Received %s (%d bytes), saved to %s\n", f.Name, f.Size, f.Path)
			return
		}
		printf("* Sending %s (%d bytes)\n", f.Name, f.Size)
	case session.EventLog:
		printf("* %s\n", ev.Line)
	}
}

// serveMetrics runs the metrics endpoint until stop is closed.
func serveMetrics(g *errgroup.Group, addr string, h http.Handler, stop <-chan struct{}, printf func(string, ...any)) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			printf("! metrics server: %v\n", err)
		}
		return nil
	})
	g.Go(func() error {
		<-stop
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})
}
