package main

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"os/exec"
	"time"

	"tierstore/internal/api"
	"tierstore/internal/config"
)

const (
	serverStartTimeout = 3 * time.Second
	serverStopTimeout  = 5 * time.Second
	serverPollInterval = 100 * time.Millisecond
	serverProbeTimeout = 500 * time.Millisecond
)

// localServer is a tierstore srv process started on demand for one command.
type localServer struct {
	cmd *exec.Cmd
}

// withClient runs fn against the configured API, starting a server process
// when none answers and stopping it afterwards.
func withClient(cfg *config.Config, fn func(*api.Client) error) error {
	client := api.NewClient(cfg.APIURL)

	probeCtx, cancel := context.WithTimeout(context.Background(), serverProbeTimeout)
	reachable := client.Ping(probeCtx) == nil
	cancel()

	if !reachable {
		srv, err := startLocalServer(cfg)
		if err != nil {
			return err
		}
		defer srv.stop()
		if err := srv.waitReady(client, serverStartTimeout); err != nil {
			return err
		}
	}
	return fn(client)
}

func startLocalServer(cfg *config.Config) (*localServer, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(exe, "srv")
	cmd.Env = append(os.Environ(),
		"TIERSTORE_DB="+cfg.DBPath,
		"TIERSTORE_API_URL="+cfg.APIURL,
	)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &localServer{cmd: cmd}, nil
}

func (s *localServer) waitReady(client *api.Client, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		err := client.Ping(ctx)
		cancel()
		if err == nil {
			return nil
		}
		if !isConnRefused(err) {
			// The port answers but not as tierstore.
			return err
		}
		time.Sleep(serverPollInterval)
	}
	return errors.New("server did not start in time")
}

// stop asks the server to shut down so deferred deletes finish, and kills it
// if it does not exit in time.
func (s *localServer) stop() {
	if s == nil || s.cmd == nil || s.cmd.Process == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		_ = s.cmd.Wait()
		close(done)
	}()
	_ = s.cmd.Process.Signal(os.Interrupt)
	select {
	case <-done:
	case <-time.After(serverStopTimeout):
		_ = s.cmd.Process.Kill()
		<-done
	}
}

func isConnRefused(err error) bool {
	var netErr *net.OpError
	return errors.As(err, &netErr)
}
