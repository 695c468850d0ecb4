package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/nczempin/httpxfer/config"
	"github.com/nczempin/httpxfer/fetch"
	"github.com/nczempin/httpxfer/server"
)

const usage = `usage:
  httpxfer get <url> <dest>     download, resuming a previous attempt
  httpxfer serve <dir> <addr>   serve files below dir on addr (host:port or unix:/path)

Settings come from HTTPXFER_* environment variables. HTTPXFER_TRANSPORT
picks how get connects: tcp (default), uring, or unix together with
HTTPXFER_UNIX_SOCKET.
`

var errIncomplete = errors.New("download incomplete")

func main() {
	if len(os.Args) != 4 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.FromEnv("HTTPXFER")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log := config.SetupLogger(os.Stderr, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "get":
		err = get(ctx, cfg, log, os.Args[2], os.Args[3])
	case "serve":
		err = serve(ctx, cfg, log, os.Args[2], os.Args[3])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if errors.Is(err, errIncomplete) {
		stop()
		os.Exit(3)
	}
	if err != nil {
		log.Error().Stack().Err(err).Msg(os.Args[1] + " failed")
		stop()
		os.Exit(1)
	}
}

func get(ctx context.Context, cfg config.Config, log zerolog.Logger, url, dest string) error {
	res, err := fetch.New(cfg, log).Fetch(ctx, url, dest)
	if err != nil {
		return err
	}
	if !res.Complete {
		log.Warn().Int64("bytes", res.Bytes).Int64("expected", res.Size).Msg("run again to resume")
		return errIncomplete
	}
	return nil
}

func serve(ctx context.Context, cfg config.Config, log zerolog.Logger, dir, addr string) error {
	srv, err := server.New(dir, cfg, log)
	if err != nil {
		return err
	}
	ln, err := server.Listen(addr)
	if err != nil {
		return err
	}
	return srv.Serve(ctx, ln)
}
