package main

import (
	"context"
	"flag"
	"log"

	"github.com/google/uuid"
	"github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"omes/internal/executor"
	"omes/internal/lifecycle"
	"omes/internal/linehandler"
	"omes/internal/obs"
	"omes/internal/omes"
	"omes/internal/ops"
	"omes/internal/reconcile"
	"omes/internal/registry"
	"omes/internal/schema"
	"omes/internal/store"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to JSON config")
	warmup := flag.Bool("warmup", false, "Run the warm-up phase before going active")
	recoverFrom := flag.String("recover-from", "", "Previous session UUID to recover open orders from")
	socketPath := flag.String("socket", "", "Unix socket path for operator commands")
	flag.Parse()

	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	if addr := loaded.Profile.ServerAddress; addr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: loaded.Profile.ApplicationName,
			ServerAddress:   addr,
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	db, err := store.Open(loaded.Postgres)
	if err != nil {
		log.Fatalf("snapshot store open failed: %v", err)
	}
	defer func() {
		if err := store.Close(db); err != nil {
			logs.Errorf("snapshot store close failed: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := obs.NewMetrics()
	reg := registry.New()
	session := uuid.New()
	svc := omes.NewService(loaded.Service, reg, logCompletion, nil, metrics)

	var line *linehandler.LineHandler
	recoverer := store.NewRecoverer(db, func(rep schema.Report) error {
		return line.OnReport(rep)
	})

	previous := uuid.Nil
	if *recoverFrom != "" {
		previous, err = uuid.Parse(*recoverFrom)
		if err != nil {
			log.Fatalf("invalid -recover-from session: %v", err)
		}
	}
	engine := newLoopbackEngine(recoverer.Offer, func(ctx context.Context) error {
		return recoverer.Recover(ctx, previous)
	})

	writer := store.NewWriter(db, session, loaded.Dispatch.QueueCapacity, metrics)
	mgr := reconcile.NewManager(reg, writer, svc, metrics)
	proc := reconcile.NewProcessor(mgr, loaded.Dispatch.QueueCapacity)
	exec := executor.New(loaded.Dispatch, engine, svc, nil, metrics)

	line = linehandler.New(linehandler.Config{Name: "omes", Session: session}, engine, exec, proc)
	svc.Bind(line)

	go writer.Start(ctx)
	line.Start(ctx)

	if *socketPath != "" {
		cmdSrv, err := ops.NewCommandServer(*socketPath, svc)
		if err != nil {
			log.Fatalf("command socket setup failed: %v", err)
		}
		if err := cmdSrv.Start(ctx); err != nil {
			log.Fatalf("command socket start failed: %v", err)
		}
		defer func() {
			if err := cmdSrv.Close(); err != nil {
				logs.Errorf("command socket close failed: %v", err)
			}
		}()
	}

	if *warmup {
		if err := line.Transition(ctx, lifecycle.StateWarmup); err != nil {
			log.Fatalf("warmup failed: %v", err)
		}
		if err := line.Transition(ctx, lifecycle.StateReset); err != nil {
			log.Fatalf("post-warmup reset failed: %v", err)
		}
	}
	if previous != uuid.Nil {
		if err := line.Transition(ctx, lifecycle.StateRecovery); err != nil {
			log.Fatalf("recovery failed: %v", err)
		}
	}
	if err := line.Transition(ctx, lifecycle.StateActive); err != nil {
		log.Fatalf("activation failed: %v", err)
	}
	logs.Infof("omes active, session %s", line.Session())

	select {
	case <-sys.Shutdown():
	case <-ctx.Done():
	}

	if err := line.Transition(context.Background(), lifecycle.StateStopped); err != nil {
		logs.Errorf("stop failed: %v", err)
	}
	writer.Stop()
	<-writer.Done()

	snap := metrics.Snapshot()
	logs.Infof("shutdown complete, admitted=%d sent=%d timeouts=%d", snap.Admitted, snap.DispatchSent, snap.DispatchTimeouts)
}

func logCompletion(c schema.RequestCompletion) {
	if c.Type == schema.CompletionOK {
		logs.Infof("request sid %d completed ok", c.OrderSid)
		return
	}
	logs.Warnf("request sid %d completed %d reject=%d reason=%q", c.OrderSid, c.Type, c.Reject, c.Reason)
}
