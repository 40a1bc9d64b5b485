// Demo: a parcel-delivery machine driven end to end, with env-based
// configuration. Set ENV=prod for JSON logs.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	dotenv "github.com/joho/godotenv"
	envconf "github.com/sethvargo/go-envconfig"

	"github.com/quarticle/asyncfsm"
)

type AppConfig struct {
	Env       string        `env:"ENV, default=dev"`
	QueueSize int           `env:"QUEUE_SIZE, default=16"`
	Deadline  time.Duration `env:"DEADLINE, default=5s"`
}

type (
	State  string
	Event  string
	Effect string
)

const (
	StateDepot     State = "depot"
	StateInTransit State = "in_transit"
	StateDelivered State = "delivered"
	StateLost      State = "lost"
)

const (
	EventDispatch Event = "dispatch"
	EventDeliver  Event = "deliver"
	EventAbort    Event = "abort"
)

const (
	EffectPickedUp  Effect = "picked_up"
	EffectDelivered Effect = "delivered"
	EffectLost      Effect = "lost"
)

type Parcel struct {
	ID       string
	Attempts int
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := dotenv.Load(); err != nil {
		log.Println("Warning! No .env file found")
	}

	var c AppConfig
	envconf.MustProcess(ctx, &c)

	logger := configureLogger(c)

	done := make(chan struct{})

	assignCourier := asyncfsm.HandlerFunc[State, Event, *Parcel](func(ctrl *asyncfsm.Controller[Event], p *Parcel, _ State, _ Event) {
		p.Attempts++
		// Hand-off happens after this transition's callback and state change.
		ctrl.Trigger(EventDeliver)
	})

	machine, err := asyncfsm.Build("parcel", StateDepot,
		func(b *asyncfsm.Builder[State, Event, Effect, *Parcel]) {
			b.From(StateDepot).On(EventDispatch).
				Execute(assignCourier).
				GoTo(StateInTransit, EffectPickedUp)
			b.From(StateInTransit).On(EventDeliver).
				FinishOn(StateDelivered, EffectDelivered)
			b.FromAll(StateDelivered).On(EventAbort).
				FinishOn(StateLost, EffectLost)

			b.OnTransition(func(from State, ev Event, to State, eff Effect, p *Parcel) {
				logger.Info("transition",
					"parcel", p.ID, "from", from, "event", ev, "to", to, "effect", eff)
				if eff == EffectDelivered || eff == EffectLost {
					close(done)
				}
			})
			b.OnException(func(p *Parcel, s State, ev Event, err error) {
				logger.Error("transition failed", "parcel", p.ID, "state", s, "event", ev, "error", err)
				close(done)
			})
		},
		asyncfsm.WithLogger(logger),
		asyncfsm.WithQueueSize(c.QueueSize),
	)
	if err != nil {
		logger.Error("build failed", "error", err)
		os.Exit(1)
	}

	parcel := &Parcel{ID: "pkg-001"}
	if err := machine.Start(EventDispatch, parcel); err != nil {
		logger.Error("start failed", "error", err)
		os.Exit(1)
	}

	select {
	case <-done:
	case <-ctx.Done():
		logger.Info("interrupted")
	case <-time.After(c.Deadline):
		logger.Error("deadline reached before the machine finished")
	}
	machine.Finish()

	logger.Info("run complete", "parcel", parcel.ID, "attempts", parcel.Attempts)
}

func configureLogger(c AppConfig) *slog.Logger {
	var logger *slog.Logger
	switch c.Env {
	case "dev":
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case "prod":
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		panic(fmt.Sprintf("incorrect env type: %s. possible values: dev, prod", c.Env))
	}
	return logger
}
