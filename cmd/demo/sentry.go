package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/comalice/btreex"
	"github.com/comalice/btreex/predicate"
)

// expressions holds each condition in the dialect of both engines.
var expressions = map[string]map[string]string{
	"wounded": {"expr": "health < 30", "cel": "bb.health < 30"},
	"enemy":   {"expr": "enemy == true", "cel": "bb.enemy == true"},
	"ammo":    {"expr": "ammo > 0", "cel": "bb.ammo > 0"},
}

func compile(e predicate.Engine, name string, bb *btreex.Blackboard, logger *slog.Logger) (func() bool, error) {
	p, err := e.Compile(expressions[name][e.Name()])
	if err != nil {
		return nil, err
	}
	return predicate.On(p, bb, logger), nil
}

// sentry builds a guard that patrols, engages visible enemies while it has
// ammunition and retreats when wounded. Mode selection is a Yield node.
func sentry(cfg *btreex.Config, e predicate.Engine, bb *btreex.Blackboard, logger *slog.Logger) (*btreex.Node, error) {
	wounded, err := compile(e, "wounded", bb, logger)
	if err != nil {
		return nil, err
	}
	enemy, err := compile(e, "enemy", bb, logger)
	if err != nil {
		return nil, err
	}
	ammo, err := compile(e, "ammo", bb, logger)
	if err != nil {
		return nil, err
	}

	patrol := announce(logger, btreex.Repeat("patrol", btreex.Sequence("leg",
		btreex.Action("walk", func(context.Context) (btreex.Status, error) {
			wp, _ := bb.Get("waypoint").(int)
			bb.Set("waypoint", (wp+1)%4)
			logger.Info("walking", "waypoint", (wp+1)%4)
			return btreex.Success, nil
		}),
		btreex.Wait("look-around", 10),
	)))

	engage := announce(logger, btreex.Selector("engage",
		btreex.While("armed", ammo, btreex.Repeat("volley",
			btreex.Cooldown("reload", 300*time.Millisecond,
				btreex.Action("fire", func(context.Context) (btreex.Status, error) {
					n, _ := bb.Get("ammo").(int)
					bb.Set("ammo", n-1)
					logger.Info("fire", "ammo", n-1)
					return btreex.Success, nil
				}),
			),
		)),
		btreex.AsyncAction("melee", func(ctx context.Context, y *btreex.Yielder) (btreex.Status, error) {
			logger.Info("out of ammo, closing in")
			if err := y.Ticks(20); err != nil {
				return btreex.Failure, err
			}
			return btreex.Success, nil
		}),
	))

	retreat := announce(logger, btreex.Timeout("retreat", 2*time.Second,
		btreex.AsyncAction("run", func(ctx context.Context, y *btreex.Yielder) (btreex.Status, error) {
			if err := y.Until(func() bool { return !wounded() }); err != nil {
				return btreex.Failure, err
			}
			return btreex.Success, nil
		}),
	))
	retreat.OnExitAsync(func(ctx context.Context, y *btreex.Yielder) error {
		logger.Info("catching breath")
		return y.Ticks(3)
	})

	return btreex.Yield("mode", func() *btreex.Node {
		switch {
		case wounded():
			return retreat
		case enemy():
			return engage
		default:
			return patrol
		}
	}, cfg.YieldOptions()...), nil
}

func announce(logger *slog.Logger, n *btreex.Node) *btreex.Node {
	return n.OnEnter(func(context.Context) error {
		logger.Info("mode entered", "mode", n.Name())
		return nil
	}).OnDisable(func(context.Context) error {
		logger.Info("mode left", "mode", n.Name())
		return nil
	})
}
