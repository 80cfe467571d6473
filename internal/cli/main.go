package cli

import (
	"context"

	"github.com/Swapica/order-filler-svc/internal/config"
	"github.com/Swapica/order-filler-svc/internal/service"
	"github.com/alecthomas/kingpin"
	"gitlab.com/distributed_lab/kit/kv"
	"gitlab.com/distributed_lab/logan/v3"
)

func Run(args []string) bool {
	log := logan.New()

	defer func() {
		if rvr := recover(); rvr != nil {
			log.WithRecover(rvr).Error("app panicked")
		}
	}()

	cfg := config.New(kv.MustFromEnv())
	log = cfg.Log()

	app := kingpin.New("order-filler-svc", "")

	runCmd := app.Command("run", "run command")
	serviceCmd := runCmd.Command("service", "run service: fill queued requests")

	fillCmd := app.Command("fill", "fill a single order with the configured wallet")
	fillHash := fillCmd.Flag("hash", "order hash").Required().String()
	fillSignature := fillCmd.Flag("signature", "maker signature, the registry one is used when empty").String()

	validateCmd := app.Command("validate", "print the remaining making amount of an order")
	validateHash := validateCmd.Flag("hash", "order hash").Required().String()

	enqueueCmd := app.Command("enqueue", "queue an order for the service to fill")
	enqueueHash := enqueueCmd.Flag("hash", "order hash").Required().String()
	enqueueSignature := enqueueCmd.Flag("signature", "maker signature").String()

	statusCmd := app.Command("status", "show a queued request and the fills of its order")
	statusID := statusCmd.Flag("id", "request id").Required().String()

	migrateCmd := app.Command("migrate", "migrate command")
	migrateUpCmd := migrateCmd.Command("up", "migrate db up")
	migrateDownCmd := migrateCmd.Command("down", "migrate db down")

	cmd, err := app.Parse(args[1:])
	if err != nil {
		log.WithError(err).Error("failed to parse arguments")
		return false
	}

	ctx := context.Background()
	switch cmd {
	case serviceCmd.FullCommand():
		service.Run(cfg)
	case fillCmd.FullCommand():
		err = fillOrder(ctx, cfg, *fillHash, *fillSignature)
	case validateCmd.FullCommand():
		err = validateOrder(ctx, cfg, *validateHash)
	case enqueueCmd.FullCommand():
		err = enqueue(cfg, *enqueueHash, *enqueueSignature)
	case statusCmd.FullCommand():
		err = status(cfg, *statusID)
	case migrateUpCmd.FullCommand():
		err = MigrateUp(cfg)
	case migrateDownCmd.FullCommand():
		err = MigrateDown(cfg)
	default:
		log.Errorf("unknown command %s", cmd)
		return false
	}
	if err != nil {
		log.WithError(err).Error("failed to exec cmd")
		return false
	}
	return true
}
