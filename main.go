package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "mailsync",
		Usage: "sync tabular e-mail attachments into a relational database",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run one sync and exit",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "mode",
						Usage: "upsert or replace, overrides SYNC_MODE",
					},
				},
				Action: runCommand,
			},
			{
				Name:   "schedule",
				Usage:  "Run the sync on CRON_SCHEDULE_SYNC and serve the status API",
				Action: scheduleCommand,
			},
			{
				Name:   "migrate",
				Usage:  "Create the sync_states and sync_runs bookkeeping tables",
				Action: migrateCommand,
			},
			{
				Name:  "watermark",
				Usage: "Inspect or reset the watermark",
				Subcommands: []*cli.Command{
					{
						Name:   "show",
						Usage:  "Print the stored watermark",
						Action: watermarkShowCommand,
					},
					{
						Name:   "reset",
						Usage:  "Delete the watermark so the next run processes every item",
						Action: watermarkResetCommand,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("mailsync: %v", err)
	}
}
