package dataimporter

import (
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
	"github.com/transitgrid/transitgrid/pkg/database"
	"github.com/transitgrid/transitgrid/pkg/redis_client"
	"github.com/transitgrid/transitgrid/pkg/util"
	"github.com/transitgrid/transitgrid/pkg/versions"
	"github.com/urfave/cli/v2"
)

func connect() error {
	if err := database.Connect(); err != nil {
		return err
	}

	// Progress events fall back to the log when no queue is reachable.
	if err := redis_client.Connect(); err != nil {
		log.Info().Err(err).Msg("Redis not available, progress events will only be logged")
	}

	return nil
}

// logRunResult keeps a no-op run from looking like a failure.
func logRunResult(agencyID int, err error) error {
	var noOp *versions.NoOpError
	if errors.As(err, &noOp) {
		log.Info().Int("agency", agencyID).Msg(noOp.Message)
		return nil
	}
	return err
}

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "data-importer",
		Usage: "Import agency schedule feeds & publish dated snapshots",
		Subcommands: []*cli.Command{
			{
				Name:  "import",
				Usage: "Import one agency's feed into its working data set",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:     "agency-id",
						Usage:    "Numeric id of the agency",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "file",
						Usage:    "Path to the feed (zip archive or directory)",
						Required: true,
					},
				},
				Action: func(c *cli.Context) error {
					if err := connect(); err != nil {
						return err
					}

					agencyID := c.Int("agency-id")
					err := RunImport(database.GetDB(), Config{
						AgencyID: agencyID,
						FeedPath: c.String("file"),
					})
					return logRunResult(agencyID, err)
				},
			},
			{
				Name:  "import-all",
				Usage: "Import every agency in the registry, in parallel",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "registry",
						Usage: "Path to the agency registry file",
					},
				},
				Action: func(c *cli.Context) error {
					if err := connect(); err != nil {
						return err
					}

					registryPath := c.String("registry")
					if registryPath == "" {
						registryPath = util.GetEnvironmentVariables()["TRANSITGRID_AGENCIES_FILE"]
					}

					registry, err := LoadRegistry(registryPath)
					if err != nil {
						return err
					}

					imports := pool.New().WithErrors()
					for _, agency := range registry.Agencies {
						agency := agency
						imports.Go(func() error {
							err := RunImport(database.GetDB(), Config{
								AgencyID: agency.ID,
								FeedPath: agency.Feed,
							})
							return logRunResult(agency.ID, err)
						})
					}
					return imports.Wait()
				},
			},
			{
				Name:  "publish",
				Usage: "Publish an agency's working data set as a dated snapshot",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:     "agency-id",
						Usage:    "Numeric id of the agency",
						Required: true,
					},
				},
				Action: func(c *cli.Context) error {
					if err := connect(); err != nil {
						return err
					}

					agencyID := c.Int("agency-id")
					err := RunPublish(database.GetDB(), agencyID)
					return logRunResult(agencyID, err)
				},
			},
		},
	}
}
