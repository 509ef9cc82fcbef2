// Package commands implements the datastore CLI subcommands.
package commands

import (
	"database/sql"
	"strings"
	"time"

	"github.com/cordate/datastore/config"
	"github.com/cordate/datastore/db"
	"github.com/cordate/datastore/errors"
	"github.com/cordate/datastore/logger"
	"github.com/cordate/datastore/storage"
)

// actorFlag overrides the configured actor key for mutating commands.
var actorFlag string

// openDatabase opens (and migrates) the configured database.
func openDatabase() (*sql.DB, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, errors.Wrap(err, "load configuration")
	}
	conn, err := db.OpenWithMigrations(cfg.Database.Path, logger.Logger)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open database %s", cfg.Database.Path)
	}
	return conn, cfg, nil
}

// resolveActor binds the audit identity for mutating commands: the --actor
// flag when given, otherwise the configured actor key.
func resolveActor(cfg *config.Config) storage.ActorResolver {
	if actorFlag != "" {
		return storage.Actor(actorFlag)
	}
	return storage.Actor(cfg.Actor.Key)
}

// parseNameAndDate splits a NAME[@DATE] argument.
func parseNameAndDate(arg string) (string, *time.Time, error) {
	name, raw, found := strings.Cut(arg, "@")
	if !found {
		return name, nil, nil
	}
	on, err := time.ParseInLocation(storage.DateFormat, raw, time.UTC)
	if err != nil {
		return "", nil, errors.Newf("invalid date %q, expected YYYY-MM-DD", raw)
	}
	return name, &on, nil
}
