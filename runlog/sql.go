// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

var drvName = "mysql"

// Schema creates the runs table.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	id      BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
	device  VARCHAR(255)    NOT NULL,
	subdev  INT UNSIGNED    NOT NULL,
	command TEXT            NOT NULL,
	state   VARCHAR(32)     NOT NULL,
	start   DATETIME(6)     NOT NULL,
	stop    DATETIME(6)     NULL,
	bytes   BIGINT          NOT NULL DEFAULT 0,
	error   TEXT            NOT NULL
)`

// DSN returns the data source name of the dbname MySQL database.
func DSN(usr, pwd, host, dbname string) string {
	cfg := mysql.NewConfig()
	cfg.User = usr
	cfg.Passwd = pwd
	cfg.Net = "tcp"
	cfg.Addr = host
	cfg.DBName = dbname
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN()
}

// SQL is a run log stored in the runs table of a MySQL database.
type SQL struct {
	db *sql.DB
}

// OpenSQL connects to the MySQL database described by dsn.
// Times are always parsed, whatever the dsn says.
func OpenSQL(dsn string) (*SQL, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("runlog: invalid dsn: %w", err)
	}
	cfg.ParseTime = true

	db, err := sql.Open(drvName, cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("runlog: could not open %q db: %w", cfg.DBName, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = db.PingContext(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("runlog: could not ping %q db: %w", cfg.DBName, err)
	}

	return &SQL{db: db}, nil
}

func (s *SQL) Close() error {
	return s.db.Close()
}

// Init creates the runs table if needed.
func (s *SQL) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	if err != nil {
		return fmt.Errorf("runlog: could not create runs table: %w", err)
	}
	return nil
}

func (s *SQL) Put(ctx context.Context, rec *Record) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var stop sql.NullTime
	if !rec.Stop.IsZero() {
		stop = sql.NullTime{Time: rec.Stop, Valid: true}
	}

	if rec.ID != 0 {
		_, err := s.db.ExecContext(
			ctx,
			"UPDATE runs SET state=?, stop=?, bytes=?, error=? WHERE id=?",
			rec.State, stop, rec.Bytes, rec.Err, rec.ID,
		)
		if err != nil {
			return fmt.Errorf("runlog: could not update run %d: %w", rec.ID, err)
		}
		return nil
	}

	res, err := s.db.ExecContext(
		ctx,
		"INSERT INTO runs (device, subdev, command, state, start, stop, bytes, error) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		rec.Device, rec.Subdev, rec.Command, rec.State, rec.Start, stop, rec.Bytes, rec.Err,
	)
	if err != nil {
		return fmt.Errorf("runlog: could not insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("runlog: could not retrieve run id: %w", err)
	}
	rec.ID = uint64(id)
	return nil
}

func (s *SQL) List(ctx context.Context, n int) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var (
		query = "SELECT id, device, subdev, command, state, start, stop, bytes, error FROM runs ORDER BY id DESC"
		args  []interface{}
	)
	if n > 0 {
		query += " LIMIT ?"
		args = append(args, n)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("runlog: could not query runs: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var (
			rec  Record
			stop sql.NullTime
		)
		err = rows.Scan(
			&rec.ID, &rec.Device, &rec.Subdev, &rec.Command, &rec.State,
			&rec.Start, &stop, &rec.Bytes, &rec.Err,
		)
		if err != nil {
			return recs, fmt.Errorf("runlog: could not scan row %d: %w", len(recs), err)
		}
		if stop.Valid {
			rec.Stop = stop.Time
		}
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return recs, fmt.Errorf("runlog: could not scan db for runs: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return recs, fmt.Errorf("runlog: context error while listing runs: %w", err)
	}

	return recs, nil
}
