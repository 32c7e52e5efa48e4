package cmd

import (
	"os"
	"strings"

	"github.com/querysafe/querysafe/config"
	"github.com/querysafe/querysafe/db"
)

// DBConfig defines how to connect to a database. The connect string may be
// stored in a file separate from the config, because it can contain a password,
// which we want to keep out of configs.
type DBConfig struct {
	// A go-sql-driver/mysql DSN, e.g. "app:secret@tcp(db:3306)/app".
	DBConnect string `yaml:"dbConnect" json:"dbConnect" validate:"omitempty,dsn"`
	// A file containing a connect URL for the DB.
	DBConnectFile string `yaml:"dbConnectFile" json:"dbConnectFile" validate:"required_without=DBConnect"`

	// Database, if set, overrides the schema named in the connect string.
	Database string `yaml:"database" json:"database"`

	DialTimeout  config.Duration `yaml:"dialTimeout" json:"dialTimeout"`
	ReadTimeout  config.Duration `yaml:"readTimeout" json:"readTimeout"`
	WriteTimeout config.Duration `yaml:"writeTimeout" json:"writeTimeout"`
}

// URL returns the DBConnect URL represented by this DBConfig object, either
// loading it from disk or returning a default value. Leading and trailing
// whitespace is stripped.
func (d *DBConfig) URL() (string, error) {
	if d.DBConnectFile != "" {
		url, err := os.ReadFile(d.DBConnectFile)
		return strings.TrimSpace(string(url)), err
	}
	return d.DBConnect, nil
}

// Load resolves the connect string and returns the store configuration.
func (d *DBConfig) Load() (db.Config, error) {
	dsn, err := d.URL()
	if err != nil {
		return db.Config{}, err
	}
	return db.Config{
		DSN:          dsn,
		Database:     d.Database,
		DialTimeout:  d.DialTimeout.Duration,
		ReadTimeout:  d.ReadTimeout.Duration,
		WriteTimeout: d.WriteTimeout.Duration,
	}, nil
}
