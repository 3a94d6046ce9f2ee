package db

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/thep200/repo-harvester/cfg"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverMysql    = "mysql"
)

// mysqlTableOptions gives new tables a binary collation. The default utf8mb4 collations
// compare case-insensitively, so a unique key would merge "Acme/tool" and "acme/tool".
const mysqlTableOptions = "CHARSET=utf8mb4 COLLATE=utf8mb4_bin"

// Database giữ một kết nối gorm duy nhất cho mỗi lần chạy, chỉ mở khi cần đến.
type Database struct {
	Config cfg.Database
	once   sync.Once
	db     *gorm.DB
	err    error
}

func NewDatabase(config cfg.Database) *Database {
	return &Database{Config: config}
}

// NewFromGorm wraps an already open connection, used by tests with sqlite or sqlmock.
func NewFromGorm(db *gorm.DB) *Database {
	d := &Database{db: db}
	d.once.Do(func() {})
	return d
}

// DSN renders the connection string for the configured driver. Credentials are escaped,
// never concatenated raw.
func (d *Database) DSN() string {
	c := d.Config
	switch c.Driver {
	case DriverMysql:
		config := mysqlDriver.Config{
			User:                 c.Username,
			Passwd:               c.Password,
			DBName:               c.Database,
			Addr:                 net.JoinHostPort(c.Host, c.Port),
			Net:                  "tcp",
			ParseTime:            true,
			AllowNativePasswords: true,
			Params:               map[string]string{"charset": "utf8mb4"},
		}
		return config.FormatDSN()
	default:
		sslMode := c.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(c.Username, c.Password),
			Host:     net.JoinHostPort(c.Host, c.Port),
			Path:     "/" + c.Database,
			RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
		}
		return u.String()
	}
}

func (d *Database) dialector() (gorm.Dialector, error) {
	switch d.Config.Driver {
	case DriverMysql:
		return mysql.Open(d.DSN()), nil
	case DriverPostgres, "":
		sqlDB, err := sql.Open("postgres", d.DSN())
		if err != nil {
			return nil, err
		}
		return postgres.New(postgres.Config{Conn: sqlDB}), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", d.Config.Driver)
	}
}

func (d *Database) Db() (*gorm.DB, error) {
	d.once.Do(func() {
		// Open connection
		dialector, err := d.dialector()
		if err != nil {
			d.err = err
			return
		}

		db, err := gorm.Open(dialector, &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			d.err = fmt.Errorf("open %s connection: %w", d.Config.Driver, err)
			return
		}

		// Get sqlDB
		sqlDB, err := db.DB()
		if err != nil {
			d.err = err
			return
		}

		// Setting connection pool
		sqlDB.SetMaxIdleConns(d.Config.MaxIdleConnection)
		sqlDB.SetMaxOpenConns(d.Config.MaxOpenConnection)
		sqlDB.SetConnMaxLifetime(time.Duration(d.Config.MaxLifeTimeConnection) * time.Second)

		//
		d.db = db
	})
	return d.db, d.err
}

func (d *Database) Ping(ctx context.Context) error {
	db, err := d.Db()
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (d *Database) Close() error {
	if d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate tạo hoặc cập nhật bảng cho các model, với collation phân biệt hoa thường trên mysql
func (d *Database) Migrate(ctx context.Context, models ...interface{}) error {
	db, err := d.Db()
	if err != nil {
		return err
	}
	return schemaSession(db.WithContext(ctx)).AutoMigrate(models...)
}

func schemaSession(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == DriverMysql {
		return db.Set("gorm:table_options", mysqlTableOptions)
	}
	return db
}
