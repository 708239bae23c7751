package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/url"

	"github.com/yanun0323/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"main/internal/cache"
)

const (
	defaultPostgresHost    = "localhost"
	defaultPostgresPort    = 5432
	defaultPostgresSSLMode = "disable"
)

// PGOption defines connection options for the PostgreSQL snapshot store.
type PGOption struct {
	Host       string            `yaml:"host"`
	Port       int               `yaml:"port"`
	User       string            `yaml:"user"`
	Password   string            `yaml:"password"`
	Database   string            `yaml:"database"`
	SSLMode    string            `yaml:"sslMode"`
	Params     map[string]string `yaml:"params"`
	ConnString string            `yaml:"connString"`

	// Keep keeps at most this many historical snapshots; 0 keeps all.
	Keep int `yaml:"keep"`
}

type snapshotRow struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	Timestamp int64  `gorm:"index"`
	LastSeq   uint64
	Data      []byte
}

func (snapshotRow) TableName() string {
	return "cache_snapshots"
}

// PGStore keeps snapshot history in PostgreSQL.
type PGStore struct {
	opt PGOption
	db  *gorm.DB
}

// NewPGStore connects and migrates the snapshot table.
func NewPGStore(opt PGOption) (*PGStore, error) {
	connString, err := opt.dsn()
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(postgres.Open(connString), &gorm.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if err := db.AutoMigrate(&snapshotRow{}); err != nil {
		return nil, errors.Wrap(err, "migrate snapshot table")
	}
	return &PGStore{opt: opt, db: db}, nil
}

// Save appends one snapshot row and prunes history beyond the keep limit.
func (s *PGStore) Save(ctx context.Context, snap cache.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}
	row := snapshotRow{
		Timestamp: snap.Timestamp,
		LastSeq:   snap.LastSeq,
		Data:      data,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return errors.Wrap(err, "insert snapshot")
	}
	if s.opt.Keep > 0 {
		return s.prune(ctx)
	}
	return nil
}

// Load returns the newest snapshot row.
func (s *PGStore) Load(ctx context.Context) (cache.Snapshot, error) {
	var row snapshotRow
	err := s.db.WithContext(ctx).Order("timestamp desc, id desc").First(&row).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return cache.Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return cache.Snapshot{}, errors.Wrap(err, "query snapshot")
	}
	var snap cache.Snapshot
	if err := json.Unmarshal(row.Data, &snap); err != nil {
		return cache.Snapshot{}, errors.Wrap(err, "unmarshal snapshot")
	}
	return snap, nil
}

// Close releases the connection pool.
func (s *PGStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *PGStore) prune(ctx context.Context) error {
	var cutoff snapshotRow
	err := s.db.WithContext(ctx).
		Order("timestamp desc, id desc").
		Offset(s.opt.Keep - 1).
		First(&cutoff).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "find prune cutoff")
	}
	return s.db.WithContext(ctx).
		Where("id < ?", cutoff.ID).
		Delete(&snapshotRow{}).Error
}

func (opt PGOption) dsn() (string, error) {
	if opt.ConnString != "" {
		return opt.ConnString, nil
	}

	host := opt.Host
	if host == "" {
		host = defaultPostgresHost
	}
	port := opt.Port
	if port == 0 {
		port = defaultPostgresPort
	}
	sslMode := opt.SSLMode
	if sslMode == "" {
		sslMode = defaultPostgresSSLMode
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
	}
	if opt.User != "" {
		if opt.Password != "" {
			u.User = url.UserPassword(opt.User, opt.Password)
		} else {
			u.User = url.User(opt.User)
		}
	}
	if opt.Database != "" {
		u.Path = "/" + opt.Database
	}

	query := url.Values{}
	query.Set("sslmode", sslMode)
	for key, value := range opt.Params {
		if key == "" {
			continue
		}
		query.Set(key, value)
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}
