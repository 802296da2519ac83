// Package trace persists a history of debug client sessions and the register
// accesses made during each one.
package trace

import (
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dcrodman/pjet/internal/bridge"
	"github.com/dcrodman/pjet/internal/protocol"
)

// Session is one client connection, from accept to disconnect.
type Session struct {
	ID         uint64 `gorm:"primaryKey"`
	RemoteAddr string `gorm:"not null"`
	StartedAt  time.Time
	EndedAt    *time.Time
	EndReason  string
}

// RegisterAccess is a single read or write made by a client. Seq orders the
// accesses within a session.
type RegisterAccess struct {
	ID        uint64 `gorm:"primaryKey"`
	SessionID uint64 `gorm:"index;not null"`
	Seq       uint64 `gorm:"not null"`
	Op        string `gorm:"not null"`
	Addr      uint8
	Value     uint32
}

const insertBatchSize = 500

// ErrUnknownEngine is returned by Open for an unsupported database engine.
var ErrUnknownEngine = errors.New("unknown trace database engine")

// Store records sessions through gorm. It implements bridge.Recorder and,
// like the bridge, is meant to be used from a single goroutine.
type Store struct {
	db *gorm.DB

	session uint64
	nextSeq uint64
	rows    []RegisterAccess
}

var _ bridge.Recorder = (*Store)(nil)

// Open connects to the trace database. engine is either "sqlite", in which
// case filename names the database file, or "postgres" with a connection dsn.
func Open(engine, filename, dsn string, debug bool) (*Store, error) {
	var dialector gorm.Dialector
	switch engine {
	case "sqlite", "":
		dialector = sqlite.Open(filename)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEngine, engine)
	}

	// By default only log errors but enable full SQL query prints-to-console with debug mode
	log := logger.Default.LogMode(logger.Error)
	if debug {
		log = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: log})
	if err != nil {
		return nil, fmt.Errorf("error connecting to trace database: %w", err)
	}
	return New(db)
}

// New wraps an open database, creating the trace tables if needed.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Session{}, &RegisterAccess{}); err != nil {
		return nil, fmt.Errorf("error auto migrating trace db: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) StartSession(remoteAddr string, at time.Time) (uint64, error) {
	session := &Session{RemoteAddr: remoteAddr, StartedAt: at}
	if err := s.db.Create(session).Error; err != nil {
		return 0, fmt.Errorf("error creating session: %w", err)
	}
	s.session = session.ID
	s.nextSeq = 0
	return session.ID, nil
}

func (s *Store) RecordAccesses(session uint64, accesses []bridge.Access) error {
	if session == 0 || len(accesses) == 0 {
		return nil
	}
	if session != s.session {
		s.session = session
		s.nextSeq = 0
	}

	s.rows = s.rows[:0]
	for _, a := range accesses {
		s.rows = append(s.rows, RegisterAccess{
			SessionID: session,
			Seq:       s.nextSeq,
			Op:        protocol.OpcodeName(a.Op),
			Addr:      a.Addr,
			Value:     a.Value,
		})
		s.nextSeq++
	}

	if err := s.db.CreateInBatches(s.rows, insertBatchSize).Error; err != nil {
		return fmt.Errorf("error recording %d accesses: %w", len(accesses), err)
	}
	return nil
}

func (s *Store) EndSession(session uint64, reason string, at time.Time) error {
	if session == 0 {
		return nil
	}
	err := s.db.Model(&Session{ID: session}).
		Updates(map[string]interface{}{"ended_at": at, "end_reason": reason}).Error
	if err != nil {
		return fmt.Errorf("error ending session %d: %w", session, err)
	}
	return nil
}

// Sessions returns every recorded session, oldest first.
func (s *Store) Sessions() ([]Session, error) {
	var sessions []Session
	if err := s.db.Order("id").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("error listing sessions: %w", err)
	}
	return sessions, nil
}

// FindSession returns the session with the given ID, or nil if there is none.
func (s *Store) FindSession(id uint64) (*Session, error) {
	var session Session
	err := s.db.First(&session, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// Accesses returns the register accesses of a session in the order they
// were made.
func (s *Store) Accesses(session uint64) ([]RegisterAccess, error) {
	var accesses []RegisterAccess
	err := s.db.Where("session_id = ?", session).Order("seq").Find(&accesses).Error
	if err != nil {
		return nil, fmt.Errorf("error listing accesses for session %d: %w", session, err)
	}
	return accesses, nil
}

func (s *Store) Close() error {
	database, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("error while getting current connection: %w", err)
	}
	if err := database.Close(); err != nil {
		return fmt.Errorf("error while closing database connection: %w", err)
	}
	return nil
}
