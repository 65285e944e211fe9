package service

import (
	"errors"
	"time"
)

// ErrNoHistory is returned when run history is disabled
var ErrNoHistory = errors.New("run history is disabled")

const (
	// ArchiveTimeout bounds saving one finished run
	ArchiveTimeout = 5 * time.Second

	// HistoryLimit is the default number of runs listed
	HistoryLimit = 20
)
