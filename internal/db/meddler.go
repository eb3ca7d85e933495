package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/russross/meddler"
)

func init() {
	meddler.Register("unixmilli", UnixMilliMeddler{})
}

// UnixMilliMeddler stores a time.Time as unix milliseconds.
type UnixMilliMeddler struct{}

func (UnixMilliMeddler) PreRead(fieldAddr any) (any, error) {
	return new(sql.NullInt64), nil
}

func (UnixMilliMeddler) PostRead(fieldAddr, scanTarget any) error {
	n, ok := scanTarget.(*sql.NullInt64)
	if !ok {
		return fmt.Errorf("expected *sql.NullInt64, got %T", scanTarget)
	}

	ptr, ok := fieldAddr.(*time.Time)
	if !ok {
		return fmt.Errorf("expected *time.Time, got %T", fieldAddr)
	}

	if !n.Valid {
		*ptr = time.Time{}
		return nil
	}

	*ptr = time.UnixMilli(n.Int64).UTC()
	return nil
}

func (UnixMilliMeddler) PreWrite(field any) (any, error) {
	t, ok := field.(time.Time)
	if !ok {
		return nil, fmt.Errorf("expected time.Time, got %T", field)
	}
	if t.IsZero() {
		return nil, nil
	}

	return t.UnixMilli(), nil
}
