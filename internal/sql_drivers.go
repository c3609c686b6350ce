package internal

import (
	// database/sql drivers for the sql publisher and subscriber.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)
