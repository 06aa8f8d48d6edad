// Package repository implements the booking store on MySQL.  Driver errors
// are wrapped with the failing operation; the sentinel errors from the model
// package are returned unwrapped so handlers can match them directly.
package repository

import (
	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
)

// MySQL server error numbers inspected by the repositories.
const (
	errDupEntry        = 1062
	errNoReferencedRow = 1452
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

func mysqlErrNo(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

func isDuplicate(err error) bool { return mysqlErrNo(err) == errDupEntry }

func isForeignKeyViolation(err error) bool { return mysqlErrNo(err) == errNoReferencedRow }

// IsRetryable reports whether err is a lock wait timeout or deadlock that
// aborted the transaction.
func IsRetryable(err error) bool {
	n := mysqlErrNo(err)
	return n == errLockWaitTimeout || n == errDeadlock
}
