package diagnostics

import (
	"errors"
	"regexp"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/vitebski/sqlbootstrap/pkg/models"
	"modernc.org/sqlite"
)

// oraCode matches Oracle error prefixes such as ORA-00942
var oraCode = regexp.MustCompile(`ORA-(\d{5})`)

// sqlStateError is implemented by drivers that expose SQLSTATE codes
type sqlStateError interface {
	SQLState() string
}

// errorNumberer is implemented by SQL Server errors
type errorNumberer interface {
	SQLErrorNumber() int32
}

// CodeOf walks the error chain and returns the first backend code found,
// together with the vendor error number when the driver reports one.
func CodeOf(err error) (string, int) {
	for depth := 0; err != nil && depth < MaxChainDepth; depth++ {
		if code, vendor, ok := ownCode(err); ok {
			return code, vendor
		}
		err = errors.Unwrap(err)
	}
	return "", 0
}

// ownCode inspects only err itself, never its causes
func ownCode(err error) (string, int, bool) {
	switch e := err.(type) {
	case *models.BackendError:
		return e.Code, e.VendorCode, e.Code != "" || e.VendorCode != 0
	case *mysql.MySQLError:
		state := ""
		if e.SQLState != [5]byte{} {
			state = string(e.SQLState[:])
		}
		return state, int(e.Number), true
	case *pq.Error:
		return string(e.Code), 0, true
	case *sqlite.Error:
		return "", e.Code(), true
	}

	if e, ok := err.(errorNumberer); ok {
		n := int(e.SQLErrorNumber())
		return strconv.Itoa(n), n, true
	}
	if e, ok := err.(sqlStateError); ok && e.SQLState() != "" {
		return e.SQLState(), 0, true
	}
	if m := oraCode.FindStringSubmatch(err.Error()); m != nil {
		n, _ := strconv.Atoi(m[1])
		return m[0], n, true
	}
	return "", 0, false
}
