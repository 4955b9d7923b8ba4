package gormpersistence

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// MySQL: ER_DUP_ENTRY
const mysqlDuplicateEntry = 1062

// isDuplicateEntryError 判断错误是否为唯一约束冲突。
// 优先使用驱动的错误码，字符串匹配只作为兜底。
func isDuplicateEntryError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // SQLite
		strings.Contains(msg, "Duplicate entry") // MySQL
}

// notFoundOr 将 gorm.ErrRecordNotFound 转换为 notFound，其他错误附带操作描述后返回
func notFoundOr(err, notFound error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return fmt.Errorf("gorm: "+format+": %w", append(args, err)...)
}
