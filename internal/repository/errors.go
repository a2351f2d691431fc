package repository

import (
	"errors"

	"github.com/lib/pq"
)

// uniqueViolationCode はPostgreSQLのUNIQUE制約違反のエラーコード。
const uniqueViolationCode = "23505"

// IsUniqueViolation はエラーがUNIQUE制約違反かどうかを判定する。
// プロフィールの同時作成競合やスラッグ重複の検出に使用する。
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolationCode
	}
	return false
}
