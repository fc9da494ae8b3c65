// Package model はドメインモデルを定義する。
package model

// User はUsersシートの1行を型付きで表したもの。
// シート上のレコードを投影した派生データであり、直接永続化はしない。
type User struct {
	StudentID     string
	FirstName     string
	LastName      string
	Email         string
	PasswordHash  string
	EmailVerified bool
	RowNumber     int // シート上の行番号（1始まり、ヘッダーは1行目）
}

// DisplayName は表示用の氏名を返す。
func (u *User) DisplayName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// Grade はGradesシートの1行。列構成はシートごとに異なるため、ヘッダー名をキーとした値で保持する。
type Grade struct {
	StudentID string
	RowNumber int
	Fields    map[string]string
}
