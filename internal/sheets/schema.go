package sheets

import (
	"strings"

	"golang.org/x/text/cases"
)

// Tier はフィールド解決に使われた段階を表す。
type Tier string

const (
	// TierHeader は全フィールドをヘッダー名で解決できた状態。
	TierHeader Tier = "header"
	// TierFixedPosition は1つ以上のフィールドで固定位置フォールバックを使った縮退状態。
	TierFixedPosition Tier = "fixed_position"
)

// NoFallback は固定位置フォールバックを持たないことを示す。
const NoFallback = -1

// FieldMapping は1つの論理フィールドについて、許容する表記の優先順リストと
// どの表記も一致しなかった場合の固定列インデックスを保持する。
type FieldMapping struct {
	Field      string   // 論理フィールド名（例: email）
	Candidates []string // 許容するヘッダー表記（優先順）
	Fallback   int      // 固定位置（0始まり）。NoFallbackなら無し
}

// Schema はシートの論理フィールドの集合。
// ヘッダー幅がLegacyWidth未満の場合は全フィールドを固定位置で解決する。
type Schema struct {
	Fields      []FieldMapping
	LegacyWidth int
}

// Resolution はヘッダー行に対するフィールド解決結果。
// 呼び出しごとに再計算し、キャッシュしない。
type Resolution struct {
	Columns   map[string]int // 論理フィールド名 → 列インデックス
	Tier      Tier
	Fallbacks []string // 固定位置で解決したフィールド
	Missing   []string // 解決できなかったフィールド
}

// Degraded は縮退モードで解決されたかを返す。
func (r Resolution) Degraded() bool {
	return r.Tier == TierFixedPosition
}

// Normalize はヘッダーやキー値の比較用に前後の空白を除去しcase-foldする。
func Normalize(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// headerIndex は正規化済みヘッダー文字列から列インデックスへの表を作る。
// 同じ表記が重複する場合は最後の出現を採用する。
func headerIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, cell := range header {
		key := Normalize(cell)
		if key == "" {
			continue
		}
		index[key] = i
	}
	return index
}

// Resolve は候補名を優先順にヘッダー行へ照合し、最初に一致した列インデックスを返す。
// 一致しない場合はfalseを返し、フォールバックの適用は呼び出し側に任せる。
// 大文字小文字と前後の空白は無視し、部分一致はしない。
func Resolve(header []string, candidates []string) (int, bool) {
	return resolveIn(headerIndex(header), candidates)
}

func resolveIn(index map[string]int, candidates []string) (int, bool) {
	for _, name := range candidates {
		if i, ok := index[Normalize(name)]; ok {
			return i, true
		}
	}
	return 0, false
}

// Lookup はフィールド名または候補表記のいずれかでFieldMappingを探す。
func (s *Schema) Lookup(key string) (FieldMapping, bool) {
	if s == nil {
		return FieldMapping{}, false
	}
	k := Normalize(key)
	for _, m := range s.Fields {
		if Normalize(m.Field) == k {
			return m, true
		}
	}
	for _, m := range s.Fields {
		for _, c := range m.Candidates {
			if Normalize(c) == k {
				return m, true
			}
		}
	}
	return FieldMapping{}, false
}

// legacy はヘッダーが旧レイアウト（固定位置）扱いとなる幅かを返す。
func (s *Schema) legacy(header []string) bool {
	return s != nil && s.LegacyWidth > 0 && len(header) < s.LegacyWidth
}

// Resolve はヘッダー行に対して全フィールドを2段階（ヘッダー名 → 固定位置）で解決する。
func (s *Schema) Resolve(header []string) Resolution {
	res := Resolution{
		Columns: make(map[string]int),
		Tier:    TierHeader,
	}
	if s == nil {
		return res
	}

	legacy := s.legacy(header)
	index := headerIndex(header)
	for _, m := range s.Fields {
		if !legacy {
			if i, ok := resolveIn(index, m.Candidates); ok {
				res.Columns[m.Field] = i
				continue
			}
		}
		if m.Fallback >= 0 {
			res.Columns[m.Field] = m.Fallback
			res.Fallbacks = append(res.Fallbacks, m.Field)
			res.Tier = TierFixedPosition
			continue
		}
		res.Missing = append(res.Missing, m.Field)
	}
	return res
}

// resolveColumn は任意の名前リスト（論理フィールド名や表記揺れ）から列を解決する。
// スキーマに該当フィールドがあればその候補表記も照合し、最後に固定位置を適用する。
func (s *Schema) resolveColumn(header []string, names []string) (int, Tier, bool) {
	var mapping *FieldMapping
	candidates := append([]string(nil), names...)
	for _, name := range names {
		if m, ok := s.Lookup(name); ok {
			mapping = &m
			candidates = append(candidates, m.Candidates...)
			break
		}
	}

	if !s.legacy(header) || mapping == nil {
		if i, ok := Resolve(header, candidates); ok {
			return i, TierHeader, true
		}
	}
	if mapping != nil && mapping.Fallback >= 0 {
		return mapping.Fallback, TierFixedPosition, true
	}
	return 0, "", false
}

// UsersSchema は正規のUsersシートのフィールド定義を返す。
// 固定位置は旧レイアウトの列配置に対応する設定値。
func UsersSchema() *Schema {
	return &Schema{
		LegacyWidth: UsersMinWidth,
		Fields: []FieldMapping{
			{Field: FieldStudentID, Candidates: []string{"Student_ID", "StudentID", "Student Id", "ID"}, Fallback: 0},
			{Field: FieldFirstName, Candidates: []string{"First_Name", "FirstName", "First Name"}, Fallback: 1},
			{Field: FieldLastName, Candidates: []string{"Last_Name", "LastName", "Last Name"}, Fallback: 2},
			{Field: FieldEmail, Candidates: []string{"Email", "Username", "Login", "Email_Address"}, Fallback: 3},
			{Field: FieldPasswordHash, Candidates: []string{"Password_Hash", "PasswordHash", "Password"}, Fallback: 16},
			{Field: FieldEmailVerified, Candidates: []string{"IsEmailVerified", "Email_Verified", "EmailVerified"}, Fallback: 24},
		},
	}
}

// Usersシートの論理フィールド名。
const (
	FieldStudentID     = "studentId"
	FieldFirstName     = "firstName"
	FieldLastName      = "lastName"
	FieldEmail         = "email"
	FieldPasswordHash  = "passwordHash"
	FieldEmailVerified = "emailVerified"
)

// UsersMinWidth はUsersシートの既知の最小列幅。
const UsersMinWidth = 25
