// Package sheets はリモートの表計算シートをスキーマ柔軟なレコードストアとして扱うアダプタを提供する。
package sheets

import (
	"strconv"
	"strings"
)

// ToLetters は0始まりの列インデックスをA1表記の列文字に変換する。
// 全単射26進数（A=0 … Z=25, AA=26, …）で、ゼロに相当する桁を持たない。
// 負のインデックスには空文字列を返す。
func ToLetters(index int) string {
	if index < 0 {
		return ""
	}

	var buf []byte
	dividend := index + 1
	for dividend > 0 {
		remainder := (dividend - 1) % 26
		buf = append(buf, byte('A'+remainder))
		dividend = (dividend - remainder) / 26
	}

	// 下位桁から積んだので反転する
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}

// A1Range は <Tab>!<StartLetter><StartRow>:<EndLetter><EndRow> 形式の範囲を組み立てる。
// 列は0始まり、行は1始まり。
func A1Range(tab string, startCol, startRow, endCol, endRow int) string {
	var b strings.Builder
	b.WriteString(quoteTab(tab))
	b.WriteByte('!')
	b.WriteString(ToLetters(startCol))
	b.WriteString(strconv.Itoa(startRow))
	b.WriteByte(':')
	b.WriteString(ToLetters(endCol))
	b.WriteString(strconv.Itoa(endRow))
	return b.String()
}

// TabRange はタブ全体を指す範囲を返す。
func TabRange(tab string) string {
	return quoteTab(tab)
}

// quoteTab は英数字とアンダースコア以外を含むタブ名をシングルクォートで囲む。
// 内部のシングルクォートは二重化する。
func quoteTab(tab string) string {
	plain := tab != ""
	for _, r := range tab {
		if !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			plain = false
			break
		}
	}
	if plain {
		return tab
	}
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
}
