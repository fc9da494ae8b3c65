// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は利用者が入力した氏名などの表示テキストから
// HTMLタグと制御文字を取り除き、プレーンテキストとして保存できる形にする。
// タグの除去にはbluemondayのStrictPolicyを使用する。
package security

import (
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// DefaultMaxTextLength は1フィールドあたりの最大文字数（rune単位）。
const DefaultMaxTextLength = 100

const maxPasses = 3

// TextSanitizer はプレーンテキストの無害化を行う。
// bluemondayのポリシーはスレッドセーフなので共有して使用できる。
type TextSanitizer struct {
	policy    *bluemonday.Policy
	maxLength int
}

// NewTextSanitizer はTextSanitizerを生成する。maxLengthが0以下ならDefaultMaxTextLength。
func NewTextSanitizer(maxLength int) *TextSanitizer {
	if maxLength <= 0 {
		maxLength = DefaultMaxTextLength
	}
	return &TextSanitizer{
		policy:    bluemonday.StrictPolicy(),
		maxLength: maxLength,
	}
}

// SanitizeText はタグを除去し、エスケープされた文字実体を元に戻した上で
// 制御文字を空白に置き換え、連続する空白を1つにまとめる。
// 結果はmaxLength文字で切り詰める。
// 同一入力に対して常に同一出力を返す。
func (s *TextSanitizer) SanitizeText(raw string) string {
	if raw == "" {
		return ""
	}
	// 実体参照で書かれたタグも除去されるよう、変化しなくなるまで繰り返す
	text := raw
	for i := 0; i < maxPasses; i++ {
		next := html.UnescapeString(s.policy.Sanitize(text))
		if next == text {
			break
		}
		text = next
	}

	text = strings.Map(func(r rune) rune {
		if r == utf8.RuneError || unicode.IsControl(r) {
			return ' '
		}
		return r
	}, text)
	text = strings.Join(strings.Fields(text), " ")

	if utf8.RuneCountInString(text) > s.maxLength {
		text = strings.TrimSpace(string([]rune(text)[:s.maxLength]))
	}
	return text
}
