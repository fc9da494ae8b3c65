package sheets

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// MemoryService はプロセス内メモリでタブを保持するTabularService。
// ローカル開発（SHEETS_BACKEND=memory）とテストで使用する。
// Google Sheetsと同様に、取得時は各行の末尾の空セルを省略する。
type MemoryService struct {
	mu    sync.Mutex
	order []string
	tabs  map[string][][]string
}

// NewMemoryService は空のMemoryServiceを生成する。
func NewMemoryService() *MemoryService {
	return &MemoryService{tabs: make(map[string][][]string)}
}

// SetTab はタブの内容を丸ごと置き換える。タブが無ければ作成する。
func (m *MemoryService) SetTab(tab string, rows [][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tabs[tab]; !ok {
		m.order = append(m.order, tab)
	}
	m.tabs[tab] = copyRows(rows)
}

// Tab はタブの内容のコピーを返す（末尾の空セルも保持したまま）。
func (m *MemoryService) Tab(tab string) [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyRows(m.tabs[tab])
}

// GetRows はタブの行を返す。範囲は開始行・終了行のみ解釈し、列範囲は無視する。
func (m *MemoryService) GetRows(_ context.Context, tab, rng string) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, ok := m.tabs[tab]
	if !ok {
		return nil, fmt.Errorf("tab not found: %s", tab)
	}

	start, end := 1, len(rows)
	if cell := rangeCells(rng); cell != "" {
		parts := strings.SplitN(cell, ":", 2)
		if r, ok := rowOf(parts[0]); ok {
			start = r
		}
		if len(parts) == 2 {
			if r, ok := rowOf(parts[1]); ok && r < end {
				end = r
			}
		}
	}

	var out [][]string
	for i := start - 1; i < end && i < len(rows); i++ {
		out = append(out, trimTrailingEmpty(rows[i]))
	}
	return out, nil
}

// AppendRow はタブの末尾に1行追加する。
func (m *MemoryService) AppendRow(_ context.Context, tab string, row []string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tabs[tab]; !ok {
		return "", fmt.Errorf("tab not found: %s", tab)
	}
	m.tabs[tab] = append(m.tabs[tab], append([]string(nil), row...))
	n := len(m.tabs[tab])
	last := len(row) - 1
	if last < 0 {
		last = 0
	}
	return A1Range(tab, 0, n, last, n), nil
}

// UpdateRange は範囲の左上セルを起点にrowsを書き込む。
func (m *MemoryService) UpdateRange(_ context.Context, tab, rng string, rows [][]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.tabs[tab]
	if !ok {
		return fmt.Errorf("tab not found: %s", tab)
	}

	startCell := strings.SplitN(rangeCells(rng), ":", 2)[0]
	startRow, ok := rowOf(startCell)
	if !ok {
		return fmt.Errorf("invalid range: %s", rng)
	}
	startCol := colOf(startCell)
	if startCol < 0 {
		startCol = 0
	}

	for i, row := range rows {
		r := startRow - 1 + i
		for len(existing) <= r {
			existing = append(existing, nil)
		}
		target := existing[r]
		for len(target) < startCol+len(row) {
			target = append(target, "")
		}
		copy(target[startCol:], row)
		existing[r] = target
	}
	m.tabs[tab] = existing
	return nil
}

// ListTabs は作成順のタブ名一覧を返す。
func (m *MemoryService) ListTabs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...), nil
}

// rangeCells は "Tab!A1:B2" から "A1:B2" を取り出す。タブ名のみなら空文字列。
func rangeCells(rng string) string {
	i := strings.LastIndex(rng, "!")
	if i < 0 {
		return ""
	}
	return rng[i+1:]
}

// rowOf は "AB12" から行番号12を取り出す。
func rowOf(cell string) (int, bool) {
	digits := strings.TrimLeft(cell, "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	if digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// colOf は "AB12" の列文字を0始まりの列インデックスに戻す。
func colOf(cell string) int {
	n := 0
	for _, r := range cell {
		if r < 'A' || r > 'Z' {
			break
		}
		n = n*26 + int(r-'A'+1)
	}
	return n - 1
}

func trimTrailingEmpty(row []string) []string {
	end := len(row)
	for end > 0 && row[end-1] == "" {
		end--
	}
	return append([]string(nil), row[:end]...)
}

func copyRows(rows [][]string) [][]string {
	if rows == nil {
		return nil
	}
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = append([]string(nil), row...)
	}
	return out
}

// compile-time interface check
var _ TabularService = (*MemoryService)(nil)
