package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/gradesheet/internal/model"
)

// SheetHandle は論理シート名と物理タブ名・最小列幅の対応。
// 起動時に設定され、以降は変更しない。
type SheetHandle struct {
	Name     string  // 論理名（例: Users）
	Tab      string  // 物理タブ名
	MinWidth int     // 既知の最小列幅
	Schema   *Schema // 論理フィールド定義。nilならヘッダー名をそのままフィールド名とする
}

// Record はRowを論理フィールドへ投影したもの。読み出しごとに生成される派生データ。
type Record struct {
	Sheet      string
	RowNumber  int      // シート上の行番号（1始まり、ヘッダーは1行目）
	Values     []string // 物理列ごとのセル値
	Fields     map[string]string
	Resolution Resolution
}

// Get はフィールド値を返す。存在しない場合は空文字列。
func (r *Record) Get(field string) string {
	return r.Fields[field]
}

// WriteResult は追加・更新の結果。
type WriteResult struct {
	Sheet      string
	Range      string
	RowNumber  int
	Resolution Resolution
}

// Observer はストア操作の計測フック。
type Observer interface {
	ObserveOperation(sheet, op string, err error, duration time.Duration)
	ObserveResolution(sheet string, tier Tier)
}

type nopObserver struct{}

func (nopObserver) ObserveOperation(string, string, error, time.Duration) {}
func (nopObserver) ObserveResolution(string, Tier)                        {}

// Store は名前付きシートに対するfind/append/updateを提供するレコードストアアダプタ。
// ヘッダー行は毎回取得し直し、キャッシュは一切持たない。
// 同一レコードへの並行操作は排他しない（updateは後勝ち）。
type Store struct {
	svc      TabularService
	handles  map[string]SheetHandle
	order    []string
	creates  map[string]*sync.Mutex
	logger   *slog.Logger
	observer Observer
}

// NewStore はStoreを生成する。
func NewStore(svc TabularService, handles []SheetHandle, logger *slog.Logger, observer Observer) (*Store, error) {
	if svc == nil {
		return nil, fmt.Errorf("tabular service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = nopObserver{}
	}

	s := &Store{
		svc:      svc,
		handles:  make(map[string]SheetHandle, len(handles)),
		creates:  make(map[string]*sync.Mutex, len(handles)),
		logger:   logger,
		observer: observer,
	}
	for _, h := range handles {
		if h.Name == "" || h.Tab == "" {
			return nil, fmt.Errorf("sheet handle requires name and tab: %+v", h)
		}
		if _, dup := s.handles[h.Name]; dup {
			return nil, fmt.Errorf("duplicate sheet handle: %s", h.Name)
		}
		s.handles[h.Name] = h
		s.creates[h.Name] = &sync.Mutex{}
		s.order = append(s.order, h.Name)
	}
	return s, nil
}

// Sheets は設定済みのSheetHandleを登録順に返す。
func (s *Store) Sheets() []SheetHandle {
	out := make([]SheetHandle, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.handles[name])
	}
	return out
}

// Find はキー列を解決し、正規化したセル値がvalueと一致する最初の行を返す。
// 行数に比例するコストの線形探索で、インデックスは持たない。
func (s *Store) Find(ctx context.Context, sheet string, candidateKeyNames []string, value string) (rec *Record, err error) {
	defer s.observe(sheet, "find", time.Now(), &err)

	h, err := s.handle(sheet)
	if err != nil {
		return nil, err
	}
	header, rows, err := s.readSheet(ctx, h)
	if err != nil {
		return nil, err
	}

	res, keyCol, err := s.resolveKey(h, header, candidateKeyNames)
	if err != nil {
		return nil, err
	}
	idx, ok := scan(rows, keyCol, value)
	if !ok {
		return nil, fmt.Errorf("%w: %s where %v = %q", model.ErrNotFound, sheet, candidateKeyNames, value)
	}

	row := rows[idx]
	return &Record{
		Sheet:      h.Name,
		RowNumber:  idx + 2,
		Values:     append([]string(nil), row...),
		Fields:     project(h, header, res, row),
		Resolution: res,
	}, nil
}

// Append はヘッダーに従って新しい行を組み立て、シートの末尾に追加する。
// 重複チェックは行わない。重複防止が必要な場合はAppendIfAbsentを使う。
func (s *Store) Append(ctx context.Context, sheet string, fieldValues map[string]string) (result *WriteResult, err error) {
	defer s.observe(sheet, "append", time.Now(), &err)

	h, err := s.handle(sheet)
	if err != nil {
		return nil, err
	}
	header, err := s.readHeader(ctx, h)
	if err != nil {
		return nil, err
	}

	res := h.Schema.Resolve(header)
	placed, maxCol, err := place(h, header, res, fieldValues)
	if err != nil {
		return nil, err
	}
	s.noteResolution(h, "append", res)

	width := maxInt(len(header), h.MinWidth, maxCol+1)
	row := make([]string, width)
	for col, v := range placed {
		row[col] = v
	}

	updated, err := s.svc.AppendRow(ctx, h.Tab, row)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
	}

	rowNumber := 0
	if cells := rangeCells(updated); cells != "" {
		rowNumber, _ = rowOf(strings.SplitN(cells, ":", 2)[0])
	}
	return &WriteResult{
		Sheet:      h.Name,
		Range:      updated,
		RowNumber:  rowNumber,
		Resolution: res,
	}, nil
}

// AppendIfAbsent はキーが存在しない場合のみAppendする。存在すればmodel.ErrConflictを返す。
// FindとAppendの間はシート単位のプロセス内ロックで直列化する。
// 別プロセスからの同時作成とは依然として競合しうる（Sheetsに条件付き追加が無いため）。
func (s *Store) AppendIfAbsent(ctx context.Context, sheet string, candidateKeyNames []string, key string, fieldValues map[string]string) (*WriteResult, error) {
	h, err := s.handle(sheet)
	if err != nil {
		return nil, err
	}

	mu := s.creates[h.Name]
	mu.Lock()
	defer mu.Unlock()

	_, err = s.Find(ctx, sheet, candidateKeyNames, key)
	if err == nil {
		return nil, fmt.Errorf("%w: %s where %v = %q", model.ErrConflict, sheet, candidateKeyNames, key)
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}
	return s.Append(ctx, sheet, fieldValues)
}

// Update はシート全体を読み直して対象行を特定し、fieldUpdatesをマージした行を同じ範囲へ書き戻す。
// fieldUpdatesに含まれないセルはそのまま保持する。
// 行バージョン等の楽観ロックは無いため、同一行への同時更新は後勝ちになる。
func (s *Store) Update(ctx context.Context, sheet string, candidateKeyNames []string, key string, fieldUpdates map[string]string) (result *WriteResult, err error) {
	defer s.observe(sheet, "update", time.Now(), &err)

	h, err := s.handle(sheet)
	if err != nil {
		return nil, err
	}
	header, rows, err := s.readSheet(ctx, h)
	if err != nil {
		return nil, err
	}

	res, keyCol, err := s.resolveKey(h, header, candidateKeyNames)
	if err != nil {
		return nil, err
	}
	idx, ok := scan(rows, keyCol, key)
	if !ok {
		return nil, fmt.Errorf("%w: %s where %v = %q", model.ErrNotFound, sheet, candidateKeyNames, key)
	}

	placed, maxCol, err := place(h, header, res, fieldUpdates)
	if err != nil {
		return nil, err
	}

	existing := rows[idx]
	width := maxInt(len(header), h.MinWidth, len(existing), maxCol+1)
	merged := make([]string, width)
	copy(merged, existing)
	for col, v := range placed {
		merged[col] = v
	}

	rowNumber := idx + 2
	rng := A1Range(h.Tab, 0, rowNumber, width-1, rowNumber)
	if err := s.svc.UpdateRange(ctx, h.Tab, rng, [][]string{merged}); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
	}

	return &WriteResult{
		Sheet:      h.Name,
		Range:      rng,
		RowNumber:  rowNumber,
		Resolution: res,
	}, nil
}

// ListSheetNames はスプレッドシートの物理タブ名一覧を返す。診断用。
func (s *Store) ListSheetNames(ctx context.Context) (names []string, err error) {
	defer s.observe("", "list_sheets", time.Now(), &err)

	names, err = s.svc.ListTabs(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
	}
	return names, nil
}

func (s *Store) handle(name string) (SheetHandle, error) {
	h, ok := s.handles[name]
	if !ok {
		return SheetHandle{}, fmt.Errorf("%w: %s", model.ErrUnknownSheet, name)
	}
	return h, nil
}

// readSheet はヘッダー行とデータ行を取得する。返すrowsはヘッダーを含まない。
func (s *Store) readSheet(ctx context.Context, h SheetHandle) ([]string, [][]string, error) {
	all, err := s.svc.GetRows(ctx, h.Tab, TabRange(h.Tab))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
	}
	if len(all) == 0 {
		return nil, nil, nil
	}
	return all[0], all[1:], nil
}

// readHeader はヘッダー行のみ取得する。
func (s *Store) readHeader(ctx context.Context, h SheetHandle) ([]string, error) {
	rows, err := s.svc.GetRows(ctx, h.Tab, quoteTab(h.Tab)+"!1:1")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// resolveKey はシート全体の解決結果とキー列を返す。
// キー列だけが固定位置で解決された場合も縮退として扱う。
func (s *Store) resolveKey(h SheetHandle, header []string, candidates []string) (Resolution, int, error) {
	res := h.Schema.Resolve(header)
	col, tier, ok := h.Schema.resolveColumn(header, candidates)
	if !ok {
		s.logger.Warn("key column not resolved",
			slog.String("sheet", h.Name),
			slog.Any("candidates", candidates),
		)
		return res, 0, fmt.Errorf("%w: key column %v not found in %s", model.ErrSchemaMismatch, candidates, h.Name)
	}
	if tier == TierFixedPosition {
		res.Tier = TierFixedPosition
	}
	s.noteResolution(h, "read", res)
	return res, col, nil
}

func (s *Store) noteResolution(h SheetHandle, op string, res Resolution) {
	s.observer.ObserveResolution(h.Name, res.Tier)
	if res.Degraded() {
		s.logger.Warn("sheet resolved in degraded mode",
			slog.String("sheet", h.Name),
			slog.String("op", op),
			slog.String("tier", string(res.Tier)),
			slog.Any("fallback_fields", res.Fallbacks),
		)
	}
}

func (s *Store) observe(sheet, op string, start time.Time, errp *error) {
	s.observer.ObserveOperation(sheet, op, *errp, time.Since(start))
}

// scan はキー列の正規化値がvalueと一致する最初のデータ行のインデックスを返す。
// 正規化後に空になる値は空白行に一致してしまうため、常に見つからない扱いにする。
func scan(rows [][]string, col int, value string) (int, bool) {
	want := Normalize(value)
	if want == "" {
		return 0, false
	}
	for i, row := range rows {
		if Normalize(cellAt(row, col)) == want {
			return i, true
		}
	}
	return 0, false
}

// place は入力キーを列インデックスに割り当てる。
// キーはスキーマのフィールド名または候補表記で照合し、スキーマ外のキーはヘッダーへ直接照合する。
// 割り当てられないキーがあれば列ずれを避けるため操作全体を拒否する。
func place(h SheetHandle, header []string, res Resolution, values map[string]string) (map[int]string, int, error) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	placed := make(map[int]string, len(values))
	maxCol := -1
	var unresolved []string
	for _, k := range keys {
		col, ok := 0, false
		if m, found := h.Schema.Lookup(k); found {
			col, ok = res.Columns[m.Field]
		} else {
			col, ok = Resolve(header, []string{k})
		}
		if !ok {
			unresolved = append(unresolved, k)
			continue
		}
		placed[col] = values[k]
		if col > maxCol {
			maxCol = col
		}
	}
	if len(unresolved) > 0 {
		return nil, 0, fmt.Errorf("%w: unresolved fields %v in %s", model.ErrSchemaMismatch, unresolved, h.Name)
	}
	return placed, maxCol, nil
}

// project は行を論理フィールドの map に変換する。
func project(h SheetHandle, header []string, res Resolution, row []string) map[string]string {
	fields := make(map[string]string)
	if h.Schema != nil {
		for field, col := range res.Columns {
			fields[field] = cellAt(row, col)
		}
		return fields
	}
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		fields[name] = cellAt(row, i)
	}
	return fields
}

func cellAt(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return row[col]
}

func maxInt(values ...int) int {
	m := 0
	for _, v := range values {
		if v > m {
			m = v
		}
	}
	return m
}
