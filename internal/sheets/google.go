package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// TabularService はリモートの表計算サービスが提供する操作。
// rngはA1表記（<Tab>!A1:C5 またはタブ名のみ）で指定する。
type TabularService interface {
	// GetRows は範囲内の行を返す。末尾の空セルは省略されることがある。
	GetRows(ctx context.Context, tab, rng string) ([][]string, error)
	// AppendRow はタブの末尾に1行追加し、書き込まれた範囲を返す。
	AppendRow(ctx context.Context, tab string, row []string) (string, error)
	// UpdateRange は範囲をrowsで上書きする。
	UpdateRange(ctx context.Context, tab, rng string, rows [][]string) error
	// ListTabs はスプレッドシート内のタブ名一覧を返す。
	ListTabs(ctx context.Context) ([]string, error)
}

// GoogleConfig はGoogle Sheetsクライアントの設定。
type GoogleConfig struct {
	SpreadsheetID   string
	CredentialsFile string // サービスアカウントJSON。空ならApplication Default Credentials
	Retry           RetryPolicy

	// テスト用にオーバーライド可能な接続先
	Endpoint   string
	HTTPClient *http.Client
}

// GoogleService はGoogle Sheets API v4を使ったTabularServiceの実装。
// 各呼び出しにハードタイムアウトを設け、一時的な失敗は指数バックオフで再試行する。
type GoogleService struct {
	api           *sheetsapi.Service
	spreadsheetID string
	retry         *retrier
}

// NewGoogleService はGoogleServiceを生成する。
// onRetryは再試行ごとに呼ばれる（メトリクス用、nil可）。
func NewGoogleService(ctx context.Context, cfg GoogleConfig, logger *slog.Logger, onRetry func(op string)) (*GoogleService, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet ID is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []option.ClientOption{option.WithScopes(sheetsapi.SpreadsheetsScope)}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	api, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}

	return &GoogleService{
		api:           api,
		spreadsheetID: cfg.SpreadsheetID,
		retry: &retrier{
			policy:   cfg.Retry,
			classify: classifyGoogleError,
			logger:   logger,
			onRetry:  onRetry,
			sleep:    sleepContext,
		},
	}, nil
}

// GetRows は範囲内の値を表示形式の文字列で取得する。
func (s *GoogleService) GetRows(ctx context.Context, tab, rng string) ([][]string, error) {
	var resp *sheetsapi.ValueRange
	err := s.retry.do(ctx, "get_rows", true, func(ctx context.Context) error {
		r, err := s.api.Spreadsheets.Values.Get(s.spreadsheetID, rng).
			MajorDimension("ROWS").
			ValueRenderOption("FORMATTED_VALUE").
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get rows from %s: %w", tab, err)
	}

	rows := make([][]string, len(resp.Values))
	for i, values := range resp.Values {
		row := make([]string, len(values))
		for j, v := range values {
			row[j] = cellString(v)
		}
		rows[i] = row
	}
	return rows, nil
}

// AppendRow はタブの末尾に1行追加する。
// 値はRAWで書き込み、数式として解釈させない。
// 追加は冪等でないため、サーバー到達前に拒否される429のみ再試行する。
func (s *GoogleService) AppendRow(ctx context.Context, tab string, row []string) (string, error) {
	body := &sheetsapi.ValueRange{
		MajorDimension: "ROWS",
		Values:         [][]interface{}{toInterfaces(row)},
	}

	var updated string
	err := s.retry.do(ctx, "append_row", true, func(ctx context.Context) error {
		resp, err := s.api.Spreadsheets.Values.Append(s.spreadsheetID, TabRange(tab), body).
			ValueInputOption("RAW").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).
			Do()
		if err != nil {
			if statusOf(err) != http.StatusTooManyRequests {
				return &permanentError{err: err}
			}
			return err
		}
		if resp.Updates != nil {
			updated = resp.Updates.UpdatedRange
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to append row to %s: %w", tab, unwrapPermanent(err))
	}
	return updated, nil
}

// UpdateRange は範囲を上書きする。同じ値での再書き込みは冪等なので通常どおり再試行する。
func (s *GoogleService) UpdateRange(ctx context.Context, tab, rng string, rows [][]string) error {
	values := make([][]interface{}, len(rows))
	for i, row := range rows {
		values[i] = toInterfaces(row)
	}
	body := &sheetsapi.ValueRange{
		MajorDimension: "ROWS",
		Range:          rng,
		Values:         values,
	}

	err := s.retry.do(ctx, "update_range", true, func(ctx context.Context) error {
		_, err := s.api.Spreadsheets.Values.Update(s.spreadsheetID, rng, body).
			ValueInputOption("RAW").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to update range %s: %w", rng, err)
	}
	return nil
}

// ListTabs はタブ名一覧を返す。
func (s *GoogleService) ListTabs(ctx context.Context) ([]string, error) {
	var resp *sheetsapi.Spreadsheet
	err := s.retry.do(ctx, "list_tabs", true, func(ctx context.Context) error {
		r, err := s.api.Spreadsheets.Get(s.spreadsheetID).
			Fields("sheets.properties.title").
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tabs: %w", err)
	}

	names := make([]string, 0, len(resp.Sheets))
	for _, sh := range resp.Sheets {
		if sh.Properties != nil {
			names = append(names, sh.Properties.Title)
		}
	}
	return names, nil
}

// permanentError は再試行させたくない失敗を包む。
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func unwrapPermanent(err error) error {
	var p *permanentError
	if errors.As(err, &p) {
		return p.err
	}
	return err
}

// classifyGoogleError はGoogle APIのエラーをリトライ可否に分類する。
func classifyGoogleError(err error) CallResult {
	var p *permanentError
	if errors.As(err, &p) {
		return CallResultFail
	}
	if code := statusOf(err); code != 0 {
		return ClassifyHTTPStatus(code)
	}
	return classifyTransport(err)
}

// statusOf はgoogleapi.ErrorからHTTPステータスコードを取り出す。該当しなければ0。
func statusOf(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}

func cellString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func toInterfaces(row []string) []interface{} {
	out := make([]interface{}, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out
}

// compile-time interface check
var _ TabularService = (*GoogleService)(nil)
