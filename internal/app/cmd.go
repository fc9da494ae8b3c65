package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandMigrate は失効ストア用のデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandSheets はスプレッドシートのタブ一覧と設定済みシートの対応を表示することを示す。
	CommandSheets Command = "sheets"
	// CommandKeygen はセッション署名用のシードを生成して表示することを示す。
	CommandKeygen Command = "keygen"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "sheets":
		return CommandSheets
	case "keygen":
		return CommandKeygen
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}
