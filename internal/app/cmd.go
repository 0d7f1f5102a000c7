package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandScrape は講座カタログの収集を実行することを示す。
	CommandScrape Command = "scrape"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandReview は保存済み講座へのAIレビュー生成を実行することを示す。
	CommandReview Command = "review"
	// CommandServe はメトリクスサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandScrapeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandScrape
	}

	switch args[0] {
	case "scrape":
		return CommandScrape
	case "migrate":
		return CommandMigrate
	case "review":
		return CommandReview
	case "serve":
		return CommandServe
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandScrape
	}
}
