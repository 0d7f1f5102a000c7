// Package htmlfetch はカテゴリページHTMLの安全な取得を提供する。
// safeurlライブラリによりプライベートIP、ループバック、リンクローカル、
// メタデータIPへのリクエストがブロックされ、DNS再バインディング攻撃にも
// Dialerレベルの検証で対応する。
package htmlfetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

const (
	// defaultTimeout はページ取得のタイムアウト。
	defaultTimeout = 30 * time.Second
	// maxResponseSize はレスポンスボディの読み取り上限（10MB）。
	maxResponseSize = 10 << 20
)

// allowedSchemes は取得対象として許可されるURLスキーム。
var allowedSchemes = []string{"http", "https"}

// blockedNetworks は事前検証でブロックされるネットワーク範囲。
// パッケージ初期化時に1回だけパースする。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		// プライベートIPアドレス (RFC 1918)
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		// ループバック (RFC 1122)
		"127.0.0.0/8",
		// リンクローカル (RFC 3927) - クラウドメタデータIP (169.254.169.254) を含む
		"169.254.0.0/16",
		// カレントネットワーク
		"0.0.0.0/8",
		// IPv6ループバック
		"::1/128",
		// IPv6リンクローカル
		"fe80::/10",
		// IPv6ユニークローカル
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

// Fetcher はカテゴリページを取得するクライアント。
type Fetcher struct {
	client     *http.Client
	logger     *slog.Logger
	allowLocal bool
}

// Options はFetcherの構成項目。
type Options struct {
	// Timeout が0の場合はdefaultTimeoutを使う。
	Timeout time.Duration
	// AllowLocal はテスト用にループバック宛リクエストを許可する。
	// 本番設定では常にfalse。
	AllowLocal bool
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
func NewFetcher(logger *slog.Logger, opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	if opts.AllowLocal {
		return &Fetcher{
			client:     &http.Client{Timeout: opts.Timeout},
			logger:     logger,
			allowLocal: true,
		}
	}

	config := safeurl.GetConfigBuilder().
		SetTimeout(opts.Timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	return &Fetcher{
		client: safeurl.Client(config).Client,
		logger: logger,
	}
}

// FetchPage は指定URLのHTMLを取得して文字列で返す。
// 取得前にValidateURLによる静的検証を行い、危険なURLは拒否する。
// レスポンスボディはmaxResponseSizeまでで読み取りを打ち切る。
func (f *Fetcher) FetchPage(ctx context.Context, pageURL string) (string, error) {
	if !f.allowLocal {
		if err := ValidateURL(pageURL); err != nil {
			return "", fmt.Errorf("URLの事前検証に失敗しました: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Error("ページ取得に失敗しました",
			slog.String("url", pageURL),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("ページ取得に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ページ取得がステータス %d を返しました: %s", resp.StatusCode, pageURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	f.logger.Info("カテゴリページを取得しました",
		slog.String("url", pageURL),
		slog.Int("bytes", len(body)),
	)
	return string(body), nil
}

// ValidateURL はURLの安全性を事前に検証する。
// DNS解決を伴わない静的な検証であり、DNS再バインディング攻撃は
// safeurlクライアント側のDialer検証で防止される。
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return fmt.Errorf("disallowed scheme: %s (allowed: %v)", scheme, allowedSchemes)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("blocked IP address: %s", ip.String())
		}
		return nil
	}

	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}

	return nil
}

func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
