// Package artifact は収集結果のJSON成果物の書き出しを提供する。
package artifact

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hitoshi/courseman/internal/model"
)

const (
	// CoursesFileName は講座データ成果物のファイル名。
	CoursesFileName = "courses_with_sales.json"
	// FailuresFileName は失敗台帳のファイル名。
	FailuresFileName = "failed_courses.json"
)

// runArtifact はメタデータ付きの成果物構造。
type runArtifact struct {
	Metadata *model.RunMetadata `json:"metadata"`
	Courses  []model.Course     `json:"courses"`
}

// Writer は出力ディレクトリ配下へ成果物を書き出す。
type Writer struct {
	dir    string
	logger *slog.Logger
}

// NewWriter はWriterを生成し、出力ディレクトリを作成する。
func NewWriter(dir string, logger *slog.Logger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("出力ディレクトリの作成に失敗しました: %w", err)
	}
	return &Writer{dir: dir, logger: logger}, nil
}

// WriteCourses は講座データをJSONファイルへ書き出し、ファイルパスを返す。
// metadataがnilでない場合は {"metadata": ..., "courses": ...} の構造化形式、
// nilの場合は後方互換のため講座配列のみを書き出す。
func (w *Writer) WriteCourses(courses []model.Course, metadata *model.RunMetadata) (string, error) {
	if courses == nil {
		courses = []model.Course{}
	}

	var payload any
	if metadata != nil {
		payload = runArtifact{Metadata: metadata, Courses: courses}
	} else {
		payload = courses
	}

	path := filepath.Join(w.dir, CoursesFileName)
	if err := w.writeJSON(path, payload); err != nil {
		return "", err
	}

	w.logger.Info("講座データを書き出しました",
		slog.String("path", path),
		slog.Int("courses", len(courses)),
	)
	return path, nil
}

// WriteFailures は失敗台帳をJSONファイルへ書き出す。
// 失敗が1件もない場合はファイルを作成せず空パスを返す。
func (w *Writer) WriteFailures(failures []model.FailureRecord) (string, error) {
	if len(failures) == 0 {
		return "", nil
	}

	path := filepath.Join(w.dir, FailuresFileName)
	if err := w.writeJSON(path, failures); err != nil {
		return "", err
	}

	w.logger.Warn("失敗台帳を書き出しました",
		slog.String("path", path),
		slog.Int("failures", len(failures)),
	)
	return path, nil
}

func (w *Writer) writeJSON(path string, payload any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("成果物ファイルの作成に失敗しました: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	// 韓国語・日本語のフィールド値をそのまま保存する
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return fmt.Errorf("JSONエンコードに失敗しました: %w", err)
	}
	return nil
}
